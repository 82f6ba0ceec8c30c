package notification

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"
)

// Migrations holds the schema of the channel tables, applied by
// database.Migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// ErrNotFound is returned by Load when the owner has no persisted row.
var ErrNotFound = errors.New("owner channels not found")

// Row is the subset of *sql.Row the repository scans from.
type Row interface {
	Scan(dest ...any) error
}

// Rows is the subset of *sql.Rows the repository iterates.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// DB is the query surface of the repository. *sql.DB satisfies it through
// NewRepository; tests supply a MockDB.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) Row
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

type sqlDB struct {
	db *sql.DB
}

func (s sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s sqlDB) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// Repository persists each owner's general channel set as a JSON array.
type Repository struct {
	db  DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return NewRepositoryWithDB(sqlDB{db: db})
}

// NewRepositoryWithDB creates a repository over any DB implementation.
func NewRepositoryWithDB(db DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Save upserts the owner's channel JSON.
func (r *Repository) Save(ctx context.Context, owner OwnerID, channels []byte) error {
	query := `
		INSERT INTO owner_notification_channels (owner_id, channels, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id) DO UPDATE SET channels = EXCLUDED.channels, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, string(owner), string(channels), r.now().UTC()); err != nil {
		return fmt.Errorf("failed to save channels for owner %s: %w", owner, err)
	}
	return nil
}

// Load returns the owner's channel JSON or ErrNotFound.
func (r *Repository) Load(ctx context.Context, owner OwnerID) ([]byte, error) {
	query := `SELECT channels FROM owner_notification_channels WHERE owner_id = $1`

	var channels []byte
	err := r.db.QueryRowContext(ctx, query, string(owner)).Scan(&channels)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load channels for owner %s: %w", owner, err)
	}
	return channels, nil
}

// LoadAll returns the channel JSON of every persisted owner.
func (r *Repository) LoadAll(ctx context.Context) (map[OwnerID][]byte, error) {
	query := `SELECT owner_id, channels FROM owner_notification_channels ORDER BY owner_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list owner channels: %w", err)
	}
	defer rows.Close()

	out := make(map[OwnerID][]byte)
	for rows.Next() {
		var (
			owner    string
			channels []byte
		)
		if err := rows.Scan(&owner, &channels); err != nil {
			return nil, fmt.Errorf("failed to scan owner channels: %w", err)
		}
		out[OwnerID(owner)] = channels
	}
	return out, rows.Err()
}

// Delete drops the owner's row. Deleting an unknown owner is not an error.
func (r *Repository) Delete(ctx context.Context, owner OwnerID) error {
	query := `DELETE FROM owner_notification_channels WHERE owner_id = $1`
	if _, err := r.db.ExecContext(ctx, query, string(owner)); err != nil {
		return fmt.Errorf("failed to delete channels for owner %s: %w", owner, err)
	}
	return nil
}
