package notification

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
)

type MockDB struct {
	ExecContextFunc     func(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContextFunc func(ctx context.Context, query string, args ...any) Row
	QueryContextFunc    func(ctx context.Context, query string, args ...any) (Rows, error)
}

func (m *MockDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if m.ExecContextFunc != nil {
		return m.ExecContextFunc(ctx, query, args...)
	}
	return driver.RowsAffected(1), nil
}

func (m *MockDB) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	if m.QueryRowContextFunc != nil {
		return m.QueryRowContextFunc(ctx, query, args...)
	}
	return &MockRow{ScanFunc: func(dest ...any) error { return sql.ErrNoRows }}
}

func (m *MockDB) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if m.QueryContextFunc != nil {
		return m.QueryContextFunc(ctx, query, args...)
	}
	return &MockRows{}, nil
}

type MockRow struct {
	ScanFunc func(dest ...any) error
}

func (m *MockRow) Scan(dest ...any) error {
	return m.ScanFunc(dest...)
}

// MockRows yields Data one row at a time; each row's values are assigned
// to the Scan destinations in order.
type MockRows struct {
	Data [][]any
	pos  int
}

func (m *MockRows) Next() bool {
	if m.pos >= len(m.Data) {
		return false
	}
	m.pos++
	return true
}

func (m *MockRows) Scan(dest ...any) error {
	row := m.Data[m.pos-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *[]byte:
			*p = row[i].([]byte)
		}
	}
	return nil
}

func (m *MockRows) Close() error { return nil }

func (m *MockRows) Err() error { return nil }

// MockPublisher records every publish call.
type MockPublisher struct {
	PublishFunc func(ctx context.Context, key string, body []byte) error

	mu       sync.Mutex
	Messages []PublishedMessage
}

type PublishedMessage struct {
	Key  string
	Body []byte
}

func (m *MockPublisher) Publish(ctx context.Context, key string, body []byte) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, key, body); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, PublishedMessage{Key: key, Body: body})
	return nil
}

// Published returns a copy of the recorded messages.
func (m *MockPublisher) Published() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedMessage, len(m.Messages))
	copy(out, m.Messages)
	return out
}

type MockSnapshotRepository struct {
	SaveFunc    func(ctx context.Context, owner OwnerID, channels []byte) error
	LoadAllFunc func(ctx context.Context) (map[OwnerID][]byte, error)

	mu      sync.Mutex
	Deleted []OwnerID
}

func (m *MockSnapshotRepository) Save(ctx context.Context, owner OwnerID, channels []byte) error {
	if m.SaveFunc == nil {
		return nil
	}
	return m.SaveFunc(ctx, owner, channels)
}

func (m *MockSnapshotRepository) Delete(ctx context.Context, owner OwnerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, owner)
	return nil
}

func (m *MockSnapshotRepository) LoadAll(ctx context.Context) (map[OwnerID][]byte, error) {
	if m.LoadAllFunc == nil {
		return nil, nil
	}
	return m.LoadAllFunc(ctx)
}

// MockProjectionStore is an in-memory ProjectionStore. BeforeSet, when
// set, runs at the start of every Set.
type MockProjectionStore struct {
	BeforeSet func(owner OwnerID)

	mu          sync.Mutex
	data        map[OwnerID][]byte
	Invalidated []OwnerID
}

func (m *MockProjectionStore) Get(ctx context.Context, owner OwnerID) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[owner]
	return data, ok, nil
}

func (m *MockProjectionStore) Set(ctx context.Context, owner OwnerID, data []byte) error {
	if m.BeforeSet != nil {
		m.BeforeSet(owner)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[OwnerID][]byte)
	}
	m.data[owner] = data
	return nil
}

func (m *MockProjectionStore) Invalidate(ctx context.Context, owner OwnerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, owner)
	m.Invalidated = append(m.Invalidated, owner)
	return nil
}
