package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	natspkg "github.com/nats-io/nats.go"
)

// NATSPublisher publishes to "<prefix>.<key>" subjects.
type NATSPublisher struct {
	nc     *natspkg.Conn
	prefix string
}

func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	nc, err := natspkg.Connect(url,
		natspkg.Name("usersapi"),
		natspkg.MaxReconnects(-1),
		natspkg.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &NATSPublisher{nc: nc, prefix: strings.TrimSuffix(prefix, ".")}, nil
}

// Subject returns the subject a key is published on.
func (p *NATSPublisher) Subject(key string) string {
	if p.prefix == "" {
		return key
	}
	return p.prefix + "." + key
}

func (p *NATSPublisher) Publish(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.nc.Publish(p.Subject(key), body); err != nil {
		return fmt.Errorf("failed to publish to nats: %w", err)
	}
	return nil
}

func (p *NATSPublisher) IsHealthy() bool {
	return p.nc != nil && p.nc.Status() == natspkg.CONNECTED
}

func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}
