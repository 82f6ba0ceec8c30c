package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig holds connection and resilience settings.
type RabbitMQConfig struct {
	URL string

	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	Heartbeat         time.Duration

	BreakerThreshold int
	BreakerTimeout   time.Duration

	// DeadLetter declares "<queue>.dlq" next to every queue and routes
	// rejected messages there.
	DeadLetter bool
}

func (c *RabbitMQConfig) applyDefaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = time.Minute
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 10 * time.Second
	}
}

// RabbitMQClient publishes persistent JSON messages to durable queues on
// the default exchange. Queues are declared on first use and the
// connection is re-established in the background when it drops.
type RabbitMQClient struct {
	config  RabbitMQConfig
	logger  *slog.Logger
	breaker *CircuitBreaker

	mu       sync.RWMutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
	closed   bool
}

func NewRabbitMQClient(config RabbitMQConfig, logger *slog.Logger) (*RabbitMQClient, error) {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	r := &RabbitMQClient{
		config:  config,
		logger:  logger,
		breaker: NewCircuitBreaker(config.BreakerThreshold, config.BreakerTimeout),
	}
	if err := r.connect(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQClient) connect() error {
	r.logger.Info("Connecting to RabbitMQ", "url", redactURL(r.config.URL))

	conn, err := amqp.DialConfig(r.config.URL, amqp.Config{Heartbeat: r.config.Heartbeat})
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	r.mu.Lock()
	r.conn = conn
	r.ch = ch
	r.declared = make(map[string]bool)
	r.mu.Unlock()

	go r.watch(closed)
	return nil
}

func (r *RabbitMQClient) watch(closed <-chan *amqp.Error) {
	amqpErr := <-closed
	if r.isClosed() {
		return
	}
	r.logger.Warn("RabbitMQ connection lost, reconnecting", "error", amqpErr)

	delay := r.config.ReconnectDelay
	for !r.isClosed() {
		if err := r.connect(); err == nil {
			r.logger.Info("RabbitMQ reconnected")
			return
		}
		time.Sleep(delay)
		delay = min(delay*2, r.config.MaxReconnectDelay)
	}
}

func (r *RabbitMQClient) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// DeclareQueue declares a durable queue, plus its dead-letter queue when
// configured.
func (r *RabbitMQClient) DeclareQueue(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.declareLocked(name)
}

func (r *RabbitMQClient) declareLocked(name string) error {
	if r.declared[name] {
		return nil
	}
	if r.ch == nil {
		return errors.New("rabbitmq channel is not initialized")
	}

	var args amqp.Table
	if r.config.DeadLetter {
		dlq := name + ".dlq"
		if _, err := r.ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", dlq, err)
		}
		args = amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlq,
		}
	}
	if _, err := r.ch.QueueDeclare(name, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	r.declared[name] = true
	return nil
}

// Publish sends body to queue, declaring the queue if needed.
func (r *RabbitMQClient) Publish(ctx context.Context, queue string, body []byte) error {
	if !r.breaker.Allow() {
		return ErrCircuitOpen
	}

	r.mu.Lock()
	if r.ch == nil || r.ch.IsClosed() {
		r.mu.Unlock()
		err := errors.New("rabbitmq connection is not available")
		r.breaker.Record(err)
		return err
	}
	if err := r.declareLocked(queue); err != nil {
		r.mu.Unlock()
		r.breaker.Record(err)
		return err
	}
	ch := r.ch
	r.mu.Unlock()

	err := ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	r.breaker.Record(err)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return nil
}

func (r *RabbitMQClient) IsHealthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn != nil && !r.conn.IsClosed()
}

func (r *RabbitMQClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.ch != nil {
		r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// redactURL hides the password of a broker URL for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
