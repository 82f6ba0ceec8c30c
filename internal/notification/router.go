package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Publisher publishes a message body to a destination: a queue name for
// RabbitMQ, a topic for Kafka, a subject suffix for NATS.
type Publisher interface {
	Publish(ctx context.Context, key string, body []byte) error
}

// DefaultQueues maps each channel type to the queue its delivery tasks
// are published on.
var DefaultQueues = map[ChannelType]string{
	TypeEMail:    "email.notifications",
	TypeSMS:      "sms.notifications",
	TypeHTTPS:    "webhook.notifications",
	TypeTelegram: "telegram.notifications",
	TypeHTTP:     "http.notifications",
}

// DeliveryTask is the unit of work handed to a delivery worker.
type DeliveryTask struct {
	ID          string            `json:"id"`
	Owner       OwnerID           `json:"owner"`
	ContextID   ContextID         `json:"contextId,omitempty"`
	MessageType MessageType       `json:"messageType,omitempty"`
	ChannelType ChannelType       `json:"channelType"`
	Recipient   string            `json:"recipient"`
	Channel     json.RawMessage   `json:"channel"`
	Data        map[string]string `json:"data,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	RetryCount  int               `json:"retryCount"`
	MaxRetries  int               `json:"maxRetries"`
}

// Router plans and publishes delivery tasks for an owner's message.
type Router struct {
	registry   *Registry
	publisher  Publisher
	queues     map[ChannelType]string
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

func NewRouter(registry *Registry, publisher Publisher, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry:   registry,
		publisher:  publisher,
		queues:     DefaultQueues,
		maxRetries: 3,
		logger:     logger,
		now:        time.Now,
	}
}

// Recipients resolves the channels a message reaches. A context id with
// registered channels selects that list as is. Otherwise the owner's
// general set is used, filtered by message type when one is given.
func (r *Router) Recipients(owner OwnerID, mt MessageType, ctxID ContextID) []Channel {
	var seq iter.Seq[Channel]
	switch scoped := r.registry.Context(owner, ctxID); {
	case ctxID != "" && scoped != nil:
		seq = scoped.All()
	case mt != "":
		seq = r.registry.Get(owner).All(mt)
	default:
		seq = r.registry.Get(owner).All()
	}

	var out []Channel
	for ch := range seq {
		out = append(out, ch)
	}
	return out
}

// Route publishes one task per recipient channel. Publish failures are
// logged and joined into the returned error; tasks that were published
// are returned either way.
func (r *Router) Route(ctx context.Context, owner OwnerID, mt MessageType, ctxID ContextID, data map[string]string) ([]DeliveryTask, error) {
	mt = mt.normalized()

	var (
		published []DeliveryTask
		errs      []error
	)
	for _, ch := range r.Recipients(owner, mt, ctxID) {
		task, err := r.newTask(owner, mt, ctxID, ch, data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		queue, ok := r.queues[ch.Type()]
		if !ok {
			errs = append(errs, fmt.Errorf("no queue configured for channel type %s", ch.Type()))
			continue
		}
		if err := r.publishTask(ctx, queue, task); err != nil {
			r.logger.Error("Failed to route delivery task", "queue", queue, "owner", owner, "error", err)
			metricTasksRouted.WithLabelValues(queue, "failed").Inc()
			errs = append(errs, err)
			continue
		}
		metricTasksRouted.WithLabelValues(queue, "published").Inc()
		published = append(published, task)
	}
	return published, errors.Join(errs...)
}

func (r *Router) newTask(owner OwnerID, mt MessageType, ctxID ContextID, ch Channel, data map[string]string) (DeliveryTask, error) {
	payload, err := ch.ToJSON(true)
	if err != nil {
		return DeliveryTask{}, fmt.Errorf("failed to encode channel: %w", err)
	}
	return DeliveryTask{
		ID:          "task_" + uuid.NewString(),
		Owner:       owner,
		ContextID:   ctxID,
		MessageType: mt,
		ChannelType: ch.Type(),
		Recipient:   ch.Address(),
		Channel:     payload,
		Data:        data,
		CreatedAt:   r.now().UTC(),
		MaxRetries:  r.maxRetries,
	}, nil
}

func (r *Router) publishTask(ctx context.Context, queue string, task DeliveryTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return r.publisher.Publish(ctx, queue, body)
}
