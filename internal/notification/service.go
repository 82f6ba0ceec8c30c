package notification

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// SnapshotRepository persists owners' general channel sets.
type SnapshotRepository interface {
	Save(ctx context.Context, owner OwnerID, channels []byte) error
	LoadAll(ctx context.Context) (map[OwnerID][]byte, error)
	Delete(ctx context.Context, owner OwnerID) error
}

// ProjectionStore caches rendered projections.
type ProjectionStore interface {
	Get(ctx context.Context, owner OwnerID) ([]byte, bool, error)
	Set(ctx context.Context, owner OwnerID, data []byte) error
	Invalidate(ctx context.Context, owner OwnerID) error
}

// Service is the application layer over the Registry: it parses incoming
// channel documents, persists the general sets and publishes changes.
type Service struct {
	registry *Registry
	repo     SnapshotRepository
	cache    ProjectionStore
	logger   *slog.Logger

	persistMu   sync.Mutex
	// OwnerID -> *atomic.Uint64, bumped on every persisted change.
	generations sync.Map

	events    Publisher
	eventsKey string
	queue     chan Event
}

// NewService wires a service over registry. repo and cache may be nil.
func NewService(registry *Registry, repo SnapshotRepository, cache ProjectionStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	registry.Subscribe(RecordEvent)
	return &Service{
		registry: registry,
		repo:     repo,
		cache:    cache,
		logger:   logger,
	}
}

// PublishEvents forwards registry events to pub under key. Events are
// buffered and published by Run; when the buffer is full they are dropped.
func (s *Service) PublishEvents(pub Publisher, key string, buffer int) {
	if buffer <= 0 {
		buffer = 256
	}
	s.events = pub
	s.eventsKey = key
	s.queue = make(chan Event, buffer)
	s.registry.Subscribe(s.enqueue)
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// Restore seeds the registry from the repository. Owners whose stored
// document no longer parses are skipped.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}
	rows, err := s.repo.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for owner, data := range rows {
		channels, err := ParseList(data)
		if err != nil {
			metricMalformed.Inc()
			s.logger.Warn("Skipping malformed persisted channels", "owner", owner, "error", err)
			continue
		}
		s.registry.Load(owner, channels)
		restored++
	}
	return restored, nil
}

// Register parses raw and adds it to the owner's general set tagged with
// mts. It returns the resident channel, which is an existing entry when an
// equal channel was already registered.
func (s *Service) Register(ctx context.Context, owner OwnerID, raw []byte, mts ...MessageType) (Channel, error) {
	ch, err := Parse(raw)
	if err != nil {
		metricMalformed.Inc()
		return nil, err
	}
	resident := s.registry.Add(owner, ch, mts...)
	s.persist(ctx, owner)
	return resident, nil
}

// RegisterInContext parses raw and adds it to the owner's list for ctxID.
// Context lists are not persisted.
func (s *Service) RegisterInContext(ctx context.Context, owner OwnerID, ctxID ContextID, raw []byte) (Channel, error) {
	ch, err := Parse(raw)
	if err != nil {
		metricMalformed.Inc()
		return nil, err
	}
	return addFunc(s.registry.contextStore(owner, ctxID, true), ch, Equal[Channel]), nil
}

// Remove deletes the owner's general channels of type typ whose address
// matches key. An empty key removes every channel of that type.
func (s *Service) Remove(ctx context.Context, owner OwnerID, typ ChannelType, key string) int {
	removed := s.registry.Get(owner).removeMatching(func(ch Channel) bool {
		return ch.Type() == typ && (key == "" || matchesAddress(ch, key))
	})
	if removed > 0 {
		s.persist(ctx, owner)
	}
	return removed
}

// Channels returns the owner's general channels, filtered by message type
// when mts are given.
func (s *Service) Channels(owner OwnerID, mts ...MessageType) []Channel {
	return slices.Collect(s.registry.Get(owner).All(mts...))
}

// ChannelsInContext returns the owner's channels for ctxID, falling back
// to the general set.
func (s *Service) ChannelsInContext(owner OwnerID, ctxID ContextID) []Channel {
	return slices.Collect(ChannelsInContext[Channel](s.registry, owner, ctxID))
}

// Projection renders the owner's channels as JSON. The unfiltered
// projection is served from the cache when possible.
func (s *Service) Projection(ctx context.Context, owner OwnerID, mts ...MessageType) ([]byte, error) {
	if len(mts) > 0 {
		return ToJSON(s.registry.Get(owner).All(mts...))
	}

	if s.cache != nil {
		data, ok, err := s.cache.Get(ctx, owner)
		if err != nil {
			s.logger.Warn("Projection cache read failed", "owner", owner, "error", err)
		} else if ok {
			return data, nil
		}
	}

	gen := s.generationOf(owner)
	data, err := ToJSON(s.registry.Get(owner).All())
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, owner, data); err != nil {
			s.logger.Warn("Projection cache write failed", "owner", owner, "error", err)
		}
		// A change persisted while rendering may have invalidated before
		// our Set landed.
		if s.generationOf(owner) != gen {
			if err := s.cache.Invalidate(ctx, owner); err != nil {
				s.logger.Warn("Projection cache invalidation failed", "owner", owner, "error", err)
			}
		}
	}
	return data, nil
}

func (s *Service) generationOf(owner OwnerID) uint64 {
	if g, ok := s.generations.Load(owner); ok {
		return g.(*atomic.Uint64).Load()
	}
	return 0
}

func (s *Service) generation(owner OwnerID) *atomic.Uint64 {
	if g, ok := s.generations.Load(owner); ok {
		return g.(*atomic.Uint64)
	}
	g, _ := s.generations.LoadOrStore(owner, new(atomic.Uint64))
	return g.(*atomic.Uint64)
}

// persist saves the owner's general set, or drops the row once it is
// empty. Failures are logged; the in-memory registry stays authoritative.
func (s *Service) persist(ctx context.Context, owner OwnerID) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.generation(owner).Add(1)
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, owner); err != nil {
			s.logger.Warn("Projection cache invalidation failed", "owner", owner, "error", err)
		}
	}
	if s.repo == nil {
		return
	}
	store := s.registry.Get(owner)
	if store.Len() == 0 {
		if err := s.repo.Delete(ctx, owner); err != nil {
			s.logger.Error("Failed to delete channels", "owner", owner, "error", err)
		}
		return
	}
	data, err := ToJSON(store.All())
	if err != nil {
		s.logger.Error("Failed to render channels", "owner", owner, "error", err)
		return
	}
	if err := s.repo.Save(ctx, owner, data); err != nil {
		s.logger.Error("Failed to persist channels", "owner", owner, "error", err)
	}
}

func (s *Service) enqueue(e Event) {
	select {
	case s.queue <- e:
	default:
		metricEventsDropped.Inc()
		s.logger.Warn("Channel event buffer full, dropping event", "owner", e.Owner, "kind", e.Kind)
	}
}

// Run publishes buffered events until ctx is cancelled. It returns
// immediately when PublishEvents was never called.
func (s *Service) Run(ctx context.Context) {
	if s.queue == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.queue:
			s.publish(ctx, e)
		}
	}
}

func (s *Service) publish(ctx context.Context, e Event) {
	body, err := e.Encode()
	if err != nil {
		s.logger.Error("Failed to encode channel event", "id", e.ID, "error", err)
		return
	}
	if err := s.events.Publish(ctx, s.eventsKey, body); err != nil {
		s.logger.Error("Failed to publish channel event", "id", e.ID, "kind", e.Kind, "owner", e.Owner, "error", err)
	}
}

func matchesAddress(ch Channel, key string) bool {
	key = strings.TrimSpace(key)
	switch c := ch.(type) {
	case *EMailNotification:
		return strings.EqualFold(c.Email, key)
	case *TelegramNotification:
		return strings.EqualFold(c.username(), strings.TrimPrefix(key, "@"))
	default:
		return ch.Address() == key
	}
}
