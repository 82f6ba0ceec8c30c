package notification

import (
	"iter"
	"slices"
	"sync"
	"time"
)

// OwnerID identifies the user or organization a channel set belongs to.
type OwnerID string

// ContextID identifies a notification context such as a project or an
// alert rule. Channels added under a context only apply to it.
type ContextID string

type ownerEntry struct {
	general *Store

	mu       sync.Mutex
	contexts map[ContextID]*Store
}

// Registry multiplexes channel stores by owner. Every owner has a general
// store and, optionally, context-scoped stores that shadow it on read.
// Owner entries are created lazily and never evicted.
type Registry struct {
	mu        sync.RWMutex
	owners    map[OwnerID]*ownerEntry
	listeners []Listener
	now       func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		owners: make(map[OwnerID]*ownerEntry),
		now:    time.Now,
	}
}

// Subscribe registers a listener for changes in every owner's stores.
func (r *Registry) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *Registry) emit(e Event) {
	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()
	for _, l := range listeners {
		l(e)
	}
}

func (r *Registry) newStore(owner OwnerID, ctxID ContextID) *Store {
	s := NewStore(func(e Event) {
		e.Owner = owner
		e.ContextID = ctxID
		r.emit(e)
	})
	s.now = r.now
	return s
}

func (r *Registry) entry(owner OwnerID, create bool) *ownerEntry {
	r.mu.RLock()
	e, ok := r.owners[owner]
	r.mu.RUnlock()
	if ok || !create {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.owners[owner]; ok {
		return e
	}
	e = &ownerEntry{
		general:  r.newStore(owner, ""),
		contexts: make(map[ContextID]*Store),
	}
	r.owners[owner] = e
	metricOwners.Set(float64(len(r.owners)))
	return e
}

func (r *Registry) contextStore(owner OwnerID, ctxID ContextID, create bool) *Store {
	e := r.entry(owner, create)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.contexts[ctxID]
	if !ok && create {
		s = r.newStore(owner, ctxID)
		e.contexts[ctxID] = s
	}
	return s
}

// Get returns the owner's general store, or nil for an unknown owner.
func (r *Registry) Get(owner OwnerID) *Store {
	e := r.entry(owner, false)
	if e == nil {
		return nil
	}
	return e.general
}

// Context returns the owner's store for ctxID without falling back to the
// general set. It is nil when no channel was ever added under ctxID.
func (r *Registry) Context(owner OwnerID, ctxID ContextID) *Store {
	return r.contextStore(owner, ctxID, false)
}

// Owners returns the known owners in sorted order.
func (r *Registry) Owners() []OwnerID {
	r.mu.RLock()
	owners := make([]OwnerID, 0, len(r.owners))
	for id := range r.owners {
		owners = append(owners, id)
	}
	r.mu.RUnlock()
	slices.Sort(owners)
	return owners
}

// Add adds ch to the owner's general store, tagged with mts, and returns
// the resident entry. The store takes ownership of ch on insert; parse or
// construct a separate value per owner.
func (r *Registry) Add(owner OwnerID, ch Channel, mts ...MessageType) Channel {
	return r.entry(owner, true).general.AddWithMessageTypes(ch, mts)
}

// Load seeds the owner's general store with channels read back from
// storage. No events are raised.
func (r *Registry) Load(owner OwnerID, channels []Channel) {
	r.entry(owner, true).general.load(channels)
}

// AddFunc adds ch to the owner's general store unless eq reports it equal
// to a resident channel of the same type. On a match the message types of
// ch are unioned into the resident entry.
func AddFunc[T Channel](r *Registry, owner OwnerID, ch T, eq func(a, b T) bool) *Registry {
	addFunc(r.entry(owner, true).general, ch, eq)
	return r
}

// AddToContextFunc is AddFunc on the owner's store for ctxID. The context
// store is independent of the general one: a channel equal to a general
// entry is still added.
func AddToContextFunc[T Channel](r *Registry, owner OwnerID, ctxID ContextID, ch T, eq func(a, b T) bool) *Registry {
	addFunc(r.contextStore(owner, ctxID, true), ch, eq)
	return r
}

func addFunc[T Channel](s *Store, ch T, eq func(a, b T) bool) Channel {
	if eq == nil {
		eq = Equal[T]
	}
	resident, events := s.addMatching(ch, func(existing Channel) bool {
		e, ok := existing.(T)
		return ok && eq(e, ch)
	}, nil)
	s.emit(events)
	return resident
}

// ChannelsOf returns the owner's general channels of type T, filtered by
// message type when mts are given.
func ChannelsOf[T Channel](r *Registry, owner OwnerID, mts ...MessageType) iter.Seq[T] {
	return AllOf[T](r.Get(owner), mts...)
}

// ChannelsInContext returns the owner's channels of type T for ctxID. When
// nothing was registered under ctxID the general set is used instead.
func ChannelsInContext[T Channel](r *Registry, owner OwnerID, ctxID ContextID) iter.Seq[T] {
	return AllOf[T](r.resolve(owner, ctxID))
}

func (r *Registry) resolve(owner OwnerID, ctxID ContextID) *Store {
	if s := r.Context(owner, ctxID); s != nil {
		return s
	}
	return r.Get(owner)
}

// RemoveFunc removes the owner's general channels of type T matching pred.
// Unknown owners are a no-op.
func RemoveFunc[T Channel](r *Registry, owner OwnerID, pred func(T) bool) *Registry {
	RemoveOf(r.Get(owner), pred)
	return r
}

// RemoveFromContextFunc removes matching channels from the store for
// ctxID only; the general set is never touched.
func RemoveFromContextFunc[T Channel](r *Registry, owner OwnerID, ctxID ContextID, pred func(T) bool) *Registry {
	RemoveOf(r.Context(owner, ctxID), pred)
	return r
}
