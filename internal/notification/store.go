package notification

import (
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the channel set of one owner (or of one owner's context).
// Entries keep insertion order and no two entries of the same type are
// equal. All methods are safe for concurrent use and a nil *Store reads
// as empty.
type Store struct {
	mu        sync.Mutex
	channels  []Channel
	listeners []Listener
	now       func() time.Time
}

// NewStore creates an empty store. Listeners receive every change.
func NewStore(listeners ...Listener) *Store {
	return &Store{
		listeners: listeners,
		now:       time.Now,
	}
}

// Subscribe registers an additional listener.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Add inserts ch unless an equal channel of the same type is present, and
// returns the resident entry. Message types carried by ch are unioned into
// the resident entry on a match. On insert the store keeps ch itself and
// tags it in place, so a value must not be added to more than one store.
func (s *Store) Add(ch Channel) Channel {
	return s.AddWithMessageTypes(ch, nil)
}

// AddWithMessageType is Add followed by tagging the resident entry with mt
// in the same critical section.
func (s *Store) AddWithMessageType(ch Channel, mt MessageType) Channel {
	return s.AddWithMessageTypes(ch, []MessageType{mt})
}

// AddWithMessageTypes is Add followed by tagging the resident entry with
// all of mts in the same critical section.
func (s *Store) AddWithMessageTypes(ch Channel, mts []MessageType) Channel {
	resident, events := s.addMatching(ch, ch.Equal, mts)
	s.emit(events)
	return resident
}

// addMatching is the shared insert path. match is only consulted for
// entries of the same concrete type as ch.
func (s *Store) addMatching(ch Channel, match func(Channel) bool, mts []MessageType) (Channel, []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming := append(ch.MessageTypes(), mts...)
	for _, existing := range s.channels {
		if existing.Type() != ch.Type() || !match(existing) {
			continue
		}
		if existing.tags().add(incoming...) == 0 {
			return existing, nil
		}
		return existing, []Event{s.event(EventUpdated, existing, existing.MessageTypes())}
	}

	ch.tags().add(mts...)
	s.channels = append(s.channels, ch)
	return ch, []Event{s.event(EventAdded, ch, ch.MessageTypes())}
}

// load inserts channels read back from storage without raising events.
func (s *Store) load(channels []Channel) {
	for _, ch := range channels {
		s.addMatching(ch, ch.Equal, nil)
	}
}

// All returns a snapshot of the store, filtered to channels tagged with
// any of mts when given.
func (s *Store) All(mts ...MessageType) iter.Seq[Channel] {
	snapshot := s.snapshot()
	return func(yield func(Channel) bool) {
		for _, ch := range snapshot {
			if !hasAny(ch, mts) {
				continue
			}
			if !yield(ch) {
				return
			}
		}
	}
}

// Len returns the number of entries.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

// AllOf returns the store's channels of concrete type T, filtered by
// message type like All.
func AllOf[T Channel](s *Store, mts ...MessageType) iter.Seq[T] {
	return filterType[T](s.All(mts...))
}

// RemoveOf removes every channel of type T for which pred reports true
// and returns how many were removed. A nil pred removes all of type T.
func RemoveOf[T Channel](s *Store, pred func(T) bool) int {
	return s.removeMatching(func(ch Channel) bool {
		t, ok := ch.(T)
		return ok && (pred == nil || pred(t))
	})
}

func (s *Store) removeMatching(pred func(Channel) bool) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	kept := s.channels[:0]
	var events []Event
	for _, ch := range s.channels {
		if pred(ch) {
			events = append(events, s.event(EventRemoved, ch, ch.MessageTypes()))
			continue
		}
		kept = append(kept, ch)
	}
	clear(s.channels[len(kept):])
	s.channels = kept
	s.mu.Unlock()

	s.emit(events)
	return len(events)
}

func (s *Store) snapshot() []Channel {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

// event must be called with s.mu held.
func (s *Store) event(kind EventKind, ch Channel, mts []MessageType) Event {
	return Event{
		ID:           uuid.NewString(),
		Kind:         kind,
		Timestamp:    s.now(),
		MessageTypes: mts,
		Channel:      ch,
	}
}

func (s *Store) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, e := range events {
		for _, l := range listeners {
			l(e)
		}
	}
}

func hasAny(ch Channel, mts []MessageType) bool {
	if len(mts) == 0 {
		return true
	}
	for _, mt := range mts {
		if ch.HasMessageType(mt) {
			return true
		}
	}
	return false
}

func filterType[T Channel](seq iter.Seq[Channel]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for ch := range seq {
			t, ok := ch.(T)
			if !ok {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}
