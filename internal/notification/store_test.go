package notification

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) listen(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func TestStore_AddIsIdempotent(t *testing.T) {
	rec := &eventRecorder{}
	s := NewStore(rec.listen)

	first := s.Add(NewEMailNotification("a@example.com"))
	second := s.Add(NewEMailNotification("a@example.com"))

	assert.Same(t, first, second)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []EventKind{EventAdded}, rec.kinds())
}

func TestStore_AddUnionsMessageTypes(t *testing.T) {
	rec := &eventRecorder{}
	s := NewStore(rec.listen)

	s.AddWithMessageType(NewEMailNotification("a@example.com"), "billing")
	resident := s.AddWithMessageType(NewEMailNotification("a@example.com"), "Security")

	assert.Equal(t, 1, s.Len())
	assert.ElementsMatch(t, []MessageType{"billing", "security"}, resident.MessageTypes())
	assert.Equal(t, []EventKind{EventAdded, EventUpdated}, rec.kinds())

	// A repeated tag changes nothing and raises nothing.
	s.AddWithMessageType(NewEMailNotification("a@example.com"), "billing")
	assert.Len(t, rec.kinds(), 2)
}

func TestStore_AddCarriesIncomingTags(t *testing.T) {
	s := NewStore()
	s.Add(NewSMSNotification("+491701234567"))
	resident := s.Add(NewSMSNotification("+491701234567", "alerts"))

	assert.True(t, resident.HasMessageType("ALERTS"))
}

func TestStore_TagUnionIsCommutative(t *testing.T) {
	orders := [][]MessageType{
		{"a", "b", "c"},
		{"c", "b", "a"},
		{"b", "a", "c"},
	}
	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			s := NewStore()
			for _, mt := range order {
				s.AddWithMessageType(NewTelegramNotification("alice_bot"), mt)
			}
			assert.Equal(t, 1, s.Len())
			resident := slices.Collect(s.All())[0]
			assert.ElementsMatch(t, []MessageType{"a", "b", "c"}, resident.MessageTypes())
		})
	}
}

func TestStore_AddWithMessageTypes(t *testing.T) {
	s := NewStore()
	resident := s.AddWithMessageTypes(NewEMailNotification("a@example.com"), []MessageType{"x", "Y", "x"})
	assert.Equal(t, []MessageType{"x", "y"}, resident.MessageTypes())
}

func TestStore_CrossTypeIndependence(t *testing.T) {
	s := NewStore()
	s.Add(NewHTTPSNotification("https://x.example/hook"))
	s.Add(NewHTTPNotification("https://x.example/hook"))

	assert.Equal(t, 2, s.Len())
	assert.Len(t, slices.Collect(AllOf[*HTTPSNotification](s)), 1)
	assert.Len(t, slices.Collect(AllOf[*HTTPNotification](s)), 1)
}

func TestStore_AllFiltersByMessageType(t *testing.T) {
	s := NewStore()
	s.AddWithMessageType(NewEMailNotification("a@example.com"), "billing")
	s.AddWithMessageType(NewEMailNotification("b@example.com"), "security")
	s.Add(NewSMSNotification("+491701234567"))

	billing := slices.Collect(s.All("Billing"))
	require.Len(t, billing, 1)
	assert.Equal(t, "a@example.com", billing[0].Address())

	assert.Len(t, slices.Collect(s.All("billing", "security")), 2)
	assert.Len(t, slices.Collect(s.All()), 3)
	assert.Empty(t, slices.Collect(s.All("unknown")))
}

func TestStore_AllIsSnapshot(t *testing.T) {
	s := NewStore()
	s.Add(NewEMailNotification("a@example.com"))
	seq := s.All()
	s.Add(NewEMailNotification("b@example.com"))

	assert.Len(t, slices.Collect(seq), 1)
}

func TestStore_RemoveOf(t *testing.T) {
	rec := &eventRecorder{}
	s := NewStore(rec.listen)
	s.Add(NewHTTPSNotification("https://x.example/hook"))
	s.Add(NewHTTPSNotification("https://y.example/hook"))
	s.Add(NewEMailNotification("a@example.com"))

	removed := RemoveOf(s, func(h *HTTPSNotification) bool { return h.URL == "https://x.example/hook" })

	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []EventKind{EventAdded, EventAdded, EventAdded, EventRemoved}, rec.kinds())

	assert.Equal(t, 1, RemoveOf[*HTTPSNotification](s, nil))
	assert.Equal(t, 0, RemoveOf[*SMSNotification](s, nil))
	assert.Equal(t, 1, s.Len())
}

func TestStore_NilReadsAsEmpty(t *testing.T) {
	var s *Store
	assert.Empty(t, slices.Collect(s.All()))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, RemoveOf[*EMailNotification](s, nil))

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestStore_EventsCarryTimestamp(t *testing.T) {
	rec := &eventRecorder{}
	s := NewStore(rec.listen)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	ch := s.Add(NewEMailNotification("a@example.com"))

	require.Len(t, rec.events, 1)
	assert.Equal(t, fixed, rec.events[0].Timestamp)
	assert.Same(t, ch, rec.events[0].Channel)
	assert.NotEmpty(t, rec.events[0].ID)
}

func TestStore_ListenerMayReenter(t *testing.T) {
	s := NewStore()
	var seen int
	s.Subscribe(func(e Event) {
		seen = s.Len()
	})
	s.Add(NewEMailNotification("a@example.com"))
	assert.Equal(t, 1, seen)
}

func TestStore_ConcurrentAdd(t *testing.T) {
	s := NewStore()
	const workers = 16

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mt := MessageType(fmt.Sprintf("type-%d", i))
			s.AddWithMessageType(NewEMailNotification("a@example.com"), mt)
			s.AddWithMessageType(NewSMSNotification("+491701234567"), mt)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 2, s.Len())
	for ch := range s.All() {
		assert.Len(t, ch.MessageTypes(), workers)
	}
}

func TestStore_ConcurrentDistinctAdds(t *testing.T) {
	s := NewStore()
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		for range 2 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s.Add(NewSMSNotification(fmt.Sprintf("+4917%08d", i)))
				s.AddWithMessageType(NewEMailNotification(fmt.Sprintf("user%d@example.com", i)), "billing")
			}(i)
		}
	}
	wg.Wait()

	assert.Equal(t, 2*n, s.Len())
	assert.Len(t, slices.Collect(AllOf[*SMSNotification](s)), n)
	assert.Len(t, slices.Collect(s.All("billing")), n)
}
