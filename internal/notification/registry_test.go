package notification

import (
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_UnknownOwnerIsEmpty(t *testing.T) {
	r := NewRegistry()

	assert.Nil(t, r.Get("nobody"))
	assert.Empty(t, slices.Collect(ChannelsOf[Channel](r, "nobody")))
	assert.Empty(t, slices.Collect(ChannelsInContext[*EMailNotification](r, "nobody", "p1")))
	assert.NotPanics(t, func() {
		RemoveFunc[*EMailNotification](r, "nobody", nil)
		RemoveFromContextFunc[*EMailNotification](r, "nobody", "p1", nil)
	})
	assert.Empty(t, r.Owners())
}

func TestRegistry_EmailScenario(t *testing.T) {
	r := NewRegistry()

	r.Add("u1", NewEMailNotification("a@example.com"), "billing")
	r.Add("u1", NewEMailNotification("a@example.com"), "security")

	emails := slices.Collect(ChannelsOf[*EMailNotification](r, "u1"))
	require.Len(t, emails, 1)
	assert.ElementsMatch(t, []MessageType{"billing", "security"}, emails[0].MessageTypes())
	assert.Equal(t, []OwnerID{"u1"}, r.Owners())
}

func TestRegistry_HTTPSRemoveScenario(t *testing.T) {
	r := NewRegistry()
	AddFunc(r, "u1", NewHTTPSNotification("https://x.example/hook"), SameURL)
	AddFunc(r, "u1", NewHTTPSNotification("https://y.example/hook"), SameURL)

	RemoveFunc(r, "u1", func(h *HTTPSNotification) bool { return h.URL == "https://x.example/hook" })

	remaining := slices.Collect(ChannelsOf[*HTTPSNotification](r, "u1"))
	require.Len(t, remaining, 1)
	assert.Equal(t, "https://y.example/hook", remaining[0].URL)
}

func TestAddFunc_CallerComparer(t *testing.T) {
	r := NewRegistry()
	first := NewHTTPSNotification("https://x.example/hook", "billing")
	second := NewHTTPSNotification("https://x.example/hook", "security")
	second.APIKey = "rotated"

	AddFunc(r, "u1", first, SameURL)
	AddFunc(r, "u1", second, SameURL)

	hooks := slices.Collect(ChannelsOf[*HTTPSNotification](r, "u1"))
	require.Len(t, hooks, 1)
	assert.Same(t, first, hooks[0])
	assert.ElementsMatch(t, []MessageType{"billing", "security"}, hooks[0].MessageTypes())

	// The default comparer sees the differing API key.
	AddFunc(r, "u1", second, nil)
	assert.Len(t, slices.Collect(ChannelsOf[*HTTPSNotification](r, "u1")), 2)
}

func TestRegistry_ContextFallbackAndIndependence(t *testing.T) {
	r := NewRegistry()
	general := NewEMailNotification("a@example.com")
	r.Add("u1", general)

	fallback := slices.Collect(ChannelsInContext[*EMailNotification](r, "u1", "p1"))
	require.Len(t, fallback, 1)
	assert.Same(t, general, fallback[0])

	AddToContextFunc(r, "u1", "p1", NewEMailNotification("ops@example.com"), Equal[*EMailNotification])
	scoped := slices.Collect(ChannelsInContext[*EMailNotification](r, "u1", "p1"))
	require.Len(t, scoped, 1)
	assert.Equal(t, "ops@example.com", scoped[0].Email)

	// An entry equal to a general one is still added to the context.
	AddToContextFunc(r, "u1", "p1", NewEMailNotification("a@example.com"), Equal[*EMailNotification])
	assert.Equal(t, 2, r.Context("u1", "p1").Len())
	assert.Equal(t, 1, r.Get("u1").Len())

	// Other contexts still fall back.
	assert.Len(t, slices.Collect(ChannelsInContext[*EMailNotification](r, "u1", "p2")), 1)
}

func TestRegistry_RemoveIsExactScope(t *testing.T) {
	r := NewRegistry()
	r.Add("u1", NewSMSNotification("+491701234567"))
	AddToContextFunc(r, "u1", "p1", NewSMSNotification("+491701234567"), Equal[*SMSNotification])

	RemoveFromContextFunc[*SMSNotification](r, "u1", "p1", nil)
	assert.Equal(t, 0, r.Context("u1", "p1").Len())
	assert.Equal(t, 1, r.Get("u1").Len())

	// An empty scoped store still shadows the general set.
	assert.NotNil(t, r.Context("u1", "p1"))
	assert.Empty(t, slices.Collect(ChannelsInContext[*SMSNotification](r, "u1", "p1")))

	RemoveFromContextFunc[*SMSNotification](r, "u1", "p9", nil)
	assert.Equal(t, 1, r.Get("u1").Len())
}

func TestRegistry_EventsCarryOwnerAndContext(t *testing.T) {
	r := NewRegistry()
	rec := &eventRecorder{}
	r.Subscribe(rec.listen)

	r.Add("u1", NewEMailNotification("a@example.com"))
	AddToContextFunc(r, "u1", "p1", NewEMailNotification("b@example.com"), nil)
	RemoveFunc[*EMailNotification](r, "u1", nil)

	require.Len(t, rec.events, 3)
	assert.Equal(t, OwnerID("u1"), rec.events[0].Owner)
	assert.Equal(t, ContextID(""), rec.events[0].ContextID)
	assert.Equal(t, ContextID("p1"), rec.events[1].ContextID)
	assert.Equal(t, EventRemoved, rec.events[2].Kind)
}

func TestRegistry_LoadRaisesNoEvents(t *testing.T) {
	r := NewRegistry()
	rec := &eventRecorder{}
	r.Subscribe(rec.listen)

	r.Load("u1", []Channel{NewEMailNotification("a@example.com"), NewEMailNotification("a@example.com")})

	assert.Equal(t, 1, r.Get("u1").Len())
	assert.Empty(t, rec.events)
}

func TestRegistry_ConcurrentOwners(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := OwnerID(fmt.Sprintf("u%d", i%5))
			r.Add(owner, NewEMailNotification("a@example.com"), MessageType(fmt.Sprintf("t%d", i)))
			_ = slices.Collect(ChannelsInContext[Channel](r, owner, "p1"))
		}(i)
	}
	wg.Wait()

	require.Len(t, r.Owners(), 5)
	for _, owner := range r.Owners() {
		assert.Equal(t, 1, r.Get(owner).Len())
		emails := slices.Collect(ChannelsOf[*EMailNotification](r, owner))
		assert.Len(t, emails[0].MessageTypes(), 10)
	}
}

func TestRegistry_ConcurrentDistinctChannels(t *testing.T) {
	r := NewRegistry()
	const owners, perOwner = 4, 50

	var wg sync.WaitGroup
	for i := 0; i < owners*perOwner; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := OwnerID(fmt.Sprintf("u%d", i%owners))
			r.Add(owner, NewHTTPSNotification(fmt.Sprintf("https://hooks.example/%d", i)), "security")
		}(i)
	}
	wg.Wait()

	require.Len(t, r.Owners(), owners)
	for _, owner := range r.Owners() {
		assert.Equal(t, perOwner, r.Get(owner).Len())
	}
}

func TestRegistry_AddKeepsInsertedValue(t *testing.T) {
	r := NewRegistry()
	ch := NewEMailNotification("a@example.com")

	resident := r.Add("u1", ch, "billing")
	assert.Same(t, ch, resident)
	assert.True(t, ch.HasMessageType("billing"))

	// separate values per owner keep their tags apart
	r.Add("u2", NewEMailNotification("a@example.com"), "security")
	assert.False(t, r.Get("u1").snapshot()[0].HasMessageType("security"))
	assert.False(t, r.Get("u2").snapshot()[0].HasMessageType("billing"))
}
