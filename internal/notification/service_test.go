package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_RegisterPersistsAndInvalidates(t *testing.T) {
	saved := map[OwnerID]string{}
	repo := &MockSnapshotRepository{
		SaveFunc: func(ctx context.Context, owner OwnerID, channels []byte) error {
			saved[owner] = string(channels)
			return nil
		},
	}
	cache := &MockProjectionStore{}
	svc := NewService(NewRegistry(), repo, cache, nil)

	ch, err := svc.Register(context.Background(), "u1", []byte(`{"type":"EMailNotification","email":"a@example.com"}`), "billing")
	require.NoError(t, err)
	assert.True(t, ch.HasMessageType("billing"))

	assert.JSONEq(t, `[{"type":"EMailNotification","email":"a@example.com","messageTypes":["billing"]}]`, saved["u1"])
	assert.Equal(t, []OwnerID{"u1"}, cache.Invalidated)
}

func TestService_RegisterRejectsMalformed(t *testing.T) {
	repo := &MockSnapshotRepository{
		SaveFunc: func(ctx context.Context, owner OwnerID, channels []byte) error {
			t.Fatal("malformed channel must not be persisted")
			return nil
		},
	}
	svc := NewService(NewRegistry(), repo, nil, nil)

	_, err := svc.Register(context.Background(), "u1", []byte(`{"type":"SMSNotification","phoneNumber":"nope"}`))
	require.ErrorIs(t, err, ErrMalformedChannel)
	assert.Nil(t, svc.Registry().Get("u1"))
}

func TestService_PersistFailureIsNotFatal(t *testing.T) {
	repo := &MockSnapshotRepository{
		SaveFunc: func(ctx context.Context, owner OwnerID, channels []byte) error {
			return errors.New("db down")
		},
	}
	svc := NewService(NewRegistry(), repo, nil, nil)

	_, err := svc.Register(context.Background(), "u1", []byte(`{"type":"EMailNotification","email":"a@example.com"}`))
	require.NoError(t, err)
	assert.Len(t, svc.Channels("u1"), 1)
}

func TestService_Restore(t *testing.T) {
	repo := &MockSnapshotRepository{
		LoadAllFunc: func(ctx context.Context) (map[OwnerID][]byte, error) {
			return map[OwnerID][]byte{
				"u1": []byte(`[{"type":"EMailNotification","email":"a@example.com","messageTypes":["billing"]}]`),
				"u2": []byte(`[{"type":"EMailNotification"}]`),
			}, nil
		},
	}
	svc := NewService(NewRegistry(), repo, nil, nil)

	restored, err := svc.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
	assert.Len(t, svc.Channels("u1", "billing"), 1)
	assert.Empty(t, svc.Channels("u2"))
}

func TestService_Remove(t *testing.T) {
	repo := &MockSnapshotRepository{}
	svc := NewService(NewRegistry(), repo, nil, nil)
	ctx := context.Background()
	_, err := svc.Register(ctx, "u1", []byte(`{"type":"EMailNotification","email":"a@example.com"}`))
	require.NoError(t, err)
	_, err = svc.Register(ctx, "u1", []byte(`{"type":"TelegramNotification","telegramUsername":"alice_bot"}`))
	require.NoError(t, err)

	assert.Equal(t, 0, svc.Remove(ctx, "u1", TypeSMS, "+491701234567"))
	assert.Equal(t, 1, svc.Remove(ctx, "u1", TypeEMail, "A@example.com"))
	assert.Equal(t, 1, svc.Remove(ctx, "u1", TypeTelegram, "@Alice_Bot"))
	assert.Empty(t, svc.Channels("u1"))
	assert.Equal(t, []OwnerID{"u1"}, repo.Deleted)
	assert.Equal(t, 0, svc.Remove(ctx, "nobody", TypeEMail, ""))
}

func TestService_RegisterInContext(t *testing.T) {
	svc := NewService(NewRegistry(), nil, nil, nil)
	ctx := context.Background()
	_, err := svc.Register(ctx, "u1", []byte(`{"type":"EMailNotification","email":"a@example.com"}`))
	require.NoError(t, err)

	assert.Len(t, svc.ChannelsInContext("u1", "p1"), 1)

	_, err = svc.RegisterInContext(ctx, "u1", "p1", []byte(`{"type":"SMSNotification","phoneNumber":"+491701234567"}`))
	require.NoError(t, err)

	scoped := svc.ChannelsInContext("u1", "p1")
	require.Len(t, scoped, 1)
	assert.Equal(t, TypeSMS, scoped[0].Type())
	assert.Len(t, svc.Channels("u1"), 1)
}

func TestService_ProjectionIsCached(t *testing.T) {
	cache := &MockProjectionStore{}
	svc := NewService(NewRegistry(), nil, cache, nil)
	ctx := context.Background()
	_, err := svc.Register(ctx, "u1", []byte(`{"type":"EMailNotification","email":"a@example.com"}`), "billing")
	require.NoError(t, err)

	first, err := svc.Projection(ctx, "u1")
	require.NoError(t, err)
	cached, ok, _ := cache.Get(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, first, cached)

	filtered, err := svc.Projection(ctx, "u1", "security")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(filtered))

	empty, err := svc.Projection(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}

func TestService_ProjectionUnknownOwnerWithoutRepository(t *testing.T) {
	svc := NewService(NewRegistry(), nil, nil, nil)

	data, err := svc.Projection(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestService_ProjectionDoesNotTouchRepository(t *testing.T) {
	repo := &MockSnapshotRepository{
		SaveFunc: func(ctx context.Context, owner OwnerID, channels []byte) error {
			t.Fatal("reads must not persist")
			return nil
		},
	}
	svc := NewService(NewRegistry(), repo, &MockProjectionStore{}, nil)

	data, err := svc.Projection(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
	assert.Empty(t, repo.Deleted)
}

func TestService_ProjectionNotCachedWhenChangedDuringRender(t *testing.T) {
	cache := &MockProjectionStore{}
	svc := NewService(NewRegistry(), nil, cache, nil)
	ctx := context.Background()
	_, err := svc.Register(ctx, "u1", []byte(`{"type":"EMailNotification","email":"a@example.com"}`))
	require.NoError(t, err)

	cache.BeforeSet = func(owner OwnerID) {
		cache.BeforeSet = nil
		_, err := svc.Register(ctx, owner, []byte(`{"type":"SMSNotification","phoneNumber":"+491701234567"}`))
		require.NoError(t, err)
	}

	stale, err := svc.Projection(ctx, "u1")
	require.NoError(t, err)
	assert.NotContains(t, string(stale), "+491701234567")

	_, ok, _ := cache.Get(ctx, "u1")
	assert.False(t, ok)

	fresh, err := svc.Projection(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, string(fresh), "a@example.com")
	assert.Contains(t, string(fresh), "+491701234567")

	cached, ok, _ := cache.Get(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, fresh, cached)
}

func TestService_PublishesEvents(t *testing.T) {
	pub := &MockPublisher{}
	svc := NewService(NewRegistry(), nil, nil, nil)
	svc.PublishEvents(pub, "notification.channel-events", 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	_, err := svc.Register(ctx, "u1", []byte(`{"type":"SMSNotification","phoneNumber":"+491701234567"}`), "security")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(pub.Published()) == 1 }, time.Second, 10*time.Millisecond)

	msg := pub.Published()[0]
	assert.Equal(t, "notification.channel-events", msg.Key)

	var env ChannelEvent
	require.NoError(t, json.Unmarshal(msg.Body, &env))
	assert.Equal(t, EventAdded, env.Kind)
	assert.Equal(t, OwnerID("u1"), env.Owner)
	assert.Equal(t, []MessageType{"security"}, env.MessageTypes)
	assert.JSONEq(t, `{"type":"SMSNotification","phoneNumber":"+491701234567","messageTypes":["security"]}`, string(env.Channel))
}
