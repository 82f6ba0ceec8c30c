package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_RouteByMessageType(t *testing.T) {
	r := NewRegistry()
	r.Add("u1", NewEMailNotification("a@example.com"), "billing")
	r.Add("u1", NewSMSNotification("+491701234567"), "security")
	AddFunc(r, "u1", NewHTTPSNotification("https://x.example/hook", "billing"), SameURL)

	pub := &MockPublisher{}
	router := NewRouter(r, pub, nil)

	tasks, err := router.Route(context.Background(), "u1", "Billing", "", map[string]string{"invoice": "42"})
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	msgs := pub.Published()
	require.Len(t, msgs, 2)
	assert.Equal(t, "email.notifications", msgs[0].Key)
	assert.Equal(t, "webhook.notifications", msgs[1].Key)

	var task DeliveryTask
	require.NoError(t, json.Unmarshal(msgs[0].Body, &task))
	assert.Equal(t, OwnerID("u1"), task.Owner)
	assert.Equal(t, MessageType("billing"), task.MessageType)
	assert.Equal(t, "a@example.com", task.Recipient)
	assert.Equal(t, "42", task.Data["invoice"])
	assert.Equal(t, 3, task.MaxRetries)
	assert.JSONEq(t, `{"type":"EMailNotification","email":"a@example.com","messageTypes":["billing"]}`, string(task.Channel))
}

func TestRouter_ContextListIsNotFiltered(t *testing.T) {
	r := NewRegistry()
	r.Add("u1", NewEMailNotification("a@example.com"), "billing")
	AddToContextFunc(r, "u1", "p1", NewTelegramNotification("alice_bot"), nil)

	router := NewRouter(r, &MockPublisher{}, nil)

	scoped := router.Recipients("u1", "billing", "p1")
	require.Len(t, scoped, 1)
	assert.Equal(t, TypeTelegram, scoped[0].Type())

	fallback := router.Recipients("u1", "billing", "p2")
	require.Len(t, fallback, 1)
	assert.Equal(t, TypeEMail, fallback[0].Type())

	assert.Empty(t, router.Recipients("u1", "security", "p2"))
	assert.Empty(t, router.Recipients("nobody", "", ""))
}

func TestRouter_PublishFailureIsReported(t *testing.T) {
	r := NewRegistry()
	r.Add("u1", NewEMailNotification("a@example.com"))
	r.Add("u1", NewSMSNotification("+491701234567"))

	boom := errors.New("channel closed")
	pub := &MockPublisher{
		PublishFunc: func(ctx context.Context, key string, body []byte) error {
			if key == "sms.notifications" {
				return boom
			}
			return nil
		},
	}
	router := NewRouter(r, pub, nil)

	tasks, err := router.Route(context.Background(), "u1", "", "", nil)
	require.ErrorIs(t, err, boom)
	require.Len(t, tasks, 1)
	assert.Equal(t, TypeEMail, tasks[0].ChannelType)
}
