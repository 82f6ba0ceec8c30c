package notification

import (
	"encoding/json"
	"time"
)

// EventKind is the kind of a registry change.
type EventKind string

const (
	EventAdded   EventKind = "channel.added"
	EventUpdated EventKind = "channel.updated"
	EventRemoved EventKind = "channel.removed"
)

// Event describes one change to a channel store. Owner and ContextID are
// empty for a standalone store; the Registry fills them in.
//
// EventAdded fires when a new entry is inserted, EventUpdated when a
// repeated add grew the message types of the resident entry, and
// EventRemoved once per removed entry.
type Event struct {
	ID           string
	Kind         EventKind
	Timestamp    time.Time
	Owner        OwnerID
	ContextID    ContextID
	MessageTypes []MessageType
	Channel      Channel
}

// Listener receives events synchronously on the goroutine that made the
// change, after the store lock has been released.
type Listener func(Event)

// ChannelEvent is the envelope published to brokers and websocket clients.
type ChannelEvent struct {
	ID           string          `json:"id"`
	Kind         EventKind       `json:"kind"`
	Owner        OwnerID         `json:"owner"`
	ContextID    ContextID       `json:"contextId,omitempty"`
	MessageTypes []MessageType   `json:"messageTypes,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Channel      json.RawMessage `json:"channel"`
}

// Envelope converts the event to its wire form.
func (e Event) Envelope() (ChannelEvent, error) {
	env := ChannelEvent{
		ID:           e.ID,
		Kind:         e.Kind,
		Owner:        e.Owner,
		ContextID:    e.ContextID,
		MessageTypes: e.MessageTypes,
		Timestamp:    e.Timestamp.UTC(),
	}
	if e.Channel != nil {
		data, err := e.Channel.ToJSON(true)
		if err != nil {
			return ChannelEvent{}, err
		}
		env.Channel = data
	}
	return env, nil
}

// Encode returns the JSON of the event envelope.
func (e Event) Encode() ([]byte, error) {
	env, err := e.Envelope()
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
