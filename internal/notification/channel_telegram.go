package notification

import (
	"encoding/json"
	"strings"
)

// TelegramNotification delivers messages to a Telegram user or bot.
// The description is informational and not part of the identity.
type TelegramNotification struct {
	channelBase

	Username     string
	TextTemplate string
	Description  string
}

func NewTelegramNotification(username string, mts ...MessageType) *TelegramNotification {
	ch := &TelegramNotification{Username: strings.TrimSpace(username)}
	ch.AddMessageTypes(mts...)
	return ch
}

type telegramWire struct {
	Context      string        `json:"@context,omitempty"`
	Type         ChannelType   `json:"type"`
	Username     string        `json:"telegramUsername" validate:"required,telegram_username"`
	TextTemplate string        `json:"textTemplate,omitempty"`
	Description  string        `json:"description,omitempty"`
	MessageTypes []MessageType `json:"messageTypes,omitempty"`
}

func (t *TelegramNotification) Type() ChannelType { return TypeTelegram }

func (t *TelegramNotification) Address() string { return t.Username }

func (t *TelegramNotification) SortKey() string {
	return sortKey(strings.ToLower(t.username()), t.TextTemplate)
}

// username strips the optional leading "@"; Telegram handles are
// case-insensitive.
func (t *TelegramNotification) username() string {
	return strings.TrimPrefix(t.Username, "@")
}

func (t *TelegramNotification) Equal(other Channel) bool {
	o, ok := other.(*TelegramNotification)
	if !ok || o == nil {
		return false
	}
	return strings.EqualFold(t.username(), o.username()) && t.TextTemplate == o.TextTemplate
}

func (t *TelegramNotification) Compare(other Channel) int { return compareChannels(t, other) }

func (t *TelegramNotification) ToJSON(embedded bool) ([]byte, error) {
	w := telegramWire{
		Type:         TypeTelegram,
		Username:     t.Username,
		TextTemplate: t.TextTemplate,
		Description:  t.Description,
		MessageTypes: t.MessageTypes(),
	}
	if !embedded {
		w.Context = ContextTelegram
	}
	return json.Marshal(w)
}

func (t *TelegramNotification) MarshalJSON() ([]byte, error) { return t.ToJSON(false) }

func (w *telegramWire) trim() { w.Username = strings.TrimSpace(w.Username) }

func decodeTelegram(data []byte) (Channel, error) {
	var w telegramWire
	if err := decodeWire(data, &w); err != nil {
		return nil, err
	}
	ch := &TelegramNotification{
		Username:     w.Username,
		TextTemplate: w.TextTemplate,
		Description:  w.Description,
	}
	ch.AddMessageTypes(w.MessageTypes...)
	return ch, nil
}
