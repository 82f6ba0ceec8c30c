package notification

import (
	"encoding/json"
	"strings"
)

// EMailNotification delivers messages to an e-mail address.
type EMailNotification struct {
	channelBase

	Email         string
	Subject       string
	SubjectPrefix string
	ListID        string
}

// NewEMailNotification creates an e-mail channel tagged with mts.
func NewEMailNotification(email string, mts ...MessageType) *EMailNotification {
	ch := &EMailNotification{Email: strings.TrimSpace(email)}
	ch.AddMessageTypes(mts...)
	return ch
}

type emailWire struct {
	Context       string        `json:"@context,omitempty"`
	Type          ChannelType   `json:"type"`
	Email         string        `json:"email" validate:"required,email"`
	Subject       string        `json:"subject,omitempty"`
	SubjectPrefix string        `json:"subjectPrefix,omitempty"`
	ListID        string        `json:"listId,omitempty"`
	MessageTypes  []MessageType `json:"messageTypes,omitempty"`
}

func (e *EMailNotification) Type() ChannelType { return TypeEMail }

func (e *EMailNotification) Address() string { return e.Email }

// SortKey lowercases the address; mailbox names are matched
// case-insensitively throughout the registry.
func (e *EMailNotification) SortKey() string {
	return sortKey(strings.ToLower(e.Email), e.Subject, e.SubjectPrefix, e.ListID)
}

func (e *EMailNotification) Equal(other Channel) bool {
	o, ok := other.(*EMailNotification)
	if !ok || o == nil {
		return false
	}
	return strings.EqualFold(e.Email, o.Email) &&
		e.Subject == o.Subject &&
		e.SubjectPrefix == o.SubjectPrefix &&
		e.ListID == o.ListID
}

func (e *EMailNotification) Compare(other Channel) int { return compareChannels(e, other) }

func (e *EMailNotification) ToJSON(embedded bool) ([]byte, error) {
	w := emailWire{
		Type:          TypeEMail,
		Email:         e.Email,
		Subject:       e.Subject,
		SubjectPrefix: e.SubjectPrefix,
		ListID:        e.ListID,
		MessageTypes:  e.MessageTypes(),
	}
	if !embedded {
		w.Context = ContextEMail
	}
	return json.Marshal(w)
}

func (e *EMailNotification) MarshalJSON() ([]byte, error) { return e.ToJSON(false) }

func (w *emailWire) trim() { w.Email = strings.TrimSpace(w.Email) }

func decodeEMail(data []byte) (Channel, error) {
	var w emailWire
	if err := decodeWire(data, &w); err != nil {
		return nil, err
	}
	ch := &EMailNotification{
		Email:         w.Email,
		Subject:       w.Subject,
		SubjectPrefix: w.SubjectPrefix,
		ListID:        w.ListID,
	}
	ch.AddMessageTypes(w.MessageTypes...)
	return ch, nil
}
