package notification

import (
	"encoding/json"
	"strings"
)

// SMSNotification delivers text messages to an E.164 phone number.
type SMSNotification struct {
	channelBase

	PhoneNumber  string
	TextTemplate string
}

func NewSMSNotification(phoneNumber string, mts ...MessageType) *SMSNotification {
	ch := &SMSNotification{PhoneNumber: strings.TrimSpace(phoneNumber)}
	ch.AddMessageTypes(mts...)
	return ch
}

type smsWire struct {
	Context      string        `json:"@context,omitempty"`
	Type         ChannelType   `json:"type"`
	PhoneNumber  string        `json:"phoneNumber" validate:"required,e164"`
	TextTemplate string        `json:"textTemplate,omitempty"`
	MessageTypes []MessageType `json:"messageTypes,omitempty"`
}

func (s *SMSNotification) Type() ChannelType { return TypeSMS }

func (s *SMSNotification) Address() string { return s.PhoneNumber }

func (s *SMSNotification) SortKey() string { return sortKey(s.PhoneNumber, s.TextTemplate) }

func (s *SMSNotification) Equal(other Channel) bool {
	o, ok := other.(*SMSNotification)
	if !ok || o == nil {
		return false
	}
	return s.PhoneNumber == o.PhoneNumber && s.TextTemplate == o.TextTemplate
}

func (s *SMSNotification) Compare(other Channel) int { return compareChannels(s, other) }

func (s *SMSNotification) ToJSON(embedded bool) ([]byte, error) {
	w := smsWire{
		Type:         TypeSMS,
		PhoneNumber:  s.PhoneNumber,
		TextTemplate: s.TextTemplate,
		MessageTypes: s.MessageTypes(),
	}
	if !embedded {
		w.Context = ContextSMS
	}
	return json.Marshal(w)
}

func (s *SMSNotification) MarshalJSON() ([]byte, error) { return s.ToJSON(false) }

func (w *smsWire) trim() { w.PhoneNumber = strings.TrimSpace(w.PhoneNumber) }

func decodeSMS(data []byte) (Channel, error) {
	var w smsWire
	if err := decodeWire(data, &w); err != nil {
		return nil, err
	}
	ch := &SMSNotification{
		PhoneNumber:  w.PhoneNumber,
		TextTemplate: w.TextTemplate,
	}
	ch.AddMessageTypes(w.MessageTypes...)
	return ch, nil
}
