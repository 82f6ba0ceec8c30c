package notification

import (
	"cmp"
	"strconv"
	"strings"
)

// ChannelType is the JSON "type" discriminator of a channel variant.
type ChannelType string

const (
	TypeEMail    ChannelType = "EMailNotification"
	TypeSMS      ChannelType = "SMSNotification"
	TypeHTTPS    ChannelType = "HTTPSNotification"
	TypeTelegram ChannelType = "TelegramNotification"
	TypeHTTP     ChannelType = "HTTPNotification"
)

// Linked-data context of each variant, emitted in the top-level
// (non-embedded) JSON representation.
const (
	contextBase     = "https://opendata.social/contexts/usersAPI/"
	ContextEMail    = contextBase + "EMailNotification+json"
	ContextSMS      = contextBase + "SMSNotification+json"
	ContextHTTPS    = contextBase + "HTTPSNotification+json"
	ContextTelegram = contextBase + "TelegramNotification+json"
	ContextHTTP     = contextBase + "HTTPNotification+json"
)

// Channel is one configured delivery endpoint of an owner. The set of
// implementations is closed: *EMailNotification, *SMSNotification,
// *HTTPSNotification, *TelegramNotification and *HTTPNotification.
//
// Equality and the sort key cover the identity fields only. Message
// types never take part, which is what lets a repeated Add broaden the
// scope of an already registered channel.
type Channel interface {
	Type() ChannelType
	// Address is the primary destination: e-mail address, phone number,
	// URL or Telegram username.
	Address() string
	SortKey() string
	Equal(other Channel) bool
	// Compare orders channels by type name, then by sort key.
	Compare(other Channel) int

	MessageTypes() []MessageType
	HasMessageType(mt MessageType) bool
	AddMessageTypes(mts ...MessageType)

	// ToJSON encodes the wire representation. Embedded output omits
	// the "@context" marker.
	ToJSON(embedded bool) ([]byte, error)
	MarshalJSON() ([]byte, error)

	tags() *messageTypeSet
}

type channelBase struct {
	messageTypes messageTypeSet
}

func (b *channelBase) tags() *messageTypeSet {
	return &b.messageTypes
}

// MessageTypes returns a copy of the channel's tags in insertion order.
func (b *channelBase) MessageTypes() []MessageType {
	return b.messageTypes.list()
}

func (b *channelBase) HasMessageType(mt MessageType) bool {
	return b.messageTypes.contains(mt)
}

// AddMessageTypes unions mts into the channel's tag set.
func (b *channelBase) AddMessageTypes(mts ...MessageType) {
	b.messageTypes.add(mts...)
}

func compareChannels(a, b Channel) int {
	if c := cmp.Compare(a.Type(), b.Type()); c != 0 {
		return c
	}
	return cmp.Compare(a.SortKey(), b.SortKey())
}

// sortKey joins identity fields with a separator that cannot appear in
// any of them unescaped.
func sortKey(fields ...string) string {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = strings.ReplaceAll(f, "|", `\|`)
	}
	return strings.Join(escaped, "|")
}

func portKey(port uint16) string {
	return strconv.FormatUint(uint64(port), 10)
}

// Equal reports whether two channels of the same concrete type are
// structurally equal. It is the default comparer for AddFunc.
func Equal[T Channel](a, b T) bool {
	return a.Equal(b)
}
