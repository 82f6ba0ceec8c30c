package notification

import (
	"strings"
	"sync"
)

// MessageType scopes which business events a channel should receive,
// e.g. "billing" or "security-alert". Values are compared after
// normalization, so "Billing " and "billing" are the same tag.
type MessageType string

// NewMessageType normalizes a producer-provided message type token.
func NewMessageType(raw string) MessageType {
	return MessageType(strings.ToLower(strings.TrimSpace(raw)))
}

// NewMessageTypes normalizes a batch of tokens, dropping empty ones.
func NewMessageTypes(raw ...string) []MessageType {
	out := make([]MessageType, 0, len(raw))
	for _, r := range raw {
		if mt := NewMessageType(r); mt != "" {
			out = append(out, mt)
		}
	}
	return out
}

func (m MessageType) String() string {
	return string(m)
}

func (m MessageType) normalized() MessageType {
	return NewMessageType(string(m))
}

// messageTypeSet is the tag set carried by every channel. It keeps
// insertion order so the JSON output is stable, and has its own lock
// because tags may be unioned into an entry that readers already hold.
type messageTypeSet struct {
	mu    sync.RWMutex
	items []MessageType
}

// add unions mts into the set and reports how many were new.
func (s *messageTypeSet) add(mts ...MessageType) int {
	if len(mts) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, mt := range mts {
		mt = mt.normalized()
		if mt == "" || s.containsLocked(mt) {
			continue
		}
		s.items = append(s.items, mt)
		added++
	}
	return added
}

func (s *messageTypeSet) contains(mt MessageType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.containsLocked(mt.normalized())
}

func (s *messageTypeSet) containsLocked(mt MessageType) bool {
	for _, item := range s.items {
		if item == mt {
			return true
		}
	}
	return false
}

func (s *messageTypeSet) list() []MessageType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return nil
	}
	out := make([]MessageType, len(s.items))
	copy(out, s.items)
	return out
}
