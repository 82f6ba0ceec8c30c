package notification

import (
	"bytes"
	"iter"
)

// ToJSON renders channels as a JSON array of their embedded form, in the
// order the sequence yields them.
func ToJSON(channels iter.Seq[Channel]) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	first := true
	for ch := range channels {
		data, err := ch.ToJSON(true)
		if err != nil {
			return nil, err
		}
		if !first {
			buf.WriteByte(',')
		}
		buf.Write(data)
		first = false
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalJSON renders the store as a channel array.
func (s *Store) MarshalJSON() ([]byte, error) {
	return ToJSON(s.All())
}
