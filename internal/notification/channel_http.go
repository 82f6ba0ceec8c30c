package notification

import (
	"encoding/json"
	"net/http"
	"strings"
)

// HTTPNotification is a plain HTTP endpoint. Unlike HTTPSNotification it
// carries no credentials, only the content type the receiver expects.
type HTTPNotification struct {
	channelBase

	URL         string
	Method      string
	TCPPort     uint16
	ContentType string
}

func NewHTTPNotification(url string, mts ...MessageType) *HTTPNotification {
	ch := &HTTPNotification{
		URL:     strings.TrimSpace(url),
		Method:  http.MethodPost,
		TCPPort: DefaultHTTPPort,
	}
	ch.AddMessageTypes(mts...)
	return ch
}

type httpWire struct {
	Context      string        `json:"@context,omitempty"`
	Type         ChannelType   `json:"type"`
	URL          string        `json:"URL" validate:"required,url"`
	Method       string        `json:"method,omitempty"`
	TCPPort      uint16        `json:"TCPPort,omitempty"`
	ContentType  string        `json:"contentType,omitempty"`
	MessageTypes []MessageType `json:"messageTypes,omitempty"`
}

func (h *HTTPNotification) Type() ChannelType { return TypeHTTP }

func (h *HTTPNotification) Address() string { return h.URL }

func (h *HTTPNotification) method() string { return methodOrDefault(h.Method) }

func (h *HTTPNotification) port() uint16 { return portOrDefault(h.TCPPort, DefaultHTTPPort) }

func (h *HTTPNotification) SortKey() string {
	return sortKey(h.URL, h.method(), portKey(h.port()), h.ContentType)
}

func (h *HTTPNotification) Equal(other Channel) bool {
	o, ok := other.(*HTTPNotification)
	if !ok || o == nil {
		return false
	}
	return h.URL == o.URL &&
		h.method() == o.method() &&
		h.port() == o.port() &&
		h.ContentType == o.ContentType
}

func (h *HTTPNotification) Compare(other Channel) int { return compareChannels(h, other) }

func (h *HTTPNotification) ToJSON(embedded bool) ([]byte, error) {
	w := httpWire{
		Type:         TypeHTTP,
		URL:          h.URL,
		Method:       h.method(),
		TCPPort:      h.port(),
		ContentType:  h.ContentType,
		MessageTypes: h.MessageTypes(),
	}
	if !embedded {
		w.Context = ContextHTTP
	}
	return json.Marshal(w)
}

func (h *HTTPNotification) MarshalJSON() ([]byte, error) { return h.ToJSON(false) }

func (w *httpWire) trim() { w.URL = strings.TrimSpace(w.URL) }

func decodeHTTP(data []byte) (Channel, error) {
	var w httpWire
	if err := decodeWire(data, &w); err != nil {
		return nil, err
	}
	ch := &HTTPNotification{
		URL:         w.URL,
		Method:      methodOrDefault(w.Method),
		TCPPort:     portOrDefault(w.TCPPort, DefaultHTTPPort),
		ContentType: w.ContentType,
	}
	ch.AddMessageTypes(w.MessageTypes...)
	return ch, nil
}
