package notification

import (
	"encoding/json"
	"net/http"
	"strings"
)

const (
	DefaultHTTPSPort uint16 = 443
	DefaultHTTPPort  uint16 = 80
)

// BasicAuth holds HTTP basic credentials for webhook channels.
type BasicAuth struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password"`
}

func (b *BasicAuth) equal(o *BasicAuth) bool {
	if b == nil || o == nil {
		return b == o
	}
	return *b == *o
}

func (b *BasicAuth) key() string {
	if b == nil {
		return ""
	}
	return b.Login + ":" + b.Password
}

// HTTPSNotification delivers messages as HTTPS webhook calls.
type HTTPSNotification struct {
	channelBase

	URL       string
	Method    string
	TCPPort   uint16
	BasicAuth *BasicAuth
	APIKey    string
}

// NewHTTPSNotification creates a webhook channel with the default method
// and port resolved.
func NewHTTPSNotification(url string, mts ...MessageType) *HTTPSNotification {
	ch := &HTTPSNotification{
		URL:     strings.TrimSpace(url),
		Method:  http.MethodPost,
		TCPPort: DefaultHTTPSPort,
	}
	ch.AddMessageTypes(mts...)
	return ch
}

type httpsWire struct {
	Context      string        `json:"@context,omitempty"`
	Type         ChannelType   `json:"type"`
	URL          string        `json:"URL" validate:"required,url"`
	Method       string        `json:"method,omitempty"`
	TCPPort      uint16        `json:"TCPPort,omitempty"`
	BasicAuth    *BasicAuth    `json:"basicAuth,omitempty"`
	APIKey       string        `json:"APIKey,omitempty"`
	MessageTypes []MessageType `json:"messageTypes,omitempty"`
}

func (h *HTTPSNotification) Type() ChannelType { return TypeHTTPS }

func (h *HTTPSNotification) Address() string { return h.URL }

func (h *HTTPSNotification) method() string { return methodOrDefault(h.Method) }

func (h *HTTPSNotification) port() uint16 { return portOrDefault(h.TCPPort, DefaultHTTPSPort) }

func (h *HTTPSNotification) SortKey() string {
	return sortKey(h.URL, h.method(), portKey(h.port()), h.BasicAuth.key(), h.APIKey)
}

func (h *HTTPSNotification) Equal(other Channel) bool {
	o, ok := other.(*HTTPSNotification)
	if !ok || o == nil {
		return false
	}
	return h.URL == o.URL &&
		h.method() == o.method() &&
		h.port() == o.port() &&
		h.BasicAuth.equal(o.BasicAuth) &&
		h.APIKey == o.APIKey
}

func (h *HTTPSNotification) Compare(other Channel) int { return compareChannels(h, other) }

func (h *HTTPSNotification) ToJSON(embedded bool) ([]byte, error) {
	w := httpsWire{
		Type:         TypeHTTPS,
		URL:          h.URL,
		Method:       h.method(),
		TCPPort:      h.port(),
		BasicAuth:    h.BasicAuth,
		APIKey:       h.APIKey,
		MessageTypes: h.MessageTypes(),
	}
	if !embedded {
		w.Context = ContextHTTPS
	}
	return json.Marshal(w)
}

func (h *HTTPSNotification) MarshalJSON() ([]byte, error) { return h.ToJSON(false) }

// SameURL matches webhooks by URL alone, ignoring method, port and
// credentials. Use it with AddFunc to keep one entry per endpoint.
func SameURL(a, b *HTTPSNotification) bool {
	return a.URL == b.URL
}

func (w *httpsWire) trim() { w.URL = strings.TrimSpace(w.URL) }

func decodeHTTPS(data []byte) (Channel, error) {
	var w httpsWire
	if err := decodeWire(data, &w); err != nil {
		return nil, err
	}
	ch := &HTTPSNotification{
		URL:       w.URL,
		Method:    methodOrDefault(w.Method),
		TCPPort:   portOrDefault(w.TCPPort, DefaultHTTPSPort),
		BasicAuth: w.BasicAuth,
		APIKey:    w.APIKey,
	}
	ch.AddMessageTypes(w.MessageTypes...)
	return ch, nil
}

func methodOrDefault(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return http.MethodPost
	}
	return method
}

func portOrDefault(port, def uint16) uint16 {
	if port == 0 {
		return def
	}
	return port
}
