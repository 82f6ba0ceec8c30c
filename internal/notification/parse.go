package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedChannel is returned when a channel JSON object cannot be
// turned into a variant: unknown or missing type, missing mandatory
// field, or a field that fails validation.
var ErrMalformedChannel = errors.New("malformed notification channel")

type decoderFunc func(data []byte) (Channel, error)

// decoders maps the "type" discriminator to the variant decoder.
var decoders = map[ChannelType]decoderFunc{
	TypeEMail:    decodeEMail,
	TypeSMS:      decodeSMS,
	TypeHTTPS:    decodeHTTPS,
	TypeTelegram: decodeTelegram,
	TypeHTTP:     decodeHTTP,
}

var telegramUsername = regexp.MustCompile(`^@?[A-Za-z][A-Za-z0-9_]{4,31}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("telegram_username", func(fl validator.FieldLevel) bool {
		return telegramUsername.MatchString(fl.Field().String())
	})
	return v
}

// ChannelTypes lists the known discriminators.
func ChannelTypes() []ChannelType {
	return []ChannelType{TypeEMail, TypeSMS, TypeHTTPS, TypeTelegram, TypeHTTP}
}

// ParseChannelType resolves a discriminator, accepting any letter case.
func ParseChannelType(raw string) (ChannelType, bool) {
	for _, t := range ChannelTypes() {
		if strings.EqualFold(string(t), strings.TrimSpace(raw)) {
			return t, true
		}
	}
	return "", false
}

// Parse decodes one channel JSON object, embedded or not. The "@context"
// marker is optional on input.
func Parse(data []byte) (Channel, error) {
	var head struct {
		Type ChannelType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedChannel, err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedChannel)
	}
	decode, ok := decoders[head.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedChannel, head.Type)
	}
	return decode(data)
}

// ParseList decodes a JSON array of channels, the inverse of ToJSON.
// A single malformed element fails the whole list.
func ParseList(data []byte) ([]Channel, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedChannel, err)
	}
	channels := make([]Channel, 0, len(raw))
	for i, r := range raw {
		ch, err := Parse(r)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// trimmer is implemented by wire structs whose address fields are
// whitespace-trimmed before validation.
type trimmer interface {
	trim()
}

func decodeWire(data []byte, wire any) error {
	if err := json.Unmarshal(data, wire); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedChannel, err)
	}
	if t, ok := wire.(trimmer); ok {
		t.trim()
	}
	if err := validate.Struct(wire); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", ErrMalformedChannel, describe(verrs))
		}
		return fmt.Errorf("%w: %v", ErrMalformedChannel, err)
	}
	return nil
}

func describe(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
