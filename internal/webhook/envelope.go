package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type EventType string

const (
	EventNewConversation   EventType = "NEW_CONVERSATION"
	EventCloseConversation EventType = "CLOSE_CONVERSATION"
	EventNewMessage        EventType = "NEW_MESSAGE"
)

// Envelope is the top-level webhook payload.
type Envelope struct {
	Type string
	Data map[string]any
	// Timestamp is a string or time.Time; only NEW_MESSAGE requires it.
	Timestamp any
}

type rawEnvelope struct {
	Type      json.RawMessage `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp any             `json:"timestamp"`
}

// DecodeEnvelope parses a JSON request body. On failure it still returns the
// best envelope it could recover so the attempt can be audited under its type.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return Envelope{}, &Error{Kind: KindInvalidValue, Msg: "request body must be a JSON object", Err: err}
	}

	env := Envelope{Type: decodeType(raw.Type), Timestamp: raw.Timestamp, Data: map[string]any{}}

	data := bytes.TrimSpace(raw.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&env.Data); err != nil {
		env.Data = map[string]any{}
		return env, invalidValue("data", "data must be a JSON object")
	}
	return env, nil
}

// decodeType keeps a non-string type visible in the audit trail instead of
// collapsing it to UNKNOWN.
func decodeType(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}

// stringField reads a required string field from data. Blank strings count
// as missing; other values are returned as sent.
func stringField(data map[string]any, key string) (string, error) {
	value, ok := data[key]
	if !ok || value == nil {
		return "", missingField(key)
	}

	s, ok := value.(string)
	if !ok {
		return "", invalidValue(key, "field %s must be a string, got %s", key, jsonKind(value))
	}
	if strings.TrimSpace(s) == "" {
		return "", missingField(key)
	}
	return s, nil
}

// lookupString returns data[key] when it is a non-empty string.
func lookupString(data map[string]any, key string) string {
	if s, ok := data[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func jsonKind(value any) string {
	switch value.(type) {
	case json.Number, float64, int, int64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", value)
	}
}
