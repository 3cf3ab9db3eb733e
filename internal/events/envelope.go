package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
)

// notificationField is the key under which a fan-out notification carries
// the serialized inner envelope.
const notificationField = "Message"

// Envelope is one decoded event. Fields holds the whole envelope object.
type Envelope struct {
	EventType string
	Fields    map[string]any
}

// Decode parses a raw message body, unwrapping a notification wrapper when
// one is present. Bodies that are not JSON objects fail with a
// MalformedMessageError.
func Decode(body []byte) (Envelope, error) {
	outer, err := decodeObject(body)
	if err != nil {
		return Envelope{}, &apperr.MalformedMessageError{Err: err}
	}

	fields := outer
	if raw, wrapped := outer[notificationField]; wrapped {
		inner, ok := raw.(string)
		if !ok {
			return Envelope{}, &apperr.MalformedMessageError{Err: fmt.Errorf("notification message must be a string, got %T", raw)}
		}
		fields, err = decodeObject([]byte(inner))
		if err != nil {
			return Envelope{}, &apperr.MalformedMessageError{Err: fmt.Errorf("notification message: %w", err)}
		}
	}

	eventType, _ := fields["event_type"].(string)
	return Envelope{EventType: eventType, Fields: fields}, nil
}

// Payload returns the "payload" object, or the envelope itself when the
// envelope has no payload key.
func (e Envelope) Payload() (map[string]any, error) {
	raw, ok := e.Fields["payload"]
	if !ok {
		return e.Fields, nil
	}
	payload, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload must be an object, got %T", raw)
	}
	return payload, nil
}

func decodeObject(data []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("body is not a JSON object")
	}
	return obj, nil
}

// listLen counts the entries of a list field; an absent or null field
// counts as empty.
func listLen(payload map[string]any, key string) (int, error) {
	raw, ok := payload[key]
	if !ok || raw == nil {
		return 0, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return 0, fmt.Errorf("%s must be a list, got %T", key, raw)
	}
	return len(list), nil
}
