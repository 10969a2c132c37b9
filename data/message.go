package data

import (
	"encoding/json"
	"fmt"
)

// MessageKind discriminates the Message union
type MessageKind int

// Message kinds
const (
	MessageIngest MessageKind = iota + 1
	MessageControl
)

func (mk MessageKind) String() string {
	switch mk {
	case MessageIngest:
		return "ingest"
	case MessageControl:
		return "control"
	default:
		return "unknown"
	}
}

// Message is an inbound request from a producer. Ingest messages carry
// Type and Data, control messages carry Action.
type Message struct {
	Kind   MessageKind
	Type   SensorType
	Data   json.RawMessage
	Action Action
}

func (m Message) String() string {
	switch m.Kind {
	case MessageIngest:
		return fmt.Sprintf("ingest %v: %s", m.Type, m.Data)
	case MessageControl:
		return fmt.Sprintf("control %v", m.Action)
	default:
		return "unknown message"
	}
}

// Wire field names. Keys are matched exactly.
const (
	fieldType   = "type"
	fieldData   = "data"
	fieldAction = "action"
)

// present reports whether a field carries a value. Missing fields and the
// falsy values null, false, 0 and "" count as absent.
func present(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}

	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	}

	return true
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}

// DecodeMessage validates a raw message and returns the decoded union.
// An action takes precedence over a sensor type when both are present.
// The returned error wraps ErrUnknownFormat, ErrUnknownAction or
// ErrUnknownSensorType.
func DecodeMessage(b []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}

	if action := fields[fieldAction]; present(action) {
		a := Action(rawString(action))
		if !a.Valid() {
			return Message{}, fmt.Errorf("%w: %v", ErrUnknownAction, a)
		}
		return Message{Kind: MessageControl, Action: a}, nil
	}

	if typ := fields[fieldType]; present(typ) {
		t := SensorType(rawString(typ))
		if !t.Valid() {
			return Message{}, fmt.Errorf("%w: %v", ErrUnknownSensorType, t)
		}
		d := fields[fieldData]
		if len(d) == 0 {
			d = json.RawMessage("null")
		}
		return Message{Kind: MessageIngest, Type: t, Data: d}, nil
	}

	return Message{}, fmt.Errorf("%w: %s", ErrUnknownFormat, b)
}

// EncodeIngest builds the wire form of an ingest message
func EncodeIngest(t SensorType, payload any) ([]byte, error) {
	d, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Type SensorType      `json:"type"`
		Data json.RawMessage `json:"data"`
	}{t, d})
}

// EncodeAction builds the wire form of a control message
func EncodeAction(a Action) ([]byte, error) {
	return json.Marshal(struct {
		Action Action `json:"action"`
	}{a})
}
