package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CommandMessage is the JSON the DTMF decoder publishes on the receive
// topic, e.g. {"Time":"2026-06-23T10:15:00","DTMF":"#100"}.
type CommandMessage struct {
	Time string `json:"Time"`
	DTMF string `json:"DTMF"`
}

// ParseCommandMessage decodes a receive-topic payload.
//
// A numeric DTMF field is accepted and kept as its literal text. A payload
// that is not a JSON object, or has no usable DTMF field, returns
// ErrMalformedPayload.
func ParseCommandMessage(payload []byte) (CommandMessage, error) {
	obj, err := decodeObject(payload)
	if err != nil {
		return CommandMessage{}, err
	}

	var msg CommandMessage
	if t, ok := obj["Time"].(string); ok {
		msg.Time = t
	}

	switch dtmf := obj["DTMF"].(type) {
	case string:
		msg.DTMF = dtmf
	case json.Number:
		msg.DTMF = dtmf.String()
	case nil:
		return msg, fmt.Errorf("%w: no DTMF field", ErrMalformedPayload)
	default:
		return msg, fmt.Errorf("%w: DTMF field has type %T", ErrMalformedPayload, dtmf)
	}

	return msg, nil
}

// decodeObject decodes payload as a single JSON object, keeping numbers
// as json.Number so replies repeat them exactly as the device sent them.
func decodeObject(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedPayload)
	}
	return obj, nil
}
