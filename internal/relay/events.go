package relay

import "time"

// EventKind classifies relay events.
type EventKind string

// Event kinds.
const (
	// EventAction: an action code was published and confirmed.
	EventAction EventKind = "action"

	// EventQuery: a query code was registered and its request published.
	EventQuery EventKind = "query"

	// EventReply: a pending query was answered from a response.
	EventReply EventKind = "reply"

	// EventUnrecognised: a received code is not in the table.
	EventUnrecognised EventKind = "unrecognised"

	// EventIgnored: a table entry has neither sigil and was not acted on.
	EventIgnored EventKind = "ignored"

	// EventUnattended: a message arrived that no pending query wanted.
	EventUnattended EventKind = "unattended"

	// EventExpired: a pending query passed its deadline unanswered.
	EventExpired EventKind = "expired"
)

// Event describes one thing the relay did. Events feed the history
// store, the readings writer and the live websocket feed.
type Event struct {
	Kind EventKind `json:"kind"`
	Code string    `json:"code,omitempty"`

	// Topic is the response topic for replies and expiries, the message
	// topic for unattended traffic, and the action topic otherwise.
	Topic string `json:"topic,omitempty"`

	// Payload is the reply text, or the raw message for unattended traffic.
	Payload string `json:"payload,omitempty"`

	QueryID string `json:"query_id,omitempty"`

	// KeyPath, Value and Found describe the extraction behind a reply.
	KeyPath string `json:"key_path,omitempty"`
	Value   string `json:"value,omitempty"`
	Found   bool   `json:"found,omitempty"`

	Time time.Time `json:"time"`
}

// EventSink receives relay events. Record is called outside the engine
// lock, one event at a time, and should return quickly.
type EventSink interface {
	Record(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Record calls f(ev).
func (f EventSinkFunc) Record(ev Event) { f(ev) }
