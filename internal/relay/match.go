package relay

import (
	"encoding/json"
	"time"
)

// HandleResponse handles a message on a response or monitor topic.
// Payloads that are not a JSON object are logged and dropped without
// touching any pending query.
func (e *Engine) HandleResponse(topic string, payload []byte) {
	obj, err := decodeObject(payload)
	if err != nil {
		e.logger.Warn("malformed response",
			"topic", topic,
			"payload", string(payload),
			"error", err)
		e.metrics.observeMessage("malformed")
		return
	}

	e.mu.Lock()
	events := e.onMessage(topic, obj, string(payload))
	e.updateGauges()
	e.unlock()

	e.emit(events)
}

// OnMessage answers every pending query waiting on topic from payload.
//
// Each answer is the entry's description, a space, and the value at the
// entry's key path (empty when the path does not resolve). In ModeRetire
// answered queries are dropped; see retire for the rules.
func (e *Engine) OnMessage(topic string, payload map[string]any) {
	e.mu.Lock()
	events := e.onMessage(topic, payload, "")
	e.updateGauges()
	e.unlock()

	e.emit(events)
}

// answer is one query's resolution against a message.
type answer struct {
	query PendingQuery
	value any
	found bool
}

// onMessage does the work of OnMessage. raw is the original payload for
// logging, if known. Callers hold e.mu.
func (e *Engine) onMessage(topic string, payload map[string]any, raw string) []Event {
	now := e.now()
	matches := e.pending.MatchesFor(topic)

	if raw == "" {
		if b, err := json.Marshal(payload); err == nil {
			raw = string(b)
		}
	}

	if len(matches) == 0 {
		e.logger.Info("unattended", "topic", topic, "payload", raw)
		e.metrics.observeMessage("unattended")
		return []Event{{Kind: EventUnattended, Topic: topic, Payload: raw, Time: now}}
	}

	answers := make([]answer, len(matches))
	for i, q := range matches {
		v, ok := Extract(payload, q.Entry.ResponseKeyPath)
		answers[i] = answer{query: q, value: v, found: ok}
	}

	if e.mode == ModeRetire {
		answers = e.retire(topic, answers)
	}

	events := make([]Event, 0, len(answers))
	for _, a := range answers {
		events = append(events, e.publishAnswer(topic, a, now))
	}

	e.logger.Debug("attended", "topic", topic, "answered", len(answers), "payload", raw)
	e.metrics.observeMessage("attended")
	return events
}

// retire picks which answers to publish in ModeRetire and drops their
// queries from the pending set.
//
// If any query's key path resolved, only those are answered; the rest
// stay pending because the message was meant for a sibling query on the
// same topic. If none resolved, the device answered without the key, so
// the queries are answered with the empty value. Either way one message
// answers at most one query per code: the oldest. Repeats of the same
// code wait for the next message. When no query is left on topic it is
// unsubscribed. Callers hold e.mu.
func (e *Engine) retire(topic string, answers []answer) []answer {
	resolved := answers[:0:0]
	for _, a := range answers {
		if a.found {
			resolved = append(resolved, a)
		}
	}
	if len(resolved) > 0 {
		answers = resolved
	}

	picked := answers[:0:0]
	seen := make(map[string]bool, len(answers))
	for _, a := range answers {
		code := a.query.Entry.Code
		if seen[code] {
			continue
		}
		seen[code] = true
		picked = append(picked, a)
		e.pending.Retire(a.query.ID)
	}
	e.releaseIdle([]string{topic})
	return picked
}

// publishAnswer publishes the reply for one answer. Callers hold e.mu.
func (e *Engine) publishAnswer(topic string, a answer, now time.Time) Event {
	entry := a.query.Entry
	value := FormatValue(a.value, a.found)

	if !a.found {
		e.logger.Warn("key path not found in response",
			"code", entry.Code,
			"topic", topic,
			"key_path", entry.ResponseKeyPath,
			"error", ErrExtractionMiss)
	} else {
		e.logger.Info("extracted",
			"code", entry.Code,
			"key_path", entry.ResponseKeyPath,
			"topic", topic,
			"value", value)
	}

	text := entry.Description + " " + value
	e.reply(text)
	e.metrics.observeReply(a.found, now.Sub(a.query.CreatedAt))

	return Event{
		Kind:    EventReply,
		Code:    entry.Code,
		Topic:   topic,
		Payload: text,
		QueryID: a.query.ID,
		KeyPath: entry.ResponseKeyPath,
		Value:   value,
		Found:   a.found,
		Time:    now,
	}
}
