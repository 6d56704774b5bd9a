package relay

import (
	"fmt"
	"time"

	"github.com/nerrad567/hamrelay/internal/command"
)

// unrecognisedSuffix follows the code in the reply to an unknown code.
const unrecognisedSuffix = " not recognised"

// HandleCommandMessage handles a message on the receive topic. A payload
// that cannot be decoded is dispatched as the empty code, so the radio
// side still hears " not recognised".
func (e *Engine) HandleCommandMessage(topic string, payload []byte) {
	msg, err := ParseCommandMessage(payload)
	if err != nil {
		e.logger.Warn("malformed command message",
			"topic", topic,
			"payload", string(payload),
			"error", err)
	}
	e.Dispatch(msg.DTMF)
}

// Dispatch acts on one received code.
//
//   - unknown code: reply "<code> not recognised"
//   - action ('*'): publish the action, then reply with the description
//   - query ('#'): register a pending query, subscribe to the response
//     topic if not already subscribed, then publish the request
//
// Entries with any other first character are logged and ignored.
func (e *Engine) Dispatch(code string) {
	e.mu.Lock()
	events := e.dispatch(code)
	e.updateGauges()
	e.unlock()

	e.emit(events)
}

// dispatch does the work of Dispatch. Callers hold e.mu.
func (e *Engine) dispatch(code string) []Event {
	now := e.now()

	entry, ok := e.registry.Lookup(code)
	if !ok {
		text := code + unrecognisedSuffix
		e.logger.Info("code not recognised",
			"code", code,
			"error", ErrUnrecognizedCode)
		e.metrics.observeDispatch("unrecognised")
		e.reply(text)
		return []Event{{Kind: EventUnrecognised, Code: code, Payload: text, Time: now}}
	}

	switch entry.Class() {
	case command.ClassAction:
		return e.dispatchAction(entry, now)
	case command.ClassQuery:
		return e.dispatchQuery(entry, now)
	default:
		e.logger.Warn("entry has no action or query sigil, ignoring", "code", entry.Code)
		e.metrics.observeDispatch("ignored")
		return []Event{{Kind: EventIgnored, Code: entry.Code, Time: now}}
	}
}

// dispatchAction publishes an action and confirms it. Callers hold e.mu.
func (e *Engine) dispatchAction(entry command.Entry, now time.Time) []Event {
	e.logger.Info("action",
		"code", entry.Code,
		"topic", entry.ActionTopic,
		"payload", entry.ActionPayload,
		"description", entry.Description)

	e.publish(entry.ActionTopic, entry.ActionPayload, false)
	e.reply(entry.Description)
	e.metrics.observeDispatch(string(command.ClassAction))

	return []Event{{
		Kind:    EventAction,
		Code:    entry.Code,
		Topic:   entry.ActionTopic,
		Payload: entry.Description,
		Time:    now,
	}}
}

// dispatchQuery registers a query and provokes the device. The pending
// query is registered and the subscribe queued ahead of the request, so a
// fast response cannot be missed. Callers hold e.mu.
func (e *Engine) dispatchQuery(entry command.Entry, now time.Time) []Event {
	var deadline time.Time
	if e.mode == ModeRetire && e.timeout > 0 {
		deadline = now.Add(e.timeout)
	}
	q := e.pending.Register(entry, now, deadline)

	e.logger.Info("query",
		"code", entry.Code,
		"query_id", q.ID,
		"topic", entry.ActionTopic,
		"payload", entry.ActionPayload,
		"expecting", fmt.Sprintf("%s %s", entry.ResponseTopic, entry.ResponseKeyPath))

	if !e.tracker.EnsureSubscribed(entry.ResponseTopic) {
		e.queue(func() { e.subscribeResponse(entry.ResponseTopic) })
	}

	e.publish(entry.ActionTopic, entry.ActionPayload, false)
	e.metrics.observeDispatch(string(command.ClassQuery))

	return []Event{{
		Kind:    EventQuery,
		Code:    entry.Code,
		Topic:   entry.ActionTopic,
		QueryID: q.ID,
		KeyPath: entry.ResponseKeyPath,
		Time:    now,
	}}
}

// subscribeResponse subscribes to a response topic. Called from queued
// bus calls only.
func (e *Engine) subscribeResponse(topic string) {
	if err := e.bus.Subscribe(topic, e.qos, e.HandleResponse); err != nil {
		// Forget it so the next query for this topic tries again.
		e.tracker.Forget(topic)
		e.logger.Error("response subscribe failed", "topic", topic, "error", err)
		return
	}
	e.logger.Debug("subscribed to response topic", "topic", topic)
}
