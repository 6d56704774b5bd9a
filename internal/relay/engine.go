package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/hamrelay/internal/command"
)

// defaultSweepInterval is how often Run drops expired queries when no
// interval is configured.
const defaultSweepInterval = 5 * time.Second

// Mode selects how pending queries are retired.
type Mode string

// Correlation modes.
const (
	// ModeRetire answers each query once, then drops it. Response topics
	// are unsubscribed once no query waits on them.
	ModeRetire Mode = "retire"

	// ModePersistent never drops a query: every later message on its
	// response topic answers it again.
	ModePersistent Mode = "persistent"
)

// ParseMode converts a configuration string to a Mode. Empty means ModeRetire.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeRetire:
		return ModeRetire, nil
	case ModePersistent:
		return ModePersistent, nil
	default:
		return "", fmt.Errorf("relay: unknown mode %q", s)
	}
}

// Bus is the MQTT surface the engine needs.
// It is satisfied by the infrastructure client via an adapter in main.go.
type Bus interface {
	// Publish sends payload to topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe routes messages on topic to handler.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// Unsubscribe stops delivery for topic.
	Unsubscribe(topic string) error

	// IsConnected reports whether the bus is connected.
	IsConnected() bool
}

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds configuration for creating an Engine.
type Options struct {
	// Registry is the command table. Required.
	Registry *command.Registry

	// Bus is the MQTT connection. Required.
	Bus Bus

	// Topics are the relay's own topics. Zero value means NewTopics("").
	Topics Topics

	// Mode selects query retirement. Empty means ModeRetire.
	Mode Mode

	// QueryTimeout bounds how long a query stays pending in ModeRetire.
	// Zero disables expiry.
	QueryTimeout time.Duration

	// SweepInterval is how often Run expires queries. Zero means 5s.
	SweepInterval time.Duration

	// MonitorTopics are subscribed at Start and logged as unattended traffic.
	MonitorTopics []string

	// QoS is used for every relay publish and subscribe.
	QoS byte

	// Logger is optional.
	Logger Logger

	// Metrics is optional.
	Metrics *Metrics

	// Sinks receive every event. Optional.
	Sinks []EventSink

	// Now overrides the clock. Optional.
	Now func() time.Time
}

// Engine dispatches DTMF codes onto the bus and turns device responses
// into spoken replies.
//
// Thread Safety: every entry point takes one engine mutex, so codes and
// responses are handled one at a time in arrival order. Bus calls are
// queued under that mutex and run after it is released, in queue order,
// so a slow broker never stalls Status.
type Engine struct {
	mu    sync.Mutex
	busMu sync.Mutex // held while queued bus calls run
	ops   []func()   // bus calls queued under mu

	registry *command.Registry
	bus      Bus
	topics   Topics
	mode     Mode
	timeout  time.Duration
	sweep    time.Duration
	monitor  []string
	qos      byte

	tracker *SubscriptionTracker
	pending *PendingSet

	logger  Logger
	metrics *Metrics
	sinks   []EventSink
	now     func() time.Time

	connected bool
	startedAt time.Time
	stopOnce  sync.Once
}

// NewEngine creates an engine. Call Start once the bus is connected.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("relay: registry is required")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("relay: bus is required")
	}

	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}

	topics := opts.Topics
	if topics.Base == "" {
		topics = NewTopics("")
	}

	sweep := opts.SweepInterval
	if sweep <= 0 {
		sweep = defaultSweepInterval
	}

	e := &Engine{
		registry: opts.Registry,
		bus:      opts.Bus,
		topics:   topics,
		mode:     mode,
		timeout:  opts.QueryTimeout,
		sweep:    sweep,
		monitor:  append([]string(nil), opts.MonitorTopics...),
		qos:      opts.QoS,
		tracker:  NewSubscriptionTracker(),
		pending:  NewPendingSet(),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		sinks:    append([]EventSink(nil), opts.Sinks...),
		now:      opts.Now,
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Start subscribes to the receive topic and the monitor topics and
// announces presence. A failed receive subscription is returned; monitor
// failures are only logged.
func (e *Engine) Start() error {
	receive := e.topics.Receive()
	if err := e.bus.Subscribe(receive, e.qos, e.HandleCommandMessage); err != nil {
		return fmt.Errorf("subscribe to %s: %w", receive, err)
	}
	e.logger.Info("subscribed to commands", "topic", receive)

	for _, topic := range e.monitor {
		if err := e.bus.Subscribe(topic, e.qos, e.HandleResponse); err != nil {
			e.logger.Warn("monitor subscribe failed", "topic", topic, "error", err)
			continue
		}
		e.logger.Info("monitoring topic", "topic", topic)
	}

	e.mu.Lock()
	e.connected = e.bus.IsConnected()
	e.startedAt = e.now()
	e.publishPresence(PresenceOnline)
	e.unlock()

	e.logger.Info("relay started",
		"mode", e.mode,
		"commands", e.registry.Len(),
		"query_timeout", e.timeout)
	return nil
}

// OnConnect re-announces presence and re-subscribes every tracked
// response topic. Wire it to the bus's connect callback.
func (e *Engine) OnConnect() {
	e.mu.Lock()
	defer e.unlock()

	e.connected = true
	e.publishPresence(PresenceOnline)

	for _, topic := range e.tracker.Topics() {
		topic := topic
		e.queue(func() {
			if err := e.bus.Subscribe(topic, e.qos, e.HandleResponse); err != nil {
				e.logger.Warn("response resubscribe failed", "topic", topic, "error", err)
			}
		})
	}
	e.logger.Info("bus connected", "response_topics", e.tracker.Len())
}

// OnDisconnect records a lost connection. Wire it to the bus's
// connection-lost callback.
func (e *Engine) OnDisconnect(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.connected = false
	e.logger.Warn("bus disconnected", "error", err)
}

// Shutdown publishes "Stopped" on the status topic and "Offline" on the
// LWT topic. Only the first call has any effect.
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		defer e.unlock()

		e.publish(e.topics.Status(), StatusStopped, false)
		e.publishPresence(PresenceOffline)
		e.logger.Info("relay stopped", "pending", e.pending.Len())
	})
}

// Run expires stale queries every sweep interval until ctx is done.
// It returns nil when ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.mode != ModeRetire || e.timeout <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(e.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.ExpireStale(e.now())
		}
	}
}

// ExpireStale drops queries whose deadline has passed at now and
// unsubscribes topics nobody waits on any more.
func (e *Engine) ExpireStale(now time.Time) {
	e.mu.Lock()
	expired := e.pending.Expire(now)

	var events []Event
	topics := make([]string, 0, len(expired))
	for _, q := range expired {
		e.logger.Info("query expired",
			"code", q.Entry.Code,
			"query_id", q.ID,
			"topic", q.Entry.ResponseTopic,
			"waited", now.Sub(q.CreatedAt))
		events = append(events, Event{
			Kind:    EventExpired,
			Code:    q.Entry.Code,
			Topic:   q.Entry.ResponseTopic,
			QueryID: q.ID,
			KeyPath: q.Entry.ResponseKeyPath,
			Time:    now,
		})
		topics = append(topics, q.Entry.ResponseTopic)
	}
	e.releaseIdle(topics)
	e.metrics.observeExpired(len(expired))
	e.updateGauges()
	e.unlock()

	e.emit(events)
}

// Status is a point-in-time view of the engine.
type Status struct {
	Connected     bool      `json:"connected"`
	Mode          Mode      `json:"mode"`
	Commands      int       `json:"commands"`
	Pending       int       `json:"pending"`
	Subscriptions []string  `json:"subscriptions"`
	StartedAt     time.Time `json:"started_at"`
}

// Status returns the engine's current state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Status{
		Connected:     e.connected,
		Mode:          e.mode,
		Commands:      e.registry.Len(),
		Pending:       e.pending.Len(),
		Subscriptions: e.tracker.Topics(),
		StartedAt:     e.startedAt,
	}
}

// Pending returns the pending queries in registration order.
func (e *Engine) Pending() []PendingQuery {
	return e.pending.Snapshot()
}

// Topics returns the relay's own topics.
func (e *Engine) Topics() Topics {
	return e.topics
}

// queue defers a bus call until e.mu is released. Callers hold e.mu.
func (e *Engine) queue(op func()) {
	e.ops = append(e.ops, op)
}

// unlock releases e.mu and runs the bus calls queued under it. busMu is
// taken before e.mu is released, so bus calls run in the order their
// state changes were made even when entry points race.
func (e *Engine) unlock() {
	ops := e.ops
	e.ops = nil
	if len(ops) == 0 {
		e.mu.Unlock()
		return
	}

	e.busMu.Lock()
	defer e.busMu.Unlock()
	e.mu.Unlock()

	for _, op := range ops {
		op()
	}
}

// publish queues payload for topic. Failures are logged and counted.
// Callers hold e.mu.
func (e *Engine) publish(topic, payload string, retained bool) {
	e.queue(func() { e.send(topic, payload, retained) })
}

// send publishes payload now. Called from queued bus calls only.
func (e *Engine) send(topic, payload string, retained bool) bool {
	if err := e.bus.Publish(topic, []byte(payload), e.qos, retained); err != nil {
		e.metrics.observePublishError()
		e.logger.Error("publish failed",
			"topic", topic,
			"error", fmt.Errorf("%w: %w", ErrPublishFailed, err))
		return false
	}
	return true
}

// reply queues text for the reply topic. Callers hold e.mu.
func (e *Engine) reply(text string) {
	e.queue(func() {
		if e.send(e.topics.Reply(), text, false) {
			e.logger.Info("reply", "text", text)
		}
	})
}

// publishPresence publishes a retained presence payload. Callers hold e.mu.
func (e *Engine) publishPresence(payload string) {
	e.publish(e.topics.LWT(), payload, true)
}

// releaseIdle forgets and unsubscribes every topic in topics that no
// pending query waits on. Callers hold e.mu.
func (e *Engine) releaseIdle(topics []string) {
	seen := make(map[string]bool, len(topics))
	for _, topic := range topics {
		if seen[topic] {
			continue
		}
		seen[topic] = true

		if e.pending.CountFor(topic) > 0 || !e.tracker.Has(topic) {
			continue
		}
		e.tracker.Forget(topic)
		if e.isMonitor(topic) {
			continue
		}
		topic := topic
		e.queue(func() {
			if err := e.bus.Unsubscribe(topic); err != nil {
				e.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
				return
			}
			e.logger.Debug("unsubscribed idle response topic", "topic", topic)
		})
	}
}

// isMonitor reports whether topic is a monitor topic, which stays
// subscribed for the life of the engine.
func (e *Engine) isMonitor(topic string) bool {
	for _, m := range e.monitor {
		if m == topic {
			return true
		}
	}
	return false
}

// updateGauges refreshes the pending and subscription gauges. Callers hold e.mu.
func (e *Engine) updateGauges() {
	e.metrics.setGauges(e.pending.Len(), e.tracker.Len())
}

// emit hands events to every sink. Called without e.mu held.
func (e *Engine) emit(events []Event) {
	for _, ev := range events {
		for _, sink := range e.sinks {
			sink.Record(ev)
		}
	}
}
