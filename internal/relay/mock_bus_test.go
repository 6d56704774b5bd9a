package relay

import (
	"sync"
)

// MockBus implements Bus for testing.
type MockBus struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []string
	unsubscribed  []string
	handlers      map[string]func(topic string, payload []byte)
	connected     bool

	publishErr   error
	subscribeErr error

	// gate, when set, holds every Publish until it is closed.
	gate    chan struct{}
	waiting int
}

type mockPublish struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

func NewMockBus() *MockBus {
	return &MockBus{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockBus) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	if gate := m.gate; gate != nil {
		m.waiting++
		m.mu.Unlock()
		<-gate
		m.mu.Lock()
		m.waiting--
	}
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  string(payload),
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockBus) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions = append(m.subscriptions, topic)
	m.handlers[topic] = handler
	return nil
}

func (m *MockBus) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed = append(m.unsubscribed, topic)
	delete(m.handlers, topic)
	return nil
}

func (m *MockBus) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockBus) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

func (m *MockBus) SetSubscribeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeErr = err
}

// HoldPublishes makes Publish block until gate is closed.
func (m *MockBus) HoldPublishes(gate chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
}

// Waiting returns how many Publish calls are blocked on the gate.
func (m *MockBus) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiting
}

func (m *MockBus) Published() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// PublishedTo returns the payloads published to topic, in order.
func (m *MockBus) PublishedTo(topic string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p.Payload)
		}
	}
	return out
}

// SubscribeCount returns how many times topic was subscribed.
func (m *MockBus) SubscribeCount(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.subscriptions {
		if t == topic {
			n++
		}
	}
	return n
}

func (m *MockBus) Unsubscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.unsubscribed...)
}

func (m *MockBus) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// SimulateMessage delivers payload to the handler subscribed on topic.
// It reports whether a handler was found.
func (m *MockBus) SimulateMessage(topic string, payload string) bool {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if ok {
		handler(topic, []byte(payload))
	}
	return ok
}
