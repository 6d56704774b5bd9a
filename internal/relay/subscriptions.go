package relay

import "sync"

// SubscriptionTracker remembers which response topics the relay has
// subscribed to, so each topic is subscribed at most once.
//
// All methods are safe for concurrent use.
type SubscriptionTracker struct {
	mu     sync.Mutex
	topics map[string]struct{}
	order  []string
}

// NewSubscriptionTracker returns an empty tracker.
func NewSubscriptionTracker() *SubscriptionTracker {
	return &SubscriptionTracker{topics: make(map[string]struct{})}
}

// EnsureSubscribed marks topic as subscribed and reports whether it
// already was. A false result means the caller must subscribe on the bus.
func (s *SubscriptionTracker) EnsureSubscribed(topic string) (alreadySubscribed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.topics[topic]; ok {
		return true
	}
	s.topics[topic] = struct{}{}
	s.order = append(s.order, topic)
	return false
}

// Forget removes topic so the next EnsureSubscribed reports false.
// Forgetting an unknown topic is a no-op.
func (s *SubscriptionTracker) Forget(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.topics[topic]; !ok {
		return
	}
	delete(s.topics, topic)
	for i, t := range s.order {
		if t == topic {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Has reports whether topic is tracked.
func (s *SubscriptionTracker) Has(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.topics[topic]
	return ok
}

// Topics returns the tracked topics in the order they were first subscribed.
func (s *SubscriptionTracker) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of tracked topics.
func (s *SubscriptionTracker) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
