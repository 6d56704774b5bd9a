package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/hamrelay/internal/command"
)

// PendingQuery is a query that has been dispatched and is waiting for
// its response.
type PendingQuery struct {
	ID        string        `json:"id"`
	Entry     command.Entry `json:"entry"`
	CreatedAt time.Time     `json:"created_at"`

	// Deadline is when the query expires. Zero means never.
	Deadline time.Time `json:"deadline,omitempty"`
}

// Expired reports whether the query's deadline has passed at now.
func (q PendingQuery) Expired(now time.Time) bool {
	return !q.Deadline.IsZero() && !now.Before(q.Deadline)
}

// PendingSet holds pending queries in registration order.
//
// All methods are safe for concurrent use.
type PendingSet struct {
	mu      sync.Mutex
	queries []PendingQuery
}

// NewPendingSet returns an empty set.
func NewPendingSet() *PendingSet {
	return &PendingSet{}
}

// Register appends a new pending query for entry and returns it.
// The same entry may be registered any number of times.
func (p *PendingSet) Register(entry command.Entry, now, deadline time.Time) PendingQuery {
	q := PendingQuery{
		ID:        uuid.NewString(),
		Entry:     entry,
		CreatedAt: now,
		Deadline:  deadline,
	}

	p.mu.Lock()
	p.queries = append(p.queries, q)
	p.mu.Unlock()

	return q
}

// MatchesFor returns every pending query whose response topic equals
// topic, in registration order. The set is not modified.
func (p *PendingSet) MatchesFor(topic string) []PendingQuery {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []PendingQuery
	for _, q := range p.queries {
		if q.Entry.ResponseTopic == topic {
			out = append(out, q)
		}
	}
	return out
}

// Retire removes the query with id and reports whether it was present.
func (p *PendingSet) Retire(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, q := range p.queries {
		if q.ID == id {
			p.queries = append(p.queries[:i], p.queries[i+1:]...)
			return true
		}
	}
	return false
}

// Expire removes and returns every query whose deadline has passed at now.
func (p *PendingSet) Expire(now time.Time) []PendingQuery {
	p.mu.Lock()
	defer p.mu.Unlock()

	var expired []PendingQuery
	kept := p.queries[:0]
	for _, q := range p.queries {
		if q.Expired(now) {
			expired = append(expired, q)
			continue
		}
		kept = append(kept, q)
	}
	// clear the tail so dropped entries can be collected
	for i := len(kept); i < len(p.queries); i++ {
		p.queries[i] = PendingQuery{}
	}
	p.queries = kept
	return expired
}

// CountFor returns the number of pending queries waiting on topic.
func (p *PendingSet) CountFor(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, q := range p.queries {
		if q.Entry.ResponseTopic == topic {
			n++
		}
	}
	return n
}

// Len returns the number of pending queries.
func (p *PendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queries)
}

// Snapshot returns a copy of all pending queries in registration order.
func (p *PendingSet) Snapshot() []PendingQuery {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PendingQuery, len(p.queries))
	copy(out, p.queries)
	return out
}
