package relay

import (
	"strings"

	"github.com/nerrad567/hamrelay/internal/infrastructure/mqtt"
)

// DefaultBaseTopic prefixes every relay topic unless configured otherwise.
const DefaultBaseTopic = "hamqtt"

// Presence and status payloads.
const (
	PresenceOnline  = "Online"
	PresenceOffline = "Offline"
	StatusStopped   = "Stopped"
)

// Topics builds the relay's own topics under a base topic.
//
//	topics := relay.NewTopics("hamqtt")
//	topics.Receive() // "hamqtt/rx"
type Topics struct {
	Base string
}

// NewTopics returns Topics for base, falling back to DefaultBaseTopic.
func NewTopics(base string) Topics {
	base = strings.Trim(base, "/")
	if base == "" {
		base = DefaultBaseTopic
	}
	return Topics{Base: base}
}

// Receive is where DTMF command messages arrive.
func (t Topics) Receive() string { return mqtt.JoinTopic(t.Base, "rx") }

// Reply is where spoken replies are published.
func (t Topics) Reply() string { return mqtt.JoinTopic(t.Base, "tx") }

// Status receives "Stopped" on graceful shutdown.
func (t Topics) Status() string { return mqtt.JoinTopic(t.Base, "status") }

// LWT carries presence: "Online" while connected, "Offline" otherwise.
func (t Topics) LWT() string { return mqtt.JoinTopic(t.Base, "LWT") }

// Monitor returns the full topic for a monitored subtopic.
func (t Topics) Monitor(subtopic string) string { return mqtt.JoinTopic(t.Base, subtopic) }

// Monitors returns the full topics for subtopics, skipping empty ones.
func (t Topics) Monitors(subtopics []string) []string {
	out := make([]string, 0, len(subtopics))
	for _, s := range subtopics {
		if strings.Trim(s, "/") == "" {
			continue
		}
		out = append(out, t.Monitor(s))
	}
	return out
}
