package mqtt

import (
	"fmt"
	"strings"
)

// MQTT topic wildcards.
const (
	// WildcardSingle matches exactly one topic level.
	WildcardSingle = "+"

	// WildcardMulti matches any number of trailing topic levels.
	WildcardMulti = "#"

	// topicSeparator separates topic levels.
	topicSeparator = "/"
)

// JoinTopic joins topic levels with "/", skipping empty levels.
//
// Example:
//
//	mqtt.JoinTopic("hamqtt", "rx") // "hamqtt/rx"
func JoinTopic(levels ...string) string {
	parts := make([]string, 0, len(levels))
	for _, l := range levels {
		l = strings.Trim(l, topicSeparator)
		if l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, topicSeparator)
}

// ValidatePublishTopic checks that topic can be published to.
// Publish topics must be non-empty and must not contain wildcards.
func ValidatePublishTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, WildcardSingle+WildcardMulti) {
		return fmt.Errorf("%w: publish topic %q contains a wildcard", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks that filter is a well-formed subscription filter.
//
// "+" must occupy a whole level and "#" must be the whole last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	levels := strings.Split(filter, topicSeparator)
	for i, level := range levels {
		if strings.Contains(level, WildcardMulti) && (level != WildcardMulti || i != len(levels)-1) {
			return fmt.Errorf("%w: %q must be the final level of %q", ErrInvalidTopic, WildcardMulti, filter)
		}
		if strings.Contains(level, WildcardSingle) && level != WildcardSingle {
			return fmt.Errorf("%w: %q must occupy a whole level of %q", ErrInvalidTopic, WildcardSingle, filter)
		}
	}
	return nil
}
