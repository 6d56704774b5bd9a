package command

import (
	"fmt"
	"strings"
)

// Sigils that open every code.
const (
	SigilAction = '*'
	SigilQuery  = '#'
)

// Class is the behaviour selected by a code's sigil.
type Class string

// Entry classes.
const (
	ClassAction  Class = "action"
	ClassQuery   Class = "query"
	ClassUnknown Class = "unknown"
)

// Entry is one row of the command table. Entries are values and are
// never modified after loading.
type Entry struct {
	// Code is the DTMF sequence, sigil included (e.g., "#100", "*2000").
	Code string `yaml:"code" json:"code"`

	// Description is spoken back verbatim in replies.
	Description string `yaml:"description" json:"description"`

	// ActionTopic and ActionPayload are published when the code is dispatched.
	ActionTopic   string `yaml:"action_topic" json:"action_topic"`
	ActionPayload string `yaml:"action_payload" json:"action_payload"`

	// ResponseTopic and ResponseKeyPath are set for queries only. The value
	// at ResponseKeyPath in the JSON published on ResponseTopic is the answer.
	ResponseTopic   string `yaml:"response_topic,omitempty" json:"response_topic,omitempty"`
	ResponseKeyPath string `yaml:"response_key_path,omitempty" json:"response_key_path,omitempty"`
}

// Class returns the entry's class from the first character of its code.
func (e Entry) Class() Class {
	if e.Code == "" {
		return ClassUnknown
	}
	switch e.Code[0] {
	case SigilAction:
		return ClassAction
	case SigilQuery:
		return ClassQuery
	default:
		return ClassUnknown
	}
}

// ValidateEntry checks a single row.
//
// Rules:
//   - code is non-empty and starts with '*' or '#'
//   - action topic is non-empty and has no wildcards
//   - response topic and key path are both set for queries, both empty for actions
func ValidateEntry(e Entry) error {
	if e.Code == "" {
		return fmt.Errorf("%w: code is empty", ErrInvalidEntry)
	}

	class := e.Class()
	if class == ClassUnknown {
		return fmt.Errorf("%w: code %q must start with %q or %q", ErrInvalidEntry, e.Code, SigilAction, SigilQuery)
	}

	if e.ActionTopic == "" {
		return fmt.Errorf("%w: code %q has no action_topic", ErrInvalidEntry, e.Code)
	}
	if strings.ContainsAny(e.ActionTopic, "+#") {
		return fmt.Errorf("%w: code %q action_topic %q contains a wildcard", ErrInvalidEntry, e.Code, e.ActionTopic)
	}

	switch class {
	case ClassQuery:
		if e.ResponseTopic == "" || e.ResponseKeyPath == "" {
			return fmt.Errorf("%w: query %q needs response_topic and response_key_path", ErrInvalidEntry, e.Code)
		}
	case ClassAction:
		if e.ResponseTopic != "" || e.ResponseKeyPath != "" {
			return fmt.Errorf("%w: action %q must not set response fields", ErrInvalidEntry, e.Code)
		}
	}

	return nil
}

// Validate checks every row and reports all failures at once.
// Duplicate codes are not an error here; see NewRegistry.
func Validate(entries []Entry) error {
	var errs []string
	for i, e := range entries {
		if err := ValidateEntry(e); err != nil {
			errs = append(errs, fmt.Sprintf("row %d: %v", i+1, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTable, strings.Join(errs, "; "))
	}
	return nil
}
