package relay

import "strings"

// pathSeparator splits a response key path into keys.
const pathSeparator = "."

// Extract walks payload along a dot-separated key path and returns the
// value found there.
//
// The second result is false when the path cannot be followed: the path
// is empty, a key is missing, or an intermediate value is not a JSON
// object. Keys containing "." cannot be addressed. Extract never panics
// and does not modify payload.
//
// Example:
//
//	v, ok := Extract(payload, "StatusSNS.SI7021.Temperature")
func Extract(payload map[string]any, path string) (any, bool) {
	if path == "" || payload == nil {
		return nil, false
	}

	var current any = payload
	for _, key := range strings.Split(path, pathSeparator) {
		obj, isObject := current.(map[string]any)
		if !isObject {
			return nil, false
		}
		next, exists := obj[key]
		if !exists {
			return nil, false
		}
		current = next
	}
	return current, true
}
