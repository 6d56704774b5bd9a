package relay

import "errors"

// Errors attached to log lines and events. None of them is returned from
// Dispatch or OnMessage; a bad message never stops the relay.
var (
	// ErrUnrecognizedCode is logged when a received code is not in the table.
	ErrUnrecognizedCode = errors.New("relay: code not recognised")

	// ErrExtractionMiss is logged when a response lacks the query's key path.
	ErrExtractionMiss = errors.New("relay: key path not found in response")

	// ErrMalformedPayload is logged when an inbound payload is not a JSON object.
	ErrMalformedPayload = errors.New("relay: malformed payload")

	// ErrPublishFailed wraps bus errors from action, reply and presence publishes.
	ErrPublishFailed = errors.New("relay: publish failed")
)
