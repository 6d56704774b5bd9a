package command

import "errors"

// Domain errors for the command package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, command.ErrInvalidTable) {
//	    // the table file is unusable
//	}
var (
	// ErrInvalidEntry is returned when a single row is malformed.
	ErrInvalidEntry = errors.New("command: invalid entry")

	// ErrInvalidTable is returned when a command table cannot be loaded.
	ErrInvalidTable = errors.New("command: invalid table")
)
