package frosttypes

import (
	"errors"
)

// Error taxonomy. Wrap these with fmt.Errorf("...: %w", ...) so the CLI
// boundary can map them to distinct messages and exit codes with errors.Is().
// Plain OS errors (I/O) pass through unwrapped.
var (
	ErrConflict    = errors.New("conflict")
	ErrNotFound    = errors.New("not found")
	ErrNoDefault   = errors.New("no default snapshot set")
	ErrUnsupported = errors.New("unsupported on this platform")
	ErrPermission  = errors.New("permission denied")
	ErrMount       = errors.New("mount operation failed")
	ErrIntegrity   = errors.New("integrity check failed")
)
