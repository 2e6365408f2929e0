package unit

import "errors"

// Error kinds surfaced by the lifecycle engine. Callers match with
// errors.Is; wrapping adds the unit or command context.
var (
	// ErrExecFailed covers a failed non-ignore pre-command, a spawn
	// failure of the main binary, or an active conflicting unit.
	ErrExecFailed = errors.New("exec failed")

	// ErrFileNotFound is returned when a referenced unit id or name is
	// absent from the registry.
	ErrFileNotFound = errors.New("unit not found")

	// ErrCircularDependency is returned by the dependency resolver when
	// the After graph has a cycle.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrInvalidInput is returned for malformed control commands or
	// commands targeting an unknown unit.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidFileFormat is returned when a load requested during a
	// control operation fails to parse.
	ErrInvalidFileFormat = errors.New("invalid unit file format")

	// ErrUnsupportedOperation is returned for reserved control verbs.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)
