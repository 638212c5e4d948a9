package patchbay

import "errors"

// Configuration errors. Operations failing with these reject the whole
// operation and leave the prior state untouched.
var (
	ErrUnknownModuleType = errors.New("unrecognized module type")
	ErrDuplicateModule   = errors.New("duplicate module id")
	ErrMalformedPreset   = errors.New("malformed preset")
	ErrInvalidState      = errors.New("invalid module state")
)

// Graph-consistency errors. The workspace logs these and remains valid; the
// caller just does not get the connection it asked for.
var (
	ErrModuleNotFound    = errors.New("module not found")
	ErrPortNotFound      = errors.New("port not found")
	ErrIncompatiblePorts = errors.New("incompatible port kinds")
	ErrDisposed          = errors.New("module has been disposed")
)

// Engine-transient errors, returned by scheduled sources started or stopped
// twice. Expected when disposal races with the normal lifecycle.
var (
	ErrAlreadyStarted = errors.New("source already started")
	ErrAlreadyStopped = errors.New("source already stopped")
)

// ErrNoBuffer is returned when a sample player is triggered before a buffer
// has been loaded.
var ErrNoBuffer = errors.New("no buffer loaded")

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrUnknownModuleType) ||
		errors.Is(err, ErrDuplicateModule) ||
		errors.Is(err, ErrMalformedPreset) ||
		errors.Is(err, ErrInvalidState)
}

// IsGraphError reports whether err is a graph-consistency error.
func IsGraphError(err error) bool {
	return errors.Is(err, ErrModuleNotFound) ||
		errors.Is(err, ErrPortNotFound) ||
		errors.Is(err, ErrIncompatiblePorts) ||
		errors.Is(err, ErrDisposed)
}

// IsTransient reports whether err is an engine-transient error that can be
// safely ignored.
func IsTransient(err error) bool {
	return errors.Is(err, ErrAlreadyStarted) || errors.Is(err, ErrAlreadyStopped)
}
