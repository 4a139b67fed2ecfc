package isolate

import "errors"

// Isolation context errors.
var (
	// ErrClosed is returned when using a context after Close.
	ErrClosed = errors.New("isolation context is closed")

	// ErrNotLoaded is returned when calling into a context before Load.
	ErrNotLoaded = errors.New("no plugin code loaded")

	// ErrNotFunction is returned when a named global is not callable.
	ErrNotFunction = errors.New("global is not a function")
)
