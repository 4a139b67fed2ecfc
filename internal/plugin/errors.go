package plugin

import "errors"

// Plugin system errors.
var (
	// ErrPluginNotFound is returned when a descriptor cannot be located.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrNilManifest is returned when a nil manifest is provided.
	ErrNilManifest = errors.New("manifest is nil")

	// ErrMissingDependency is returned when a manifest-declared
	// dependency file does not exist (a load failure).
	ErrMissingDependency = errors.New("declared dependency missing")

	// ErrCapabilityMismatch is returned when a resolved module does not
	// satisfy the capability contract.
	ErrCapabilityMismatch = errors.New("module does not satisfy the capability contract")

	// ErrConstructFailed is returned when the module's main chunk
	// raises during instantiation.
	ErrConstructFailed = errors.New("module construction failed")

	// ErrInvalidTransition is returned when a hook is invoked on an
	// instance in the wrong state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrNotActive is returned when dispatching to an inactive module.
	ErrNotActive = errors.New("module is not active")

	// ErrRouteNotFound is returned when invoking an unmounted route.
	ErrRouteNotFound = errors.New("route not mounted")

	// ErrShutdownTimeout is returned when a shutdown hook exceeds its
	// bounded timeout.
	ErrShutdownTimeout = errors.New("shutdown hook timed out")
)
