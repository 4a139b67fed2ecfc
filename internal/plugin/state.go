package plugin

// State represents the lifecycle state of a plugin instance.
//
// Transitions are strictly forward:
//
//	Discovered -> Loaded -> Configuring -> Initializing -> Active
//	  -> ShuttingDown -> Unloaded
//
// Any state may transition directly to Failed. Failed is terminal: the
// instance is excluded from further dispatch but stays visible for
// diagnostics.
type State int

// Plugin states.
const (
	// StateDiscovered - descriptor known, not yet resolved.
	StateDiscovered State = iota

	// StateLoaded - code resolved into an isolation context.
	StateLoaded

	// StateConfiguring - service-registration hook ran; awaiting the
	// pipeline-configuration pass.
	StateConfiguring

	// StateInitializing - configured; awaiting the initialize hook.
	StateInitializing

	// StateActive - initialized and participating in dispatch.
	StateActive

	// StateShuttingDown - shutdown hook in progress.
	StateShuttingDown

	// StateUnloaded - shut down, isolation context released.
	StateUnloaded

	// StateFailed - a hook failed; terminal.
	StateFailed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateLoaded:
		return "loaded"
	case StateConfiguring:
		return "configuring"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting-down"
	case StateUnloaded:
		return "unloaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateUnloaded || s == StateFailed
}
