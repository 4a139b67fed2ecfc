// Package report defines the failure-reporting channel raised on by the
// plugin core. Every resolution, configuration, lifecycle, and dispatch
// failure is delivered to a Reporter instead of propagating out of the
// pass that observed it; consumers (logging, monitoring) decide what to
// do with the record.
package report

import (
	"fmt"
	"sync"
	"time"
)

// Phase identifies where in the plugin lifecycle a failure occurred.
type Phase int

// Lifecycle phases.
const (
	// PhaseDiscovery - scanning a location for plugin candidates.
	PhaseDiscovery Phase = iota

	// PhaseResolve - instantiating a descriptor into a live module.
	PhaseResolve

	// PhaseConfigureServices - the module's service-registration hook.
	PhaseConfigureServices

	// PhaseConfigure - the module's pipeline-configuration hook.
	PhaseConfigure

	// PhaseInitialize - the module's initialize hook.
	PhaseInitialize

	// PhaseShutdown - the module's shutdown hook.
	PhaseShutdown

	// PhaseDispatch - an event handler invoked during publish.
	PhaseDispatch
)

// String returns a string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseDiscovery:
		return "discovery"
	case PhaseResolve:
		return "resolve"
	case PhaseConfigureServices:
		return "configure-services"
	case PhaseConfigure:
		return "configure"
	case PhaseInitialize:
		return "initialize"
	case PhaseShutdown:
		return "shutdown"
	case PhaseDispatch:
		return "dispatch"
	default:
		return "unknown"
	}
}

// Failure is one recorded failure. Namespace, Identifier, and Version
// identify the plugin when the failure is plugin-scoped; dispatch
// failures carry the event type in Identifier instead.
type Failure struct {
	Namespace  string
	Identifier string
	Version    string
	Phase      Phase
	Cause      error
	Time       time.Time
}

// String returns a human-readable description of the failure.
func (f Failure) String() string {
	return fmt.Sprintf("%s/%s@%s %s: %v", f.Namespace, f.Identifier, f.Version, f.Phase, f.Cause)
}

// Reporter receives failure records from the plugin core.
// Implementations must be safe for concurrent use; Report is called
// from lifecycle passes and from event-dispatch goroutines.
type Reporter interface {
	Report(f Failure)
}

// ReporterFunc is a function adapter for Reporter.
type ReporterFunc func(f Failure)

// Report implements the Reporter interface.
func (fn ReporterFunc) Report(f Failure) { fn(f) }

// Discard is a Reporter that drops every failure.
var Discard Reporter = ReporterFunc(func(Failure) {})

// Recorder is a Reporter that keeps every failure in memory.
// It is primarily useful in tests and diagnostics endpoints.
type Recorder struct {
	mu       sync.Mutex
	failures []Failure
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Report implements the Reporter interface.
func (r *Recorder) Report(f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

// Failures returns a copy of all recorded failures.
func (r *Recorder) Failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Failure{}, r.failures...)
}

// ByPhase returns recorded failures for a single phase.
func (r *Recorder) ByPhase(p Phase) []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Failure
	for _, f := range r.failures {
		if f.Phase == p {
			out = append(out, f)
		}
	}
	return out
}

// Len returns the number of recorded failures.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

// Reset discards all recorded failures.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = nil
}
