package plugin

import (
	"context"
	"sync"
	"time"

	"github.com/loomhost/loom/internal/nav"
	"github.com/loomhost/loom/internal/report"
	"github.com/loomhost/loom/internal/services"
)

// DefaultShutdownTimeout bounds each instance's shutdown hook.
const DefaultShutdownTimeout = 5 * time.Second

// Manager drives every plugin instance through the lifecycle state
// machine, isolating failures per instance. One plugin failing at any
// phase never aborts the pass for its siblings; the host keeps running
// with whatever reached Active.
type Manager struct {
	mu sync.RWMutex

	registry  *Registry
	container *services.Container
	pipeline  *Pipeline
	reporter  report.Reporter

	shutdownTimeout time.Duration

	// Instances by descriptor key, plus load order for deterministic
	// iteration.
	instances map[string]*Instance
	loadOrder []string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithReporter sets the failure reporter.
func WithReporter(r report.Reporter) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.reporter = r
		}
	}
}

// WithShutdownTimeout bounds each instance's shutdown hook.
func WithShutdownTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.shutdownTimeout = d
	}
}

// NewManager creates a lifecycle manager.
func NewManager(registry *Registry, container *services.Container, pipeline *Pipeline, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry:        registry,
		container:       container,
		pipeline:        pipeline,
		reporter:        report.Discard,
		shutdownTimeout: DefaultShutdownTimeout,
		instances:       make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadAll resolves every descriptor and configures the survivors in
// two disjoint passes: first every instance's service-registration
// hook runs to completion across all instances, then the container is
// frozen, and only then does each instance's pipeline-configuration
// hook run. Later-phase configuration may therefore resolve services
// registered by any other plugin regardless of load order.
//
// Failures are collected per instance; none propagate to the caller.
// The returned slice holds every instance in load order, including
// Failed ones, for diagnostics.
func (m *Manager) LoadAll(ctx context.Context, descriptors []Descriptor) []*Instance {
	for _, desc := range descriptors {
		key := desc.Key()

		m.mu.Lock()
		if _, exists := m.instances[key]; exists {
			m.mu.Unlock()
			continue
		}
		m.mu.Unlock()

		inst, err := m.registry.Resolve(desc.Namespace, desc.Identifier)
		if err != nil {
			// Resolution failures were already reported by the
			// registry; keep the instance visible as Failed.
			inst = failedInstance(desc, err)
		}

		m.mu.Lock()
		m.instances[key] = inst
		m.loadOrder = append(m.loadOrder, key)
		m.mu.Unlock()
	}

	// Pass 1: service registration, all instances.
	for _, inst := range m.Instances() {
		if inst.State() != StateLoaded {
			continue
		}
		if err := inst.ConfigureServices(ctx, m.container); err != nil {
			m.report(inst.Descriptor(), report.PhaseConfigureServices, err)
		}
	}

	m.container.Freeze()

	// Pass 2: pipeline configuration, only after every registration
	// completed.
	for _, inst := range m.Instances() {
		if inst.State() != StateConfiguring {
			continue
		}
		if err := inst.Configure(ctx, m.pipeline); err != nil {
			m.report(inst.Descriptor(), report.PhaseConfigure, err)
			m.pipeline.removeModule(inst.Descriptor().Key())
		}
	}

	return m.Instances()
}

// InitializeAll runs each configured instance's initialize hook.
// Instances are initialized independently in load order; modules must
// not assume ordering relative to each other.
func (m *Manager) InitializeAll(ctx context.Context) {
	for _, inst := range m.Instances() {
		if inst.State() != StateInitializing {
			continue
		}
		if err := inst.Initialize(ctx, m.container); err != nil {
			m.report(inst.Descriptor(), report.PhaseInitialize, err)
			m.pipeline.removeModule(inst.Descriptor().Key())
		}
	}
}

// ShutdownAll tears every instance down in reverse load order. Active
// instances get their shutdown hook under an independent bounded
// timeout so one hanging plugin cannot block the rest; Failed
// instances' hooks are never invoked. After ShutdownAll returns every
// instance is Unloaded or Failed.
func (m *Manager) ShutdownAll(ctx context.Context) {
	instances := m.Instances()

	for idx := len(instances) - 1; idx >= 0; idx-- {
		inst := instances[idx]

		switch inst.State() {
		case StateActive:
			if err := inst.Shutdown(ctx, m.shutdownTimeout); err != nil {
				m.report(inst.Descriptor(), report.PhaseShutdown, err)
			}
		case StateFailed, StateUnloaded:
			// Nothing to do; Failed stays visible for diagnostics.
		default:
			// Never reached Active: release resources, skip the hook.
			inst.Release()
		}

		m.pipeline.removeModule(inst.Descriptor().Key())
	}
}

// Instances returns all instances in load order.
func (m *Manager) Instances() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Instance, 0, len(m.loadOrder))
	for _, key := range m.loadOrder {
		if inst, ok := m.instances[key]; ok {
			out = append(out, inst)
		}
	}
	return out
}

// Get returns an instance by descriptor key.
func (m *Manager) Get(key string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[key]
	return inst, ok
}

// Active returns instances currently participating in dispatch.
func (m *Manager) Active() []*Instance {
	var out []*Instance
	for _, inst := range m.Instances() {
		if inst.State() == StateActive {
			out = append(out, inst)
		}
	}
	return out
}

// Failed returns instances in the terminal Failed state.
func (m *Manager) Failed() []*Instance {
	var out []*Instance
	for _, inst := range m.Instances() {
		if inst.State() == StateFailed {
			out = append(out, inst)
		}
	}
	return out
}

// Navigation assembles the menu from Active instances' contributions.
func (m *Manager) Navigation() []nav.Item {
	var lists [][]nav.Item
	for _, inst := range m.Active() {
		if items, ok := inst.NavigationItems(); ok {
			lists = append(lists, items)
		}
	}
	return nav.Merge(lists...)
}

// report sends a plugin-scoped failure to the reporter.
func (m *Manager) report(desc Descriptor, phase report.Phase, cause error) {
	m.reporter.Report(report.Failure{
		Namespace:  desc.Namespace,
		Identifier: desc.Identifier,
		Version:    desc.Version,
		Phase:      phase,
		Cause:      cause,
		Time:       time.Now(),
	})
}
