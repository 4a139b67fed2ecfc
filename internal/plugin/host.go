package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/loomhost/loom/internal/nav"
	"github.com/loomhost/loom/internal/plugin/isolate"
	"github.com/loomhost/loom/internal/services"
)

// Lua globals making up the capability contract.
const (
	luaModuleID          = "module_id"
	luaDisplayName       = "display_name"
	luaConfigureServices = "configure_services"
	luaConfigure         = "configure"
	luaInitialize        = "initialize"
	luaShutdown          = "shutdown"
	luaNavigation        = "navigation" // optional
)

// Instance is one resolved plugin: the capability contract adapted over
// a Lua module, plus the lifecycle state machine. Each instance owns
// exactly one isolation context whose lifetime is bound to its own;
// the context is never shared with a sibling.
type Instance struct {
	mu sync.RWMutex

	desc Descriptor
	ctx  *isolate.Context

	state State
	err   error

	moduleID    string
	displayName string
	hasNav      bool

	// Resources to release on shutdown or failure
	subRemovers []func()
}

// newPendingInstance creates an instance shell before its isolation
// context exists; the source attaches and finishes it during resolve.
func newPendingInstance(desc Descriptor) *Instance {
	return &Instance{
		desc:  desc,
		state: StateDiscovered,
	}
}

// failedInstance records a descriptor whose resolution failed, keeping
// it visible for diagnostics while excluding it from dispatch.
func failedInstance(desc Descriptor, err error) *Instance {
	return &Instance{
		desc:  desc,
		state: StateFailed,
		err:   err,
	}
}

// attach binds the isolation context. Called once by the source.
func (i *Instance) attach(ctx *isolate.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ctx = ctx
}

// finish completes resolution with the module's identity.
func (i *Instance) finish(moduleID, displayName string, hasNav bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.moduleID = moduleID
	i.displayName = displayName
	i.hasNav = hasNav
	i.state = StateLoaded
}

// Descriptor returns the immutable descriptor.
func (i *Instance) Descriptor() Descriptor {
	return i.desc
}

// ModuleID returns the module's stable identifier.
func (i *Instance) ModuleID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.moduleID
}

// DisplayName returns the module's human-readable name.
func (i *Instance) DisplayName() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.displayName
}

// State returns the current lifecycle state.
func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Err returns the error that moved the instance to Failed, if any.
func (i *Instance) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.err
}

// Dispatchable reports whether the instance participates in dispatch.
func (i *Instance) Dispatchable() bool {
	return i.State() == StateActive
}

// begin performs a checked state transition.
func (i *Instance) begin(from, to State) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != from {
		return fmt.Errorf("%w: %s -> %s (currently %s)", ErrInvalidTransition, from, to, i.state)
	}
	i.state = to
	return nil
}

// settle moves a transitional state to its success state.
func (i *Instance) settle(to State) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = to
}

// fail moves the instance to Failed and releases its resources.
// Failed is terminal; repeated calls keep the first cause.
func (i *Instance) fail(err error) {
	i.mu.Lock()
	if i.state == StateFailed {
		i.mu.Unlock()
		return
	}
	i.state = StateFailed
	i.err = err
	removers := i.subRemovers
	i.subRemovers = nil
	ctx := i.ctx
	i.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
	if ctx != nil {
		ctx.Close()
	}
}

// ConfigureServices runs the module's service-registration hook.
func (i *Instance) ConfigureServices(ctx context.Context, container *services.Container) error {
	if err := i.begin(StateLoaded, StateConfiguring); err != nil {
		return err
	}

	_, err := i.ctx.CallWith(ctx, luaConfigureServices, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{servicesTable(L, container, i.ModuleID())}
	})
	if err != nil {
		i.fail(err)
		return err
	}
	return nil
}

// Configure runs the module's pipeline-configuration hook. On success
// the instance is ready to initialize.
func (i *Instance) Configure(ctx context.Context, pipeline *Pipeline) error {
	if err := i.begin(StateConfiguring, StateConfiguring); err != nil {
		return err
	}

	_, err := i.ctx.CallWith(ctx, luaConfigure, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{pipelineTable(L, pipeline, i)}
	})
	if err != nil {
		i.fail(err)
		return err
	}

	i.settle(StateInitializing)
	return nil
}

// Initialize runs the module's initialize hook with the finalized
// service provider; on success the instance becomes Active.
func (i *Instance) Initialize(ctx context.Context, container *services.Container) error {
	if err := i.begin(StateInitializing, StateInitializing); err != nil {
		return err
	}

	_, err := i.ctx.CallWith(ctx, luaInitialize, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{servicesTable(L, container, i.ModuleID())}
	})
	if err != nil {
		i.fail(err)
		return err
	}

	i.settle(StateActive)
	return nil
}

// Shutdown runs the module's shutdown hook under the given timeout,
// then releases the isolation context. A hook that errors or exceeds
// the timeout moves the instance to Failed instead of Unloaded.
func (i *Instance) Shutdown(ctx context.Context, timeout time.Duration) error {
	if err := i.begin(StateActive, StateShuttingDown); err != nil {
		return err
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	_, err := i.ctx.Call(callCtx, luaShutdown)
	if err != nil {
		if callCtx.Err() != nil {
			err = fmt.Errorf("%w after %s: %w", ErrShutdownTimeout, timeout, err)
		}
		i.fail(err)
		return err
	}

	i.release()
	return nil
}

// Release tears the instance down without running its shutdown hook.
// Used for instances that never reached Active.
func (i *Instance) Release() {
	i.mu.Lock()
	if i.state.IsTerminal() {
		i.mu.Unlock()
		return
	}
	i.mu.Unlock()
	i.release()
}

// release unsubscribes, closes the context, and marks Unloaded.
func (i *Instance) release() {
	i.mu.Lock()
	removers := i.subRemovers
	i.subRemovers = nil
	ctx := i.ctx
	i.state = StateUnloaded
	i.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
	if ctx != nil {
		ctx.Close()
	}
}

// trackSubscription records an event subscription owned by this
// instance so it is removed at shutdown or on failure.
func (i *Instance) trackSubscription(remove func()) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.subRemovers = append(i.subRemovers, remove)
}

// NavigationItems returns the module's navigation contribution.
// Only Active instances with the optional navigation capability
// contribute; everything else returns (nil, false).
func (i *Instance) NavigationItems() ([]nav.Item, bool) {
	i.mu.RLock()
	hasNav := i.hasNav
	active := i.state == StateActive
	moduleID := i.moduleID
	i.mu.RUnlock()

	if !hasNav || !active {
		return nil, false
	}

	rets, err := i.ctx.Call(context.Background(), luaNavigation)
	if err != nil || len(rets) == 0 {
		return nil, false
	}

	entries, ok := toGo(rets[0]).([]any)
	if !ok {
		return nil, false
	}

	items := make([]nav.Item, 0, len(entries))
	for _, e := range entries {
		fields, ok := e.(map[string]any)
		if !ok {
			continue
		}
		item := nav.Item{Module: moduleID}
		if title, ok := fields["title"].(string); ok {
			item.Title = title
		}
		if route, ok := fields["route"].(string); ok {
			item.Route = route
		}
		if order, ok := fields["order"].(float64); ok {
			item.Order = int(order)
		}
		items = append(items, item)
	}
	return items, true
}

// invokeHandler runs a pipeline handler inside this instance's scope.
func (i *Instance) invokeHandler(ctx context.Context, handler lua.LValue, payload map[string]any) (map[string]any, error) {
	if !i.Dispatchable() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotActive, i.desc.Key(), i.State())
	}

	rets, err := i.ctx.InvokeWith(ctx, handler, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{toLua(L, payload)}
	})
	if err != nil {
		return nil, err
	}
	if len(rets) == 0 {
		return nil, nil
	}

	result, _ := toGo(rets[0]).(map[string]any)
	return result, nil
}

// invokeHandlerNoResult runs an event handler inside this instance's
// scope, discarding results.
func (i *Instance) invokeHandlerNoResult(ctx context.Context, handler lua.LValue, payload map[string]any) error {
	_, err := i.ctx.InvokeWith(ctx, handler, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{toLua(L, payload)}
	})
	return err
}
