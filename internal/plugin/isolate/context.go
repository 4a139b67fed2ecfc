package isolate

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// SharedModule builds a host-provided framework module inside a plugin
// scope. The returned value is what require yields; it is cached per
// context, so the builder runs at most once per plugin.
type SharedModule func(L *lua.LState) lua.LValue

// Context is one plugin's private execution scope.
// All operations serialize on an internal mutex; see the package
// documentation for re-entrancy constraints.
type Context struct {
	mu sync.Mutex

	// Resolution tables
	dir    string
	deps   map[string]string
	shared map[string]SharedModule
	grants map[string]bool

	// Runtime
	L       *lua.LState
	modules map[string]lua.LValue
	loaded  bool
	closed  bool
}

// Option configures a Context.
type Option func(*Context)

// WithDependencies sets the plugin's private dependency table
// (module name -> file path relative to the plugin directory).
func WithDependencies(deps map[string]string) Option {
	return func(c *Context) {
		for name, path := range deps {
			c.deps[name] = path
		}
	}
}

// WithSharedModule registers a host-shared module available to this
// plugin through require, subject to a matching grant.
func WithSharedModule(name string, m SharedModule) Option {
	return func(c *Context) {
		c.shared[name] = m
	}
}

// WithGrants marks shared module names the plugin may require.
// Shared modules without a grant are denied at require time.
func WithGrants(names ...string) Option {
	return func(c *Context) {
		for _, n := range names {
			c.grants[n] = true
		}
	}
}

// New creates a fresh isolation context rooted at the plugin directory.
// The underlying Lua state is created eagerly with a safe standard
// library subset and this context's require resolver installed.
func New(dir string, opts ...Option) *Context {
	c := &Context{
		dir:     dir,
		deps:    make(map[string]string),
		shared:  make(map[string]SharedModule),
		grants:  make(map[string]bool),
		modules: make(map[string]lua.LValue),
	}

	for _, opt := range opts {
		opt(c)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // opened selectively below
	})
	openSafeLibraries(L)
	L.SetGlobal("require", L.NewFunction(c.luaRequire))

	c.L = L
	return c
}

// openSafeLibraries opens only safe Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Intentionally not opened:
	// - io, os (filesystem and system call access)
	// - debug (can bypass the scope)
	// - package (its require would escape the resolution table)
}

// Dir returns the plugin directory this context is rooted at.
func (c *Context) Dir() string { return c.dir }

// Closed reports whether Close has been called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Load executes the plugin's main file inside this scope.
// It may be called at most once per context; a reload requires a fresh
// context.
func (c *Context) Load(main string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.loaded {
		return fmt.Errorf("plugin code already loaded from %s", c.dir)
	}

	err := c.withRecovery(func() error {
		return c.L.DoFile(main)
	})
	if err != nil {
		return err
	}

	// Discard anything the main chunk returned.
	c.L.SetTop(0)
	c.loaded = true
	return nil
}

// Call invokes a global function by name. The context (if non-nil) is
// attached to the Lua state for the duration of the call, so canceled
// callers interrupt Lua execution between instructions.
func (c *Context) Call(ctx context.Context, fn string, args ...lua.LValue) ([]lua.LValue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if !c.loaded {
		return nil, ErrNotLoaded
	}

	target := c.L.GetGlobal(fn)
	if target.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: %s", ErrNotFunction, fn)
	}

	return c.call(ctx, target, args...)
}

// CallValue invokes a Lua function value previously handed to the host
// (for example a pipeline handler registered during configure).
func (c *Context) CallValue(ctx context.Context, fn lua.LValue, args ...lua.LValue) ([]lua.LValue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if fn == nil || fn.Type() != lua.LTFunction {
		return nil, ErrNotFunction
	}

	return c.call(ctx, fn, args...)
}

// call runs a protected call. Must be called with mu held.
func (c *Context) call(ctx context.Context, fn lua.LValue, args ...lua.LValue) (rets []lua.LValue, err error) {
	if ctx != nil {
		c.L.SetContext(ctx)
		defer c.L.RemoveContext()
	}

	top := c.L.GetTop()
	err = c.withRecovery(func() error {
		return c.L.CallByParam(lua.P{
			Fn:      fn,
			NRet:    lua.MultRet,
			Protect: true,
		}, args...)
	})
	if err != nil {
		c.L.SetTop(top)
		return nil, err
	}

	for i := top + 1; i <= c.L.GetTop(); i++ {
		rets = append(rets, c.L.Get(i))
	}
	c.L.SetTop(top)
	return rets, nil
}

// CallWith invokes a global function by name with arguments built on
// the plugin's own state. The build callback runs under the context
// lock so it can safely construct tables and closures.
func (c *Context) CallWith(ctx context.Context, fn string, build func(L *lua.LState) []lua.LValue) ([]lua.LValue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if !c.loaded {
		return nil, ErrNotLoaded
	}

	target := c.L.GetGlobal(fn)
	if target.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: %s", ErrNotFunction, fn)
	}

	return c.call(ctx, target, build(c.L)...)
}

// InvokeWith invokes a function value with arguments built on the
// plugin's own state, like CallWith.
func (c *Context) InvokeWith(ctx context.Context, fn lua.LValue, build func(L *lua.LState) []lua.LValue) ([]lua.LValue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if fn == nil || fn.Type() != lua.LTFunction {
		return nil, ErrNotFunction
	}

	return c.call(ctx, fn, build(c.L)...)
}

// Global returns a global value from the plugin scope.
func (c *Context) Global(name string) (lua.LValue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return lua.LNil, ErrClosed
	}
	return c.L.GetGlobal(name), nil
}

// HasFunction reports whether the plugin defines the named global
// function.
func (c *Context) HasFunction(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	return c.L.GetGlobal(name).Type() == lua.LTFunction
}

// Do runs fn with exclusive access to the underlying state. It exists
// for the host bridges that build Lua tables to pass into hooks.
func (c *Context) Do(fn func(L *lua.LState) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return fn(c.L)
}

// Close releases the Lua state and every resource obtained through this
// context. It is idempotent; after the first call anything obtained
// from the context is unusable.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.L.Close()
	c.modules = nil
	c.loaded = false
	c.closed = true
}

// luaRequire resolves a module name for this plugin only: the private
// dependency table first, then granted shared modules. Runs on the
// state's goroutine while the context mutex is already held by the
// surrounding Load or Call, so it must not lock.
func (c *Context) luaRequire(L *lua.LState) int {
	name := L.CheckString(1)

	if v, ok := c.modules[name]; ok {
		L.Push(v)
		return 1
	}

	if rel, ok := c.deps[name]; ok {
		fn, err := L.LoadFile(filepath.Join(c.dir, rel))
		if err != nil {
			L.RaiseError("dependency %q: %v", name, err)
			return 0
		}
		L.Push(fn)
		L.Call(0, 1)
		v := L.Get(-1)
		L.Pop(1)
		if v == lua.LNil {
			// Cache a sentinel so the file runs once per context.
			v = lua.LTrue
		}
		c.modules[name] = v
		L.Push(v)
		return 1
	}

	if builder, ok := c.shared[name]; ok {
		if !c.grants[name] {
			L.RaiseError("shared module %q requires the %q capability", name, name)
			return 0
		}
		v := builder(L)
		c.modules[name] = v
		L.Push(v)
		return 1
	}

	L.RaiseError("module %q is not declared by this plugin", name)
	return 0
}

// withRecovery converts panics out of the Lua runtime into errors.
func (c *Context) withRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}
