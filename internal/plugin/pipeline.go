package plugin

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Pipeline is the host request pipeline modules mount handlers on
// during their configure phase. Routes dispatch through the owning
// module's isolation scope; routes of a module that later fails are
// withdrawn.
type Pipeline struct {
	mu     sync.RWMutex
	routes map[string]*route
	order  []string
}

type route struct {
	path    string
	inst    *Instance
	handler *lua.LFunction
}

// RouteInfo describes one mounted route.
type RouteInfo struct {
	Path   string
	Module string
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		routes: make(map[string]*route),
	}
}

// mount registers a handler for a path on behalf of an instance.
func (p *Pipeline) mount(inst *Instance, path string, handler *lua.LFunction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.routes[path]; ok {
		return fmt.Errorf("path already mounted by %s", existing.inst.Descriptor().Key())
	}

	p.routes[path] = &route{path: path, inst: inst, handler: handler}
	p.order = append(p.order, path)
	return nil
}

// Invoke dispatches a request payload to the handler mounted at path.
// The handler runs inside the owning module's scope; its returned
// table comes back as plain data.
func (p *Pipeline) Invoke(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	p.mu.RLock()
	rt, ok := p.routes[path]
	p.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRouteNotFound, path)
	}
	return rt.inst.invokeHandler(ctx, rt.handler, payload)
}

// Routes returns mounted routes in mount order.
func (p *Pipeline) Routes() []RouteInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	infos := make([]RouteInfo, 0, len(p.order))
	for _, path := range p.order {
		if rt, ok := p.routes[path]; ok {
			infos = append(infos, RouteInfo{Path: path, Module: rt.inst.Descriptor().Key()})
		}
	}
	return infos
}

// removeModule withdraws every route mounted by the given module key.
func (p *Pipeline) removeModule(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.order[:0]
	for _, path := range p.order {
		rt := p.routes[path]
		if rt != nil && rt.inst.Descriptor().Key() == key {
			delete(p.routes, path)
			continue
		}
		kept = append(kept, path)
	}
	p.order = kept
}
