// Package services provides the shared service container modules
// register into during their service-registration phase and resolve
// from afterward.
//
// The container is two-phase: Register is only legal before Freeze,
// Resolve only after. The lifecycle manager runs every module's
// registration hook to completion, freezes the container, and only then
// runs configuration hooks - so a module may resolve services
// registered by any other module without caring about load order.
package services

import (
	"errors"
	"fmt"
	"sync"
)

// Container errors.
var (
	// ErrFrozen is returned when registering after Freeze.
	ErrFrozen = errors.New("container is frozen")

	// ErrNotFrozen is returned when resolving before Freeze.
	ErrNotFrozen = errors.New("container is not frozen yet")

	// ErrDuplicate is returned when a service name is registered twice.
	ErrDuplicate = errors.New("service already registered")

	// ErrNotFound is returned when resolving an unknown service.
	ErrNotFound = errors.New("service not found")

	// ErrEmptyName is returned for a blank service name.
	ErrEmptyName = errors.New("service name is empty")
)

// Container is the shared, host-owned service registry.
type Container struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
	frozen  bool
}

type entry struct {
	owner string
	value any
}

// NewContainer creates an empty, unfrozen container.
func NewContainer() *Container {
	return &Container{
		entries: make(map[string]entry),
	}
}

// Register adds a named service on behalf of the owning module.
// Names are process-unique; duplicate registrations fail rather than
// silently replacing another module's service.
func (c *Container) Register(owner, name string, value any) error {
	if name == "" {
		return ErrEmptyName
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrFrozen, name)
	}
	if _, exists := c.entries[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicate, name)
	}

	c.entries[name] = entry{owner: owner, value: value}
	c.order = append(c.order, name)
	return nil
}

// Freeze finalizes the container. After Freeze, registration fails and
// resolution succeeds. Freezing twice is a no-op.
func (c *Container) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Frozen reports whether the container has been finalized.
func (c *Container) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}

// Resolve returns the named service.
func (c *Container) Resolve(name string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.frozen {
		return nil, fmt.Errorf("%w: cannot resolve %q", ErrNotFrozen, name)
	}
	e, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return e.value, nil
}

// Owner returns which module registered the named service.
func (c *Container) Owner(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[name]
	return e.owner, ok
}

// Names returns all registered service names in registration order.
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.order...)
}

// Len returns the number of registered services.
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
