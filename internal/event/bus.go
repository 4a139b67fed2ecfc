package event

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loomhost/loom/internal/report"
)

// Bus errors.
var (
	// ErrNilEvent is returned when a nil event is published.
	ErrNilEvent = errors.New("event is nil")

	// ErrNilHandler is returned when a nil handler is subscribed.
	ErrNilHandler = errors.New("handler is nil")
)

// Bus is a runtime-type-keyed publish/subscribe bus.
// The zero value is not usable; create one with NewBus.
type Bus struct {
	mu   sync.RWMutex
	subs map[reflect.Type][]*Subscription

	reporter report.Reporter
	nextID   atomic.Uint64

	// Stats
	published atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithReporter sets the failure reporter for handler errors and panics.
func WithReporter(r report.Reporter) BusOption {
	return func(b *Bus) {
		if r != nil {
			b.reporter = r
		}
	}
}

// NewBus creates a new event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:     make(map[reflect.Type][]*Subscription),
		reporter: report.Discard,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription represents one registered handler. It is returned by
// Subscribe and passed to Unsubscribe; it has no other operations.
type Subscription struct {
	id     uint64
	typ    reflect.Type
	invoke func(ctx context.Context, ev Event) error
}

// EventType returns the concrete event type this subscription matches.
func (s *Subscription) EventType() reflect.Type { return s.typ }

// Subscribe registers a typed handler for the concrete event type T.
// Multiple handlers per type are allowed and never deduplicated.
// Returns the subscription handle, or nil if fn is nil.
func Subscribe[T Event](b *Bus, fn func(ctx context.Context, ev T) error) *Subscription {
	if fn == nil {
		return nil
	}

	var zero T
	sub := &Subscription{
		id:  b.nextID.Add(1),
		typ: reflect.TypeOf(zero),
		invoke: func(ctx context.Context, ev Event) error {
			tv, ok := ev.(T)
			if !ok {
				// Exact-type keying makes this unreachable; kept as a
				// guard against future registry changes.
				return fmt.Errorf("event type mismatch: %T", ev)
			}
			return fn(ctx, tv)
		},
	}

	b.mu.Lock()
	b.subs[sub.typ] = append(b.subs[sub.typ], sub)
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscription. Returns false if the
// subscription is nil or was already removed.
func (b *Bus) Unsubscribe(sub *Subscription) bool {
	if sub == nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.typ]
	for i, s := range subs {
		if s.id == sub.id {
			b.subs[sub.typ] = append(subs[:i], subs[i+1:]...)
			if len(b.subs[sub.typ]) == 0 {
				delete(b.subs, sub.typ)
			}
			return true
		}
	}
	return false
}

// Publish delivers the event to every handler registered for its exact
// concrete type. Handlers run concurrently; Publish returns after all
// of them complete. A handler that errors or panics does not affect
// its siblings and is reported through the failure channel only.
// Publishing with zero subscribers is a successful no-op.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev == nil {
		return ErrNilEvent
	}

	b.published.Add(1)

	// Snapshot the handler set; registrations racing with this publish
	// may or may not see the event.
	b.mu.RLock()
	registered := b.subs[reflect.TypeOf(ev)]
	subs := make([]*Subscription, len(registered))
	copy(subs, registered)
	b.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			b.deliver(ctx, sub, ev)
		}(sub)
	}
	wg.Wait()

	return nil
}

// deliver invokes one handler with panic recovery.
func (b *Bus) deliver(ctx context.Context, sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.failed.Add(1)
			b.reportFailure(ev, fmt.Errorf("handler panic: %v", r))
		}
	}()

	if err := sub.invoke(ctx, ev); err != nil {
		b.failed.Add(1)
		b.reportFailure(ev, err)
		return
	}
	b.delivered.Add(1)
}

func (b *Bus) reportFailure(ev Event, cause error) {
	b.reporter.Report(report.Failure{
		Namespace:  "events",
		Identifier: fmt.Sprintf("%T", ev),
		Phase:      report.PhaseDispatch,
		Cause:      cause,
		Time:       time.Now(),
	})
}

// SubscriberCount returns the number of handlers registered for the
// concrete type of the given event value.
func (b *Bus) SubscriberCount(ev Event) int {
	if ev == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[reflect.TypeOf(ev)])
}

// Stats returns cumulative bus counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
	}
}

// Stats contains cumulative bus counters.
type Stats struct {
	Published uint64
	Delivered uint64
	Failed    uint64
}
