package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is implemented by every value published on the bus.
// Events are immutable once constructed; two events are never equal,
// even with identical payloads, because each carries a unique ID.
type Event interface {
	// EventID returns the unique identifier assigned at construction.
	EventID() string

	// OccurredAt returns the creation timestamp.
	OccurredAt() time.Time
}

// Base carries the identity every event shares. Embed it by value and
// construct it with NewBase so the ID and timestamp are always set.
type Base struct {
	ID string
	At time.Time
}

// NewBase creates event identity with a fresh unique ID and the
// current time. IDs are unique across the process lifetime.
func NewBase() Base {
	return Base{
		ID: uuid.NewString(),
		At: time.Now(),
	}
}

// EventID implements the Event interface.
func (b Base) EventID() string { return b.ID }

// OccurredAt implements the Event interface.
func (b Base) OccurredAt() time.Time { return b.At }
