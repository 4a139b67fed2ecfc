// Package events defines the domain events exchanged between business
// modules, and the kind-string registry that lets Lua modules publish
// and subscribe to them without touching Go types.
package events

import (
	"context"
	"fmt"

	"github.com/loomhost/loom/internal/event"
)

// InvoiceCreated is published by the finance module when an invoice
// has been recorded.
type InvoiceCreated struct {
	event.Base
	Number   string
	Customer string
	Total    float64
}

// NewInvoiceCreated creates an InvoiceCreated event.
func NewInvoiceCreated(number, customer string, total float64) InvoiceCreated {
	return InvoiceCreated{Base: event.NewBase(), Number: number, Customer: customer, Total: total}
}

// OrderPlaced is published by the orders module when an order is placed.
type OrderPlaced struct {
	event.Base
	OrderID  string
	SKU      string
	Quantity int
}

// NewOrderPlaced creates an OrderPlaced event.
func NewOrderPlaced(orderID, sku string, quantity int) OrderPlaced {
	return OrderPlaced{Base: event.NewBase(), OrderID: orderID, SKU: sku, Quantity: quantity}
}

// StockAdjusted is published by the inventory module after a stock level
// changes.
type StockAdjusted struct {
	event.Base
	SKU    string
	Delta  int
	Reason string
}

// NewStockAdjusted creates a StockAdjusted event.
func NewStockAdjusted(sku string, delta int, reason string) StockAdjusted {
	return StockAdjusted{Base: event.NewBase(), SKU: sku, Delta: delta, Reason: reason}
}

// ProductAdded is published by the products module when a product is
// added to the catalog.
type ProductAdded struct {
	event.Base
	SKU   string
	Name  string
	Price float64
}

// NewProductAdded creates a ProductAdded event.
func NewProductAdded(sku, name string, price float64) ProductAdded {
	return ProductAdded{Base: event.NewBase(), SKU: sku, Name: name, Price: price}
}

// Kind is the string identity a Lua module uses to name an event type.
// Each kind maps to exactly one concrete Go event type.
type Kind string

// Known kinds.
const (
	KindInvoiceCreated Kind = "invoice.created"
	KindOrderPlaced    Kind = "order.placed"
	KindStockAdjusted  Kind = "stock.adjusted"
	KindProductAdded   Kind = "product.added"
)

// ErrUnknownKind is returned for kinds outside the registry.
var ErrUnknownKind = fmt.Errorf("unknown event kind")

// Kinds returns every registered kind.
func Kinds() []Kind {
	return []Kind{KindInvoiceCreated, KindOrderPlaced, KindStockAdjusted, KindProductAdded}
}

// KindOf returns the kind for a concrete event, or false for event
// types outside the registry.
func KindOf(ev event.Event) (Kind, bool) {
	switch ev.(type) {
	case InvoiceCreated:
		return KindInvoiceCreated, true
	case OrderPlaced:
		return KindOrderPlaced, true
	case StockAdjusted:
		return KindStockAdjusted, true
	case ProductAdded:
		return KindProductAdded, true
	default:
		return "", false
	}
}

// FromFields constructs a typed event from a kind and loosely typed
// payload fields (as decoded from a Lua table). Missing fields take
// zero values; the event identity is always freshly generated.
func FromFields(kind Kind, fields map[string]any) (event.Event, error) {
	switch kind {
	case KindInvoiceCreated:
		return NewInvoiceCreated(str(fields, "number"), str(fields, "customer"), num(fields, "total")), nil
	case KindOrderPlaced:
		return NewOrderPlaced(str(fields, "order_id"), str(fields, "sku"), int(num(fields, "quantity"))), nil
	case KindStockAdjusted:
		return NewStockAdjusted(str(fields, "sku"), int(num(fields, "delta")), str(fields, "reason")), nil
	case KindProductAdded:
		return NewProductAdded(str(fields, "sku"), str(fields, "name"), num(fields, "price")), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// ToFields flattens a typed event into loosely typed payload fields
// for delivery into a Lua handler. The event identity travels along as
// event_id and occurred_at.
func ToFields(ev event.Event) (map[string]any, error) {
	fields := map[string]any{
		"event_id":    ev.EventID(),
		"occurred_at": ev.OccurredAt().Unix(),
	}

	switch e := ev.(type) {
	case InvoiceCreated:
		fields["number"] = e.Number
		fields["customer"] = e.Customer
		fields["total"] = e.Total
	case OrderPlaced:
		fields["order_id"] = e.OrderID
		fields["sku"] = e.SKU
		fields["quantity"] = e.Quantity
	case StockAdjusted:
		fields["sku"] = e.SKU
		fields["delta"] = e.Delta
		fields["reason"] = e.Reason
	case ProductAdded:
		fields["sku"] = e.SKU
		fields["name"] = e.Name
		fields["price"] = e.Price
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, ev)
	}
	return fields, nil
}

// SubscribeKind registers a type-erased handler for the concrete event
// type behind a kind. It exists for the Lua bridge; Go subscribers use
// the typed event.Subscribe directly.
func SubscribeKind(b *event.Bus, kind Kind, fn func(ctx context.Context, ev event.Event) error) (*event.Subscription, error) {
	switch kind {
	case KindInvoiceCreated:
		return event.Subscribe(b, func(ctx context.Context, ev InvoiceCreated) error {
			return fn(ctx, ev)
		}), nil
	case KindOrderPlaced:
		return event.Subscribe(b, func(ctx context.Context, ev OrderPlaced) error {
			return fn(ctx, ev)
		}), nil
	case KindStockAdjusted:
		return event.Subscribe(b, func(ctx context.Context, ev StockAdjusted) error {
			return fn(ctx, ev)
		}), nil
	case KindProductAdded:
		return event.Subscribe(b, func(ctx context.Context, ev ProductAdded) error {
			return fn(ctx, ev)
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func str(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func num(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
