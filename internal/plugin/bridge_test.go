package plugin

import (
	"context"
	"reflect"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/loomhost/loom/internal/event/events"
	"github.com/loomhost/loom/internal/report"
)

func TestToGoConversions(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	tests := []struct {
		name string
		lua  string
		want any
	}{
		{"nil", `return nil`, nil},
		{"bool", `return true`, true},
		{"number", `return 1.5`, 1.5},
		{"string", `return "hello"`, "hello"},
		{"array table", `return {1, 2, 3}`, []any{1.0, 2.0, 3.0}},
		{"map table", `return {a = 1, b = "x"}`, map[string]any{"a": 1.0, "b": "x"}},
		{"nested", `return {items = {"a", "b"}}`, map[string]any{"items": []any{"a", "b"}}},
		{"function dropped", `return function() end`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := L.DoString(tt.lua); err != nil {
				t.Fatalf("DoString() = %v", err)
			}
			got := toGo(L.Get(-1))
			L.Pop(1)

			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("toGo() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestToLuaRoundTrip(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	in := map[string]any{
		"name":  "widget",
		"count": float64(3),
		"ok":    true,
		"tags":  []any{"a", "b"},
	}

	got := toGo(toLua(L, in))
	if !reflect.DeepEqual(got, in) {
		t.Errorf("round trip = %#v, want %#v", got, in)
	}
}

func TestEventsBetweenModules(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "orders", map[string]string{
		ManifestFile: `{"namespace": "Orders", "identifier": "OrdersModule", "capabilities": ["events"]}`,
		"init.lua": `
local events = require("events")
module_id = "Orders"
function configure_services(services) end
function configure(pipeline)
	pipeline.mount("/orders/place", function(req)
		local id = events.publish("order.placed", {
			order_id = req.order_id, sku = req.sku, quantity = req.quantity,
		})
		return { event_id = id }
	end)
end
function initialize(services) end
function shutdown() end
`,
	})
	writePlugin(t, root, "inventory", map[string]string{
		ManifestFile: `{"namespace": "Inventory", "identifier": "InventoryModule", "capabilities": ["events"]}`,
		"init.lua": `
local events = require("events")
module_id = "Inventory"
local seen = {}
function configure_services(services) end
function configure(pipeline)
	pipeline.mount("/inventory/seen", function(req)
		return { count = #seen, last_sku = seen[#seen] and seen[#seen].sku or "", last_event = seen[#seen] and seen[#seen].event_id or "" }
	end)
end
function initialize(services)
	events.subscribe("order.placed", function(ev)
		seen[#seen + 1] = { sku = ev.sku, event_id = ev.event_id }
	end)
end
function shutdown() end
`,
	})

	h := newHarness(t)
	h.load(t, root)

	if got := len(h.manager.Active()); got != 2 {
		t.Fatalf("Active() = %d, want 2: %v", got, h.recorder.Failures())
	}

	placed, err := h.pipeline.Invoke(context.Background(), "/orders/place", map[string]any{
		"order_id": "ORD-1", "sku": "WIDGET", "quantity": 2,
	})
	if err != nil {
		t.Fatalf("Invoke(place) = %v", err)
	}
	eventID, _ := placed["event_id"].(string)
	if eventID == "" {
		t.Fatal("publish returned no event ID")
	}

	seen, err := h.pipeline.Invoke(context.Background(), "/inventory/seen", nil)
	if err != nil {
		t.Fatalf("Invoke(seen) = %v", err)
	}
	if seen["count"] != float64(1) {
		t.Errorf("subscriber saw %v events, want 1", seen["count"])
	}
	if seen["last_sku"] != "WIDGET" {
		t.Errorf("last_sku = %v", seen["last_sku"])
	}

	// The ID the publisher got back is the ID the subscriber observed.
	if seen["last_event"] != eventID {
		t.Errorf("subscriber saw event %v, publisher got %v", seen["last_event"], eventID)
	}
	if got := h.recorder.Len(); got != 0 {
		t.Errorf("recorded %d failures: %v", got, h.recorder.Failures())
	}
}

func TestEventsPublishUnknownKind(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "orders", map[string]string{
		ManifestFile: `{"namespace": "Orders", "identifier": "OrdersModule", "capabilities": ["events"]}`,
		"init.lua": `
local events = require("events")
module_id = "Orders"
function configure_services(services) end
function configure(pipeline)
	pipeline.mount("/orders/bad", function(req)
		events.publish("no.such.kind", {})
		return {}
	end)
end
function initialize(services) end
function shutdown() end
`,
	})

	h := newHarness(t)
	h.load(t, root)

	if _, err := h.pipeline.Invoke(context.Background(), "/orders/bad", nil); err == nil {
		t.Fatal("Invoke() = nil for unknown event kind")
	}
}

func TestEventsSubscriptionRemovedOnFailure(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "flaky", map[string]string{
		ManifestFile: `{"namespace": "Flaky", "identifier": "FlakyModule", "capabilities": ["events"]}`,
		"init.lua": `
local events = require("events")
module_id = "Flaky"
function configure_services(services) end
function configure(pipeline) end
function initialize(services)
	events.subscribe("order.placed", function(ev) end)
end
function shutdown() error("shutdown failure") end
`,
	})

	h := newHarness(t)
	h.load(t, root)

	if got := h.bus.SubscriberCount(events.OrderPlaced{}); got != 1 {
		t.Fatalf("SubscriberCount = %d after load, want 1", got)
	}

	h.manager.ShutdownAll(context.Background())

	// The failed instance's subscription is withdrawn, so a later
	// publish finds no handler and reports nothing.
	if got := h.bus.SubscriberCount(events.OrderPlaced{}); got != 0 {
		t.Fatalf("SubscriberCount = %d after failure, want 0", got)
	}

	h.recorder.Reset()
	if err := h.bus.Publish(context.Background(), events.NewOrderPlaced("ORD-1", "X", 1)); err != nil {
		t.Fatalf("Publish() = %v", err)
	}
	if got := len(h.recorder.ByPhase(report.PhaseDispatch)); got != 0 {
		t.Errorf("dispatch failures after teardown = %d, want 0", got)
	}
}

func TestServicesRejectFunctionValues(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "sneaky", map[string]string{
		ManifestFile: manifestJSON("Sneaky", "SneakyModule"),
		"init.lua": `
module_id = "Sneaky"
function configure_services(services)
	services.register("sneaky.callback", function() end)
end
function configure(pipeline) end
function initialize(services) end
function shutdown() end
`,
	})

	h := newHarness(t)
	h.load(t, root)

	// A live function would leak one scope into another; registration
	// rejects it and the hook fails.
	inst, _ := h.manager.Get("Sneaky.SneakyModule")
	if got := inst.State(); got != StateFailed {
		t.Errorf("state = %s, want %s", got, StateFailed)
	}
	if h.container.Len() != 0 {
		t.Errorf("container has %d services, want 0", h.container.Len())
	}
}

func TestJSONModule(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "codec", map[string]string{
		ManifestFile: `{"namespace": "Codec", "identifier": "CodecModule", "capabilities": ["json"]}`,
		"init.lua": `
local json = require("json")
module_id = "Codec"
function configure_services(services) end
function configure(pipeline)
	pipeline.mount("/codec/roundtrip", function(req)
		local text = json.encode({ sku = req.sku, qty = req.qty })
		return json.decode(text)
	end)
end
function initialize(services) end
function shutdown() end
`,
	})

	h := newHarness(t)
	h.load(t, root)

	result, err := h.pipeline.Invoke(context.Background(), "/codec/roundtrip", map[string]any{
		"sku": "WIDGET", "qty": 4,
	})
	if err != nil {
		t.Fatalf("Invoke() = %v", err)
	}
	if result["sku"] != "WIDGET" || result["qty"] != float64(4) {
		t.Errorf("round trip = %v", result)
	}
}

func TestEventsRequireWithoutCapability(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "greedy", map[string]string{
		// No capabilities declared; require("events") is denied.
		ManifestFile: manifestJSON("Greedy", "GreedyModule"),
		"init.lua": `
local events = require("events")
module_id = "Greedy"
function configure_services(services) end
function configure(pipeline) end
function initialize(services) end
function shutdown() end
`,
	})

	h := newHarness(t)
	h.load(t, root)

	inst, _ := h.manager.Get("Greedy.GreedyModule")
	if got := inst.State(); got != StateFailed {
		t.Errorf("state = %s, want %s", got, StateFailed)
	}
}
