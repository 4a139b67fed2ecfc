package plugin

import (
	"context"
	"encoding/json"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/loomhost/loom/internal/event"
	"github.com/loomhost/loom/internal/event/events"
	"github.com/loomhost/loom/internal/plugin/isolate"
	"github.com/loomhost/loom/internal/services"
)

// toLua converts a Go value to a value on the given Lua state.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			tbl.RawSetString(k, toLua(L, item))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for _, item := range val {
			tbl.Append(toLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// luaString extracts a Lua string value.
func luaString(v lua.LValue) (string, bool) {
	s, ok := v.(lua.LString)
	return string(s), ok
}

// toGo converts a Lua value to plain Go data. Functions and userdata
// convert to nil: values crossing the plugin boundary must be data, a
// live reference would leak one plugin's scope into another.
func toGo(v lua.LValue) any {
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTBool:
		return bool(v.(lua.LBool))
	case lua.LTNumber:
		return float64(v.(lua.LNumber))
	case lua.LTString:
		return string(v.(lua.LString))
	case lua.LTTable:
		return tableToGo(v.(*lua.LTable))
	default:
		return nil
	}
}

// tableToGo converts a table to a slice when it has only sequential
// integer keys, otherwise to a map.
func tableToGo(tbl *lua.LTable) any {
	if n := tbl.Len(); n > 0 {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			out = append(out, toGo(tbl.RawGetInt(i)))
		}
		return out
	}

	out := make(map[string]any)
	tbl.ForEach(func(k, v lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			out[string(ks)] = toGo(v)
		}
	})
	return out
}

// servicesTable builds the "services" argument passed to a module's
// configure_services and configure hooks. Registration is attributed
// to the owning module; values are converted to plain data so no Lua
// reference escapes the owner's scope.
func servicesTable(L *lua.LState, c *services.Container, owner string) *lua.LTable {
	tbl := L.NewTable()

	tbl.RawSetString("register", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		value := L.CheckAny(2)
		if value.Type() == lua.LTFunction || value.Type() == lua.LTUserData {
			L.RaiseError("service %q: values must be plain data", name)
			return 0
		}
		if err := c.Register(owner, name, toGo(value)); err != nil {
			L.RaiseError("service %q: %v", name, err)
			return 0
		}
		return 0
	}))

	tbl.RawSetString("resolve", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		v, err := c.Resolve(name)
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(toLua(L, v))
		return 1
	}))

	return tbl
}

// pipelineTable builds the "pipeline" argument passed to a module's
// configure hook.
func pipelineTable(L *lua.LState, p *Pipeline, inst *Instance) *lua.LTable {
	tbl := L.NewTable()

	tbl.RawSetString("mount", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(1)
		handler := L.CheckFunction(2)
		if err := p.mount(inst, path, handler); err != nil {
			L.RaiseError("mount %q: %v", path, err)
		}
		return 0
	}))

	return tbl
}

// EventsModule returns the shared "events" host module for one plugin
// instance. Handlers registered through it run serialized on the
// instance's own scope and are silently skipped once the instance can
// no longer dispatch (Failed or unloaded).
func EventsModule(bus *event.Bus, inst *Instance) isolate.SharedModule {
	return func(L *lua.LState) lua.LValue {
		tbl := L.NewTable()

		tbl.RawSetString("publish", L.NewFunction(func(L *lua.LState) int {
			kind := events.Kind(L.CheckString(1))
			fields, _ := toGo(L.OptTable(2, L.NewTable())).(map[string]any)

			ev, err := events.FromFields(kind, fields)
			if err != nil {
				L.RaiseError("publish %q: %v", kind, err)
				return 0
			}
			if err := bus.Publish(context.Background(), ev); err != nil {
				L.RaiseError("publish %q: %v", kind, err)
				return 0
			}
			L.Push(lua.LString(ev.EventID()))
			return 1
		}))

		tbl.RawSetString("subscribe", L.NewFunction(func(L *lua.LState) int {
			kind := events.Kind(L.CheckString(1))
			handler := L.CheckFunction(2)

			sub, err := events.SubscribeKind(bus, kind, func(ctx context.Context, ev event.Event) error {
				if !inst.Dispatchable() {
					return nil
				}
				fields, err := events.ToFields(ev)
				if err != nil {
					return err
				}
				return inst.invokeHandlerNoResult(ctx, handler, fields)
			})
			if err != nil {
				L.RaiseError("subscribe %q: %v", kind, err)
				return 0
			}

			inst.trackSubscription(func() { bus.Unsubscribe(sub) })
			return 0
		}))

		return tbl
	}
}

// LogModule returns the shared "log" host module; messages are tagged
// with the owning module's key and forwarded to the host sink.
func LogModule(inst *Instance, sink func(level, module, msg string)) isolate.SharedModule {
	return func(L *lua.LState) lua.LValue {
		tbl := L.NewTable()
		for _, level := range []string{"debug", "info", "warn", "error"} {
			level := level
			tbl.RawSetString(level, L.NewFunction(func(L *lua.LState) int {
				sink(level, inst.Descriptor().Key(), L.CheckString(1))
				return 0
			}))
		}
		return tbl
	}
}

// JSONModule returns the shared "json" host module with encode/decode.
func JSONModule() isolate.SharedModule {
	return func(L *lua.LState) lua.LValue {
		tbl := L.NewTable()

		tbl.RawSetString("encode", L.NewFunction(func(L *lua.LState) int {
			data, err := json.Marshal(toGo(L.CheckAny(1)))
			if err != nil {
				L.Push(lua.LNil)
				L.Push(lua.LString(err.Error()))
				return 2
			}
			L.Push(lua.LString(data))
			return 1
		}))

		tbl.RawSetString("decode", L.NewFunction(func(L *lua.LState) int {
			var v any
			if err := json.Unmarshal([]byte(L.CheckString(1)), &v); err != nil {
				L.Push(lua.LNil)
				L.Push(lua.LString(err.Error()))
				return 2
			}
			L.Push(toLua(L, v))
			return 1
		}))

		return tbl
	}
}
