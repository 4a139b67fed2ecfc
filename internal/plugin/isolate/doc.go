// Package isolate provides the per-plugin isolation context: a private
// Lua execution scope with its own dependency-resolution table.
//
// Each Context owns exactly one gopher-lua state. The state opens only
// a safe subset of the Lua standard library and replaces require with a
// resolver that consults, in order:
//
//  1. the plugin's own manifest-declared dependency table
//     (module name -> file path inside the plugin directory), then
//  2. host-shared framework modules the plugin's capabilities grant.
//
// A name is never resolved against another plugin's private table, so
// two plugins can ship conflicting versions of the same library without
// interfering with each other.
//
// Close releases the Lua state deterministically and is idempotent.
// Repeated load/unload/load cycles against the same path each produce a
// fresh, independently usable state with no residual globals.
//
// IMPORTANT: gopher-lua states are not goroutine-safe. All entry points
// serialize on the Context mutex; callers must not re-enter the same
// Context from within a call already executing on it (for example, a
// module handling an event it published synchronously from one of its
// own hooks would self-wait).
package isolate
