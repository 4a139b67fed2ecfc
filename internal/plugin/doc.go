// Package plugin implements the host's plugin lifecycle core: descriptor
// discovery, isolated resolution, the per-instance state machine, and
// failure containment.
//
// Business modules are Lua plugins. A plugin is a directory holding a
// module.json manifest and Lua sources; the manifest declares the
// module's identity, its private dependency table, and the shared host
// modules it may require. The descriptor source enumerates candidates
// and instantiates each one inside its own isolation context (package
// isolate), so plugins never share dependency resolution.
//
// A resolved module satisfies the capability contract through Lua
// globals:
//
//	module_id    = "Finance"
//	display_name = "Finance"            -- optional, manifest fallback
//
//	function configure_services(services) end
//	function configure(pipeline) end
//	function initialize(services) end
//	function shutdown() end
//	function navigation() return { ... } end  -- optional
//
// The Manager drives instances through
//
//	Discovered -> Loaded -> Configuring -> Initializing -> Active
//	  -> ShuttingDown -> Unloaded
//
// with two guarantees: service registration across all instances
// completes before any instance's pipeline configuration begins, and a
// failure at any phase moves only that instance to Failed - siblings
// and the host keep going. Every failure is raised on the
// report.Reporter channel with the plugin identity, phase, and cause.
//
// Typical host usage:
//
//	source := plugin.NewDirSource(plugin.WithSharedModules(provider))
//	registry := plugin.NewRegistry(source, reporter)
//	manager := plugin.NewManager(registry, container, pipeline,
//	    plugin.WithReporter(reporter))
//
//	descriptors := registry.Discover(dir)
//	manager.LoadAll(ctx, descriptors)
//	manager.InitializeAll(ctx)
//	defer manager.ShutdownAll(ctx)
//
// Event handlers a module registers through the shared "events" module
// run serialized on that module's own scope. A module must therefore
// not publish an event type it also subscribes to from inside one of
// its own hooks or handlers; delivery back to itself would wait on its
// single-threaded scope.
package plugin
