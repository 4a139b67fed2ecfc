// Package app wires the host together: configuration, logging, the
// event bus, the service container, the pipeline, and the plugin
// lifecycle core.
package app

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/loomhost/loom/internal/config"
	"github.com/loomhost/loom/internal/event"
	"github.com/loomhost/loom/internal/nav"
	"github.com/loomhost/loom/internal/plugin"
	"github.com/loomhost/loom/internal/plugin/isolate"
	"github.com/loomhost/loom/internal/report"
	"github.com/loomhost/loom/internal/services"
)

// App is the assembled host.
type App struct {
	cfg config.Config
	log *logrus.Logger

	bus       *event.Bus
	container *services.Container
	pipeline  *plugin.Pipeline
	registry  *plugin.Registry
	manager   *plugin.Manager
}

// New assembles a host from configuration.
func New(cfg config.Config) *App {
	a := &App{
		cfg:       cfg,
		log:       newLogger(cfg),
		container: services.NewContainer(),
		pipeline:  plugin.NewPipeline(),
	}

	reporter := report.Reporter(&logReporter{log: a.log})
	a.bus = event.NewBus(event.WithReporter(reporter))

	source := plugin.NewDirSource(plugin.WithSharedModules(a.sharedModules))
	a.registry = plugin.NewRegistry(source, reporter)
	a.manager = plugin.NewManager(a.registry, a.container, a.pipeline,
		plugin.WithReporter(reporter),
		plugin.WithShutdownTimeout(cfg.ShutdownTimeout),
	)

	return a
}

// sharedModules supplies the host framework modules one plugin scope
// may require, gated by its manifest capabilities.
func (a *App) sharedModules(inst *plugin.Instance) map[string]isolate.SharedModule {
	return map[string]isolate.SharedModule{
		"events": plugin.EventsModule(a.bus, inst),
		"log": plugin.LogModule(inst, func(level, module, msg string) {
			entry := a.log.WithField("module", module)
			switch level {
			case "debug":
				entry.Debug(msg)
			case "warn":
				entry.Warn(msg)
			case "error":
				entry.Error(msg)
			default:
				entry.Info(msg)
			}
		}),
		"json": plugin.JSONModule(),
	}
}

// Logger returns the host logger.
func (a *App) Logger() *logrus.Logger { return a.log }

// Bus returns the event bus.
func (a *App) Bus() *event.Bus { return a.bus }

// Registry returns the plugin catalog.
func (a *App) Registry() *plugin.Registry { return a.registry }

// Manager returns the lifecycle manager.
func (a *App) Manager() *plugin.Manager { return a.manager }

// Pipeline returns the request pipeline.
func (a *App) Pipeline() *plugin.Pipeline { return a.pipeline }

// Discover scans every configured plugin location, skipping disabled
// descriptors.
func (a *App) Discover() []plugin.Descriptor {
	var descriptors []plugin.Descriptor
	for _, dir := range a.cfg.PluginDirs {
		descriptors = a.registry.Discover(dir)
	}

	enabled := descriptors[:0]
	for _, d := range descriptors {
		if a.cfg.IsDisabled(d.Key()) {
			a.log.WithField("plugin", d.Key()).Info("plugin disabled by configuration")
			continue
		}
		enabled = append(enabled, d)
	}
	return enabled
}

// Load discovers, resolves, configures, and initializes every enabled
// plugin. Failures degrade gracefully: the host keeps whatever reached
// Active.
func (a *App) Load(ctx context.Context) {
	descriptors := a.Discover()
	a.manager.LoadAll(ctx, descriptors)
	a.manager.InitializeAll(ctx)

	for _, inst := range a.manager.Instances() {
		entry := a.log.WithFields(logrus.Fields{
			"plugin": inst.Descriptor().String(),
			"state":  inst.State().String(),
		})
		if err := inst.Err(); err != nil {
			entry.WithError(err).Warn("plugin not active")
			continue
		}
		entry.Info("plugin ready")
	}
}

// Navigation returns the assembled navigation menu.
func (a *App) Navigation() []nav.Item {
	return a.manager.Navigation()
}

// Run loads every plugin and blocks until the context is canceled,
// then shuts the plugins down.
func (a *App) Run(ctx context.Context) error {
	a.Load(ctx)

	for _, item := range a.Navigation() {
		a.log.WithFields(logrus.Fields{
			"title":  item.Title,
			"route":  item.Route,
			"module": item.Module,
		}).Debug("navigation entry")
	}
	for _, rt := range a.pipeline.Routes() {
		a.log.WithFields(logrus.Fields{
			"path":   rt.Path,
			"module": rt.Module,
		}).Debug("route mounted")
	}

	a.log.WithField("active", len(a.manager.Active())).Info("host running")

	<-ctx.Done()
	a.Shutdown()
	return nil
}

// Shutdown tears every plugin down with the configured per-plugin
// timeout.
func (a *App) Shutdown() {
	// Fresh context: the run context is already canceled by the time
	// shutdown begins, and hooks still need to execute.
	a.manager.ShutdownAll(context.Background())
	a.log.Info("host stopped")
}
