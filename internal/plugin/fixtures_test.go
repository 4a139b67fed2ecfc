package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/loomhost/loom/internal/event"
	"github.com/loomhost/loom/internal/plugin/isolate"
	"github.com/loomhost/loom/internal/report"
	"github.com/loomhost/loom/internal/services"
)

// writePlugin writes a plugin directory (manifest plus Lua files) under
// root and returns its path.
func writePlugin(t *testing.T, root, dirName string, files map[string]string) string {
	t.Helper()

	dir := filepath.Join(root, dirName)
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

// manifestJSON builds a minimal valid manifest document.
func manifestJSON(namespace, identifier string) string {
	return fmt.Sprintf(`{"namespace": %q, "identifier": %q, "version": "1.0.0"}`, namespace, identifier)
}

// basicModule builds an init.lua satisfying the full module contract
// with no-op hooks.
func basicModule(moduleID string) string {
	return fmt.Sprintf(`
module_id = %q
function configure_services(services) end
function configure(pipeline) end
function initialize(services) end
function shutdown() end
`, moduleID)
}

// logCapture collects messages from plugin log modules.
type logCapture struct {
	mu    sync.Mutex
	lines []string
}

func (lc *logCapture) add(line string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.lines = append(lc.lines, line)
}

func (lc *logCapture) all() []string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return append([]string{}, lc.lines...)
}

// harness wires the full plugin core the way the host does.
type harness struct {
	bus       *event.Bus
	container *services.Container
	pipeline  *Pipeline
	source    *DirSource
	registry  *Registry
	manager   *Manager
	recorder  *report.Recorder
	logs      *logCapture
}

func newHarness(t *testing.T, opts ...ManagerOption) *harness {
	t.Helper()

	h := &harness{
		container: services.NewContainer(),
		pipeline:  NewPipeline(),
		recorder:  report.NewRecorder(),
		logs:      &logCapture{},
	}
	h.bus = event.NewBus(event.WithReporter(h.recorder))
	h.source = NewDirSource(WithSharedModules(func(inst *Instance) map[string]isolate.SharedModule {
		return map[string]isolate.SharedModule{
			"events": EventsModule(h.bus, inst),
			"log": LogModule(inst, func(level, module, msg string) {
				h.logs.add(msg)
			}),
			"json": JSONModule(),
		}
	}))
	h.registry = NewRegistry(h.source, h.recorder)
	h.manager = NewManager(h.registry, h.container, h.pipeline,
		append([]ManagerOption{WithReporter(h.recorder)}, opts...)...)
	return h
}

// load discovers a location and drives every descriptor to Active (or
// Failed), returning all instances in load order.
func (h *harness) load(t *testing.T, location string) []*Instance {
	t.Helper()

	descriptors := h.registry.Discover(location)
	instances := h.manager.LoadAll(context.Background(), descriptors)
	h.manager.InitializeAll(context.Background())
	return instances
}
