package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/loomhost/loom/internal/plugin/isolate"
)

// Candidate is one discovery result: either a valid descriptor or the
// reason a directory was rejected.
type Candidate struct {
	Dir        string
	Descriptor Descriptor
	Err        error
}

// Source enumerates plugin candidates in a location and instantiates
// one by (namespace, identifier). It is the sole mechanism the core
// uses to turn a descriptor into a live module.
type Source interface {
	// Search scans a location for candidates. A missing location
	// yields no candidates and no error; unreadable or malformed
	// candidates are returned with Err set rather than aborting the
	// scan.
	Search(location string) []Candidate

	// Instantiate resolves a previously searched candidate into a
	// live instance inside a fresh isolation context. Failures are
	// classified: ErrMissingDependency (load), ErrCapabilityMismatch,
	// or ErrConstructFailed.
	Instantiate(namespace, identifier string) (*Instance, error)
}

// SharedModuleProvider supplies the host-shared framework modules made
// available to one instance's scope through require.
type SharedModuleProvider func(inst *Instance) map[string]isolate.SharedModule

// DirSource discovers plugins as directories containing a module.json
// manifest.
type DirSource struct {
	mu        sync.Mutex
	manifests map[string]*Manifest
	shared    SharedModuleProvider
}

// DirSourceOption configures a DirSource.
type DirSourceOption func(*DirSource)

// WithSharedModules sets the provider of host-shared modules.
func WithSharedModules(provider SharedModuleProvider) DirSourceOption {
	return func(s *DirSource) {
		s.shared = provider
	}
}

// NewDirSource creates a filesystem descriptor source.
func NewDirSource(opts ...DirSourceOption) *DirSource {
	s := &DirSource{
		manifests: make(map[string]*Manifest),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search implements the Source interface.
func (s *DirSource) Search(location string) []Candidate {
	entries, err := os.ReadDir(location)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // absent locations are not errors
		}
		return []Candidate{{Dir: location, Err: fmt.Errorf("unreadable location: %w", err)}}
	}

	var candidates []Candidate
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(location, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err != nil {
			continue // not a plugin directory
		}

		manifest, err := LoadManifestFromDir(dir)
		if err != nil {
			candidates = append(candidates, Candidate{Dir: dir, Err: err})
			continue
		}

		s.mu.Lock()
		// First discovery wins for a (namespace, identifier) key;
		// re-scanning the same candidate refreshes its manifest.
		if existing, ok := s.manifests[manifest.Key()]; !ok || existing.Dir() == dir {
			s.manifests[manifest.Key()] = manifest
		}
		s.mu.Unlock()

		candidates = append(candidates, Candidate{Dir: dir, Descriptor: descriptorOf(manifest)})
	}
	return candidates
}

// Instantiate implements the Source interface.
func (s *DirSource) Instantiate(namespace, identifier string) (*Instance, error) {
	s.mu.Lock()
	manifest, ok := s.manifests[namespace+"."+identifier]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrPluginNotFound, namespace, identifier)
	}

	// Load failures: every declared dependency must exist before the
	// scope is even created.
	for name, rel := range manifest.Dependencies {
		if _, err := os.Stat(filepath.Join(manifest.Dir(), rel)); err != nil {
			return nil, fmt.Errorf("%w: %s (%s)", ErrMissingDependency, name, rel)
		}
	}

	inst := newPendingInstance(descriptorOf(manifest))

	opts := []isolate.Option{
		isolate.WithDependencies(manifest.Dependencies),
		isolate.WithGrants(manifest.Capabilities...),
	}
	if s.shared != nil {
		for name, mod := range s.shared(inst) {
			opts = append(opts, isolate.WithSharedModule(name, mod))
		}
	}

	scope := isolate.New(manifest.Dir(), opts...)
	inst.attach(scope)

	// Construction failures: the main chunk raised.
	if err := scope.Load(manifest.MainPath()); err != nil {
		scope.Close()
		return nil, fmt.Errorf("%w: %w", ErrConstructFailed, err)
	}

	// Capability mismatches: the resolved module must satisfy the
	// contract before it participates in the lifecycle.
	moduleID, displayName, hasNav, err := checkContract(scope, manifest)
	if err != nil {
		scope.Close()
		return nil, err
	}

	inst.finish(moduleID, displayName, hasNav)
	return inst, nil
}

// checkContract verifies the capability contract and extracts the
// module's identity.
func checkContract(scope *isolate.Context, manifest *Manifest) (moduleID, displayName string, hasNav bool, err error) {
	for _, fn := range []string{luaConfigureServices, luaConfigure, luaInitialize, luaShutdown} {
		if !scope.HasFunction(fn) {
			return "", "", false, fmt.Errorf("%w: missing function %q", ErrCapabilityMismatch, fn)
		}
	}

	id, err := scope.Global(luaModuleID)
	if err != nil {
		return "", "", false, err
	}
	moduleID, ok := luaString(id)
	if !ok || moduleID == "" {
		return "", "", false, fmt.Errorf("%w: %s must be a non-empty string", ErrCapabilityMismatch, luaModuleID)
	}

	displayName = manifest.DisplayName
	if dn, err := scope.Global(luaDisplayName); err == nil {
		if s, ok := luaString(dn); ok && s != "" {
			displayName = s
		}
	}

	return moduleID, displayName, scope.HasFunction(luaNavigation), nil
}
