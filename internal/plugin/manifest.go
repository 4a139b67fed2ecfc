package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Manifest describes a plugin candidate's metadata and requirements,
// loaded from the module.json file in its directory.
type Manifest struct {
	// Identity. (Namespace, Identifier) is unique across the host;
	// Version is descriptive only and never gates compatibility.
	Namespace   string `json:"namespace"`   // Module namespace (e.g. "Finance")
	Identifier  string `json:"identifier"`  // Plugin identifier (e.g. "FinanceModule")
	Version     string `json:"version"`     // Semver (e.g. "1.0.0")
	DisplayName string `json:"displayName"` // Human-readable name
	Description string `json:"description"` // Short description

	// Entry point
	Main string `json:"main"` // Relative path to main Lua file (default: "init.lua")

	// Dependencies is the plugin's private resolution table:
	// module name -> Lua file path relative to the plugin directory.
	// Names listed here are resolved inside this plugin only.
	Dependencies map[string]string `json:"dependencies"`

	// Capabilities name the shared host modules this plugin may
	// require ("events", "log", "json").
	Capabilities []string `json:"capabilities"`

	// Internal: path to the plugin directory
	dir string
}

// ManifestFile is the manifest filename inside a plugin directory.
const ManifestFile = "module.json"

// Validation errors.
var (
	ErrMissingNamespace  = errors.New("manifest: namespace is required")
	ErrInvalidNamespace  = errors.New("manifest: namespace must be alphanumeric")
	ErrMissingIdentifier = errors.New("manifest: identifier is required")
	ErrInvalidIdentifier = errors.New("manifest: identifier must be alphanumeric")
	ErrInvalidVersion    = errors.New("manifest: version must be valid semver")
	ErrInvalidMain       = errors.New("manifest: main must be a .lua file")
	ErrInvalidDependency = errors.New("manifest: dependency path must be a local .lua file")
	ErrInvalidCapability = errors.New("manifest: invalid capability")
)

// namePattern validates namespace and identifier values.
var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// Shared host module names a manifest may request.
var validCapabilities = map[string]bool{
	"events": true,
	"log":    true,
	"json":   true,
}

// LoadManifest loads and validates a manifest from a file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m.dir = filepath.Dir(path)
	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifestFromDir loads the module.json manifest from a plugin
// directory.
func LoadManifestFromDir(dir string) (*Manifest, error) {
	return LoadManifest(filepath.Join(dir, ManifestFile))
}

// applyDefaults sets default values for optional fields.
func (m *Manifest) applyDefaults() {
	if m.Main == "" {
		m.Main = "init.lua"
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}
	if m.DisplayName == "" {
		m.DisplayName = m.Identifier
	}
}

// Validate checks that the manifest is valid.
func (m *Manifest) Validate() error {
	if m.Namespace == "" {
		return ErrMissingNamespace
	}
	if !namePattern.MatchString(m.Namespace) {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, m.Namespace)
	}

	if m.Identifier == "" {
		return ErrMissingIdentifier
	}
	if !namePattern.MatchString(m.Identifier) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, m.Identifier)
	}

	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, m.Version)
	}

	if filepath.Ext(m.Main) != ".lua" || !filepath.IsLocal(m.Main) {
		return fmt.Errorf("%w: %q", ErrInvalidMain, m.Main)
	}

	for name, path := range m.Dependencies {
		if filepath.Ext(path) != ".lua" || !filepath.IsLocal(path) {
			return fmt.Errorf("%w: %s -> %q", ErrInvalidDependency, name, path)
		}
	}

	for _, cap := range m.Capabilities {
		if !validCapabilities[cap] {
			return fmt.Errorf("%w: %q", ErrInvalidCapability, cap)
		}
	}

	return nil
}

// Dir returns the path to the plugin directory.
func (m *Manifest) Dir() string {
	return m.dir
}

// MainPath returns the full path to the main Lua file.
func (m *Manifest) MainPath() string {
	return filepath.Join(m.dir, m.Main)
}

// Key returns the unique (namespace, identifier) key.
func (m *Manifest) Key() string {
	return m.Namespace + "." + m.Identifier
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	return fmt.Sprintf("%s@%s", m.Key(), m.Version)
}
