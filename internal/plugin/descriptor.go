package plugin

import "fmt"

// Descriptor identifies a discovered plugin candidate before it is
// instantiated. Descriptors are immutable; they are created at
// discovery time and unique by (Namespace, Identifier).
type Descriptor struct {
	Namespace   string
	Identifier  string
	Version     string
	DisplayName string
	Description string

	// Dir is the handle the descriptor source resolves into a live
	// instance: the plugin's directory.
	Dir string
}

// Key returns the unique (namespace, identifier) key.
func (d Descriptor) Key() string {
	return d.Namespace + "." + d.Identifier
}

// String returns a string representation of the descriptor.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s@%s", d.Key(), d.Version)
}

// descriptorOf builds a Descriptor from a validated manifest.
func descriptorOf(m *Manifest) Descriptor {
	return Descriptor{
		Namespace:   m.Namespace,
		Identifier:  m.Identifier,
		Version:     m.Version,
		DisplayName: m.DisplayName,
		Description: m.Description,
		Dir:         m.Dir(),
	}
}
