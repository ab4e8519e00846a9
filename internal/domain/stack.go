package domain

import "gopkg.in/yaml.v3"

// StackDeclaration is one desired-state entry: a named stack the controller
// should be running (or, when disabled, must not be running).
type StackDeclaration struct {
	Name        string `yaml:"name" json:"name"`
	ComposeFile string `yaml:"compose_file" json:"composeFile"`
	EnvFile     string `yaml:"env_file,omitempty" json:"envFile,omitempty"`
	Enabled     bool   `yaml:"enabled" json:"enabled"`
}

// UnmarshalYAML defaults enabled to true when the field is omitted.
func (s *StackDeclaration) UnmarshalYAML(value *yaml.Node) error {
	type plain StackDeclaration
	out := plain{Enabled: true}
	if err := value.Decode(&out); err != nil {
		return err
	}
	*s = StackDeclaration(out)
	return nil
}

// Manifest is the full desired state for one reconciliation cycle. It is
// immutable after load; a reload replaces the whole manifest atomically.
type Manifest struct {
	// Revision is the source revision the manifest was loaded from.
	Revision string `json:"revision"`
	// Stacks is the declared stack list in authoring order.
	Stacks []StackDeclaration `json:"stacks"`
}

// Declared reports whether the manifest declares a stack with the given name.
func (m *Manifest) Declared(name string) bool {
	for i := range m.Stacks {
		if m.Stacks[i].Name == name {
			return true
		}
	}
	return false
}
