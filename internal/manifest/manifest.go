// Package manifest parses and validates the desired-state document.
package manifest

import (
	"fmt"

	"github.com/bcnelson/gitops-stack-manager/internal/domain"
	"gopkg.in/yaml.v3"
)

// file is the on-disk schema. Unknown fields are tolerated so the format can
// grow without breaking older controllers.
type file struct {
	Stacks []domain.StackDeclaration `yaml:"stacks"`
}

// Parse decodes a stack manifest and validates it. The returned manifest
// carries the given source revision and preserves declaration order.
func Parse(data []byte, revision string) (*domain.Manifest, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrManifestInvalid, err)
	}

	seen := make(map[string]struct{}, len(f.Stacks))
	for i, s := range f.Stacks {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: stack %d has no name", domain.ErrManifestInvalid, i)
		}
		if s.ComposeFile == "" {
			return nil, fmt.Errorf("%w: stack %q has no compose_file", domain.ErrManifestInvalid, s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate stack name %q", domain.ErrManifestInvalid, s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	return &domain.Manifest{Revision: revision, Stacks: f.Stacks}, nil
}
