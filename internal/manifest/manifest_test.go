package manifest

import (
	"errors"
	"testing"

	"github.com/bcnelson/gitops-stack-manager/internal/domain"
)

func TestParse_Valid(t *testing.T) {
	data := []byte(`
stacks:
  - name: web
    compose_file: web/docker-compose.yml
    env_file: web/.env
  - name: monitoring
    compose_file: monitoring/docker-compose.yml
    enabled: false
`)
	m, err := Parse(data, "abc123")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if m.Revision != "abc123" {
		t.Errorf("Expected revision abc123, got %s", m.Revision)
	}
	if len(m.Stacks) != 2 {
		t.Fatalf("Expected 2 stacks, got %d", len(m.Stacks))
	}

	web := m.Stacks[0]
	if web.Name != "web" || !web.Enabled {
		t.Errorf("Expected enabled stack web, got %+v", web)
	}
	if web.EnvFile != "web/.env" {
		t.Errorf("Expected env file web/.env, got %s", web.EnvFile)
	}

	mon := m.Stacks[1]
	if mon.Name != "monitoring" || mon.Enabled {
		t.Errorf("Expected disabled stack monitoring, got %+v", mon)
	}
}

func TestParse_EnabledDefaultsTrue(t *testing.T) {
	data := []byte("stacks:\n  - name: web\n    compose_file: compose.yml\n")
	m, err := Parse(data, "r1")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !m.Stacks[0].Enabled {
		t.Error("Expected enabled to default to true")
	}
}

func TestParse_UnknownFieldsIgnored(t *testing.T) {
	data := []byte(`
stacks:
  - name: web
    compose_file: compose.yml
    replicas: 3
    labels:
      team: infra
`)
	if _, err := Parse(data, "r1"); err != nil {
		t.Errorf("Expected unknown fields to be tolerated, got %v", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not yaml", "stacks: ["},
		{"missing name", "stacks:\n  - compose_file: a.yml\n"},
		{"missing compose file", "stacks:\n  - name: web\n"},
		{"duplicate names", "stacks:\n  - name: web\n    compose_file: a.yml\n  - name: web\n    compose_file: b.yml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), "r1")
			if !errors.Is(err, domain.ErrManifestInvalid) {
				t.Errorf("Expected ErrManifestInvalid, got %v", err)
			}
		})
	}
}

func TestParse_PreservesOrder(t *testing.T) {
	data := []byte(`
stacks:
  - name: c
    compose_file: c.yml
  - name: a
    compose_file: a.yml
  - name: b
    compose_file: b.yml
`)
	m, err := Parse(data, "r1")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []string{"c", "a", "b"}
	for i, name := range want {
		if m.Stacks[i].Name != name {
			t.Errorf("Expected stack %d to be %s, got %s", i, name, m.Stacks[i].Name)
		}
	}
}
