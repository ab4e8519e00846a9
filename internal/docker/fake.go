package docker

import (
	"context"
	"fmt"
	"sync"

	"github.com/bcnelson/gitops-stack-manager/internal/domain"
)

// Fake is an in-memory Client for tests. It records every call and can be
// told to fail specific stacks or to act entirely unreachable.
type Fake struct {
	mu sync.Mutex

	// Stacks maps stack name to the definition last applied.
	Stacks map[string][]byte
	// Calls lists operations in invocation order, formatted "op:name".
	Calls []string

	// FailStacks makes Apply/Remove fail for the named stacks.
	FailStacks map[string]error
	// Unreachable makes every call fail with ErrOrchestratorUnavailable.
	Unreachable bool
}

var _ Client = (*Fake)(nil)

// NewFake creates an empty fake client.
func NewFake() *Fake {
	return &Fake{
		Stacks:     make(map[string][]byte),
		FailStacks: make(map[string]error),
	}
}

func (f *Fake) Apply(ctx context.Context, name string, definition, overlay []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "apply:"+name)
	if f.Unreachable {
		return fmt.Errorf("apply %s: %w", name, domain.ErrOrchestratorUnavailable)
	}
	if err, ok := f.FailStacks[name]; ok {
		return err
	}
	f.Stacks[name] = append([]byte(nil), definition...)
	return nil
}

func (f *Fake) Remove(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "remove:"+name)
	if f.Unreachable {
		return fmt.Errorf("remove %s: %w", name, domain.ErrOrchestratorUnavailable)
	}
	if err, ok := f.FailStacks[name]; ok {
		return err
	}
	// Removing an absent stack succeeds, like the real client.
	delete(f.Stacks, name)
	return nil
}

func (f *Fake) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Unreachable {
		return domain.ErrOrchestratorUnavailable
	}
	return nil
}

// CallNames returns the recorded calls, for assertions.
func (f *Fake) CallNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}
