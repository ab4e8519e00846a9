package reconcile_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bcnelson/gitops-stack-manager/internal/domain"
)

// fakeSource serves manifest and stack files from memory.
type fakeSource struct {
	mu       sync.Mutex
	revision string
	files    map[string][]byte
	failWith error
}

func newFakeSource(revision string) *fakeSource {
	return &fakeSource{revision: revision, files: make(map[string][]byte)}
}

func (f *fakeSource) Refresh(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return "", f.failWith
	}
	return f.revision, nil
}

func (f *fakeSource) ReadFile(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
	}
	return data, nil
}

func (f *fakeSource) set(path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = []byte(content)
}

func (f *fakeSource) setRevision(rev string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revision = rev
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func declaration(name string, enabled bool) domain.StackDeclaration {
	return domain.StackDeclaration{
		Name:        name,
		ComposeFile: name + "/docker-compose.yml",
		Enabled:     enabled,
	}
}
