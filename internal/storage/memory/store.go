// Package memory holds the authoritative in-process deployed-state cache.
// It is deliberately not durable: on restart the cache starts empty, every
// declared stack plans as a fresh deploy, and the orchestrator's idempotent
// apply makes that a safe no-op for stacks that are already correct.
package memory

import (
	"context"
	"sync"

	"github.com/bcnelson/gitops-stack-manager/internal/domain"
	"github.com/bcnelson/gitops-stack-manager/internal/storage"
)

// Store is the in-memory implementation of the storage interface.
type Store struct {
	mu sync.RWMutex

	records map[string]*domain.DeployedStackRecord
	order   []string       // insertion order of record names
	stale   map[string]int // cycles a record has sat in status Removed
	cycles  []*domain.CycleRecord
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		records: make(map[string]*domain.DeployedStackRecord),
		stale:   make(map[string]int),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) GetRecord(ctx context.Context, name string) (*domain.DeployedStackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) SetRecord(ctx context.Context, rec *domain.DeployedStackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.Name]; !ok {
		s.order = append(s.order, rec.Name)
	}
	cp := *rec
	s.records[rec.Name] = &cp
	delete(s.stale, rec.Name)
	return nil
}

func (s *Store) ListRecords(ctx context.Context) ([]*domain.DeployedStackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.DeployedStackRecord, 0, len(s.order))
	for _, name := range s.order {
		cp := *s.records[name]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) PruneRemoved(ctx context.Context, keepCycles int) (int, error) {
	if keepCycles <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	kept := s.order[:0]
	for _, name := range s.order {
		rec := s.records[name]
		if rec.Status != domain.StatusRemoved {
			kept = append(kept, name)
			continue
		}
		s.stale[name]++
		if s.stale[name] > keepCycles {
			delete(s.records, name)
			delete(s.stale, name)
			dropped++
			continue
		}
		kept = append(kept, name)
	}
	s.order = kept
	return dropped, nil
}

func (s *Store) AppendCycle(ctx context.Context, cycle *domain.CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *cycle
	s.cycles = append(s.cycles, &cp)
	return nil
}

func (s *Store) ListCycles(ctx context.Context, limit int) ([]*domain.CycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.cycles)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*domain.CycleRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		cp := *s.cycles[i]
		out = append(out, &cp)
	}
	return out, nil
}
