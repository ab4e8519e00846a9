package storage

import (
	"context"
	"log/slog"

	"github.com/bcnelson/gitops-stack-manager/internal/domain"
)

// Mirrored wraps a primary store with a best-effort mirror. All reads and all
// control-relevant state come from the primary; writes are replayed to the
// mirror and mirror failures are logged, never propagated. This keeps the SQL
// history surface alive without ever letting persisted state influence a
// reconciliation decision.
type Mirrored struct {
	primary Store
	mirror  Store
	logger  *slog.Logger
}

var _ Store = (*Mirrored)(nil)

// NewMirrored creates a store that reads from primary and writes through to
// both primary and mirror.
func NewMirrored(primary, mirror Store, logger *slog.Logger) *Mirrored {
	return &Mirrored{primary: primary, mirror: mirror, logger: logger}
}

func (m *Mirrored) Close() error {
	if err := m.mirror.Close(); err != nil {
		m.logger.Warn("closing mirror store", "error", err)
	}
	return m.primary.Close()
}

func (m *Mirrored) GetRecord(ctx context.Context, name string) (*domain.DeployedStackRecord, error) {
	return m.primary.GetRecord(ctx, name)
}

func (m *Mirrored) SetRecord(ctx context.Context, rec *domain.DeployedStackRecord) error {
	if err := m.primary.SetRecord(ctx, rec); err != nil {
		return err
	}
	if err := m.mirror.SetRecord(ctx, rec); err != nil {
		m.logger.Warn("mirroring stack record", "stack", rec.Name, "error", err)
	}
	return nil
}

func (m *Mirrored) ListRecords(ctx context.Context) ([]*domain.DeployedStackRecord, error) {
	return m.primary.ListRecords(ctx)
}

func (m *Mirrored) PruneRemoved(ctx context.Context, keepCycles int) (int, error) {
	if _, err := m.mirror.PruneRemoved(ctx, keepCycles); err != nil {
		m.logger.Warn("pruning mirror store", "error", err)
	}
	return m.primary.PruneRemoved(ctx, keepCycles)
}

func (m *Mirrored) AppendCycle(ctx context.Context, cycle *domain.CycleRecord) error {
	if err := m.mirror.AppendCycle(ctx, cycle); err != nil {
		m.logger.Warn("mirroring cycle record", "cycle", cycle.ID, "error", err)
	}
	return m.primary.AppendCycle(ctx, cycle)
}

func (m *Mirrored) ListCycles(ctx context.Context, limit int) ([]*domain.CycleRecord, error) {
	// Cycle history is the one read served by the mirror when available: it
	// survives restarts there, while the in-memory history starts empty.
	cycles, err := m.mirror.ListCycles(ctx, limit)
	if err != nil {
		m.logger.Warn("reading cycle history from mirror", "error", err)
		return m.primary.ListCycles(ctx, limit)
	}
	return cycles, nil
}
