package storage

import (
	"context"

	"github.com/bcnelson/gitops-stack-manager/internal/domain"
)

// Store is the deployed-state cache: the mapping from stack name to the
// last-applied fingerprint and outcome, plus the per-cycle history feed.
// Implementations must be safe for concurrent use.
//
// The reconciler is the only writer of stack records. Removal of a stack is
// represented as a status transition, never an entry deletion; the only way
// entries leave the cache is PruneRemoved.
type Store interface {
	// Close closes the store.
	Close() error

	// GetRecord returns the record for a stack name, or domain.ErrNotFound.
	GetRecord(ctx context.Context, name string) (*domain.DeployedStackRecord, error)

	// SetRecord inserts or replaces a stack record.
	SetRecord(ctx context.Context, rec *domain.DeployedStackRecord) error

	// ListRecords returns all records in the order they were first created.
	ListRecords(ctx context.Context) ([]*domain.DeployedStackRecord, error)

	// PruneRemoved ages records in status Removed by one cycle and drops
	// those untouched for more than keepCycles cycles. keepCycles <= 0
	// disables pruning. Returns the number of records dropped.
	PruneRemoved(ctx context.Context, keepCycles int) (int, error)

	// AppendCycle appends a completed cycle summary.
	AppendCycle(ctx context.Context, cycle *domain.CycleRecord) error

	// ListCycles returns up to limit cycle summaries, most recent first.
	ListCycles(ctx context.Context, limit int) ([]*domain.CycleRecord, error)
}
