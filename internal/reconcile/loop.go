package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/bcnelson/gitops-stack-manager/internal/domain"
	"github.com/bcnelson/gitops-stack-manager/internal/manifest"
	"github.com/bcnelson/gitops-stack-manager/internal/storage"
	"github.com/google/uuid"
)

// LoopConfig tunes the reconciliation loop.
type LoopConfig struct {
	// Interval is the poll interval between cycles.
	Interval time.Duration
	// StacksFile is the repository-relative path of the stack manifest.
	StacksFile string
	// PruneAfter is the number of cycles a removed record is retained
	// before garbage collection; 0 disables pruning.
	PruneAfter int
}

// Loop drives the reconciler on a timer. One cycle runs at a time: a cycle
// that outlasts the poll interval delays the next tick, it is never overlapped
// or queued. Cycles are gated on the source reporting a new revision, except
// for bootstrap and manual triggers which always reconcile.
type Loop struct {
	source SourceProvider
	rec    *Reconciler
	store  storage.Store
	cfg    LoopConfig
	logger *slog.Logger

	trigger chan struct{}

	// Owned by the Run goroutine.
	lastRevision string
	current      *domain.Manifest
}

// NewLoop creates a reconciliation loop.
func NewLoop(source SourceProvider, rec *Reconciler, store storage.Store, cfg LoopConfig, logger *slog.Logger) *Loop {
	return &Loop{
		source:  source,
		rec:     rec,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		trigger: make(chan struct{}, 1),
	}
}

// TriggerReconcile requests an out-of-band cycle. Non-blocking; requests
// arriving while a cycle is already pending coalesce into one.
func (l *Loop) TriggerReconcile() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// Run executes the loop until the context is canceled. The first cycle runs
// immediately; subsequent cycles follow the poll interval or a manual
// trigger. Run never aborts on a failed cycle.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("reconciliation loop starting",
		"interval", l.cfg.Interval, "stacks_file", l.cfg.StacksFile)

	l.cycle(ctx, domain.TriggerBootstrap)

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("reconciliation loop stopped")
			return nil
		case <-ticker.C:
			l.cycle(ctx, domain.TriggerPoll)
		case <-l.trigger:
			l.cycle(ctx, domain.TriggerManual)
		}
	}
}

// cycle runs one Plan+Apply pass. Every failure mode recovers locally: the
// loop stays alive and the condition is retried on a later tick.
func (l *Loop) cycle(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}

	revision, err := l.source.Refresh(ctx)
	if err != nil {
		l.logger.Error("source refresh failed, staying idle", "error", err)
		return
	}

	if trigger == domain.TriggerPoll && l.current != nil && revision == l.lastRevision {
		l.logger.Debug("revision unchanged, skipping cycle", "revision", revision)
		return
	}

	m, ok := l.loadManifest(revision)
	if !ok {
		return
	}
	l.current = m

	id := uuid.New().String()
	started := time.Now()
	l.logger.Info("reconciliation started",
		"cycle", id, "revision", revision, "trigger", trigger, "stacks", len(m.Stacks))

	steps, err := l.rec.Plan(ctx, m)
	if err != nil {
		l.logger.Error("planning failed", "cycle", id, "error", err)
		return
	}

	res := l.rec.Apply(ctx, steps)
	l.lastRevision = revision

	l.finishCycle(ctx, &domain.CycleRecord{
		ID:         id,
		Revision:   revision,
		Trigger:    trigger,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Deployed:   res.Deployed,
		Updated:    res.Updated,
		Removed:    res.Removed,
		Skipped:    res.Skipped,
		Failed:     res.Failed,
	})
}

// loadManifest reads and parses the stack manifest. On any failure the
// previous desired state is kept so already-deployed stacks are not disturbed
// by a bad edit; an empty stack list is treated the same way.
func (l *Loop) loadManifest(revision string) (*domain.Manifest, bool) {
	data, err := l.source.ReadFile(l.cfg.StacksFile)
	if err != nil {
		l.logger.Error("stack manifest unreadable, keeping previous desired state",
			"path", l.cfg.StacksFile, "error", err)
		return nil, false
	}

	m, err := manifest.Parse(data, revision)
	if err != nil {
		l.logger.Error("stack manifest invalid, keeping previous desired state", "error", err)
		return nil, false
	}

	if len(m.Stacks) == 0 {
		l.logger.Warn("manifest declares no stacks, skipping cycle", "path", l.cfg.StacksFile)
		return nil, false
	}

	return m, true
}

func (l *Loop) finishCycle(ctx context.Context, cycle *domain.CycleRecord) {
	// Bookkeeping survives a shutdown signal arriving mid-cycle.
	ctx = context.WithoutCancel(ctx)

	if err := l.store.AppendCycle(ctx, cycle); err != nil {
		l.logger.Warn("recording cycle", "cycle", cycle.ID, "error", err)
	}
	if dropped, err := l.store.PruneRemoved(ctx, l.cfg.PruneAfter); err != nil {
		l.logger.Warn("pruning removed records", "error", err)
	} else if dropped > 0 {
		l.logger.Info("pruned removed stack records", "count", dropped)
	}

	l.logger.Info("reconciliation finished",
		"cycle", cycle.ID,
		"deployed", cycle.Deployed,
		"updated", cycle.Updated,
		"removed", cycle.Removed,
		"skipped", cycle.Skipped,
		"failed", cycle.Failed,
		"duration", cycle.FinishedAt.Sub(cycle.StartedAt).Round(time.Millisecond))
}
