// Package reconcile converges deployed stacks onto the declared desired
// state. Plan computes the cycle's ordered action list as a pure function of
// the manifest and the deployed-state cache; Apply executes it through the
// orchestration client, isolating failures per action.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bcnelson/gitops-stack-manager/internal/docker"
	"github.com/bcnelson/gitops-stack-manager/internal/domain"
	"github.com/bcnelson/gitops-stack-manager/internal/storage"
)

// Reconciler owns the write path of the deployed-state cache.
type Reconciler struct {
	store         storage.Store
	client        docker.Client
	source        SourceProvider
	logger        *slog.Logger
	actionTimeout time.Duration
}

// New creates a Reconciler. actionTimeout bounds each orchestrator call;
// zero means no per-action timeout.
func New(store storage.Store, client docker.Client, source SourceProvider, logger *slog.Logger, actionTimeout time.Duration) *Reconciler {
	return &Reconciler{
		store:         store,
		client:        client,
		source:        source,
		logger:        logger,
		actionTimeout: actionTimeout,
	}
}

// Result counts action outcomes for one cycle.
type Result struct {
	Deployed int
	Updated  int
	Removed  int
	Skipped  int
	Failed   int
}

// Apply executes a plan sequentially. A failed action is recorded on its
// stack's cache entry and never stops the rest of the plan; once the
// orchestrator itself is unreachable the remaining mutating actions are
// recorded as failed without further calls. Context cancellation stops the
// plan between actions, never mid-call.
func (r *Reconciler) Apply(ctx context.Context, steps []Step) Result {
	var res Result
	down := false

	for _, step := range steps {
		if ctx.Err() != nil {
			r.logger.Info("shutdown requested, stopping plan execution",
				"remaining", len(steps)-res.Deployed-res.Updated-res.Removed-res.Skipped-res.Failed)
			break
		}

		switch step.Kind {
		case domain.ActionSkip:
			r.applySkip(ctx, step)
			res.Skipped++
		case domain.ActionDeploy, domain.ActionUpdate:
			if r.applyDeploy(ctx, step, &down) {
				if step.Kind == domain.ActionDeploy {
					res.Deployed++
				} else {
					res.Updated++
				}
			} else {
				res.Failed++
			}
		case domain.ActionRemove:
			if r.applyRemove(ctx, step, &down) {
				res.Removed++
			} else {
				res.Failed++
			}
		}
	}

	return res
}

func (r *Reconciler) applyDeploy(ctx context.Context, step Step, down *bool) bool {
	var err error
	switch {
	case *down:
		err = domain.ErrOrchestratorUnavailable
	case step.LoadErr != nil:
		err = step.LoadErr
	default:
		err = r.callApply(ctx, step)
	}

	now := time.Now()
	rec := r.carryRecord(ctx, step.Stack, now)

	if err != nil {
		if errors.Is(err, domain.ErrOrchestratorUnavailable) {
			*down = true
		}
		// Previous fingerprint is retained; Failed status alone forces a
		// fresh deploy next cycle.
		rec.Status = domain.StatusFailed
		rec.IntendedAction = step.Kind
		rec.LastError = err.Error()
		r.writeRecord(ctx, rec)
		r.logger.Error("stack action failed",
			"stack", step.Stack, "action", step.Kind, "reason", step.Reason, "error", err)
		return false
	}

	rec.Status = domain.StatusDeployed
	rec.Fingerprint = step.Fingerprint
	rec.IntendedAction = ""
	rec.LastError = ""
	r.writeRecord(ctx, rec)
	r.logger.Info("stack applied",
		"stack", step.Stack, "action", step.Kind, "reason", step.Reason)
	return true
}

func (r *Reconciler) applyRemove(ctx context.Context, step Step, down *bool) bool {
	var err error
	if *down {
		err = domain.ErrOrchestratorUnavailable
	} else {
		err = r.callRemove(ctx, step.Stack)
	}

	now := time.Now()
	rec := r.carryRecord(ctx, step.Stack, now)

	if err != nil {
		if errors.Is(err, domain.ErrOrchestratorUnavailable) {
			*down = true
		}
		rec.Status = domain.StatusFailed
		rec.IntendedAction = domain.ActionRemove
		rec.LastError = err.Error()
		r.writeRecord(ctx, rec)
		r.logger.Error("stack removal failed",
			"stack", step.Stack, "reason", step.Reason, "error", err)
		return false
	}

	// The record transitions to Removed rather than being deleted, so a
	// later re-add of the same name is recognized as a fresh deploy.
	rec.Status = domain.StatusRemoved
	rec.Fingerprint = ""
	rec.IntendedAction = ""
	rec.LastError = ""
	r.writeRecord(ctx, rec)
	r.logger.Info("stack removed", "stack", step.Stack, "reason", step.Reason)
	return true
}

func (r *Reconciler) applySkip(ctx context.Context, step Step) {
	rec, err := r.store.GetRecord(ctx, step.Stack)
	if err != nil {
		return
	}
	rec.LastCheckedAt = time.Now()
	r.writeRecord(ctx, rec)
	r.logger.Debug("stack unchanged", "stack", step.Stack, "reason", step.Reason)
}

// callCtx detaches an orchestrator call from the shutdown signal. A deploy
// killed halfway leaves a half-applied stack, so an in-flight call runs to
// completion bounded only by the action timeout; cancellation takes effect
// between actions, in Apply's loop.
func (r *Reconciler) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx := context.WithoutCancel(ctx)
	if r.actionTimeout > 0 {
		return context.WithTimeout(callCtx, r.actionTimeout)
	}
	return callCtx, func() {}
}

func (r *Reconciler) callApply(ctx context.Context, step Step) error {
	callCtx, cancel := r.callCtx(ctx)
	defer cancel()
	return r.client.Apply(callCtx, step.Stack, step.Definition, step.Overlay)
}

func (r *Reconciler) callRemove(ctx context.Context, name string) error {
	callCtx, cancel := r.callCtx(ctx)
	defer cancel()
	return r.client.Remove(callCtx, name)
}

// carryRecord returns the existing record for a stack, or a fresh one, with
// timestamps advanced for this write.
func (r *Reconciler) carryRecord(ctx context.Context, name string, now time.Time) *domain.DeployedStackRecord {
	rec, err := r.store.GetRecord(ctx, name)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Error("reading stack record", "stack", name, "error", err)
		}
		rec = &domain.DeployedStackRecord{Name: name, CreatedAt: now}
	}
	rec.UpdatedAt = now
	rec.LastCheckedAt = now
	return rec
}

func (r *Reconciler) writeRecord(ctx context.Context, rec *domain.DeployedStackRecord) {
	// Record writes survive a shutdown signal: the action already ran, its
	// outcome must not be lost.
	if err := r.store.SetRecord(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Error("writing stack record", "stack", rec.Name, "error", err)
	}
}
