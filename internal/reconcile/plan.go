package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/bcnelson/gitops-stack-manager/internal/domain"
	"github.com/bcnelson/gitops-stack-manager/internal/fingerprint"
)

// Step is one planned action together with everything Apply needs to execute
// it, so that Plan is the only stage that touches the source working copy.
type Step struct {
	domain.Action

	// Definition and Overlay are the deployable inputs for deploy/update.
	Definition []byte
	Overlay    []byte

	// LoadErr is set when an enabled stack's definition could not be read.
	// Apply records the stack as failed without calling the orchestrator.
	LoadErr error
}

// Plan computes the ordered action list for one cycle. It is deterministic:
// identical (manifest, cache, working copy) inputs produce an identical plan,
// and nothing here has side effects.
//
// Ordering: declared stacks in manifest order first, then removals of stacks
// no longer declared in reverse cache-insertion order. New and changed work
// lands in the order the operator wrote it; orphan teardown happens last so a
// rename never races the deploy that replaces it on shared resources such as
// external networks.
func (r *Reconciler) Plan(ctx context.Context, m *domain.Manifest) ([]Step, error) {
	steps := make([]Step, 0, len(m.Stacks))
	for _, decl := range m.Stacks {
		step, err := r.planDeclared(ctx, decl)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	records, err := r.store.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing cached records: %w", err)
	}

	var removes, skips []Step
	for _, rec := range records {
		if m.Declared(rec.Name) {
			continue
		}
		if rec.Status == domain.StatusRemoved {
			skips = append(skips, skipStep(rec.Name, "already removed"))
			continue
		}
		removes = append(removes, Step{Action: domain.Action{
			Kind:   domain.ActionRemove,
			Stack:  rec.Name,
			Reason: "no longer in manifest",
		}})
	}
	for i := len(removes) - 1; i >= 0; i-- {
		steps = append(steps, removes[i])
	}
	steps = append(steps, skips...)

	return steps, nil
}

func (r *Reconciler) planDeclared(ctx context.Context, decl domain.StackDeclaration) (Step, error) {
	rec, err := r.store.GetRecord(ctx, decl.Name)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return Step{}, fmt.Errorf("reading cached record for %s: %w", decl.Name, err)
	}
	// A removed record counts as absent: a re-added stack deploys fresh.
	absent := rec == nil || rec.Status == domain.StatusRemoved

	if !decl.Enabled {
		if absent {
			return skipStep(decl.Name, "disabled"), nil
		}
		return Step{Action: domain.Action{
			Kind:   domain.ActionRemove,
			Stack:  decl.Name,
			Reason: "disabled",
		}}, nil
	}

	definition, err := r.source.ReadFile(decl.ComposeFile)
	if err != nil {
		return Step{
			Action: domain.Action{
				Kind:   domain.ActionDeploy,
				Stack:  decl.Name,
				Reason: "definition unreadable",
			},
			LoadErr: fmt.Errorf("reading %s: %w", decl.ComposeFile, err),
		}, nil
	}

	var overlay []byte
	if decl.EnvFile != "" {
		overlay, err = r.source.ReadFile(decl.EnvFile)
		if err != nil {
			// The original behavior: warn and deploy without the overlay.
			r.logger.Warn("env overlay declared but unreadable, deploying without it",
				"stack", decl.Name, "path", decl.EnvFile, "error", err)
			overlay = nil
		}
	}

	fp := fingerprint.Sum(definition, overlay)
	action := domain.Action{Stack: decl.Name, Fingerprint: fp}

	switch {
	case absent:
		action.Kind = domain.ActionDeploy
		action.Reason = "new stack"
	case rec.Status == domain.StatusFailed:
		action.Kind = domain.ActionDeploy
		action.Reason = "retry after failure"
	case rec.Fingerprint == fp:
		return skipStep(decl.Name, "up to date"), nil
	default:
		action.Kind = domain.ActionUpdate
		action.Reason = "content changed"
	}

	return Step{Action: action, Definition: definition, Overlay: overlay}, nil
}

func skipStep(name, reason string) Step {
	return Step{Action: domain.Action{
		Kind:   domain.ActionSkip,
		Stack:  name,
		Reason: reason,
	}}
}
