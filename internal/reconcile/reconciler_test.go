package reconcile_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/bcnelson/gitops-stack-manager/internal/docker"
	"github.com/bcnelson/gitops-stack-manager/internal/domain"
	"github.com/bcnelson/gitops-stack-manager/internal/reconcile"
	"github.com/bcnelson/gitops-stack-manager/internal/storage/memory"
)

type fixture struct {
	rec    *reconcile.Reconciler
	store  *memory.Store
	source *fakeSource
	client *docker.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	source := newFakeSource("rev1")
	client := docker.NewFake()
	return &fixture{
		rec:    reconcile.New(store, client, source, testLogger(), 0),
		store:  store,
		source: source,
		client: client,
	}
}

func (f *fixture) reconcile(t *testing.T, m *domain.Manifest) reconcile.Result {
	t.Helper()
	steps, err := f.rec.Plan(context.Background(), m)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	return f.rec.Apply(context.Background(), steps)
}

func (f *fixture) mustRecord(t *testing.T, name string) *domain.DeployedStackRecord {
	t.Helper()
	rec, err := f.store.GetRecord(context.Background(), name)
	if err != nil {
		t.Fatalf("GetRecord(%s) failed: %v", name, err)
	}
	return rec
}

func manifestOf(decls ...domain.StackDeclaration) *domain.Manifest {
	return &domain.Manifest{Revision: "rev1", Stacks: decls}
}

// Full lifecycle: deploy, skip when unchanged, update on content change,
// remove when disabled, re-deploy when re-enabled.
func TestReconcile_Lifecycle(t *testing.T) {
	f := newFixture(t)
	f.source.set("web/docker-compose.yml", "v1")

	// New stack, empty cache: deploy.
	res := f.reconcile(t, manifestOf(declaration("web", true)))
	if res.Deployed != 1 {
		t.Fatalf("Expected 1 deployed, got %+v", res)
	}
	rec := f.mustRecord(t, "web")
	if rec.Status != domain.StatusDeployed || rec.Fingerprint == "" {
		t.Fatalf("Unexpected record after deploy: %+v", rec)
	}
	firstFP := rec.Fingerprint

	// Unchanged content: all skip (idempotence).
	res = f.reconcile(t, manifestOf(declaration("web", true)))
	if res.Skipped != 1 || res.Deployed != 0 || res.Updated != 0 {
		t.Fatalf("Expected all-skip on unchanged rerun, got %+v", res)
	}

	// One byte changed: update, new fingerprint.
	f.source.set("web/docker-compose.yml", "v2")
	res = f.reconcile(t, manifestOf(declaration("web", true)))
	if res.Updated != 1 {
		t.Fatalf("Expected 1 updated, got %+v", res)
	}
	if fp := f.mustRecord(t, "web").Fingerprint; fp == firstFP {
		t.Error("Fingerprint did not change after update")
	}

	// Disabled: remove, record retained in status Removed.
	res = f.reconcile(t, manifestOf(declaration("web", false)))
	if res.Removed != 1 {
		t.Fatalf("Expected 1 removed, got %+v", res)
	}
	rec = f.mustRecord(t, "web")
	if rec.Status != domain.StatusRemoved {
		t.Fatalf("Expected status removed, got %s", rec.Status)
	}
	if _, running := f.client.Stacks["web"]; running {
		t.Error("Stack still present on the orchestrator after remove")
	}

	// Re-enabled after removal: fresh deploy, not update.
	res = f.reconcile(t, manifestOf(declaration("web", true)))
	if res.Deployed != 1 || res.Updated != 0 {
		t.Fatalf("Expected a fresh deploy after re-add, got %+v", res)
	}
}

func TestReconcile_RemoveWhenDroppedFromManifest(t *testing.T) {
	f := newFixture(t)
	f.source.set("web/docker-compose.yml", "v1")
	f.source.set("db/docker-compose.yml", "v1")

	f.reconcile(t, manifestOf(declaration("web", true), declaration("db", true)))

	// db disappears from the manifest entirely.
	res := f.reconcile(t, manifestOf(declaration("web", true)))
	if res.Removed != 1 || res.Skipped != 1 {
		t.Fatalf("Expected 1 removed + 1 skipped, got %+v", res)
	}
	if f.mustRecord(t, "db").Status != domain.StatusRemoved {
		t.Error("Expected db record in status removed")
	}
}

func TestReconcile_FailureIsolation(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"first", "second", "third"} {
		f.source.set(name+"/docker-compose.yml", "v1")
	}
	f.client.FailStacks["second"] = errors.New("image pull failed")

	m := manifestOf(declaration("first", true), declaration("second", true), declaration("third", true))

	res := f.reconcile(t, m)
	if res.Deployed != 2 || res.Failed != 1 {
		t.Fatalf("Expected 2 deployed + 1 failed, got %+v", res)
	}
	if f.mustRecord(t, "first").Status != domain.StatusDeployed {
		t.Error("first should be deployed despite second failing")
	}
	if f.mustRecord(t, "third").Status != domain.StatusDeployed {
		t.Error("third should be deployed despite second failing")
	}

	second := f.mustRecord(t, "second")
	if second.Status != domain.StatusFailed {
		t.Fatalf("Expected second in status failed, got %s", second.Status)
	}
	if second.LastError == "" || second.IntendedAction != domain.ActionDeploy {
		t.Errorf("Failure not captured on record: %+v", second)
	}

	// Next cycle, no manifest change: only the failed stack is retried.
	f.client.FailStacks = map[string]error{}
	res = f.reconcile(t, m)
	if res.Deployed != 1 || res.Skipped != 2 {
		t.Fatalf("Expected only the failed stack redeployed, got %+v", res)
	}
	if f.mustRecord(t, "second").Status != domain.StatusDeployed {
		t.Error("second should be deployed after retry")
	}
}

func TestReconcile_OrchestratorDownShortCircuits(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a", "b", "c"} {
		f.source.set(name+"/docker-compose.yml", "v1")
	}
	f.client.Unreachable = true

	res := f.reconcile(t, manifestOf(declaration("a", true), declaration("b", true), declaration("c", true)))
	if res.Failed != 3 {
		t.Fatalf("Expected all 3 failed, got %+v", res)
	}
	// Only the first action reaches the client; the rest short-circuit.
	if calls := f.client.CallNames(); len(calls) != 1 {
		t.Errorf("Expected 1 client call, got %v", calls)
	}
	for _, name := range []string{"a", "b", "c"} {
		if f.mustRecord(t, name).Status != domain.StatusFailed {
			t.Errorf("Expected %s in status failed", name)
		}
	}

	// Platform back up: everything deploys next cycle.
	f.client.Unreachable = false
	res = f.reconcile(t, manifestOf(declaration("a", true), declaration("b", true), declaration("c", true)))
	if res.Deployed != 3 {
		t.Fatalf("Expected 3 deployed after recovery, got %+v", res)
	}
}

func TestReconcile_FailedRemoveRetriesNextCycle(t *testing.T) {
	f := newFixture(t)
	f.source.set("web/docker-compose.yml", "v1")
	f.reconcile(t, manifestOf(declaration("web", true)))

	f.client.FailStacks["web"] = errors.New("network busy")
	res := f.reconcile(t, manifestOf(declaration("web", false)))
	if res.Failed != 1 {
		t.Fatalf("Expected 1 failed, got %+v", res)
	}
	rec := f.mustRecord(t, "web")
	if rec.Status != domain.StatusFailed || rec.IntendedAction != domain.ActionRemove {
		t.Fatalf("Expected failed record with intended remove, got %+v", rec)
	}

	// Removal succeeds on the next cycle.
	f.client.FailStacks = map[string]error{}
	res = f.reconcile(t, manifestOf(declaration("web", false)))
	if res.Removed != 1 {
		t.Fatalf("Expected 1 removed on retry, got %+v", res)
	}
	if f.mustRecord(t, "web").Status != domain.StatusRemoved {
		t.Error("Expected status removed after successful retry")
	}
}

func TestReconcile_MissingDefinitionRecordedAsFailed(t *testing.T) {
	f := newFixture(t)

	res := f.reconcile(t, manifestOf(declaration("web", true)))
	if res.Failed != 1 {
		t.Fatalf("Expected 1 failed, got %+v", res)
	}
	rec := f.mustRecord(t, "web")
	if rec.Status != domain.StatusFailed || rec.LastError == "" {
		t.Fatalf("Expected failed record with error, got %+v", rec)
	}
	if calls := f.client.CallNames(); len(calls) != 0 {
		t.Errorf("Orchestrator must not be called for an unreadable definition, got %v", calls)
	}
}

func TestReconcile_CancellationStopsBetweenActions(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a", "b"} {
		f.source.set(name+"/docker-compose.yml", "v1")
	}

	steps, err := f.rec.Plan(context.Background(), manifestOf(declaration("a", true), declaration("b", true)))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := f.rec.Apply(ctx, steps)
	if res.Deployed != 0 || res.Failed != 0 {
		t.Errorf("Expected no actions started after cancellation, got %+v", res)
	}
	if calls := f.client.CallNames(); len(calls) != 0 {
		t.Errorf("Expected no client calls after cancellation, got %v", calls)
	}
}

// blockingClient parks in Apply until released and records what the call
// context looked like at completion.
type blockingClient struct {
	started chan struct{}
	release chan struct{}
	ctxErr  error
}

func (c *blockingClient) Apply(ctx context.Context, name string, definition, overlay []byte) error {
	close(c.started)
	<-c.release
	c.ctxErr = ctx.Err()
	return nil
}

func (c *blockingClient) Remove(ctx context.Context, name string) error { return nil }
func (c *blockingClient) Ping(ctx context.Context) error                { return nil }

// A shutdown signal arriving mid-deploy must let the in-flight orchestrator
// call finish; killing it could leave a half-applied stack.
func TestReconcile_InFlightCallFinishesAfterShutdown(t *testing.T) {
	store := memory.New()
	source := newFakeSource("rev1")
	source.set("web/docker-compose.yml", "v1")
	client := &blockingClient{started: make(chan struct{}), release: make(chan struct{})}
	rec := reconcile.New(store, client, source, testLogger(), 0)

	steps, err := rec.Plan(context.Background(), manifestOf(declaration("web", true)))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan reconcile.Result, 1)
	go func() { done <- rec.Apply(ctx, steps) }()

	<-client.started
	cancel()
	close(client.release)
	res := <-done

	if client.ctxErr != nil {
		t.Fatalf("In-flight call was cancelled by shutdown: %v", client.ctxErr)
	}
	if res.Deployed != 1 {
		t.Fatalf("Expected the in-flight deploy to complete, got %+v", res)
	}
	record, err := store.GetRecord(context.Background(), "web")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record.Status != domain.StatusDeployed {
		t.Errorf("Expected status deployed after shutdown-spanning call, got %s", record.Status)
	}
}

// faultyStore fails record reads on demand while delegating everything else.
type faultyStore struct {
	*memory.Store
	getErr error
}

func (s *faultyStore) GetRecord(ctx context.Context, name string) (*domain.DeployedStackRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.GetRecord(ctx, name)
}

func TestReconcile_StoreReadFailureLoggedNotSilent(t *testing.T) {
	var logBuf bytes.Buffer
	store := &faultyStore{Store: memory.New()}
	source := newFakeSource("rev1")
	source.set("web/docker-compose.yml", "v1")
	client := docker.NewFake()
	rec := reconcile.New(store, client, source, slog.New(slog.NewTextHandler(&logBuf, nil)), 0)

	steps, err := rec.Plan(context.Background(), manifestOf(declaration("web", true)))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	store.getErr = errors.New("database locked")
	res := rec.Apply(context.Background(), steps)
	if res.Deployed != 1 {
		t.Fatalf("Expected the deploy to proceed on a fresh record, got %+v", res)
	}
	if out := logBuf.String(); !strings.Contains(out, "reading stack record") || !strings.Contains(out, "database locked") {
		t.Errorf("Expected the store read failure to be logged, got:\n%s", out)
	}
}
