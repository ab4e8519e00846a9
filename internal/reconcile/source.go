package reconcile

import "context"

// SourceProvider supplies the desired state: a synced working copy of the
// manifest repository and the revision it represents.
type SourceProvider interface {
	// Refresh syncs the working copy with the remote and returns the
	// revision now checked out. A failure means the source is unavailable;
	// the cycle is skipped and retried on the next tick.
	Refresh(ctx context.Context) (string, error)

	// ReadFile resolves a repository-relative path in the synced working
	// copy. Returns domain.ErrNotFound (wrapped) for missing files.
	ReadFile(path string) ([]byte, error)
}
