// Package docker invokes the orchestration platform that actually runs
// stacks. The controller only ever needs three verbs, all idempotent from the
// caller's point of view: apply, remove, ping.
package docker

import "context"

// Client defines the interface for stack lifecycle operations on the
// orchestration platform.
//
// Apply must be idempotent: re-applying identical content is a safe no-op or
// a successful no-change update. Remove must treat removing an already-absent
// stack as success.
type Client interface {
	// Apply deploys or updates a stack from its compose definition. The
	// optional env overlay feeds compose variable interpolation.
	Apply(ctx context.Context, name string, definition, overlay []byte) error

	// Remove tears down a stack by name.
	Remove(ctx context.Context, name string) error

	// Ping reports whether the platform is reachable.
	Ping(ctx context.Context) error
}
