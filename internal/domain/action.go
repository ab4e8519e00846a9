package domain

// ActionKind is the lifecycle action chosen for one stack in one cycle.
type ActionKind string

const (
	ActionDeploy ActionKind = "deploy"
	ActionUpdate ActionKind = "update"
	ActionRemove ActionKind = "remove"
	ActionSkip   ActionKind = "skip"
)

// Action is one entry of a cycle's plan. Ephemeral - computed fresh each
// cycle from the manifest and the deployed-state cache.
type Action struct {
	Kind  ActionKind `json:"kind"`
	Stack string     `json:"stack"`
	// Fingerprint is the content fingerprint recorded on a successful
	// deploy or update. Empty for remove and skip.
	Fingerprint string `json:"fingerprint,omitempty"`
	// Reason is a short human-readable explanation for logs.
	Reason string `json:"reason"`
}
