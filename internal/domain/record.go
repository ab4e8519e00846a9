package domain

import "time"

// StackStatus is the last-known outcome for a stack the controller has touched.
type StackStatus string

const (
	// StatusDeployed means the last apply for the stack succeeded.
	StatusDeployed StackStatus = "deployed"
	// StatusFailed means the last attempted action for the stack failed.
	StatusFailed StackStatus = "failed"
	// StatusRemoved means the stack was removed by a confirmed remove action.
	// The record is retained so a later re-add is recognized as a fresh deploy.
	StatusRemoved StackStatus = "removed"
)

// DeployedStackRecord is one cache entry: what the controller last applied for
// a stack name. It records outcomes, never live cluster state - that is owned
// by the orchestration platform.
type DeployedStackRecord struct {
	Name        string      `json:"name" db:"name"`
	Fingerprint string      `json:"fingerprint" db:"fingerprint"`
	Status      StackStatus `json:"status" db:"status"`

	// IntendedAction is set when Status is StatusFailed so a failed removal is
	// distinguishable from a failed deploy. Observability only; the planner
	// decides from Status alone.
	IntendedAction ActionKind `json:"intendedAction,omitempty" db:"intended_action"`

	// LastError is the last action error, retained for observability only.
	LastError string `json:"lastError,omitempty" db:"last_error"`

	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
	LastCheckedAt time.Time `json:"lastCheckedAt" db:"last_checked_at"`
}

// CycleRecord summarizes one completed reconciliation cycle.
type CycleRecord struct {
	ID         string    `json:"id" db:"id"`
	Revision   string    `json:"revision" db:"revision"`
	Trigger    string    `json:"trigger" db:"triggered_by"`
	StartedAt  time.Time `json:"startedAt" db:"started_at"`
	FinishedAt time.Time `json:"finishedAt" db:"finished_at"`
	Deployed   int       `json:"deployed" db:"deployed"`
	Updated    int       `json:"updated" db:"updated"`
	Removed    int       `json:"removed" db:"removed"`
	Skipped    int       `json:"skipped" db:"skipped"`
	Failed     int       `json:"failed" db:"failed"`
}

// Cycle trigger values.
const (
	TriggerBootstrap = "bootstrap"
	TriggerPoll      = "poll"
	TriggerManual    = "manual"
)
