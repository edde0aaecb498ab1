// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Action is the reconciliation outcome for one identity.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// Decision is the output of reconciling one card against the ledger. The
// reconciler returns decisions only; executing them (network sync, ledger
// upserts, source mutation) is the caller's job.
type Decision struct {
	// Identity is the card identity the decision applies to.
	Identity string `json:"identity" yaml:"identity"`

	// Action is create, update, or skip.
	Action Action `json:"action" yaml:"action"`

	// Card is the payload to sync. Unset when Action is skip and no card
	// was built for the identity.
	Card Card `json:"card" yaml:"card"`

	// Block is the source block the card came from.
	Block ExtractedBlock `json:"block" yaml:"-"`

	// Assisted reports whether the decision came from the
	// assistant-selected path. Fallback decisions always report false so
	// callers can distinguish degraded runs.
	Assisted bool `json:"assisted" yaml:"assisted"`

	// Reasoning is the assistant's stated selection rationale, when any.
	Reasoning string `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}
