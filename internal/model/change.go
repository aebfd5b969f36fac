package model

import "time"

// Severity ranks how much a change matters to an analyst.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// ChangeType classifies what happened to a claim key.
type ChangeType string

const (
	ChangeNewClaim     ChangeType = "new_claim"     // First claim committed for a key
	ChangeValueChanged ChangeType = "value_changed" // Active claim superseded with new data
)

// ChangeEvent records one committed claim transition. Events are immutable
// and created at most once per (previous, new) claim pair.
type ChangeEvent struct {
	PreviousClaimID string     `json:"previous_claim_id,omitempty"`
	NewClaimID      string     `json:"new_claim_id"`
	CompetitorID    string     `json:"competitor_id"`
	ClaimType       string     `json:"claim_type"`
	ChangeType      ChangeType `json:"change_type"`
	Severity        Severity   `json:"severity"`
	Summary         string     `json:"summary"`
	PreviousValue   any        `json:"previous_value,omitempty"`
	NewValue        any        `json:"new_value,omitempty"`
	DetectedAt      time.Time  `json:"detected_at"`
}
