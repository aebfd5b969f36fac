package model

import (
	"fmt"
	"time"
)

// ClaimStatus is the lifecycle state of a claim version.
type ClaimStatus string

const (
	StatusActive         ClaimStatus = "active"          // The current trusted version for its key
	StatusSuperseded     ClaimStatus = "superseded"      // Replaced by a newer version
	StatusReviewRequired ClaimStatus = "review_required" // Parked for human adjudication
	StatusRejected       ClaimStatus = "rejected"        // Discarded by a human
)

// ConfidenceLevel buckets a 0-100 score for display and filtering.
type ConfidenceLevel string

const (
	LevelHigh     ConfidenceLevel = "high"
	LevelModerate ConfidenceLevel = "moderate"
	LevelLow      ConfidenceLevel = "low"
)

// LevelForScore maps a confidence score to its level.
// Thresholds: >=70 high, >=40 moderate, else low.
func LevelForScore(score int) ConfidenceLevel {
	switch {
	case score >= 70:
		return LevelHigh
	case score >= 40:
		return LevelModerate
	default:
		return LevelLow
	}
}

// Confidence carries the trust score for a claim.
type Confidence struct {
	Score int             `json:"score"`
	Level ConfidenceLevel `json:"level"`
}

// NewConfidence validates the score range and derives the level.
func NewConfidence(score int) (Confidence, error) {
	if score < 0 || score > 100 {
		return Confidence{}, fmt.Errorf("confidence score %d out of range [0,100]", score)
	}
	return Confidence{Score: score, Level: LevelForScore(score)}, nil
}

// ClaimKey identifies the fact a claim is a version of. At most one
// active claim exists per key at any instant.
type ClaimKey struct {
	CompetitorID string `json:"competitor_id"`
	ClaimType    string `json:"claim_type"`
	ClaimSubtype string `json:"claim_subtype,omitempty"`
}

// String renders the key in its canonical pipe-delimited form,
// used for ledger index keys and writer locks.
func (k ClaimKey) String() string {
	return k.CompetitorID + "|" + k.ClaimType + "|" + k.ClaimSubtype
}

// Claim is a structured, sourced, versioned assertion about one competitor
// attribute. Claims are created by the ledger and never deleted; only the
// ledger mutates status, valid_to, and superseded_by.
type Claim struct {
	ID            string         `json:"id"`
	CompetitorID  string         `json:"competitor_id"`
	ClaimType     string         `json:"claim_type"`
	ClaimSubtype  string         `json:"claim_subtype,omitempty"`
	ClaimData     map[string]any `json:"claim_data"`
	EvidenceIDs   []string       `json:"evidence_ids,omitempty"`
	EvidenceQuote string         `json:"evidence_quote,omitempty"`
	Confidence    Confidence     `json:"confidence"`
	Status        ClaimStatus    `json:"status"`
	ValidFrom     time.Time      `json:"valid_from"`
	ValidTo       *time.Time     `json:"valid_to,omitempty"`
	SupersededBy  string         `json:"superseded_by,omitempty"`
	ValidatedBy   string         `json:"validated_by,omitempty"` // "human" for manual overrides
}

// Key returns the claim's fact identity.
func (c *Claim) Key() ClaimKey {
	return ClaimKey{CompetitorID: c.CompetitorID, ClaimType: c.ClaimType, ClaimSubtype: c.ClaimSubtype}
}

// Validate checks construction-time invariants. The ledger refuses to
// store a claim that fails validation.
func (c *Claim) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("claim: missing id")
	}
	if c.CompetitorID == "" {
		return fmt.Errorf("claim %s: missing competitor_id", c.ID)
	}
	if c.ClaimType == "" {
		return fmt.Errorf("claim %s: missing claim_type", c.ID)
	}
	if c.Confidence.Score < 0 || c.Confidence.Score > 100 {
		return fmt.Errorf("claim %s: confidence score %d out of range [0,100]", c.ID, c.Confidence.Score)
	}
	if c.ValidTo != nil && c.ValidFrom.After(*c.ValidTo) {
		return fmt.Errorf("claim %s: valid_from after valid_to", c.ID)
	}
	switch c.Status {
	case StatusActive, StatusSuperseded, StatusReviewRequired, StatusRejected:
	default:
		return fmt.Errorf("claim %s: unknown status %q", c.ID, c.Status)
	}
	return nil
}
