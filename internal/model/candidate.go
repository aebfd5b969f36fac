package model

import (
	"encoding/json"
	"sort"
	"strings"
)

// Candidate is an extracted, not-yet-committed claim produced by the
// extraction agent. It carries per-field supporting quotes and the agent's
// raw pre-triangulation confidence.
type Candidate struct {
	CompetitorID  string            `json:"competitor_id"`
	ClaimType     string            `json:"claim_type"`
	ClaimSubtype  string            `json:"claim_subtype,omitempty"`
	SourceType    SourceType        `json:"source_type"`
	Fields        map[string]any    `json:"fields"`
	Quotes        map[string]string `json:"quotes,omitempty"` // field name -> literal evidence quote
	Reasoning     string            `json:"reasoning,omitempty"`
	RawConfidence float64           `json:"raw_confidence"` // heuristic, 0.0-1.0
	EvidenceIDs   []string          `json:"evidence_ids,omitempty"`
	AgeDays       int               `json:"age_days,omitempty"`
	NeedsReview   bool              `json:"needs_review,omitempty"`
	RawText       string            `json:"raw_text,omitempty"` // unparseable provider output, kept for review
}

// Key returns the fact identity the candidate targets.
func (c *Candidate) Key() ClaimKey {
	return ClaimKey{CompetitorID: c.CompetitorID, ClaimType: c.ClaimType, ClaimSubtype: c.ClaimSubtype}
}

// PrimaryQuote returns one supporting quote for the candidate: the quote of
// the lexically-first quoted field, so the choice is deterministic.
func (c *Candidate) PrimaryQuote() string {
	if len(c.Quotes) == 0 {
		return ""
	}
	names := make([]string, 0, len(c.Quotes))
	for name, quote := range c.Quotes {
		if strings.TrimSpace(quote) != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return c.Quotes[names[0]]
}

// ContentHash computes the commit idempotency key: a hash over the target
// key, the supporting evidence ids, and the canonical JSON of the extracted
// fields. Replaying the same candidate produces the same hash; the same
// value extracted from fresh evidence does not, so the ledger can tell a
// redelivery from a confirming observation. Review candidates hash their
// raw text instead, so distinct parse failures stay distinct.
func (c *Candidate) ContentHash() string {
	evidence := strings.Join(c.EvidenceIDs, ",")
	if c.NeedsReview && c.RawText != "" {
		return HashContent(c.Key().String() + "\n" + evidence + "\nraw:" + c.RawText)
	}
	payload, err := canonicalJSON(c.Fields)
	if err != nil {
		// Fields always round-trip through encoding/json upstream;
		// fall back to an empty payload rather than panicking.
		payload = "{}"
	}
	return HashContent(c.Key().String() + "\n" + evidence + "\n" + payload)
}

// canonicalJSON marshals a field map with sorted keys.
func canonicalJSON(fields map[string]any) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	// encoding/json sorts map keys, which is all the canonicalization
	// the idempotency key needs.
	b, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
