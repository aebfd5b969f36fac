// Package extract turns raw evidence text into schema-shaped claim
// candidates through the AI provider router. Every extracted field carries
// the literal evidence quote that supports it; unsupported fields stay null.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/competia/internal/model"
	"github.com/ppiankov/competia/internal/router"
)

const extractionSystemPrompt = "You are a competitive-intelligence extraction assistant. " +
	"You only report what the evidence literally supports and never speculate."

// ErrParseFailure marks provider output that could not be parsed as JSON
// even after repair. Candidates carrying it are parked for review, never
// discarded.
var ErrParseFailure = errors.New("extraction response parse failure")

// Agent extracts candidates from evidence via the router.
type Agent struct {
	router      *router.Router
	maxChars    int
	maxAttempts int
	backoffBase time.Duration
	logger      *slog.Logger
}

// NewAgent creates an extraction agent.
func NewAgent(r *router.Router, cfg model.ExtractionConfig, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	maxChars := cfg.MaxEvidenceChars
	if maxChars <= 0 {
		maxChars = 12000
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.BackoffBase
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Agent{
		router:      r,
		maxChars:    maxChars,
		maxAttempts: attempts,
		backoffBase: backoff,
		logger:      logger,
	}
}

// extractionPayload is the JSON shape the provider is asked to return.
type extractionPayload struct {
	Fields map[string]struct {
		Value json.RawMessage `json:"value"`
		Quote string          `json:"quote"`
	} `json:"fields"`
	Reasoning string `json:"reasoning"`
}

// Extract produces a candidate claim from one piece of evidence. Transient
// router failures are retried with exponential backoff; a persistently
// unparseable response yields a review-flagged candidate carrying the raw
// text rather than an error.
func (a *Agent) Extract(ctx context.Context, ev model.Evidence, schema ClaimSchema, hint string) (*model.Candidate, error) {
	text := Truncate(NormalizeEvidence(ev.Content), a.maxChars)
	req := router.Request{
		TaskType:    "extraction",
		System:      extractionSystemPrompt,
		Prompt:      buildPrompt(schema, text, hint),
		RequireJSON: true,
	}

	resp, err := a.routeWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	candidate := &model.Candidate{
		CompetitorID: ev.CompetitorID,
		ClaimType:    schema.ClaimType,
		ClaimSubtype: schema.ClaimSubtype,
		SourceType:   ev.SourceType,
		EvidenceIDs:  []string{ev.ID},
		AgeDays:      ev.AgeDays(time.Now().UTC()),
	}

	payload, perr := parsePayload(resp.Content)
	if perr != nil {
		a.logger.Warn("extraction parse failure, parking candidate for review",
			"competitor", ev.CompetitorID, "claim_type", schema.ClaimType, "err", perr)
		candidate.NeedsReview = true
		candidate.RawText = resp.Content
		candidate.Fields = map[string]any{}
		return candidate, nil
	}

	candidate.Fields = make(map[string]any, len(payload.Fields))
	candidate.Quotes = make(map[string]string, len(payload.Fields))
	for _, spec := range schema.Fields {
		entry, ok := payload.Fields[spec.Name]
		if !ok {
			candidate.Fields[spec.Name] = nil
			continue
		}
		value := decodeValue(entry.Value)
		quote := strings.TrimSpace(entry.Quote)
		// A field without a supporting quote is unsupported: keep it null.
		if quote == "" {
			value = nil
		}
		candidate.Fields[spec.Name] = value
		if value != nil {
			candidate.Quotes[spec.Name] = quote
		}
	}
	candidate.Reasoning = strings.TrimSpace(payload.Reasoning)
	candidate.RawConfidence = rawConfidence(candidate, schema)

	return candidate, nil
}

// routeWithRetry retries transient router failures with exponential
// backoff. A definitive no-provider outcome is not retried.
func (a *Agent) routeWithRetry(ctx context.Context, req router.Request) (*router.Response, error) {
	var lastErr error
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := a.backoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := a.router.Route(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if errors.Is(err, router.ErrNoProviderAvailable) {
			// Retrying cannot conjure a provider.
			return nil, err
		}
	}
	return nil, fmt.Errorf("extraction failed after %d attempts: %w", a.maxAttempts, lastErr)
}

// parsePayload parses provider output, attempting one brace-delimited
// repair when the raw content is not valid JSON.
func parsePayload(content string) (*extractionPayload, error) {
	var payload extractionPayload
	if err := json.Unmarshal([]byte(content), &payload); err == nil {
		return &payload, nil
	}

	repaired, ok := repairJSON(content)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object found", ErrParseFailure)
	}
	if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	return &payload, nil
}

// repairJSON extracts the outermost brace-delimited range from text that
// wraps JSON in prose or code fences.
func repairJSON(content string) (string, bool) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

// decodeValue converts a raw JSON value to its Go form, mapping JSON null
// to nil.
func decodeValue(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// typeBonuses awards extra raw confidence when a claim type's primary
// signal is present, e.g. a numeric value for a pricing claim.
var typeBonuses = map[string]float64{
	"pricing":        0.15,
	"funding":        0.10,
	"customer_count": 0.10,
	"feature":        0.05,
	"integration":    0.05,
}

// rawConfidence computes the agent's pre-triangulation heuristic:
// base 0.5; +0.2 for a supporting quote; +0.1 for reasoning; a type-specific
// bonus when the primary field carries a value; capped at 1.0.
func rawConfidence(c *model.Candidate, schema ClaimSchema) float64 {
	conf := 0.5
	if c.PrimaryQuote() != "" {
		conf += 0.2
	}
	if c.Reasoning != "" {
		conf += 0.1
	}
	if bonus, ok := typeBonuses[schema.ClaimType]; ok {
		primary := schema.PrimaryField
		if primary == "" && len(schema.Fields) > 0 {
			primary = schema.Fields[0].Name
		}
		if v, ok := c.Fields[primary]; ok && v != nil {
			conf += bonus
		}
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

// PrimaryValue returns the candidate's triangulation value: the primary
// field rendered as a string, or empty when unsupported.
func PrimaryValue(c *model.Candidate, schema ClaimSchema) string {
	primary := schema.PrimaryField
	if primary == "" && len(schema.Fields) > 0 {
		primary = schema.Fields[0].Name
	}
	v, ok := c.Fields[primary]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
