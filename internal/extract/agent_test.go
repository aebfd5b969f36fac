package extract

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ppiankov/competia/internal/model"
	"github.com/ppiankov/competia/internal/router"
)

func testAgent(t *testing.T, mock *router.MockProvider) *Agent {
	t.Helper()
	r := router.NewWithProviders(
		map[string]router.Provider{mock.Name(): mock},
		model.RoutingConfig{TaskProviders: map[string]string{"extraction": mock.Name()}},
		nil, nil)
	return NewAgent(r, model.ExtractionConfig{BackoffBase: time.Millisecond}, nil)
}

func testEvidence(content string) model.Evidence {
	return model.Evidence{
		ID:           "ev-1",
		CompetitorID: "acme",
		SourceType:   model.SourceWebsite,
		Content:      content,
		FetchedAt:    time.Now().UTC(),
	}
}

func TestExtractHappyPath(t *testing.T) {
	mock := &router.MockProvider{Responses: []string{
		`{"fields": {
			"monthly_price": {"value": "$99", "quote": "Pro plan: $99 per month"},
			"billing_period": {"value": "monthly", "quote": "per month"},
			"tier_name": {"value": "Pro", "quote": "Pro plan"}
		}, "reasoning": "Pricing page lists the Pro plan at $99 per month."}`,
	}}
	agent := testAgent(t, mock)

	cand, err := agent.Extract(context.Background(), testEvidence("Pro plan: $99 per month"), PricingSchema(), "")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if cand.NeedsReview {
		t.Error("clean extraction flagged for review")
	}
	if got := cand.Fields["monthly_price"]; got != "$99" {
		t.Errorf("monthly_price = %v, want $99", got)
	}
	if got := cand.Quotes["monthly_price"]; got != "Pro plan: $99 per month" {
		t.Errorf("quote = %q", got)
	}
	// base 0.5 + quote 0.2 + reasoning 0.1 + pricing bonus 0.15
	if math.Abs(cand.RawConfidence-0.95) > 1e-9 {
		t.Errorf("raw confidence = %v, want 0.95", cand.RawConfidence)
	}
	if cand.CompetitorID != "acme" || cand.ClaimType != "pricing" {
		t.Errorf("candidate identity wrong: %+v", cand)
	}
	if len(cand.EvidenceIDs) != 1 || cand.EvidenceIDs[0] != "ev-1" {
		t.Errorf("evidence ids = %v", cand.EvidenceIDs)
	}
}

func TestExtractNullsUnquotedFields(t *testing.T) {
	mock := &router.MockProvider{Responses: []string{
		`{"fields": {
			"monthly_price": {"value": "$49", "quote": ""},
			"tier_name": {"value": "Basic", "quote": "Basic tier"}
		}, "reasoning": "r"}`,
	}}
	agent := testAgent(t, mock)

	cand, err := agent.Extract(context.Background(), testEvidence("Basic tier pricing"), PricingSchema(), "")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if cand.Fields["monthly_price"] != nil {
		t.Errorf("field without quote kept value %v, want nil", cand.Fields["monthly_price"])
	}
	if _, ok := cand.Quotes["monthly_price"]; ok {
		t.Error("quote recorded for nulled field")
	}
	if cand.Fields["tier_name"] != "Basic" {
		t.Errorf("tier_name = %v", cand.Fields["tier_name"])
	}
	// Field missing from the payload entirely stays null too.
	if v, ok := cand.Fields["billing_period"]; !ok || v != nil {
		t.Errorf("billing_period = %v (present %v), want present nil", v, ok)
	}
}

func TestExtractRepairsWrappedJSON(t *testing.T) {
	mock := &router.MockProvider{Responses: []string{
		"Here is the extraction:\n```json\n" +
			`{"fields": {"amount": {"value": "$12M", "quote": "raised $12M"}}, "reasoning": "r"}` +
			"\n```\nLet me know if you need anything else.",
	}}
	agent := testAgent(t, mock)

	cand, err := agent.Extract(context.Background(), testEvidence("Acme raised $12M"), FundingSchema(), "")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if cand.NeedsReview {
		t.Error("repairable response flagged for review")
	}
	if cand.Fields["amount"] != "$12M" {
		t.Errorf("amount = %v", cand.Fields["amount"])
	}
}

func TestExtractParksUnparseableResponse(t *testing.T) {
	mock := &router.MockProvider{Responses: []string{
		"I could not find any pricing information in the evidence.",
	}}
	agent := testAgent(t, mock)

	cand, err := agent.Extract(context.Background(), testEvidence("nothing useful"), PricingSchema(), "")
	if err != nil {
		t.Fatalf("parse failure must park, not error: %v", err)
	}
	if !cand.NeedsReview {
		t.Fatal("unparseable response not flagged for review")
	}
	if cand.RawText == "" {
		t.Error("raw provider text not preserved for review")
	}
}

func TestExtractRetriesTransientFailures(t *testing.T) {
	mock := &router.MockProvider{
		Responses: []string{"", `{"fields": {"monthly_price": {"value": "$5", "quote": "$5"}}, "reasoning": "r"}`},
		Errs:      []error{errors.New("transient"), nil},
	}
	// Breaker threshold above the retry count so the provider stays in play.
	r := router.NewWithProviders(
		map[string]router.Provider{mock.Name(): mock},
		model.RoutingConfig{
			TaskProviders:    map[string]string{"extraction": mock.Name()},
			BreakerThreshold: 10,
		},
		nil, nil)
	agent := NewAgent(r, model.ExtractionConfig{BackoffBase: time.Millisecond}, nil)

	cand, err := agent.Extract(context.Background(), testEvidence("x"), PricingSchema(), "")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if mock.Calls() != 2 {
		t.Errorf("calls = %d, want 2", mock.Calls())
	}
	if cand.Fields["monthly_price"] != "$5" {
		t.Errorf("monthly_price = %v", cand.Fields["monthly_price"])
	}
}

func TestExtractNoProviderIsNotRetried(t *testing.T) {
	mock := &router.MockProvider{Unavailable: true}
	agent := testAgent(t, mock)

	_, err := agent.Extract(context.Background(), testEvidence("x"), PricingSchema(), "")
	if !errors.Is(err, router.ErrNoProviderAvailable) {
		t.Fatalf("err = %v, want ErrNoProviderAvailable", err)
	}
	if mock.Calls() != 0 {
		t.Errorf("unavailable provider was called %d times", mock.Calls())
	}
}

func TestPrimaryValue(t *testing.T) {
	schema := PricingSchema()
	cand := &model.Candidate{Fields: map[string]any{"monthly_price": "$99"}}
	if got := PrimaryValue(cand, schema); got != "$99" {
		t.Errorf("PrimaryValue = %q", got)
	}

	numeric := &model.Candidate{Fields: map[string]any{"monthly_price": float64(99)}}
	if got := PrimaryValue(numeric, schema); got != "99" {
		t.Errorf("numeric PrimaryValue = %q", got)
	}

	empty := &model.Candidate{Fields: map[string]any{"monthly_price": nil}}
	if got := PrimaryValue(empty, schema); got != "" {
		t.Errorf("nil PrimaryValue = %q", got)
	}
}

func TestRawConfidenceCapped(t *testing.T) {
	cand := &model.Candidate{
		Fields:    map[string]any{"monthly_price": "$1"},
		Quotes:    map[string]string{"monthly_price": "$1"},
		Reasoning: "found it",
	}
	conf := rawConfidence(cand, PricingSchema())
	if conf > 1.0 {
		t.Errorf("confidence %v exceeds cap", conf)
	}
	if math.Abs(conf-0.95) > 1e-9 {
		t.Errorf("confidence = %v, want 0.95", conf)
	}
}
