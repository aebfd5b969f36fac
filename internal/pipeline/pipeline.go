// Package pipeline orchestrates one refresh pass per competitor:
// evidence -> extraction agent -> confidence/triangulation -> claim ledger
// commit -> change detection -> alert dispatch. All failures are recovered
// at the job boundary; nothing escalates past it except failure counts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/competia/internal/cache"
	"github.com/ppiankov/competia/internal/change"
	"github.com/ppiankov/competia/internal/extract"
	"github.com/ppiankov/competia/internal/ledger"
	"github.com/ppiankov/competia/internal/model"
	"github.com/ppiankov/competia/internal/router"
	"github.com/ppiankov/competia/internal/score"
)

// processedTTL is how long an evidence/schema pair is skipped after being
// extracted once within a process lifetime.
const processedTTL = 30 * time.Minute

// minRawConfidence is the floor on the agent's pre-triangulation heuristic.
// A candidate whose own extraction support is weaker than this is parked
// for review instead of entering triangulation.
const minRawConfidence = 0.6

// ExtractionRateKey is the limiter key gating provider extraction calls.
// Other budgets (e.g. evidence fetch) use their own keys.
const ExtractionRateKey = "extraction"

// RateWaiter gates extraction throughput. The worker package provides the
// x/time/rate implementation.
type RateWaiter interface {
	Wait(ctx context.Context, key string) error
}

// Pipeline wires the evidence-to-claim core together.
type Pipeline struct {
	agent      *extract.Agent
	ledger     *ledger.Ledger
	detector   *change.Detector
	source     EvidenceSource
	dispatcher Dispatcher
	limiter    RateWaiter
	processed  cache.Cache
	logger     *slog.Logger
}

// New creates a pipeline. Dispatcher defaults to the log sink; limiter may
// be nil when throughput gating happens elsewhere.
func New(agent *extract.Agent, led *ledger.Ledger, source EvidenceSource, dispatcher Dispatcher, limiter RateWaiter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if dispatcher == nil {
		dispatcher = &LogDispatcher{Logger: logger}
	}
	return &Pipeline{
		agent:      agent,
		ledger:     led,
		detector:   change.NewDetector(led, logger),
		source:     source,
		dispatcher: dispatcher,
		limiter:    limiter,
		processed:  cache.NewMemoryCache(processedTTL, 10*time.Minute),
		logger:     logger,
	}
}

// RefreshResult summarizes one competitor refresh.
type RefreshResult struct {
	CompetitorID string   `json:"competitor_id"`
	Evidence     int      `json:"evidence"`
	Created      int      `json:"created"`
	Superseded   int      `json:"superseded"`
	Noops        int      `json:"noops"`
	Reviews      int      `json:"reviews"`
	Duplicates   int      `json:"duplicates"`
	Conflicts    int      `json:"conflicts"`
	Events       int      `json:"events"`
	Errors       []string `json:"errors,omitempty"`
}

// Failed reports whether the refresh ended with unrecovered errors.
func (r *RefreshResult) Failed() bool {
	return len(r.Errors) > 0
}

// RefreshCompetitor runs one pass for a competitor over the given schemas.
// Errors are collected per schema; one failing claim type does not stop the
// others, and a failing competitor never affects its siblings.
func (p *Pipeline) RefreshCompetitor(ctx context.Context, competitorID string, schemas []extract.ClaimSchema) *RefreshResult {
	result := &RefreshResult{CompetitorID: competitorID}

	evidence, err := p.source.Evidence(ctx, competitorID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("evidence: %v", err))
		return result
	}
	result.Evidence = len(evidence)
	if len(evidence) == 0 {
		p.logger.Debug("no evidence for competitor", "competitor", competitorID)
		return result
	}

	for _, schema := range schemas {
		if err := ctx.Err(); err != nil {
			// Job timeout: abort without partial commits. Claim
			// transitions already made are complete units.
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", schema.ClaimType, err))
			return result
		}
		if err := p.refreshClaimType(ctx, competitorID, schema, evidence, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", schema.ClaimType, err))
		}
	}

	return result
}

// refreshClaimType extracts candidates for one schema from all evidence,
// triangulates them, and commits the outcome.
func (p *Pipeline) refreshClaimType(ctx context.Context, competitorID string, schema extract.ClaimSchema, evidence []model.Evidence, result *RefreshResult) error {
	key := model.ClaimKey{CompetitorID: competitorID, ClaimType: schema.ClaimType, ClaimSubtype: schema.ClaimSubtype}

	// Read the active claim id up front; the ledger re-checks it at commit
	// time to detect racing writers.
	expectedActiveID := ""
	if active, err := p.ledger.ActiveClaim(key); err != nil {
		return fmt.Errorf("read active claim: %w", err)
	} else if active != nil {
		expectedActiveID = active.ID
	}

	var sound []*model.Candidate
	for i := range evidence {
		ev := evidence[i]
		if p.alreadyProcessed(ev, schema) {
			continue
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx, ExtractionRateKey); err != nil {
				return err
			}
		}

		cand, err := p.agent.Extract(ctx, ev, schema, "")
		if err != nil {
			if errors.Is(err, router.ErrNoProviderAvailable) {
				// Nothing to commit without a backend; surface and stop
				// this claim type. Other competitors keep running.
				return err
			}
			// Retries are exhausted at this point. The failure marks the
			// job; extraction continues with the remaining evidence.
			p.logger.Warn("extraction failed for evidence",
				"competitor", competitorID, "evidence", ev.ID, "err", err)
			result.Errors = append(result.Errors, fmt.Sprintf("evidence %s: %v", ev.ID, err))
			continue
		}
		p.markProcessed(ev, schema)

		if cand.NeedsReview {
			// Parse failures are parked individually, never discarded.
			if _, err := p.commitWithRetry(ledger.CommitRequest{
				Candidate:        cand,
				Confidence:       model.Confidence{Score: 0, Level: model.LevelLow},
				NeedsReview:      true,
				ReviewReason:     "provider response unparseable",
				ExpectedActiveID: expectedActiveID,
			}, &expectedActiveID, result); err != nil {
				p.logger.Warn("review commit failed", "competitor", competitorID, "err", err)
			}
			continue
		}

		// Weak evidentiary support is adjudicated, not guessed at.
		if cand.RawConfidence < minRawConfidence {
			if _, err := p.commitWithRetry(ledger.CommitRequest{
				Candidate:        cand,
				Confidence:       model.Confidence{Score: 0, Level: model.LevelLow},
				NeedsReview:      true,
				ReviewReason:     fmt.Sprintf("raw extraction confidence %.2f below %.2f floor", cand.RawConfidence, minRawConfidence),
				ExpectedActiveID: expectedActiveID,
			}, &expectedActiveID, result); err != nil {
				p.logger.Warn("review commit failed", "competitor", competitorID, "err", err)
			}
			continue
		}
		sound = append(sound, cand)
	}

	if len(sound) == 0 {
		return nil
	}

	points := make([]score.DataPoint, 0, len(sound))
	for _, cand := range sound {
		points = append(points, score.DataPoint{
			SourceType: cand.SourceType,
			Value:      extract.PrimaryValue(cand, schema),
			AgeDays:    cand.AgeDays,
		})
	}
	tri := score.Triangulate(points)
	if tri.Value == "" {
		p.logger.Debug("triangulation produced no value",
			"competitor", competitorID, "claim_type", schema.ClaimType)
		return nil
	}

	winner := pickWinner(sound, schema, tri)
	confidence, err := model.NewConfidence(tri.Score)
	if err != nil {
		return err
	}

	res, err := p.commitWithRetry(ledger.CommitRequest{
		Candidate:        winner,
		Confidence:       confidence,
		NeedsReview:      tri.DiscrepancyFlag,
		ReviewReason:     tri.ReviewReason,
		ExpectedActiveID: expectedActiveID,
	}, &expectedActiveID, result)
	if err != nil {
		return err
	}

	if res != nil && (res.Outcome == ledger.OutcomeCreated || res.Outcome == ledger.OutcomeSuperseded) {
		event, err := p.detector.Detect(res.Previous, res.Claim)
		if err != nil {
			return fmt.Errorf("change detection: %w", err)
		}
		if event != nil {
			result.Events++
			if err := p.dispatcher.Dispatch(ctx, *event); err != nil {
				// Alerting is best-effort; the commit already happened.
				p.logger.Warn("dispatch failed", "competitor", competitorID, "err", err)
			}
		}
	}

	return nil
}

// commitWithRetry commits once, and on a supersession conflict re-reads the
// now-current active claim and retries exactly once. A second conflict
// surfaces as a skipped update for this run.
func (p *Pipeline) commitWithRetry(req ledger.CommitRequest, expectedActiveID *string, result *RefreshResult) (*ledger.CommitResult, error) {
	res, err := p.ledger.Commit(req)
	if errors.Is(err, ledger.ErrSupersessionConflict) {
		result.Conflicts++
		active, aerr := p.ledger.ActiveClaim(req.Candidate.Key())
		if aerr != nil {
			return nil, aerr
		}
		req.ExpectedActiveID = ""
		if active != nil {
			req.ExpectedActiveID = active.ID
		}
		*expectedActiveID = req.ExpectedActiveID
		res, err = p.ledger.Commit(req)
		if errors.Is(err, ledger.ErrSupersessionConflict) {
			p.logger.Warn("commit skipped after repeated conflict",
				"key", req.Candidate.Key().String())
			return nil, nil
		}
	}
	if err != nil {
		return nil, err
	}

	// Subsequent commits in this job must expect the claim we just made
	// active.
	if res.Outcome == ledger.OutcomeCreated || res.Outcome == ledger.OutcomeSuperseded {
		*expectedActiveID = res.Claim.ID
	}

	switch res.Outcome {
	case ledger.OutcomeCreated:
		result.Created++
	case ledger.OutcomeSuperseded:
		result.Superseded++
	case ledger.OutcomeNoop:
		result.Noops++
	case ledger.OutcomeReview:
		result.Reviews++
	case ledger.OutcomeDuplicate:
		result.Duplicates++
	}
	return res, nil
}

// pickWinner finds the candidate whose value triangulation selected.
func pickWinner(candidates []*model.Candidate, schema extract.ClaimSchema, tri score.TriangulationResult) *model.Candidate {
	for _, cand := range candidates {
		if cand.SourceType == tri.SourceType && extract.PrimaryValue(cand, schema) == tri.Value {
			return cand
		}
	}
	return candidates[0]
}

func (p *Pipeline) alreadyProcessed(ev model.Evidence, schema extract.ClaimSchema) bool {
	_, found := p.processed.Get(cache.EvidenceKey(ev.ContentHash + "|" + schema.ClaimType))
	return found
}

func (p *Pipeline) markProcessed(ev model.Evidence, schema extract.ClaimSchema) {
	_ = p.processed.Set(cache.EvidenceKey(ev.ContentHash+"|"+schema.ClaimType), []byte("1"), processedTTL)
}
