package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/competia/internal/extract"
	"github.com/ppiankov/competia/internal/pipeline"
)

// Refresher runs one competitor pass. Implemented by pipeline.Pipeline.
type Refresher interface {
	RefreshCompetitor(ctx context.Context, competitorID string, schemas []extract.ClaimSchema) *pipeline.RefreshResult
}

// RefreshJob refreshes one competitor under a wall-clock timeout.
type RefreshJob struct {
	CompetitorID string
	Schemas      []extract.ClaimSchema
	Timeout      time.Duration
	Refresher    Refresher
}

// Execute runs the refresh. On timeout the job aborts with whatever
// complete claim transitions it made; nothing is half-committed.
func (j *RefreshJob) Execute(ctx context.Context) Result {
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	return &RefreshJobResult{Result: j.Refresher.RefreshCompetitor(ctx, j.CompetitorID, j.Schemas)}
}

// RefreshJobResult wraps a pipeline result for the pool.
type RefreshJobResult struct {
	Result *pipeline.RefreshResult
}

// GetError surfaces the job-level failure, if any.
func (r *RefreshJobResult) GetError() error {
	if r.Result != nil && r.Result.Failed() {
		return fmt.Errorf("refresh %s: %s", r.Result.CompetitorID, r.Result.Errors[0])
	}
	return nil
}

// RunSummary aggregates a whole refresh run for operational visibility.
type RunSummary struct {
	Competitors int                       `json:"competitors"`
	Failures    int                       `json:"failures"`
	Created     int                       `json:"created"`
	Superseded  int                       `json:"superseded"`
	Reviews     int                       `json:"reviews"`
	Noops       int                       `json:"noops"`
	Conflicts   int                       `json:"conflicts"`
	Events      int                       `json:"events"`
	Results     []*pipeline.RefreshResult `json:"results"`
}

// Runner drives a refresh run over many competitors.
type Runner struct {
	refresher Refresher
	workers   int
	stagger   time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// NewRunner creates a refresh runner.
func NewRunner(refresher Refresher, workers int, stagger, timeout time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		refresher: refresher,
		workers:   workers,
		stagger:   stagger,
		timeout:   timeout,
		logger:    logger,
	}
}

// Run refreshes all competitors concurrently and aggregates the outcome.
// A failing competitor only counts against the summary; it never stops the
// run.
func (r *Runner) Run(ctx context.Context, competitorIDs []string, schemas []extract.ClaimSchema) *RunSummary {
	pool := NewPool(r.workers, r.stagger)
	pool.Start(ctx)

	for _, id := range competitorIDs {
		pool.Submit(ctx, &RefreshJob{
			CompetitorID: id,
			Schemas:      schemas,
			Timeout:      r.timeout,
			Refresher:    r.refresher,
		})
	}

	results := pool.Wait()

	summary := &RunSummary{Competitors: len(results)}
	for _, res := range results {
		jr, ok := res.(*RefreshJobResult)
		if !ok || jr.Result == nil {
			continue
		}
		summary.Results = append(summary.Results, jr.Result)
		summary.Created += jr.Result.Created
		summary.Superseded += jr.Result.Superseded
		summary.Reviews += jr.Result.Reviews
		summary.Noops += jr.Result.Noops
		summary.Conflicts += jr.Result.Conflicts
		summary.Events += jr.Result.Events
		if jr.Result.Failed() {
			summary.Failures++
			r.logger.Warn("competitor refresh failed",
				"competitor", jr.Result.CompetitorID, "errors", jr.Result.Errors)
		}
	}

	r.logger.Info("refresh run complete",
		"competitors", summary.Competitors,
		"failures", summary.Failures,
		"created", summary.Created,
		"superseded", summary.Superseded,
		"reviews", summary.Reviews,
		"conflicts", summary.Conflicts,
		"events", summary.Events)
	return summary
}
