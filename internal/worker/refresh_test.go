package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/competia/internal/extract"
	"github.com/ppiankov/competia/internal/pipeline"
)

// fakeRefresher returns scripted results per competitor.
type fakeRefresher struct {
	mu      sync.Mutex
	results map[string]*pipeline.RefreshResult
	calls   []string
	block   time.Duration
}

func (f *fakeRefresher) RefreshCompetitor(ctx context.Context, competitorID string, schemas []extract.ClaimSchema) *pipeline.RefreshResult {
	f.mu.Lock()
	f.calls = append(f.calls, competitorID)
	f.mu.Unlock()

	if f.block > 0 {
		select {
		case <-ctx.Done():
			return &pipeline.RefreshResult{
				CompetitorID: competitorID,
				Errors:       []string{ctx.Err().Error()},
			}
		case <-time.After(f.block):
		}
	}
	if r, ok := f.results[competitorID]; ok {
		return r
	}
	return &pipeline.RefreshResult{CompetitorID: competitorID}
}

func TestRunnerAggregatesSummary(t *testing.T) {
	refresher := &fakeRefresher{results: map[string]*pipeline.RefreshResult{
		"acme":   {CompetitorID: "acme", Created: 2, Events: 2},
		"globex": {CompetitorID: "globex", Superseded: 1, Conflicts: 1, Events: 1},
		"initech": {
			CompetitorID: "initech",
			Errors:       []string{"evidence: permission denied"},
		},
	}}

	runner := NewRunner(refresher, 2, 0, 0, nil)
	summary := runner.Run(context.Background(), []string{"acme", "globex", "initech"}, nil)

	if summary.Competitors != 3 {
		t.Errorf("competitors = %d, want 3", summary.Competitors)
	}
	if summary.Created != 2 || summary.Superseded != 1 {
		t.Errorf("created/superseded = %d/%d, want 2/1", summary.Created, summary.Superseded)
	}
	if summary.Conflicts != 1 {
		t.Errorf("conflicts = %d, want 1", summary.Conflicts)
	}
	if summary.Events != 3 {
		t.Errorf("events = %d, want 3", summary.Events)
	}
	if summary.Failures != 1 {
		t.Errorf("failures = %d, want 1 (one competitor failed)", summary.Failures)
	}
	if len(refresher.calls) != 3 {
		t.Errorf("refresher called %d times, want 3", len(refresher.calls))
	}
}

func TestRunnerJobTimeout(t *testing.T) {
	refresher := &fakeRefresher{block: 10 * time.Second}

	runner := NewRunner(refresher, 1, 0, 50*time.Millisecond, nil)
	start := time.Now()
	summary := runner.Run(context.Background(), []string{"acme"}, nil)

	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("run took %s, timeout not applied", elapsed)
	}
	if summary.Failures != 1 {
		t.Errorf("failures = %d, want 1 (timed-out job)", summary.Failures)
	}
}

func TestRefreshJobResultError(t *testing.T) {
	ok := &RefreshJobResult{Result: &pipeline.RefreshResult{CompetitorID: "acme"}}
	if ok.GetError() != nil {
		t.Errorf("clean result reported error %v", ok.GetError())
	}

	failed := &RefreshJobResult{Result: &pipeline.RefreshResult{
		CompetitorID: "acme",
		Errors:       []string{"boom"},
	}}
	if failed.GetError() == nil {
		t.Error("failed result reported no error")
	}
}
