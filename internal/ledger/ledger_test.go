package ledger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/competia/internal/model"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	led, err := OpenInMemory(40)
	require.NoError(t, err)
	t.Cleanup(func() { _ = led.Close() })
	return led
}

func testCandidate(value string) *model.Candidate {
	return &model.Candidate{
		CompetitorID: "acme",
		ClaimType:    "pricing",
		SourceType:   model.SourceWebsite,
		Fields:       map[string]any{"monthly_price": value},
		Quotes:       map[string]string{"monthly_price": value + " per month"},
		EvidenceIDs:  []string{"ev-" + value},
	}
}

func mustConfidence(t *testing.T, score int) model.Confidence {
	t.Helper()
	c, err := model.NewConfidence(score)
	require.NoError(t, err)
	return c
}

func TestCommitCreatesFirstActiveClaim(t *testing.T) {
	led := testLedger(t)

	res, err := led.Commit(CommitRequest{
		Candidate:  testCandidate("$99"),
		Confidence: mustConfidence(t, 80),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, model.StatusActive, res.Claim.Status)
	assert.Equal(t, "$99 per month", res.Claim.EvidenceQuote)
	assert.Nil(t, res.Claim.ValidTo)

	active, err := led.ActiveClaim(res.Claim.Key())
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, res.Claim.ID, active.ID)
}

func TestCommitSupersedesOldClaim(t *testing.T) {
	led := testLedger(t)

	first, err := led.Commit(CommitRequest{
		Candidate:  testCandidate("$99"),
		Confidence: mustConfidence(t, 80),
	})
	require.NoError(t, err)

	second, err := led.Commit(CommitRequest{
		Candidate:        testCandidate("$120"),
		Confidence:       mustConfidence(t, 85),
		ExpectedActiveID: first.Claim.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuperseded, second.Outcome)
	require.NotNil(t, second.Previous)
	assert.Equal(t, first.Claim.ID, second.Previous.ID)
	assert.Equal(t, model.StatusSuperseded, second.Previous.Status)
	assert.Equal(t, second.Claim.ID, second.Previous.SupersededBy)
	assert.NotNil(t, second.Previous.ValidTo)

	// The old version is still readable.
	old, err := led.Get(first.Claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuperseded, old.Status)

	active, err := led.ActiveClaim(second.Claim.Key())
	require.NoError(t, err)
	assert.Equal(t, second.Claim.ID, active.ID)
}

func TestCommitChainKeepsSingleActive(t *testing.T) {
	led := testLedger(t)
	key := model.ClaimKey{CompetitorID: "acme", ClaimType: "pricing"}

	expected := ""
	for i := 0; i < 5; i++ {
		res, err := led.Commit(CommitRequest{
			Candidate:        testCandidate(fmt.Sprintf("$%d", 100+i)),
			Confidence:       mustConfidence(t, 80),
			ExpectedActiveID: expected,
		})
		require.NoError(t, err)
		expected = res.Claim.ID
	}

	history, err := led.History(key)
	require.NoError(t, err)
	require.Len(t, history, 5)

	activeCount := 0
	for _, c := range history {
		if c.Status == model.StatusActive {
			activeCount++
		} else {
			assert.Equal(t, model.StatusSuperseded, c.Status)
			assert.NotEmpty(t, c.SupersededBy)
		}
	}
	assert.Equal(t, 1, activeCount, "exactly one active claim per key")

	// Supersession chain links every version to its successor.
	for i := 0; i < 4; i++ {
		assert.Equal(t, history[i+1].ID, history[i].SupersededBy)
	}
}

func TestCommitIdenticalPayloadIsNoop(t *testing.T) {
	led := testLedger(t)

	first, err := led.Commit(CommitRequest{
		Candidate:  testCandidate("$99"),
		Confidence: mustConfidence(t, 80),
	})
	require.NoError(t, err)

	// Same value extracted from fresh evidence: confirms, never versions.
	confirming := testCandidate("$99")
	confirming.EvidenceIDs = []string{"ev-later"}
	again, err := led.Commit(CommitRequest{
		Candidate:        confirming,
		Confidence:       mustConfidence(t, 80),
		ExpectedActiveID: first.Claim.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, again.Outcome)
	assert.Equal(t, first.Claim.ID, again.Claim.ID)

	history, err := led.History(first.Claim.Key())
	require.NoError(t, err)
	assert.Len(t, history, 1, "no new version for an identical payload")
}

func TestCommitBelowMinScoreParksForReview(t *testing.T) {
	led := testLedger(t)

	first, err := led.Commit(CommitRequest{
		Candidate:  testCandidate("$99"),
		Confidence: mustConfidence(t, 80),
	})
	require.NoError(t, err)

	low, err := led.Commit(CommitRequest{
		Candidate:        testCandidate("$5"),
		Confidence:       mustConfidence(t, 25),
		ExpectedActiveID: first.Claim.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReview, low.Outcome)
	assert.Equal(t, model.StatusReviewRequired, low.Claim.Status)

	// The active claim is untouched.
	active, err := led.ActiveClaim(first.Claim.Key())
	require.NoError(t, err)
	assert.Equal(t, first.Claim.ID, active.ID)
	assert.Equal(t, model.StatusActive, active.Status)
}

func TestCommitForcedReviewCarriesReason(t *testing.T) {
	led := testLedger(t)

	cand := testCandidate("$99")
	cand.NeedsReview = true
	cand.RawText = "not json at all"

	res, err := led.Commit(CommitRequest{
		Candidate:    cand,
		Confidence:   mustConfidence(t, 0),
		NeedsReview:  true,
		ReviewReason: "provider response unparseable",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReview, res.Outcome)
	assert.Equal(t, "not json at all", res.Claim.ClaimData["_raw_text"])
	assert.Equal(t, "provider response unparseable", res.Claim.ClaimData["_review_reason"])
}

func TestCommitDuplicateReplay(t *testing.T) {
	led := testLedger(t)

	first, err := led.Commit(CommitRequest{
		Candidate:  testCandidate("$99"),
		Confidence: mustConfidence(t, 80),
	})
	require.NoError(t, err)

	// Supersede so the replayed candidate is no longer the active payload.
	second, err := led.Commit(CommitRequest{
		Candidate:        testCandidate("$120"),
		Confidence:       mustConfidence(t, 80),
		ExpectedActiveID: first.Claim.ID,
	})
	require.NoError(t, err)

	replay, err := led.Commit(CommitRequest{
		Candidate:        testCandidate("$99"),
		Confidence:       mustConfidence(t, 80),
		ExpectedActiveID: second.Claim.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, replay.Outcome)
	assert.Equal(t, first.Claim.ID, replay.Claim.ID, "replay resolves to the original commit")

	history, err := led.History(first.Claim.Key())
	require.NoError(t, err)
	assert.Len(t, history, 2, "replay wrote nothing")
}

func TestCommitStaleExpectedActiveIDConflicts(t *testing.T) {
	led := testLedger(t)

	first, err := led.Commit(CommitRequest{
		Candidate:  testCandidate("$99"),
		Confidence: mustConfidence(t, 80),
	})
	require.NoError(t, err)

	// A racing writer superseded the claim this job read at start.
	_, err = led.Commit(CommitRequest{
		Candidate:        testCandidate("$110"),
		Confidence:       mustConfidence(t, 80),
		ExpectedActiveID: first.Claim.ID,
	})
	require.NoError(t, err)

	_, err = led.Commit(CommitRequest{
		Candidate:        testCandidate("$120"),
		Confidence:       mustConfidence(t, 80),
		ExpectedActiveID: first.Claim.ID, // stale
	})
	assert.ErrorIs(t, err, ErrSupersessionConflict)
}

func TestCommitConcurrentSupersessionSingleWinner(t *testing.T) {
	led := testLedger(t)

	first, err := led.Commit(CommitRequest{
		Candidate:  testCandidate("$99"),
		Confidence: mustConfidence(t, 80),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = led.Commit(CommitRequest{
				Candidate:        testCandidate(fmt.Sprintf("$%d", 200+i)),
				Confidence:       mustConfidence(t, 80),
				ExpectedActiveID: first.Claim.ID,
			})
		}(i)
	}
	wg.Wait()

	conflicts := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrSupersessionConflict)
			conflicts++
		}
	}
	assert.Equal(t, 1, conflicts, "exactly one writer wins the race")

	history, err := led.History(first.Claim.Key())
	require.NoError(t, err)
	assert.Len(t, history, 2)

	activeCount := 0
	for _, c := range history {
		if c.Status == model.StatusActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount, "never two active claims for one key")
}

func TestOverrideReject(t *testing.T) {
	led := testLedger(t)

	res, err := led.Commit(CommitRequest{
		Candidate:  testCandidate("$99"),
		Confidence: mustConfidence(t, 80),
	})
	require.NoError(t, err)

	rejected, err := led.Override(res.Claim.ID, model.StatusRejected, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)
	assert.Equal(t, "human", rejected.ValidatedBy)

	active, err := led.ActiveClaim(res.Claim.Key())
	require.NoError(t, err)
	assert.Nil(t, active, "rejecting the active claim clears the slot")
}

func TestOverrideForceActive(t *testing.T) {
	led := testLedger(t)

	review, err := led.Commit(CommitRequest{
		Candidate:  testCandidate("$99"),
		Confidence: mustConfidence(t, 25), // below MinScore, parked
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeReview, review.Outcome)

	promoted, err := led.Override(review.Claim.ID, model.StatusActive, "analyst")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, promoted.Status)
	assert.Equal(t, "analyst", promoted.ValidatedBy)

	active, err := led.ActiveClaim(review.Claim.Key())
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, review.Claim.ID, active.ID)
}

func TestOverrideForceActiveSupersedesCurrent(t *testing.T) {
	led := testLedger(t)

	current, err := led.Commit(CommitRequest{
		Candidate:  testCandidate("$99"),
		Confidence: mustConfidence(t, 80),
	})
	require.NoError(t, err)

	parked, err := led.Commit(CommitRequest{
		Candidate:        testCandidate("$150"),
		Confidence:       mustConfidence(t, 30),
		ExpectedActiveID: current.Claim.ID,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeReview, parked.Outcome)

	_, err = led.Override(parked.Claim.ID, model.StatusActive, "analyst")
	require.NoError(t, err)

	old, err := led.Get(current.Claim.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuperseded, old.Status)
	assert.Equal(t, parked.Claim.ID, old.SupersededBy)
}

func TestOverrideDisallowedStatus(t *testing.T) {
	led := testLedger(t)

	res, err := led.Commit(CommitRequest{
		Candidate:  testCandidate("$99"),
		Confidence: mustConfidence(t, 80),
	})
	require.NoError(t, err)

	_, err = led.Override(res.Claim.ID, model.StatusSuperseded, "analyst")
	assert.Error(t, err)
}

func TestMarkEventDedup(t *testing.T) {
	led := testLedger(t)

	first, err := led.MarkEvent("old-1", "new-1")
	require.NoError(t, err)
	assert.True(t, first)

	replay, err := led.MarkEvent("old-1", "new-1")
	require.NoError(t, err)
	assert.False(t, replay)

	other, err := led.MarkEvent("old-1", "new-2")
	require.NoError(t, err)
	assert.True(t, other)
}

func TestGetUnknownClaim(t *testing.T) {
	led := testLedger(t)

	_, err := led.Get("no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubtypeSeparatesKeys(t *testing.T) {
	led := testLedger(t)

	base := testCandidate("$99")
	sub := testCandidate("$499")
	sub.ClaimSubtype = "enterprise"

	_, err := led.Commit(CommitRequest{Candidate: base, Confidence: mustConfidence(t, 80)})
	require.NoError(t, err)
	res, err := led.Commit(CommitRequest{Candidate: sub, Confidence: mustConfidence(t, 80)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome, "distinct subtype is a distinct fact")

	baseActive, err := led.ActiveClaim(base.Key())
	require.NoError(t, err)
	subActive, err := led.ActiveClaim(sub.Key())
	require.NoError(t, err)
	assert.NotEqual(t, baseActive.ID, subActive.ID)
}
