package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/ppiankov/competia/internal/model"
)

// Outcome classifies what a commit did.
type Outcome string

const (
	OutcomeCreated    Outcome = "created"    // first active claim for the key
	OutcomeSuperseded Outcome = "superseded" // replaced the previous active claim
	OutcomeNoop       Outcome = "noop"       // identical payload, nothing written
	OutcomeReview     Outcome = "review"     // parked as review_required
	OutcomeDuplicate  Outcome = "duplicate"  // replayed candidate, deduplicated
)

// CommitRequest carries one scored candidate into the ledger.
type CommitRequest struct {
	Candidate  *model.Candidate
	Confidence model.Confidence

	// NeedsReview forces review_required regardless of score (parse
	// failures, triangulation discrepancies).
	NeedsReview bool

	// ReviewReason explains a forced review for the human queue.
	ReviewReason string

	// ExpectedActiveID is the active claim id the caller observed when its
	// job started ("" for none). A mismatch at commit time means another
	// writer won the race and the commit is refused.
	ExpectedActiveID string
}

// CommitResult reports the transition the ledger performed.
type CommitResult struct {
	Outcome  Outcome
	Claim    *model.Claim // the claim now representing the candidate
	Previous *model.Claim // superseded claim, set only on OutcomeSuperseded
}

// Commit drives the claim state machine for the candidate's key:
//
//   - no active claim        -> insert active (or review_required below MinScore)
//   - identical payload      -> no-op, nothing written
//   - acceptable new payload -> insert active, supersede old atomically
//   - score below MinScore   -> insert review_required, active untouched
//
// Commits are idempotent across retries and process restarts: the candidate
// content hash is recorded and replays return OutcomeDuplicate. One writer
// per key runs at a time; a stale ExpectedActiveID yields
// ErrSupersessionConflict and nothing is written.
func (l *Ledger) Commit(req CommitRequest) (*CommitResult, error) {
	if req.Candidate == nil {
		return nil, errors.New("ledger: nil candidate")
	}
	key := req.Candidate.Key()

	mu := l.keyLock(key)
	mu.Lock()
	defer mu.Unlock()

	var result *CommitResult
	err := l.db.Update(func(txn *badger.Txn) error {
		r, err := l.commitTxn(txn, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("claim commit",
		"key", key.String(),
		"outcome", string(result.Outcome),
		"claim", result.Claim.ID,
		"score", result.Claim.Confidence.Score)
	return result, nil
}

func (l *Ledger) commitTxn(txn *badger.Txn, req CommitRequest) (*CommitResult, error) {
	cand := req.Candidate
	key := cand.Key()
	now := time.Now().UTC()

	// At-least-once delivery: a replayed candidate commits nothing twice.
	idem := commitKey(cand.ContentHash())
	if item, err := txn.Get([]byte(idem)); err == nil {
		var committedID string
		if err := item.Value(func(v []byte) error {
			committedID = string(v)
			return nil
		}); err != nil {
			return nil, err
		}
		claim, err := getClaim(txn, committedID)
		if err != nil {
			return nil, err
		}
		return &CommitResult{Outcome: OutcomeDuplicate, Claim: claim}, nil
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, err
	}

	activeID, err := getActiveID(txn, key)
	if err != nil {
		return nil, err
	}

	// Optimistic lock: the active claim must still be the one the job saw.
	if activeID != req.ExpectedActiveID {
		return nil, fmt.Errorf("%w: key %s: expected active %q, found %q",
			ErrSupersessionConflict, key.String(), req.ExpectedActiveID, activeID)
	}

	var active *model.Claim
	if activeID != "" {
		active, err = getClaim(txn, activeID)
		if err != nil {
			return nil, err
		}
	}

	// Identical payload is a no-op: no new version, no event, and no
	// idempotency marker needed since replays will no-op the same way.
	if active != nil && samePayload(active.ClaimData, cand.Fields) {
		return &CommitResult{Outcome: OutcomeNoop, Claim: active}, nil
	}

	claim := &model.Claim{
		ID:            uuid.NewString(),
		CompetitorID:  cand.CompetitorID,
		ClaimType:     cand.ClaimType,
		ClaimSubtype:  cand.ClaimSubtype,
		ClaimData:     cand.Fields,
		EvidenceIDs:   cand.EvidenceIDs,
		EvidenceQuote: cand.PrimaryQuote(),
		Confidence:    req.Confidence,
		ValidFrom:     now,
	}
	if claim.ClaimData == nil {
		claim.ClaimData = map[string]any{}
	}

	park := req.NeedsReview || cand.NeedsReview || req.Confidence.Score < l.minScore
	if park {
		claim.Status = model.StatusReviewRequired
		if cand.RawText != "" {
			claim.ClaimData["_raw_text"] = cand.RawText
		}
		if req.ReviewReason != "" {
			claim.ClaimData["_review_reason"] = req.ReviewReason
		}
		if err := l.insert(txn, claim, now); err != nil {
			return nil, err
		}
		if err := txn.Set([]byte(idem), []byte(claim.ID)); err != nil {
			return nil, err
		}
		return &CommitResult{Outcome: OutcomeReview, Claim: claim}, nil
	}

	claim.Status = model.StatusActive
	if err := l.insert(txn, claim, now); err != nil {
		return nil, err
	}
	if err := txn.Set([]byte(activeKey(key)), []byte(claim.ID)); err != nil {
		return nil, err
	}
	if err := txn.Set([]byte(idem), []byte(claim.ID)); err != nil {
		return nil, err
	}

	if active == nil {
		return &CommitResult{Outcome: OutcomeCreated, Claim: claim}, nil
	}

	// Supersession happens in the same transaction as the insert: the old
	// claim flips exactly once, atomically with its successor.
	active.Status = model.StatusSuperseded
	active.ValidTo = &now
	active.SupersededBy = claim.ID
	if err := putClaim(txn, active); err != nil {
		return nil, err
	}

	return &CommitResult{Outcome: OutcomeSuperseded, Claim: claim, Previous: active}, nil
}

func (l *Ledger) insert(txn *badger.Txn, claim *model.Claim, now time.Time) error {
	if err := putClaim(txn, claim); err != nil {
		return err
	}
	return txn.Set([]byte(byKeyIndex(claim.Key(), now, claim.ID)), []byte(claim.ID))
}

// Override applies a manual decision to a claim, bypassing scoring.
// Forcing a claim active supersedes the current active claim for its key;
// rejecting an active claim clears the key's active slot.
func (l *Ledger) Override(id string, status model.ClaimStatus, validatedBy string) (*model.Claim, error) {
	if status != model.StatusActive && status != model.StatusRejected {
		return nil, fmt.Errorf("ledger: override to %q not allowed", status)
	}
	if validatedBy == "" {
		validatedBy = "human"
	}

	var updated *model.Claim
	err := l.db.Update(func(txn *badger.Txn) error {
		claim, err := getClaim(txn, id)
		if err != nil {
			return err
		}
		key := claim.Key()
		now := time.Now().UTC()

		activeID, err := getActiveID(txn, key)
		if err != nil {
			return err
		}

		switch status {
		case model.StatusActive:
			if activeID != "" && activeID != id {
				prev, err := getClaim(txn, activeID)
				if err != nil {
					return err
				}
				prev.Status = model.StatusSuperseded
				prev.ValidTo = &now
				prev.SupersededBy = id
				if err := putClaim(txn, prev); err != nil {
					return err
				}
			}
			claim.Status = model.StatusActive
			claim.ValidTo = nil
			claim.SupersededBy = ""
			if err := txn.Set([]byte(activeKey(key)), []byte(id)); err != nil {
				return err
			}
		case model.StatusRejected:
			claim.Status = model.StatusRejected
			if activeID == id {
				if err := txn.Delete([]byte(activeKey(key))); err != nil {
					return err
				}
			}
		}

		claim.ValidatedBy = validatedBy
		if err := putClaim(txn, claim); err != nil {
			return err
		}
		updated = claim
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("claim override", "claim", id, "status", string(status), "validated_by", validatedBy)
	return updated, nil
}

// samePayload compares claim payloads by canonical JSON, which normalizes
// map ordering and numeric decoding differences.
func samePayload(a map[string]any, b map[string]any) bool {
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}
