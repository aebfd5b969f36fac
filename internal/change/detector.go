// Package change diffs committed claim transitions and classifies their
// severity for alerting. Events are deduplicated on the (previous, new)
// claim pair, so reprocessing a transition never alerts twice.
package change

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/competia/internal/model"
)

// Deduper records seen claim pairs. The ledger implements it durably.
type Deduper interface {
	// MarkEvent returns true the first time a pair is seen.
	MarkEvent(previousID, newID string) (bool, error)
}

// fieldSeverity is the static importance table: which changed fields an
// analyst needs to hear about first.
var fieldSeverity = map[string]model.Severity{
	"monthly_price":  model.SeverityHigh,
	"annual_price":   model.SeverityHigh,
	"price":          model.SeverityHigh,
	"amount":         model.SeverityHigh, // funding round size
	"round":          model.SeverityHigh,
	"customer_count": model.SeverityHigh,
	"feature":        model.SeverityMedium,
	"features":       model.SeverityMedium,
	"integration":    model.SeverityMedium,
	"integrations":   model.SeverityMedium,
	"tier_name":      model.SeverityMedium,
	"billing_period": model.SeverityMedium,
}

// claimTypeSeverity classifies by claim type when no individual field
// stands out.
var claimTypeSeverity = map[string]model.Severity{
	"pricing":        model.SeverityHigh,
	"funding":        model.SeverityHigh,
	"customer_count": model.SeverityHigh,
	"feature":        model.SeverityMedium,
	"integration":    model.SeverityMedium,
}

// Detector builds ChangeEvents from committed transitions.
type Detector struct {
	dedup  Deduper
	logger *slog.Logger
}

// NewDetector creates a change detector.
func NewDetector(dedup Deduper, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{dedup: dedup, logger: logger}
}

// Detect diffs the previous active claim against the newly committed one
// and returns a severity-classified event, or nil when the transition
// warrants none (no-op, or an already-emitted pair).
func (d *Detector) Detect(previous *model.Claim, next *model.Claim) (*model.ChangeEvent, error) {
	if next == nil {
		return nil, nil
	}

	previousID := ""
	if previous != nil {
		previousID = previous.ID
	}

	first, err := d.dedup.MarkEvent(previousID, next.ID)
	if err != nil {
		return nil, fmt.Errorf("event dedup: %w", err)
	}
	if !first {
		d.logger.Debug("change event already emitted", "previous", previousID, "new", next.ID)
		return nil, nil
	}

	event := &model.ChangeEvent{
		PreviousClaimID: previousID,
		NewClaimID:      next.ID,
		CompetitorID:    next.CompetitorID,
		ClaimType:       next.ClaimType,
		DetectedAt:      time.Now().UTC(),
	}

	if previous == nil {
		event.ChangeType = model.ChangeNewClaim
		event.Severity = capAtMedium(severityFor(next.ClaimType, fieldNames(next.ClaimData)))
		event.NewValue = next.ClaimData
		event.Summary = fmt.Sprintf("first %s claim recorded for %s", next.ClaimType, next.CompetitorID)
		return event, nil
	}

	changed := changedFields(previous.ClaimData, next.ClaimData)
	event.ChangeType = model.ChangeValueChanged
	event.Severity = severityFor(next.ClaimType, changed)
	event.PreviousValue = previous.ClaimData
	event.NewValue = next.ClaimData
	event.Summary = fmt.Sprintf("%s changed for %s: %s",
		next.ClaimType, next.CompetitorID, strings.Join(changed, ", "))
	return event, nil
}

// severityFor returns the highest severity among the changed fields,
// falling back to the claim type's class, then low.
func severityFor(claimType string, fields []string) model.Severity {
	severity := model.SeverityLow
	for _, f := range fields {
		if s, ok := fieldSeverity[f]; ok && higher(s, severity) {
			severity = s
		}
	}
	if severity == model.SeverityLow {
		if s, ok := claimTypeSeverity[claimType]; ok {
			severity = s
		}
	}
	return severity
}

func higher(a, b model.Severity) bool {
	return rank(a) > rank(b)
}

func rank(s model.Severity) int {
	switch s {
	case model.SeverityHigh:
		return 3
	case model.SeverityMedium:
		return 2
	default:
		return 1
	}
}

// capAtMedium downgrades high to medium; a first-ever claim is news, not a
// change.
func capAtMedium(s model.Severity) model.Severity {
	if s == model.SeverityHigh {
		return model.SeverityMedium
	}
	return s
}

// changedFields lists field names whose values differ between payloads,
// sorted for deterministic summaries.
func changedFields(prev, next map[string]any) []string {
	seen := make(map[string]bool)
	var changed []string
	for name, v := range next {
		if pv, ok := prev[name]; !ok || fmt.Sprint(pv) != fmt.Sprint(v) {
			changed = append(changed, name)
			seen[name] = true
		}
	}
	for name := range prev {
		if _, ok := next[name]; !ok && !seen[name] {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}

func fieldNames(payload map[string]any) []string {
	names := make([]string, 0, len(payload))
	for name := range payload {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
