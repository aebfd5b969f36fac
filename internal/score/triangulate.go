package score

import (
	"github.com/ppiankov/competia/internal/model"
)

// authorityOrder is the fixed precedence scanned during triangulation.
// The first non-empty value from the earliest matching source type wins.
var authorityOrder = []model.SourceType{
	model.SourceFiling,
	model.SourceAPIVerified,
	model.SourceAnalystReport,
	model.SourceDatabase,
	model.SourceManualVerified,
}

// DataPoint is one sourced value for the same fact.
type DataPoint struct {
	SourceType  model.SourceType
	Value       string
	Reliability Reliability // optional, defaults per source type
	Credibility Credibility // optional, defaults per source type
	AgeDays     int
}

// TriangulationResult reconciles a set of same-fact data points into one
// trusted value with a score and a discrepancy flag.
type TriangulationResult struct {
	Value           string                `json:"value,omitempty"`
	SourceType      model.SourceType      `json:"source_type,omitempty"`
	Score           int                   `json:"confidence_score"`
	Level           model.ConfidenceLevel `json:"level"`
	DiscrepancyFlag bool                  `json:"discrepancy_flag"`
	ReviewReason    string                `json:"review_reason,omitempty"`
	Breakdown       Breakdown             `json:"breakdown"`
}

// Triangulate picks the best value from data points describing the same
// fact. Authoritative sources win regardless of list order; a win counts
// every other source as corroboration. Without an authoritative source the
// first non-empty value is used and flagged for review. An empty list
// yields score 0 with the discrepancy flag set.
func Triangulate(points []DataPoint) TriangulationResult {
	if len(points) == 0 {
		return TriangulationResult{
			Score:           0,
			Level:           model.LevelLow,
			DiscrepancyFlag: true,
			ReviewReason:    "no data points to triangulate",
		}
	}

	for _, authoritative := range authorityOrder {
		for _, p := range points {
			if p.SourceType != authoritative || p.Value == "" {
				continue
			}
			a := Calculate(Input{
				SourceType:           p.SourceType,
				Reliability:          p.Reliability,
				Credibility:          p.Credibility,
				CorroboratingSources: len(points) - 1,
				DataAgeDays:          p.AgeDays,
			})
			return TriangulationResult{
				Value:      p.Value,
				SourceType: p.SourceType,
				Score:      a.Score,
				Level:      a.Level,
				Breakdown:  a.Breakdown,
			}
		}
	}

	// No authoritative source: take the first non-empty value, score it
	// without corroboration, and flag the discrepancy.
	for _, p := range points {
		if p.Value == "" {
			continue
		}
		a := Calculate(Input{
			SourceType:  p.SourceType,
			Reliability: p.Reliability,
			Credibility: p.Credibility,
			DataAgeDays: p.AgeDays,
		})
		return TriangulationResult{
			Value:           p.Value,
			SourceType:      p.SourceType,
			Score:           a.Score,
			Level:           a.Level,
			DiscrepancyFlag: true,
			ReviewReason:    "no authoritative source; unverified",
			Breakdown:       a.Breakdown,
		}
	}

	return TriangulationResult{
		Score:           0,
		Level:           model.LevelLow,
		DiscrepancyFlag: true,
		ReviewReason:    "all data points empty",
	}
}
