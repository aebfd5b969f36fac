// Package score implements Admiralty-Code-derived confidence scoring and
// multi-source triangulation. Every score is returned with its full
// breakdown so any number in a report can be traced back to its inputs.
package score

import (
	"github.com/ppiankov/competia/internal/model"
)

// Reliability is the Admiralty source-reliability rating, A (best) to F.
type Reliability string

const (
	ReliabilityA Reliability = "A"
	ReliabilityB Reliability = "B"
	ReliabilityC Reliability = "C"
	ReliabilityD Reliability = "D"
	ReliabilityE Reliability = "E"
	ReliabilityF Reliability = "F"
)

// Credibility is the Admiralty information-credibility rating, 1 (best) to 6.
type Credibility int

var reliabilityScores = map[Reliability]int{
	ReliabilityA: 50,
	ReliabilityB: 40,
	ReliabilityC: 30,
	ReliabilityD: 20,
	ReliabilityE: 10,
	ReliabilityF: 5,
}

var credibilityScores = map[Credibility]int{
	1: 30,
	2: 25,
	3: 20,
	4: 15,
	5: 10,
	6: 5,
}

// sourceTypeBonuses adjusts the score per source type, range -10..+10.
var sourceTypeBonuses = map[model.SourceType]int{
	model.SourceFiling:         10,
	model.SourceAPIVerified:    8,
	model.SourceAnalystReport:  5,
	model.SourceManualVerified: 5,
	model.SourceDatabase:       3,
	model.SourceNews:           0,
	model.SourceWebsite:        0,
	model.SourceEstimate:       -5,
	model.SourceUnknown:        -10,
}

// defaultRatings supplies Admiralty ratings when the caller has none.
var defaultRatings = map[model.SourceType]struct {
	reliability Reliability
	credibility Credibility
}{
	model.SourceFiling:         {ReliabilityA, 1},
	model.SourceAPIVerified:    {ReliabilityA, 2},
	model.SourceAnalystReport:  {ReliabilityB, 2},
	model.SourceManualVerified: {ReliabilityB, 2},
	model.SourceDatabase:       {ReliabilityB, 3},
	model.SourceNews:           {ReliabilityC, 3},
	model.SourceWebsite:        {ReliabilityD, 4},
	model.SourceEstimate:       {ReliabilityE, 5},
	model.SourceUnknown:        {ReliabilityF, 6},
}

// DefaultRatings returns the default reliability/credibility pair for a
// source type.
func DefaultRatings(t model.SourceType) (Reliability, Credibility) {
	if d, ok := defaultRatings[t]; ok {
		return d.reliability, d.credibility
	}
	return ReliabilityF, 6
}

// Input is one single-source scoring request.
type Input struct {
	SourceType           model.SourceType
	Reliability          Reliability // empty -> default for SourceType
	Credibility          Credibility // zero -> default for SourceType
	CorroboratingSources int
	DataAgeDays          int
}

// Breakdown exposes every term of the scoring formula.
type Breakdown struct {
	ReliabilityScore   int `json:"reliability_score"`
	CredibilityScore   int `json:"credibility_score"`
	CorroborationBonus int `json:"corroboration_bonus"`
	SourceBonus        int `json:"source_bonus"`
	FreshnessPenalty   int `json:"freshness_penalty"`
	RawScore           int `json:"raw_score"`
	FinalScore         int `json:"final_score"`
}

// Assessment is the result of a confidence calculation.
type Assessment struct {
	Score     int                   `json:"score"`
	Level     model.ConfidenceLevel `json:"level"`
	Breakdown Breakdown             `json:"breakdown"`
}

// Calculate computes the single-source confidence score:
//
//	clamp(reliability + credibility + min(corroborating*5, 15)
//	      + source_type_bonus - min(age_days/30, 15), 0, 100)
func Calculate(in Input) Assessment {
	reliability := in.Reliability
	credibility := in.Credibility
	if reliability == "" || credibility == 0 {
		dr, dc := DefaultRatings(in.SourceType)
		if reliability == "" {
			reliability = dr
		}
		if credibility == 0 {
			credibility = dc
		}
	}

	rScore, ok := reliabilityScores[reliability]
	if !ok {
		rScore = reliabilityScores[ReliabilityF]
	}
	cScore, ok := credibilityScores[credibility]
	if !ok {
		cScore = credibilityScores[6]
	}

	corroboration := in.CorroboratingSources * 5
	if corroboration > 15 {
		corroboration = 15
	}
	if corroboration < 0 {
		corroboration = 0
	}

	freshness := in.DataAgeDays / 30
	if freshness > 15 {
		freshness = 15
	}
	if freshness < 0 {
		freshness = 0
	}

	bonus := sourceTypeBonuses[in.SourceType]

	raw := rScore + cScore + corroboration + bonus - freshness
	final := raw
	if final > 100 {
		final = 100
	}
	if final < 0 {
		final = 0
	}

	return Assessment{
		Score: final,
		Level: model.LevelForScore(final),
		Breakdown: Breakdown{
			ReliabilityScore:   rScore,
			CredibilityScore:   cScore,
			CorroborationBonus: corroboration,
			SourceBonus:        bonus,
			FreshnessPenalty:   freshness,
			RawScore:           raw,
			FinalScore:         final,
		},
	}
}
