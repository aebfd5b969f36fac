package score

import (
	"testing"

	"github.com/ppiankov/competia/internal/model"
)

func TestTriangulateAuthoritativeWins(t *testing.T) {
	// A filing beats a website scrape regardless of list order.
	points := []DataPoint{
		{SourceType: model.SourceWebsite, Value: "$99"},
		{SourceType: model.SourceFiling, Value: "$120"},
	}

	res := Triangulate(points)
	if res.Value != "$120" {
		t.Errorf("value = %q, want %q", res.Value, "$120")
	}
	if res.SourceType != model.SourceFiling {
		t.Errorf("source = %s, want %s", res.SourceType, model.SourceFiling)
	}
	if res.DiscrepancyFlag {
		t.Error("discrepancy flag set for authoritative win")
	}
	// 50 + 30 + 5 (one corroborating source) + 10 = 95
	if res.Score != 95 {
		t.Errorf("score = %d, want 95 (breakdown %+v)", res.Score, res.Breakdown)
	}

	reversed := Triangulate([]DataPoint{points[1], points[0]})
	if reversed.Value != res.Value || reversed.Score != res.Score {
		t.Errorf("result depends on input order: %+v vs %+v", reversed, res)
	}
}

func TestTriangulateAuthorityOrder(t *testing.T) {
	points := []DataPoint{
		{SourceType: model.SourceManualVerified, Value: "manual"},
		{SourceType: model.SourceDatabase, Value: "db"},
		{SourceType: model.SourceAPIVerified, Value: "api"},
	}

	res := Triangulate(points)
	if res.Value != "api" {
		t.Errorf("value = %q, want api_verified to outrank database and manual_verified", res.Value)
	}
}

func TestTriangulateNoAuthoritativeSource(t *testing.T) {
	points := []DataPoint{
		{SourceType: model.SourceWebsite, Value: "$49"},
		{SourceType: model.SourceNews, Value: "$59"},
	}

	res := Triangulate(points)
	if res.Value != "$49" {
		t.Errorf("value = %q, want first non-empty value", res.Value)
	}
	if !res.DiscrepancyFlag {
		t.Error("discrepancy flag not set without an authoritative source")
	}
	if res.ReviewReason == "" {
		t.Error("review reason missing")
	}
	// No corroboration credit without an authoritative winner.
	if res.Breakdown.CorroborationBonus != 0 {
		t.Errorf("corroboration bonus = %d, want 0", res.Breakdown.CorroborationBonus)
	}
}

func TestTriangulateEmptyList(t *testing.T) {
	res := Triangulate(nil)
	if res.Score != 0 {
		t.Errorf("score = %d, want 0", res.Score)
	}
	if res.Level != model.LevelLow {
		t.Errorf("level = %s, want %s", res.Level, model.LevelLow)
	}
	if !res.DiscrepancyFlag {
		t.Error("discrepancy flag not set for empty input")
	}
}

func TestTriangulateSkipsEmptyValues(t *testing.T) {
	points := []DataPoint{
		{SourceType: model.SourceFiling, Value: ""},
		{SourceType: model.SourceWebsite, Value: "$10"},
	}

	res := Triangulate(points)
	if res.Value != "$10" {
		t.Errorf("value = %q, want the non-empty fallback", res.Value)
	}
	if !res.DiscrepancyFlag {
		t.Error("discrepancy flag not set when the authoritative value is empty")
	}

	allEmpty := Triangulate([]DataPoint{{SourceType: model.SourceWebsite, Value: ""}})
	if allEmpty.Score != 0 || !allEmpty.DiscrepancyFlag {
		t.Errorf("all-empty points: got %+v, want score 0 with discrepancy", allEmpty)
	}
}

func TestTriangulateSingleAuthoritativePoint(t *testing.T) {
	res := Triangulate([]DataPoint{
		{SourceType: model.SourceAPIVerified, Value: "42", AgeDays: 60},
	})
	if res.DiscrepancyFlag {
		t.Error("single authoritative point should not be flagged")
	}
	// A=50 + 2=25 + 0 corr + 8 bonus - 2 freshness = 81
	if res.Score != 81 {
		t.Errorf("score = %d, want 81 (breakdown %+v)", res.Score, res.Breakdown)
	}
}
