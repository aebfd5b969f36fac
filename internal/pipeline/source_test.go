package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/competia/internal/model"
)

func TestFileEvidenceSource(t *testing.T) {
	dir := t.TempDir()
	compDir := filepath.Join(dir, "acme")
	if err := os.MkdirAll(compDir, 0o750); err != nil {
		t.Fatal(err)
	}

	full := `{"id": "ev-1", "source_type": "sec_filing", "content_text": "price is $99", "fetched_at": "2026-08-01T00:00:00Z"}`
	if err := os.WriteFile(filepath.Join(compDir, "filing.json"), []byte(full), 0o644); err != nil {
		t.Fatal(err)
	}
	// No id, no timestamp: both are derived.
	bare := `{"source_type": "website", "content_text": "Pro plan $120"}`
	if err := os.WriteFile(filepath.Join(compDir, "scrape.json"), []byte(bare), 0o644); err != nil {
		t.Fatal(err)
	}
	// Non-JSON files are ignored.
	if err := os.WriteFile(filepath.Join(compDir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatal(err)
	}

	source := NewFileEvidenceSource(dir)
	evidence, err := source.Evidence(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Evidence() error = %v", err)
	}
	if len(evidence) != 2 {
		t.Fatalf("got %d evidence items, want 2", len(evidence))
	}

	byID := make(map[string]model.Evidence)
	for _, ev := range evidence {
		byID[ev.ID] = ev
	}

	filing, ok := byID["ev-1"]
	if !ok {
		t.Fatal("explicit id not honored")
	}
	if filing.SourceType != model.SourceFiling {
		t.Errorf("source type = %s, want filing (sec_filing alias)", filing.SourceType)
	}
	if filing.CompetitorID != "acme" {
		t.Errorf("competitor = %q", filing.CompetitorID)
	}
	if filing.ContentHash != model.HashContent("price is $99") {
		t.Error("content hash not derived from content")
	}
	if filing.FetchedAt.IsZero() {
		t.Error("fetched_at not parsed")
	}

	scrape, ok := byID["scrape"]
	if !ok {
		t.Fatal("missing id not derived from filename")
	}
	if scrape.FetchedAt.IsZero() {
		t.Error("missing fetched_at not defaulted to file mtime")
	}
}

func TestFileEvidenceSourceMissingCompetitor(t *testing.T) {
	source := NewFileEvidenceSource(t.TempDir())
	evidence, err := source.Evidence(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Evidence() error = %v", err)
	}
	if evidence != nil {
		t.Errorf("evidence = %v, want nil for an unknown competitor", evidence)
	}
}
