package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/competia/internal/model"
)

// EvidenceSource is the read-only seam to the ingestion collaborator.
// Scraping mechanics live behind it, not in this core.
type EvidenceSource interface {
	// Evidence returns the evidence currently held for a competitor.
	Evidence(ctx context.Context, competitorID string) ([]model.Evidence, error)
}

// FileEvidenceSource reads evidence dropped as JSON files under
// <dir>/<competitor-id>/*.json by the ingestion collaborator.
type FileEvidenceSource struct {
	dir string
}

// NewFileEvidenceSource creates a file-backed evidence source.
func NewFileEvidenceSource(dir string) *FileEvidenceSource {
	return &FileEvidenceSource{dir: dir}
}

// evidenceFile is the on-disk drop format. Missing ids and hashes are
// derived; missing timestamps default to the file's modification time.
type evidenceFile struct {
	ID          string `json:"id,omitempty"`
	SourceType  string `json:"source_type"`
	ContentText string `json:"content_text"`
	FetchedAt   string `json:"fetched_at,omitempty"`
}

// Evidence loads all evidence files for one competitor.
func (s *FileEvidenceSource) Evidence(ctx context.Context, competitorID string) ([]model.Evidence, error) {
	dir := filepath.Join(s.dir, competitorID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read evidence dir: %w", err)
	}

	var evidence []model.Evidence
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read evidence %s: %w", path, err)
		}
		var ef evidenceFile
		if err := json.Unmarshal(data, &ef); err != nil {
			return nil, fmt.Errorf("decode evidence %s: %w", path, err)
		}

		ev := model.Evidence{
			ID:           ef.ID,
			CompetitorID: competitorID,
			SourceType:   model.ParseSourceType(ef.SourceType),
			Content:      ef.ContentText,
			ContentHash:  model.HashContent(ef.ContentText),
		}
		if ev.ID == "" {
			ev.ID = strings.TrimSuffix(entry.Name(), ".json")
		}
		if ef.FetchedAt != "" {
			if t, err := time.Parse(time.RFC3339, ef.FetchedAt); err == nil {
				ev.FetchedAt = t
			}
		}
		if ev.FetchedAt.IsZero() {
			if info, err := entry.Info(); err == nil {
				ev.FetchedAt = info.ModTime().UTC()
			}
		}
		evidence = append(evidence, ev)
	}

	return evidence, nil
}

// StaticEvidenceSource serves a fixed evidence set. Used in tests and as a
// stand-in when wiring a real collaborator.
type StaticEvidenceSource map[string][]model.Evidence

// Evidence returns the fixed evidence for a competitor.
func (s StaticEvidenceSource) Evidence(ctx context.Context, competitorID string) ([]model.Evidence, error) {
	return s[competitorID], nil
}
