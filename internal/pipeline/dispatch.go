package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/ppiankov/competia/internal/model"
)

// Dispatcher is the write-only seam to the external alert system.
// The core emits events; formatting and delivery live elsewhere.
type Dispatcher interface {
	Dispatch(ctx context.Context, event model.ChangeEvent) error
}

// LogDispatcher emits change events to the structured log. Useful as a
// default sink and in development.
type LogDispatcher struct {
	Logger *slog.Logger
}

// Dispatch logs the event.
func (d *LogDispatcher) Dispatch(ctx context.Context, event model.ChangeEvent) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("change detected",
		"competitor", event.CompetitorID,
		"claim_type", event.ClaimType,
		"change_type", string(event.ChangeType),
		"severity", string(event.Severity),
		"summary", event.Summary)
	return nil
}

// FileDispatcher appends events as JSON lines to a file the alert system
// tails.
type FileDispatcher struct {
	mu   sync.Mutex
	path string
}

// NewFileDispatcher creates a JSONL file dispatcher.
func NewFileDispatcher(path string) *FileDispatcher {
	return &FileDispatcher{path: path}
}

// Dispatch appends one event line.
func (d *FileDispatcher) Dispatch(ctx context.Context, event model.ChangeEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open alert file: %w", err)
	}
	defer func() { _ = f.Close() }()

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
