// Package export writes per-video chat transcripts as self-contained JSON
// documents with deterministic filenames, so retried syncs overwrite rather
// than accumulate.
package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/himawari-tv/ytchatsync/model"
	"github.com/himawari-tv/ytchatsync/telemetry"
)

// Metadata describes one export document.
type Metadata struct {
	TotalMessages int    `json:"total_messages"`
	ExportedAt    string `json:"exported_at"` // ISO-8601 UTC
	VideoID       string `json:"video_id"`
}

// Document is the on-disk JSON shape: full video metadata, the ordered
// transcript, and export bookkeeping.
type Document struct {
	VideoInfo    *model.VideoDetail  `json:"video_info"`
	ChatMessages []model.ChatMessage `json:"chat_messages"`
	Metadata     Metadata            `json:"export_metadata"`
}

// Writer persists chat transcripts under Dir, one file per video.
type Writer struct {
	Dir string

	// now is swappable in tests.
	now func() time.Time
}

func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

func (w *Writer) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

// Filename returns the deterministic export filename for a video:
// "{YYYYMMDD}_{videoID}.json", falling back to the current date when the
// upload date is unknown. The fallback sacrifices cross-day determinism to
// keep the name format uniform.
func (w *Writer) Filename(videoID string, detail *model.VideoDetail) string {
	date := ""
	if detail != nil {
		date = detail.UploadDate
	}
	if date == "" {
		date = w.clock().UTC().Format("20060102")
	}
	return fmt.Sprintf("%s_%s.json", date, videoID)
}

// Write serializes the transcript to Dir. The write is atomic: a temp file is
// renamed into place, so a crash never leaves a truncated document. Returns
// the full path of the written file.
func (w *Writer) Write(videoID string, detail *model.VideoDetail, msgs []model.ChatMessage) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	doc := Document{
		VideoInfo:    detail,
		ChatMessages: msgs,
		Metadata: Metadata{
			TotalMessages: len(msgs),
			ExportedAt:    w.clock().UTC().Format(time.RFC3339),
			VideoID:       videoID,
		},
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal export: %w", err)
	}

	path := filepath.Join(w.Dir, w.Filename(videoID, detail))
	tmp, err := os.CreateTemp(w.Dir, ".export-*.json")
	if err != nil {
		return "", fmt.Errorf("create temp export: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("finalize export: %w", err)
	}
	telemetry.IncExportsWritten()
	slog.Default().With(slog.String("component", "export")).Debug("wrote export",
		slog.String("path", path), slog.Int("messages", len(msgs)))
	return path, nil
}

// Read loads one export document from disk.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse export %s: %w", filepath.Base(path), err)
	}
	return &doc, nil
}

// List returns the paths of all export documents in dir, sorted by name.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read export dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}
