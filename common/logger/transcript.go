package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TranscriptDateLayout names one transcript file per day, e.g. logs/10-25-2016.txt.
const TranscriptDateLayout = "01-02-2006"

const transcriptExt = ".txt"

type TranscriptOptions struct {
	Dir           string
	RetentionDays int
	// Echo mirrors every transcript line to the default logger.
	Echo bool
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Transcript is the dated append-only record of every network call and
// persistence write made during a run. A nil *Transcript discards everything.
type Transcript struct {
	opts TranscriptOptions
	now  func() time.Time

	mu     sync.Mutex
	day    string
	file   *os.File
	logger *slog.Logger
}

// OpenTranscript prunes expired transcripts in opts.Dir and opens (or
// appends to) the file for the day of now. When a later line is written on a
// different day, the transcript moves to that day's file and prunes again.
func OpenTranscript(opts TranscriptOptions, now time.Time) (*Transcript, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating transcript dir: %w", err)
	}

	t := &Transcript{opts: opts, now: opts.Clock}
	if t.now == nil {
		t.now = time.Now
	}
	if err := t.rotate(now); err != nil {
		return nil, err
	}
	return t, nil
}

// rotate must be called with mu held or before t is shared.
func (t *Transcript) rotate(now time.Time) error {
	if _, err := PruneTranscripts(t.opts.Dir, t.opts.RetentionDays, now); err != nil {
		return err
	}

	day := now.Format(TranscriptDateLayout)
	path := filepath.Join(t.opts.Dir, day+transcriptExt)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening transcript: %w", err)
	}

	if t.file != nil {
		_ = t.file.Close()
	}
	t.day = day
	t.file = f
	t.logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return nil
}

// Path returns the file currently written to.
func (t *Transcript) Path() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Name()
}

// PruneTranscripts deletes transcripts dated retentionDays or more days
// before now and returns the removed paths. Files that do not follow the
// transcript naming scheme are left alone.
func PruneTranscripts(dir string, retentionDays int, now time.Time) ([]string, error) {
	if retentionDays < 1 {
		return nil, fmt.Errorf("transcript retention must be at least 1 day, got %d", retentionDays)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading transcript dir: %w", err)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	cutoff := today.AddDate(0, 0, -retentionDays)

	var removed []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), transcriptExt) {
			continue
		}
		day, err := time.Parse(TranscriptDateLayout, strings.TrimSuffix(e.Name(), transcriptExt))
		if err != nil {
			continue
		}
		if day.After(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("removing transcript %s: %w", path, err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}

// Network records one call to the remote API.
func (t *Transcript) Network(ctx context.Context, method, uri string, status int, elapsed time.Duration, err error) {
	if t == nil {
		return
	}
	attrs := []any{
		"method", method,
		"url", uri,
		"status", status,
		"duration_ms", elapsed.Milliseconds(),
	}
	level := slog.LevelInfo
	if err != nil || status < 200 || status > 299 {
		level = slog.LevelError
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	t.log(ctx, level, "network", attrs...)
}

// Write records one persistence write.
func (t *Transcript) Write(ctx context.Context, statement, key string, err error) {
	if t == nil {
		return
	}
	attrs := []any{
		"statement", statement,
		"key", key,
		"success", err == nil,
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
		attrs = append(attrs, "error", err.Error())
	}
	t.log(ctx, level, "query", attrs...)
}

func (t *Transcript) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	t.mu.Lock()
	if now := t.now(); now.Format(TranscriptDateLayout) != t.day {
		if err := t.rotate(now); err != nil {
			slog.WarnContext(ctx, "transcript rotation failed", "error", err)
		}
	}
	t.logger.Log(ctx, level, msg, attrs...)
	t.mu.Unlock()

	if t.opts.Echo {
		slog.Log(ctx, level, "transcript "+msg, attrs...)
	}
}

func (t *Transcript) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}
