// Package ledger keeps the append-only CSV progress log of a crawl and the
// resume protocol built on it.
package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Header is the first row of every ledger file.
var Header = []string{
	"log_date",
	"language",
	"base_filter",
	"created_range",
	"pushed_date",
	"page",
	"total_count",
	"incomplete_results",
	"complete_query",
}

const logDateLayout = "2006-01-02 15:04:05.000000"

// Key identifies one query window.
type Key struct {
	Base    string
	Created string
	Pushed  string
}

// Entry is one ledger row. Page 0 marks a window confirmed empty by its probe.
type Entry struct {
	LogDate           time.Time
	Language          string
	Key               Key
	Page              int
	TotalCount        int
	IncompleteResults bool
	CompleteQuery     string
}

func (e Entry) row() []string {
	return []string{
		e.LogDate.UTC().Format(logDateLayout),
		e.Language,
		e.Key.Base,
		e.Key.Created,
		e.Key.Pushed,
		strconv.Itoa(e.Page),
		strconv.Itoa(e.TotalCount),
		strconv.FormatBool(e.IncompleteResults),
		e.CompleteQuery,
	}
}

func parseEntry(row []string) (Entry, error) {
	if len(row) != len(Header) {
		return Entry{}, fmt.Errorf("ledger row has %d columns, want %d", len(row), len(Header))
	}
	logDate, err := time.Parse(logDateLayout, row[0])
	if err != nil {
		return Entry{}, fmt.Errorf("parse log_date: %w", err)
	}
	page, err := strconv.Atoi(row[5])
	if err != nil {
		return Entry{}, fmt.Errorf("parse page: %w", err)
	}
	total, err := strconv.Atoi(row[6])
	if err != nil {
		return Entry{}, fmt.Errorf("parse total_count: %w", err)
	}
	incomplete, err := strconv.ParseBool(row[7])
	if err != nil {
		return Entry{}, fmt.Errorf("parse incomplete_results: %w", err)
	}
	return Entry{
		LogDate:           logDate,
		Language:          row[1],
		Key:               Key{Base: row[2], Created: row[3], Pushed: row[4]},
		Page:              page,
		TotalCount:        total,
		IncompleteResults: incomplete,
		CompleteQuery:     row[8],
	}, nil
}

// Mirror receives a copy of every appended entry, e.g. a database table.
type Mirror interface {
	RecordEntry(ctx context.Context, entry Entry) error
}

// Config controls ledger behavior.
type Config struct {
	// PageSize and MaxPages decide when a logged window counts as complete.
	PageSize int
	MaxPages int
	Mirror   Mirror
	Logger   *zap.Logger
}

// Ledger appends entries to the progress file. It is owned by one run.
type Ledger struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *csv.Writer
	mirror Mirror
	logger *zap.Logger
}

// Create starts a fresh ledger at path, replacing any previous file.
func Create(path string, cfg Config) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	if err := writeAll(path, nil); err != nil {
		return nil, err
	}
	return openAppend(path, cfg)
}

// Resume loads an existing ledger, drops every entry of the window named by
// the last row, rewrites the file without them, and reopens it for appending.
// A missing file behaves like Create and yields an empty State.
func Resume(path string, cfg Config) (*Ledger, *State, error) {
	entries, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		l, cerr := Create(path, cfg)
		return l, newState(nil, cfg), cerr
	}
	if err != nil {
		return nil, nil, err
	}
	kept, dropped := dropLastWindow(entries)
	if err := writeAll(path, kept); err != nil {
		return nil, nil, err
	}
	state := newState(kept, cfg)
	if len(entries) > 0 {
		state.resumeDay = entries[len(entries)-1].Key.Pushed
	}
	l, err := openAppend(path, cfg)
	if err != nil {
		return nil, nil, err
	}
	l.logger.Info("ledger resumed",
		zap.String("path", path),
		zap.Int("entries", len(kept)),
		zap.Int("dropped", dropped),
		zap.String("resume_day", state.resumeDay),
	)
	return l, state, nil
}

// Load reads every entry of a ledger file in file order.
func Load(path string) ([]Entry, error) {
	// #nosec G304 -- ledger path comes from operator configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Header)
	var entries []Entry
	for line := 1; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ledger line %d: %w", line, err)
		}
		if line == 1 && row[0] == Header[0] {
			continue
		}
		entry, err := parseEntry(row)
		if err != nil {
			return nil, fmt.Errorf("ledger line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Append writes one entry and syncs it to disk before returning.
func (l *Ledger) Append(ctx context.Context, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Write(entry.row()); err != nil {
		return fmt.Errorf("write ledger row: %w", err)
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	if l.mirror != nil {
		if err := l.mirror.RecordEntry(ctx, entry); err != nil {
			l.logger.Warn("ledger mirror failed", zap.String("window", entry.Key.Created), zap.Error(err))
		}
	}
	return nil
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// Close flushes and closes the file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	return nil
}

func openAppend(path string, cfg Config) (*Ledger, error) {
	// #nosec G304 -- ledger path comes from operator configuration.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open ledger for append: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		path:   path,
		file:   f,
		writer: csv.NewWriter(f),
		mirror: cfg.Mirror,
		logger: logger,
	}, nil
}

// writeAll replaces path with a header plus entries via a temp file rename.
func writeAll(path string, entries []Entry) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	w := csv.NewWriter(tmp)
	if err := w.Write(Header); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("write ledger header: %w", err)
	}
	for _, e := range entries {
		if err := w.Write(e.row()); err != nil {
			tmp.Close() //nolint:errcheck,gosec // already failing
			return fmt.Errorf("write ledger row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("flush ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close ledger temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

// dropLastWindow removes every entry sharing the last row's window.
func dropLastWindow(entries []Entry) ([]Entry, int) {
	if len(entries) == 0 {
		return nil, 0
	}
	suspect := entries[len(entries)-1].Key
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Key != suspect {
			kept = append(kept, e)
		}
	}
	return kept, len(entries) - len(kept)
}
