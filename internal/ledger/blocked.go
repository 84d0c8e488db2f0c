package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// BlockedHeader is the first row of the blocked-units side file.
var BlockedHeader = []string{"log_date", "window_query", "page", "error"}

// Blocked appends windows the crawl gave up on after transport failures.
type Blocked struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// OpenBlocked prepares the side file, writing the header if it is new.
func OpenBlocked(path string, now func() time.Time) (*Blocked, error) {
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create blocked dir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := appendRow(path, BlockedHeader); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat blocked file: %w", err)
	}
	return &Blocked{path: path, now: now}, nil
}

// Record appends one abandoned window. Page 0 means the probe failed.
func (b *Blocked) Record(_ context.Context, query string, page int, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return appendRow(b.path, []string{
		b.now().UTC().Format(logDateLayout),
		query,
		strconv.Itoa(page),
		msg,
	})
}

func appendRow(path string, row []string) error {
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		f.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
