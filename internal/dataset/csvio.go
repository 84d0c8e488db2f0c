package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/JakeFAU/search-harvester/internal/harvest"
)

// writeRecords replaces path with the records, optionally preceded by the
// column header, through a temp file rename.
func writeRecords(path string, header bool, records []harvest.Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	w := csv.NewWriter(tmp)
	if header {
		if err := w.Write(harvest.RecordColumns); err != nil {
			tmp.Close() //nolint:errcheck,gosec // already failing
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, rec := range records {
		if err := w.Write(rec.Row()); err != nil {
			tmp.Close() //nolint:errcheck,gosec // already failing
			return fmt.Errorf("write record %d: %w", rec.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// readRecords loads a record file. A leading header row is skipped when
// header is set and required to match RecordColumns.
func readRecords(path string, header bool) ([]harvest.Record, error) {
	// #nosec G304 -- paths come from the dataset layout.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(harvest.RecordColumns)
	var records []harvest.Record
	for line := 1; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", path, line, err)
		}
		if header && line == 1 {
			if !slices.Equal(row, harvest.RecordColumns) {
				return nil, fmt.Errorf("%s: unexpected header %v", path, row)
			}
			continue
		}
		rec, err := harvest.ParseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadCanonical loads a dataset file written by WriteCanonical.
func ReadCanonical(path string) ([]harvest.Record, error) {
	return readRecords(path, true)
}

// WriteCanonical writes records with a header row.
func WriteCanonical(path string, records []harvest.Record) error {
	return writeRecords(path, true, records)
}
