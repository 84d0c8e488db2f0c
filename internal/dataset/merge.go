package dataset

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/search-harvester/internal/harvest"
)

// MergeRecords keeps the last occurrence of every id. The result is ordered by
// the position of each kept occurrence in the input.
func MergeRecords(records []harvest.Record) []harvest.Record {
	last := make(map[int64]int, len(records))
	for i, rec := range records {
		last[rec.ID] = i
	}
	out := make([]harvest.Record, 0, len(last))
	for i, rec := range records {
		if last[rec.ID] == i {
			out = append(out, rec)
		}
	}
	return out
}

// FilterSince keeps records updated on or after since.
func FilterSince(records []harvest.Record, since time.Time) []harvest.Record {
	out := make([]harvest.Record, 0, len(records))
	for _, rec := range records {
		if !rec.UpdatedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out
}

// DedupeResult summarizes one deduplication pass.
type DedupeResult struct {
	Fragments int
	Input     int
	Unique    int
	Written   int
	Path      string
}

// Dedupe concatenates the layout's fragments in crawl order, keeps the last
// occurrence of every id, and writes the canonical dataset. With a non-zero
// since, the unfiltered dataset is kept under AllDatesFile and the canonical
// file only holds records updated on or after since.
func Dedupe(ctx context.Context, layout Layout, since time.Time, logger *zap.Logger) (DedupeResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	files, err := ListFragments(layout.FragmentsDir())
	if err != nil {
		return DedupeResult{}, err
	}
	var all []harvest.Record
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return DedupeResult{}, err
		}
		records, err := ReadFragment(f.Path)
		if err != nil {
			return DedupeResult{}, err
		}
		all = append(all, records...)
	}
	unique := MergeRecords(all)
	result := DedupeResult{
		Fragments: len(files),
		Input:     len(all),
		Unique:    len(unique),
		Written:   len(unique),
		Path:      layout.CanonicalPath(),
	}
	if err := WriteCanonical(layout.CanonicalPath(), unique); err != nil {
		return DedupeResult{}, err
	}
	logger.Info("canonical dataset written",
		zap.String("path", layout.CanonicalPath()),
		zap.Int("fragments", result.Fragments),
		zap.Int("input", result.Input),
		zap.Int("unique", result.Unique),
	)
	if since.IsZero() {
		return result, nil
	}

	if err := os.Rename(layout.CanonicalPath(), layout.AllDatesPath()); err != nil {
		return DedupeResult{}, fmt.Errorf("keep unfiltered dataset: %w", err)
	}
	filtered := FilterSince(unique, since)
	if err := WriteCanonical(layout.CanonicalPath(), filtered); err != nil {
		return DedupeResult{}, err
	}
	result.Written = len(filtered)
	logger.Info("date filter applied",
		zap.String("since", since.Format(harvest.DayLayout)),
		zap.String("all_dates", layout.AllDatesPath()),
		zap.Int("kept", len(filtered)),
	)
	return result, nil
}
