package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/search-harvester/internal/harvest"
)

const openBound = "open"

// FragmentStore writes one header-less CSV per fetched page.
type FragmentStore struct {
	dir    string
	slug   string
	logger *zap.Logger
}

// NewFragmentStore creates the fragment directory of the layout.
func NewFragmentStore(layout Layout, logger *zap.Logger) (*FragmentStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(layout.FragmentsDir(), 0o750); err != nil {
		return nil, fmt.Errorf("create fragments dir: %w", err)
	}
	return &FragmentStore{dir: layout.FragmentsDir(), slug: layout.Slug(), logger: logger}, nil
}

// WriteFragment atomically writes the page. Writing the same window and page
// again replaces the earlier file.
func (s *FragmentStore) WriteFragment(_ context.Context, frag harvest.Fragment) (string, error) {
	path := filepath.Join(s.dir, FragmentName(s.slug, frag.Window, frag.Page))
	if err := writeRecords(path, false, frag.Items); err != nil {
		return "", fmt.Errorf("write fragment: %w", err)
	}
	return path, nil
}

// FragmentName is the file name of one page of a window.
func FragmentName(slug string, w harvest.Window, page int) string {
	to := openBound
	if !w.Created.Open() {
		to = w.Created.To.Format(harvest.DayLayout)
	}
	return fmt.Sprintf("%s_%s_%s_%s_p%02d.csv",
		slug,
		w.Pushed.Format(harvest.DayLayout),
		w.Created.From.Format(harvest.DayLayout),
		to,
		page,
	)
}

// FragmentFile is a fragment on disk with its sort key.
type FragmentFile struct {
	Path        string
	Pushed      string
	CreatedFrom string
	CreatedTo   string
	Page        int
}

// ParseFragmentName recovers the sort key from a fragment file name.
func ParseFragmentName(path string) (FragmentFile, error) {
	base := strings.TrimSuffix(filepath.Base(path), ".csv")
	parts := strings.Split(base, "_")
	if len(parts) < 5 {
		return FragmentFile{}, fmt.Errorf("fragment name %q: too few fields", base)
	}
	n := len(parts)
	pageField := parts[n-1]
	if !strings.HasPrefix(pageField, "p") {
		return FragmentFile{}, fmt.Errorf("fragment name %q: missing page", base)
	}
	page, err := strconv.Atoi(strings.TrimPrefix(pageField, "p"))
	if err != nil {
		return FragmentFile{}, fmt.Errorf("fragment name %q: page: %w", base, err)
	}
	return FragmentFile{
		Path:        path,
		Pushed:      parts[n-4],
		CreatedFrom: parts[n-3],
		CreatedTo:   parts[n-2],
		Page:        page,
	}, nil
}

// ListFragments returns the fragment files of dir in crawl order: push day,
// then creation range, then page. Directory order is never relied on.
func ListFragments(dir string) ([]FragmentFile, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list fragments: %w", err)
	}
	files := make([]FragmentFile, 0, len(matches))
	for _, m := range matches {
		f, err := ParseFragmentName(m)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	sortFragments(files)
	return files, nil
}

func sortFragments(files []FragmentFile) {
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.Pushed != b.Pushed {
			return a.Pushed < b.Pushed
		}
		if a.CreatedFrom != b.CreatedFrom {
			return a.CreatedFrom < b.CreatedFrom
		}
		if a.CreatedTo != b.CreatedTo {
			return a.CreatedTo < b.CreatedTo
		}
		return a.Page < b.Page
	})
}

// ReadFragment loads the records of one fragment file.
func ReadFragment(path string) ([]harvest.Record, error) {
	return readRecords(path, false)
}
