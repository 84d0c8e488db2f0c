package harvest_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/search-harvester/internal/harvest"
	"github.com/JakeFAU/search-harvester/internal/ledger"
)

// corpus answers searches from a fixed set of repositories, filtering on the
// created qualifier the way the real API does.
type corpus struct {
	mu    sync.Mutex
	repos []harvest.Record
	// totals overrides the reported total_count of a query.
	totals map[string]int
	// pageTotals overrides total_count for one query page ("query#page").
	pageTotals map[string]int
	// failures returns an error for "query#page" while its count is positive.
	failures map[string]failure
	calls    []searchCall
}

type failure struct {
	err   error
	times int
}

type searchCall struct {
	Query   string
	Page    int
	PerPage int
}

func newCorpus(repos []harvest.Record) *corpus {
	sort.Slice(repos, func(i, j int) bool { return repos[i].ID < repos[j].ID })
	return &corpus{
		repos:      repos,
		totals:     map[string]int{},
		pageTotals: map[string]int{},
		failures:   map[string]failure{},
	}
}

func (c *corpus) failOn(query string, page int, err error, times int) {
	c.failures[fmt.Sprintf("%s#%d", query, page)] = failure{err: err, times: times}
}

func (c *corpus) Search(_ context.Context, query string, page, perPage int) (harvest.SearchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, searchCall{Query: query, Page: page, PerPage: perPage})

	key := fmt.Sprintf("%s#%d", query, page)
	if f, ok := c.failures[key]; ok && f.times > 0 {
		f.times--
		c.failures[key] = f
		return harvest.SearchResult{}, f.err
	}

	matches := c.match(query)
	total := len(matches)
	if override, ok := c.totals[query]; ok {
		total = override
	}
	if override, ok := c.pageTotals[key]; ok {
		total = override
	}
	start := (page - 1) * perPage
	var items []harvest.Record
	if start < len(matches) {
		end := min(start+perPage, len(matches))
		items = append(items, matches[start:end]...)
	}
	return harvest.SearchResult{
		TotalCount: total,
		Items:      items,
		URL:        fmt.Sprintf("https://api.example/search?q=%s&page=%d&per_page=%d", query, page, perPage),
	}, nil
}

func (c *corpus) match(query string) []harvest.Record {
	var qualifier string
	for _, field := range strings.Fields(query) {
		if v, ok := strings.CutPrefix(field, "created:"); ok {
			qualifier = v
		}
	}
	var from, to time.Time
	if v, ok := strings.CutPrefix(qualifier, ">="); ok {
		from, _ = time.Parse(harvest.DayLayout, v)
	} else if a, b, ok := strings.Cut(qualifier, ".."); ok {
		from, _ = time.Parse(harvest.DayLayout, a)
		to, _ = time.Parse(harvest.DayLayout, b)
	}
	var out []harvest.Record
	for _, r := range c.repos {
		created := r.CreatedAt.Truncate(24 * time.Hour)
		if created.Before(from) {
			continue
		}
		if !to.IsZero() && created.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (c *corpus) callsFor(query string) []searchCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []searchCall
	for _, call := range c.calls {
		if call.Query == query {
			out = append(out, call)
		}
	}
	return out
}

func (c *corpus) allCalls() []searchCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]searchCall(nil), c.calls...)
}

// repos builds n repositories created on consecutive days from start.
func repos(firstID int64, n int, start time.Time) []harvest.Record {
	out := make([]harvest.Record, 0, n)
	for i := range n {
		out = append(out, harvest.Record{
			ID:        firstID + int64(i),
			FullName:  fmt.Sprintf("octo/r%d", firstID+int64(i)),
			CreatedAt: start.AddDate(0, 0, i),
		})
	}
	return out
}

type openGate struct {
	mu       sync.Mutex
	acquired map[string]int
	err      error
}

func (g *openGate) Acquire(_ context.Context, resource string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.acquired == nil {
		g.acquired = map[string]int{}
	}
	g.acquired[resource]++
	return g.err
}

type memSink struct {
	mu        sync.Mutex
	fragments []harvest.Fragment
	failAt    int
	writes    int
}

var errSinkFull = errors.New("disk full")

func (s *memSink) WriteFragment(_ context.Context, f harvest.Fragment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.failAt > 0 && s.writes == s.failAt {
		return "", errSinkFull
	}
	s.fragments = append(s.fragments, f)
	return fmt.Sprintf("mem://%s/p%d", f.Window.Query(), f.Page), nil
}

type memProgress struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (p *memProgress) Append(_ context.Context, e ledger.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
	return nil
}

type blockedRow struct {
	Query string
	Page  int
	Cause error
}

type memBlocked struct {
	mu   sync.Mutex
	rows []blockedRow
}

func (b *memBlocked) Record(_ context.Context, query string, page int, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = append(b.rows, blockedRow{Query: query, Page: page, Cause: cause})
	return nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }
