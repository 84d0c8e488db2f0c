package harvest

import (
	"fmt"
	"strconv"
	"time"
)

// ResourceSearch is the quota class every search request spends. The API
// budgets other classes such as "core" separately; the crawl spends none.
const ResourceSearch = "search"

// Record is one repository returned by the search API.
type Record struct {
	ID          int64
	FullName    string
	Name        string
	OwnerLogin  string
	HTMLURL     string
	Description string
	Language    string
	Stars       int64
	Forks       int64
	OpenIssues  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PushedAt    time.Time
	ObservedAt  time.Time
}

// RecordColumns is the fixed column order of fragment and dataset files.
var RecordColumns = []string{
	"id",
	"full_name",
	"name",
	"owner_login",
	"html_url",
	"description",
	"language",
	"stargazers_count",
	"forks_count",
	"open_issues_count",
	"created_at",
	"updated_at",
	"pushed_at",
	"observed_at",
}

// Row encodes the record in RecordColumns order.
func (r Record) Row() []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.FullName,
		r.Name,
		r.OwnerLogin,
		r.HTMLURL,
		r.Description,
		r.Language,
		strconv.FormatInt(r.Stars, 10),
		strconv.FormatInt(r.Forks, 10),
		strconv.FormatInt(r.OpenIssues, 10),
		formatTime(r.CreatedAt),
		formatTime(r.UpdatedAt),
		formatTime(r.PushedAt),
		formatTime(r.ObservedAt),
	}
}

// ParseRecord decodes a row written by Record.Row.
func ParseRecord(row []string) (Record, error) {
	if len(row) != len(RecordColumns) {
		return Record{}, fmt.Errorf("record row has %d columns, want %d", len(row), len(RecordColumns))
	}
	var (
		rec  Record
		err  error
		errs = func(col string, e error) error { return fmt.Errorf("column %s: %w", col, e) }
	)
	if rec.ID, err = strconv.ParseInt(row[0], 10, 64); err != nil {
		return Record{}, errs("id", err)
	}
	rec.FullName = row[1]
	rec.Name = row[2]
	rec.OwnerLogin = row[3]
	rec.HTMLURL = row[4]
	rec.Description = row[5]
	rec.Language = row[6]
	if rec.Stars, err = parseCount(row[7]); err != nil {
		return Record{}, errs("stargazers_count", err)
	}
	if rec.Forks, err = parseCount(row[8]); err != nil {
		return Record{}, errs("forks_count", err)
	}
	if rec.OpenIssues, err = parseCount(row[9]); err != nil {
		return Record{}, errs("open_issues_count", err)
	}
	if rec.CreatedAt, err = parseTime(row[10]); err != nil {
		return Record{}, errs("created_at", err)
	}
	if rec.UpdatedAt, err = parseTime(row[11]); err != nil {
		return Record{}, errs("updated_at", err)
	}
	if rec.PushedAt, err = parseTime(row[12]); err != nil {
		return Record{}, errs("pushed_at", err)
	}
	if rec.ObservedAt, err = parseTime(row[13]); err != nil {
		return Record{}, errs("observed_at", err)
	}
	return rec, nil
}

func parseCount(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// SearchResult is one decoded search response.
type SearchResult struct {
	TotalCount        int
	IncompleteResults bool
	Items             []Record
	// URL is the fully resolved request, recorded in the ledger.
	URL string
}

// Leaf is a window whose probed count fits the cap.
type Leaf struct {
	Window            Window
	TotalCount        int
	IncompleteResults bool
	URL               string
}

// Fragment is one fetched page of a leaf window.
type Fragment struct {
	Window            Window
	Page              int
	TotalCount        int
	IncompleteResults bool
	URL               string
	Items             []Record
}
