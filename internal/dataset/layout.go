// Package dataset turns crawl fragments into the canonical deduplicated
// dataset and the shard files handed to downstream consumers.
package dataset

import (
	"fmt"
	"path/filepath"
	"strings"
)

// File names shared with downstream tooling.
const (
	LedgerFile    = "crawling_repositories_metadata.csv"
	BlockedFile   = "crawling_repositories_not_found.csv"
	CanonicalFile = "complete_repositories.csv"
	AllDatesFile  = "complete_repositories_all_dates.csv"
	shardPrefix   = "complete_repositories_part_"
)

// Layout maps one language's crawl onto the filesystem:
//
//	<root>/<slug>/crawling_repositories_metadata.csv
//	<root>/<slug>/crawling_repositories_not_found.csv
//	<root>/<slug>/fragments/<slug>_<pushed>_<from>_<to>_pNN.csv
//	<root>/<slug>/deduplicated_data/complete_repositories.csv
//	<root>/<slug>/deduplicated_data/partitions/complete_repositories_part_N.csv
type Layout struct {
	root string
	slug string
}

// NewLayout builds the layout for a language under root.
func NewLayout(root, language string) Layout {
	return Layout{root: root, slug: Slug(language)}
}

// Slug lowercases a language name into a file-safe token, e.g. "C++" to "cpp"
// and "C#" to "csharp".
func Slug(language string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(language)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+':
			b.WriteByte('p')
		case r == '#':
			b.WriteString("sharp")
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Slug returns the language token used in paths.
func (l Layout) Slug() string { return l.slug }

// Dir is the language's crawl directory.
func (l Layout) Dir() string { return filepath.Join(l.root, l.slug) }

// LedgerPath is the progress ledger.
func (l Layout) LedgerPath() string { return filepath.Join(l.Dir(), LedgerFile) }

// BlockedPath is the side file of abandoned windows.
func (l Layout) BlockedPath() string { return filepath.Join(l.Dir(), BlockedFile) }

// FragmentsDir holds one CSV per fetched page.
func (l Layout) FragmentsDir() string { return filepath.Join(l.Dir(), "fragments") }

// DedupDir holds the canonical dataset.
func (l Layout) DedupDir() string { return filepath.Join(l.Dir(), "deduplicated_data") }

// CanonicalPath is the deduplicated dataset.
func (l Layout) CanonicalPath() string { return filepath.Join(l.DedupDir(), CanonicalFile) }

// AllDatesPath keeps the unfiltered dataset when a date filter is applied.
func (l Layout) AllDatesPath() string { return filepath.Join(l.DedupDir(), AllDatesFile) }

// PartitionsDir holds the shard files.
func (l Layout) PartitionsDir() string { return filepath.Join(l.DedupDir(), "partitions") }

// ShardPath is the file of shard n, numbered from 1.
func (l Layout) ShardPath(n int) string {
	return filepath.Join(l.PartitionsDir(), ShardName(n))
}

// ShardName is the base name of shard n.
func ShardName(n int) string {
	return fmt.Sprintf("%s%d.csv", shardPrefix, n)
}
