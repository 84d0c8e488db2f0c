package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/search-harvester/internal/harvest"
	"github.com/JakeFAU/search-harvester/internal/metrics"
)

// DefaultShardSize is the number of records per shard.
const DefaultShardSize = 10000

// Hasher digests a written shard file.
type Hasher interface {
	HashFile(path string) (string, error)
}

// BlobStore receives a copy of every shard.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher announces finished shards.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ShardRecords splits records into consecutive chunks of size. Every chunk but
// the last holds exactly size records.
func ShardRecords(records []harvest.Record, size int) [][]harvest.Record {
	if size <= 0 || len(records) == 0 {
		return nil
	}
	shards := make([][]harvest.Record, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		shards = append(shards, records[start:end])
	}
	return shards
}

// LoadExclusions reads the id column of a downstream ledger. The file must
// have a header row naming an "id" column.
func LoadExclusions(path string) (map[int64]struct{}, error) {
	// #nosec G304 -- path comes from operator input.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open exclusion list: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read exclusion header: %w", err)
	}
	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "id") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("exclusion list %s has no id column", path)
	}
	ids := make(map[int64]struct{})
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read exclusion line %d: %w", line, err)
		}
		if col >= len(row) || strings.TrimSpace(row[col]) == "" {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(row[col]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("exclusion line %d: %w", line, err)
		}
		ids[id] = struct{}{}
	}
	return ids, nil
}

// Exclude drops records whose id is in ids, preserving order.
func Exclude(records []harvest.Record, ids map[int64]struct{}) []harvest.Record {
	if len(ids) == 0 {
		return records
	}
	out := make([]harvest.Record, 0, len(records))
	for _, rec := range records {
		if _, skip := ids[rec.ID]; !skip {
			out = append(out, rec)
		}
	}
	return out
}

// ShardReady is the notification published for every shard.
type ShardReady struct {
	RunID    string `json:"run_id"`
	Language string `json:"language"`
	Part     int    `json:"part"`
	Records  int    `json:"records"`
	SHA256   string `json:"sha256"`
	Path     string `json:"path"`
	URI      string `json:"uri,omitempty"`
}

// Manifest describes one written shard.
type Manifest struct {
	Part      int
	Path      string
	Records   int
	SHA256    string
	URI       string
	MessageID string
}

// ShardOptions scopes one shard run.
type ShardOptions struct {
	Language    string
	Size        int
	ExcludePath string
	RunID       string
}

// Sharder writes shards and hands them to the optional blob store and
// publisher.
type Sharder struct {
	hasher     Hasher
	blobs      BlobStore
	blobPrefix string
	publisher  Publisher
	topic      string
	logger     *zap.Logger
}

// SharderOption customizes a Sharder.
type SharderOption func(*Sharder)

// WithBlobStore uploads every shard under prefix.
func WithBlobStore(blobs BlobStore, prefix string) SharderOption {
	return func(s *Sharder) {
		s.blobs = blobs
		s.blobPrefix = prefix
	}
}

// WithPublisher announces every shard on topic.
func WithPublisher(publisher Publisher, topic string) SharderOption {
	return func(s *Sharder) {
		s.publisher = publisher
		s.topic = topic
	}
}

// NewSharder builds a Sharder.
func NewSharder(hasher Hasher, logger *zap.Logger, opts ...SharderOption) *Sharder {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sharder{hasher: hasher, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Shard splits the canonical dataset into numbered shard files after dropping
// excluded ids. Part files left over from an earlier run are removed first.
func (s *Sharder) Shard(ctx context.Context, layout Layout, opts ShardOptions) ([]Manifest, error) {
	size := opts.Size
	if size <= 0 {
		size = DefaultShardSize
	}
	records, err := ReadCanonical(layout.CanonicalPath())
	if err != nil {
		return nil, err
	}
	if opts.ExcludePath != "" {
		ids, err := LoadExclusions(opts.ExcludePath)
		if err != nil {
			return nil, err
		}
		before := len(records)
		records = Exclude(records, ids)
		s.logger.Info("exclusion list applied",
			zap.String("path", opts.ExcludePath),
			zap.Int("excluded", before-len(records)),
		)
	}
	if err := removeStaleShards(layout.PartitionsDir()); err != nil {
		return nil, err
	}

	shards := ShardRecords(records, size)
	manifests := make([]Manifest, 0, len(shards))
	for i, chunk := range shards {
		if err := ctx.Err(); err != nil {
			return manifests, err
		}
		m, err := s.writeShard(ctx, layout, opts, i+1, chunk)
		if err != nil {
			return manifests, err
		}
		manifests = append(manifests, m)
	}
	s.logger.Info("shards written",
		zap.String("dir", layout.PartitionsDir()),
		zap.Int("shards", len(manifests)),
		zap.Int("records", len(records)),
	)
	return manifests, nil
}

func (s *Sharder) writeShard(ctx context.Context, layout Layout, opts ShardOptions, part int, chunk []harvest.Record) (Manifest, error) {
	m := Manifest{Part: part, Path: layout.ShardPath(part), Records: len(chunk)}
	if err := writeRecords(m.Path, true, chunk); err != nil {
		return m, fmt.Errorf("write shard %d: %w", part, err)
	}
	digest, err := s.hasher.HashFile(m.Path)
	if err != nil {
		return m, fmt.Errorf("hash shard %d: %w", part, err)
	}
	m.SHA256 = digest
	metrics.ObserveShard()

	if s.blobs != nil {
		uri, err := s.upload(ctx, layout, m)
		if err != nil {
			return m, fmt.Errorf("upload shard %d: %w", part, err)
		}
		m.URI = uri
	}
	if s.publisher != nil {
		id, err := s.publisher.Publish(ctx, s.topic, ShardReady{
			RunID:    opts.RunID,
			Language: opts.Language,
			Part:     part,
			Records:  m.Records,
			SHA256:   m.SHA256,
			Path:     m.Path,
			URI:      m.URI,
		})
		if err != nil {
			return m, fmt.Errorf("publish shard %d: %w", part, err)
		}
		m.MessageID = id
	}
	s.logger.Debug("shard written",
		zap.Int("part", part),
		zap.Int("records", m.Records),
		zap.String("sha256", m.SHA256),
		zap.String("uri", m.URI),
	)
	return m, nil
}

func (s *Sharder) upload(ctx context.Context, layout Layout, m Manifest) (string, error) {
	// #nosec G304 -- shard path built by the layout.
	f, err := os.Open(m.Path)
	if err != nil {
		return "", fmt.Errorf("open shard: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle
	object := path.Join(s.blobPrefix, layout.Slug(), ShardName(m.Part))
	return s.blobs.PutObject(ctx, object, "text/csv", f)
}

func removeStaleShards(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, shardPrefix+"*.csv"))
	if err != nil {
		return fmt.Errorf("list stale shards: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return fmt.Errorf("remove stale shard: %w", err)
		}
	}
	return nil
}
