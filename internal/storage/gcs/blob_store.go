// Package gcs exports shards to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"

	"cloud.google.com/go/storage"
)

// Config names the bucket and the metadata stamped on every uploaded shard.
type Config struct {
	Bucket string
	// Metadata is attached to every object, e.g. the run id that wrote it.
	Metadata map[string]string
}

// BlobStore uploads shard files to one bucket.
type BlobStore struct {
	client   *storage.Client
	bucket   string
	metadata map[string]string
}

// New wraps client. The bucket is not checked until the first upload.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	switch {
	case client == nil:
		return nil, errors.New("storage client is required")
	case strings.TrimSpace(cfg.Bucket) == "":
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{
		client:   client,
		bucket:   cfg.Bucket,
		metadata: maps.Clone(cfg.Metadata),
	}, nil
}

// URI is the gs:// address of an object in the bucket.
func (s *BlobStore) URI(path string) string {
	return "gs://" + s.bucket + "/" + strings.TrimLeft(path, "/")
}

// PutObject streams data into the object at path and returns its URI. A
// failed copy aborts the upload so no partial object is committed.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	name := strings.TrimLeft(strings.TrimSpace(path), "/")
	if name == "" {
		return "", errors.New("object path is required")
	}
	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(uploadCtx)
	w.ContentType = contentType
	w.Metadata = maps.Clone(s.metadata)
	if _, err := io.Copy(w, data); err != nil {
		cancel()
		_ = w.Close() //nolint:errcheck // upload already aborted
		return "", fmt.Errorf("upload %s: %w", s.URI(name), err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("commit %s: %w", s.URI(name), err)
	}
	return s.URI(name), nil
}

// Close releases the storage client.
func (s *BlobStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
