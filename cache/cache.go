// Package cache implements the fingerprint cache: lookup(fingerprint) ->
// optional CacheEntry, insert(CacheEntry). Store has three backends —
// S3Store, FileStore, and MemoryStore — all implementing the same
// Lookup/Insert-over-context.Context shape.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	json "github.com/goccy/go-json"

	"github.com/vegafs/streamengine/pipeline"
)

// Entry is the CacheEntry: the engine's record of a
// previously-completed run, keyed by Fingerprint. The engine only ever
// inserts and looks these up; it never deletes one.
type Entry struct {
	Fingerprint   string    `json:"fingerprint"`
	OutputBucket  string    `json:"outputBucket"`
	OutputKey     string    `json:"outputKey"`
	RowCount      int64     `json:"rowCount"`
	ByteSize      int64     `json:"byteSize"`
	CreatedAt     time.Time `json:"createdAt"`
	EngineVersion string    `json:"engineVersion"`
}

// OutputLocation renders where the cached object lives, matching the
// s3://bucket/key shape used throughout the rest of this codebase.
func (e Entry) OutputLocation() string {
	return "s3://" + e.OutputBucket + "/" + e.OutputKey
}

// Store is the cache contract: lookup and insert, nothing
// else. Implementations are keyed by pipeline.Fingerprint's hex string.
type Store interface {
	Lookup(ctx context.Context, fp pipeline.Fingerprint) (Entry, bool, error)
	Insert(ctx context.Context, e Entry) error
}

// S3API is the narrow slice of S3 the cache needs — object get/put keyed by
// fingerprint — independent of objectstore.Client's multipart surface,
// since a CacheEntry is a single small JSON object, not a streamed batch
// output.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store implements Store against S3, one object per fingerprint under a
// fixed key prefix.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Store builds an S3Store from an "s3://bucket/prefix" URI, following
// checkpoint.NewS3Store's URI-parsing shape.
func NewS3Store(client S3API, uri string) (*S3Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid S3 URI: %w", err)
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("invalid S3 URI scheme: %s", u.Scheme)
	}
	return &S3Store{
		client: client,
		bucket: u.Host,
		prefix: strings.TrimPrefix(u.Path, "/"),
	}, nil
}

func (s *S3Store) key(fp pipeline.Fingerprint) string {
	return strings.TrimSuffix(s.prefix, "/") + "/" + fp.String() + ".json"
}

// Lookup implements lookup(fingerprint) -> Option<CacheEntry>. A missing
// object is not an error: it means a cache miss.
func (s *S3Store) Lookup(ctx context.Context, fp pipeline.Fingerprint) (Entry, bool, error) {
	key := s.key(fp)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return Entry{}, false, nil
		}
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var e Entry
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		return Entry{}, false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return e, true, nil
}

// Insert implements insert(CacheEntry). Entries are immutable once written:
// callers never overwrite an existing fingerprint's entry with different
// content, since a fingerprint already encodes everything that would make
// the output differ.
func (s *S3Store) Insert(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	key := s.key(pipeline.FingerprintFromHex(e.Fingerprint))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// FileStore implements Store on the local filesystem, one JSON file per
// fingerprint under a directory, following checkpoint.FileStore's
// path-cleaning and absolute-path requirements.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at a "file:///abs/dir" URI.
func NewFileStore(uri string) (*FileStore, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid file URI: %w", err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("invalid file URI scheme: %s", u.Scheme)
	}
	dir := filepath.Clean(u.Path)
	if !filepath.IsAbs(dir) {
		return nil, fmt.Errorf("cache directory must be absolute: %s", dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(fp pipeline.Fingerprint) string {
	return filepath.Join(f.dir, fp.String()+".json")
}

// Lookup implements lookup(fingerprint) -> Option<CacheEntry>.
func (f *FileStore) Lookup(ctx context.Context, fp pipeline.Fingerprint) (Entry, bool, error) {
	data, err := os.ReadFile(f.path(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return e, true, nil
}

// Insert implements insert(CacheEntry).
func (f *FileStore) Insert(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	fp := pipeline.FingerprintFromHex(e.Fingerprint)
	if err := os.WriteFile(f.path(fp), data, 0644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}
