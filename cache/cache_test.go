package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vegafs/streamengine/pipeline"
)

func testFingerprint(t *testing.T, seed string) pipeline.Fingerprint {
	t.Helper()
	fp, err := pipeline.ComputeFingerprint(seed, pipeline.Spec{}, "v-test")
	if err != nil {
		t.Fatalf("ComputeFingerprint: %v", err)
	}
	return fp
}

func TestMemoryStoreLookupMiss(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := store.Lookup(ctx, testFingerprint(t, "etag-1"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Fatal("expected cache miss on empty store")
	}
}

func TestMemoryStoreInsertThenLookup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	fp := testFingerprint(t, "etag-1")

	entry := Entry{
		Fingerprint:   fp.String(),
		OutputBucket:  "out-bucket",
		OutputKey:     "out/1.csv",
		RowCount:      2,
		ByteSize:      128,
		CreatedAt:     time.Unix(0, 0),
		EngineVersion: "v-test",
	}
	if err := store.Insert(ctx, entry); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok, err := store.Lookup(ctx, fp)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit after insert")
	}
	if got.OutputLocation() != "s3://out-bucket/out/1.csv" {
		t.Errorf("OutputLocation = %s, want s3://out-bucket/out/1.csv", got.OutputLocation())
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore("file://" + dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	fp := testFingerprint(t, "etag-2")

	entry := Entry{
		Fingerprint:   fp.String(),
		OutputBucket:  "b",
		OutputKey:     "k.parquet",
		RowCount:      4,
		CreatedAt:     time.Unix(0, 0),
		EngineVersion: "v-test",
	}
	if err := store.Insert(ctx, entry); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok, err := store.Lookup(ctx, fp)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit after insert")
	}
	if got.OutputKey != "k.parquet" {
		t.Errorf("OutputKey = %s, want k.parquet", got.OutputKey)
	}
}

func TestFileStoreLookupMissingIsNotError(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore("file://" + filepath.Join(dir, "sub"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	_, ok, err := store.Lookup(ctx, testFingerprint(t, "etag-3"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Fatal("expected cache miss for never-inserted fingerprint")
	}
}

func TestNewFileStoreRejectsNonFileScheme(t *testing.T) {
	if _, err := NewFileStore("s3://bucket/prefix"); err == nil {
		t.Fatal("expected error for non-file scheme")
	}
}

func TestNewS3StoreRejectsNonS3Scheme(t *testing.T) {
	if _, err := NewS3Store(nil, "file:///tmp/x"); err == nil {
		t.Fatal("expected error for non-s3 scheme")
	}
}
