package format

import (
	"bufio"
	"bytes"
	"context"
	"io"

	json "github.com/goccy/go-json"
)

// parquetMagic is the 4-byte magic string at the start (and end) of every
// Parquet file.
var parquetMagic = []byte("PAR1")

// RangeGetter is the subset of objectstore.Store's behavior format
// detection needs: a ranged byte read. Kept narrow so the format package
// doesn't depend on objectstore's AWS SDK imports.
type RangeGetter interface {
	GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
}

// Detect implements the format-detection algorithm: fetch
// the first detectionBytes bytes, test Parquet magic first, then attempt a
// JSON-lines parse of the first line, else assume CSV.
func Detect(ctx context.Context, store RangeGetter, key string, detectionBytes int64) (Kind, error) {
	if detectionBytes <= 0 {
		detectionBytes = DefaultDetectionBytes
	}
	r, err := store.GetRange(ctx, key, 0, detectionBytes)
	if err != nil {
		return "", err
	}
	defer r.Close()

	head, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	if bytes.HasPrefix(head, parquetMagic) {
		return Parquet, nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(head))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if scanner.Scan() {
		var probe map[string]json.RawMessage
		if json.Unmarshal(scanner.Bytes(), &probe) == nil {
			return JSONL, nil
		}
	}

	return CSV, nil
}
