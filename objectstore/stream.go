package objectstore

import (
	"context"

	"github.com/gurre/s3streamer"
)

// LineStreamer exposes the retrying, offset-resumable line-oriented read
// that github.com/gurre/s3streamer provides. It is reached through Store so
// callers never import the AWS SDK themselves. The CSV and JSON-lines
// codecs do not use it; they read through Store.GetRange.
type LineStreamer interface {
	Stream(ctx context.Context, bucket, key string, offset int64, fn func(line []byte, lineOffset int64) error) error
}

// Streamer returns a LineStreamer bound to this Store's underlying client.
// s3streamer.NewS3Streamer requires exactly the method set objectstore.Client
// already exposes (GetObject, HeadObject, and the four multipart operations),
// so any Client satisfies it without an adapter shim.
func (s *Store) Streamer() LineStreamer {
	return s3streamer.NewS3Streamer(s.client)
}

// Bucket returns the bucket this Store is bound to, for callers that need
// to pass it through to Streamer().
func (s *Store) Bucket() string { return s.bucket }
