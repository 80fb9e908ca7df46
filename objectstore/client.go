package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/vegafs/streamengine/errs"
)

// maxRetries bounds non-throttling transient retries.
const maxRetries = 5

// Head describes object metadata head() operation.
type Head struct {
	Size        int64
	ETag        string
	ContentType string
}

// Store wraps a Client with retry and ranged-read/multipart-write
// behavior. It is the engine's sole entry point onto object storage;
// codec readers and writers never see the raw SDK client.
type Store struct {
	client Client
	bucket string
}

// New constructs a Store bound to a single bucket, resolved once at
// construction time.
func New(client Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Head implements head().
func (s *Store) Head(ctx context.Context, key string) (Head, error) {
	var out Head
	err := retryTransient(ctx, maxRetries, func() error {
		resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: &s.bucket,
			Key:    &key,
		})
		if err != nil {
			return err
		}
		if resp.ContentLength != nil {
			out.Size = *resp.ContentLength
		}
		if resp.ETag != nil {
			out.ETag = *resp.ETag
		}
		if resp.ContentType != nil {
			out.ContentType = *resp.ContentType
		}
		return nil
	})
	if err != nil {
		return Head{}, classify(err)
	}
	return out, nil
}

// GetRange implements get_range(): offset >= size returns an
// empty reader; length < 0 reads to EOF. Opening the ranged GET is retried
// on transient failures up to maxRetries times; a read error on the
// returned body after it is opened is passed to the caller, not retried.
func (s *Store) GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	head, err := s.Head(ctx, key)
	if err != nil {
		return nil, err
	}
	if offset >= head.Size {
		return io.NopCloser(emptyReader{}), nil
	}

	var rangeHeader string
	if length < 0 {
		rangeHeader = fmt.Sprintf("bytes=%d-", offset)
	} else {
		end := offset + length - 1
		if end >= head.Size {
			end = head.Size - 1
		}
		rangeHeader = fmt.Sprintf("bytes=%d-%d", offset, end)
	}

	var body io.ReadCloser
	err = retryTransient(ctx, maxRetries, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: &s.bucket,
			Key:    &key,
			Range:  &rangeHeader,
		})
		if err != nil {
			return err
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return body, nil
}

// emptyReader is an always-empty io.Reader, used for the offset >= size case.
type emptyReader struct{}

func (emptyReader) Read(p []byte) (int, error) { return 0, io.EOF }

// classify turns the error retryTransient gave up on into the errs
// taxonomy: a permanent error, or a transient one whose retries are
// exhausted, both surface as StoragePermanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isPermanentError(err) {
		return errs.Wrap(errs.KindStoragePermanent, "object store request failed", err)
	}
	return errs.Wrap(errs.KindStoragePermanent, "object store request failed after retries", err)
}
