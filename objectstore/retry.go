package objectstore

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// backoffWait sleeps for an exponentially increasing duration with full
// jitter (100ms base, 30s cap). Returns false if ctx is cancelled during
// the wait.
func backoffWait(ctx context.Context, attempt int) bool {
	base := 100 * time.Millisecond
	maxDelay := 30 * time.Second

	delay := base * time.Duration(1<<uint(attempt))
	if delay > maxDelay {
		delay = maxDelay
	}
	delay = time.Duration(rand.Int64N(int64(delay) + 1))

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// isPermanentError reports whether err should never be retried: not-found,
// access-denied, and other 4xx client errors are permanent
// (StoragePermanent). Everything else (network errors, 5xx) is treated as
// transient and retried with backoff, classified via errors.As.
func isPermanentError(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		if code >= 400 && code < 500 {
			return true
		}
	}
	return false
}

// retryTransient runs fn, retrying transient failures with backoff up to
// maxRetries times and then returning the last error, which callers
// classify as StoragePermanent. Permanent errors fail immediately without
// consuming a retry.
func retryTransient(ctx context.Context, maxRetries int, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if isPermanentError(err) {
			return err
		}
		if attempt >= maxRetries {
			return err
		}
		if !backoffWait(ctx, attempt) {
			return ctx.Err()
		}
	}
}
