package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/vegafs/streamengine/errs"
)

// minPartSize is S3's own floor for any part but the last one.
const minPartSize = 5 * 1024 * 1024

// UploadHandle tracks one in-flight multipart upload.
// complete() is the only atomic publication point: readers of the object
// never observe a partial write.
type UploadHandle struct {
	store    *Store
	key      string
	uploadID string

	mu       sync.Mutex
	parts    []types.CompletedPart
	partNum  int32
	complete bool
	aborted  bool
}

// MultipartPut opens a new multipart upload for key.
func (s *Store) MultipartPut(ctx context.Context, key string) (*UploadHandle, error) {
	var uploadID string
	err := retryTransient(ctx, maxRetries, func() error {
		out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
			Bucket: &s.bucket,
			Key:    &key,
		})
		if err != nil {
			return err
		}
		uploadID = *out.UploadId
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return &UploadHandle{store: s, key: key, uploadID: uploadID}, nil
}

// AppendPart uploads one part. Retries are transparent and bounded within
// this unfinished part only write-retry guarantee.
func (h *UploadHandle) AppendPart(ctx context.Context, data []byte) error {
	h.mu.Lock()
	if h.complete || h.aborted {
		h.mu.Unlock()
		return fmt.Errorf("objectstore: upload %s already finalized", h.uploadID)
	}
	h.partNum++
	partNum := h.partNum
	h.mu.Unlock()

	var etag string
	err := retryTransient(ctx, maxRetries, func() error {
		out, err := h.store.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     &h.store.bucket,
			Key:        &h.key,
			UploadId:   &h.uploadID,
			PartNumber: &partNum,
			Body:       bytes.NewReader(data),
		})
		if err != nil {
			return err
		}
		etag = *out.ETag
		return nil
	})
	if err != nil {
		return classify(err)
	}

	h.mu.Lock()
	h.parts = append(h.parts, types.CompletedPart{ETag: &etag, PartNumber: &partNum})
	h.mu.Unlock()
	return nil
}

// Location identifies the finished object, returned by Complete.
type Location struct {
	Bucket string
	Key    string
}

// Complete finalizes the upload, the atomic publication point. After
// Complete returns, the object is visible whole or not at all.
func (h *UploadHandle) Complete(ctx context.Context) (Location, error) {
	h.mu.Lock()
	if h.aborted {
		h.mu.Unlock()
		return Location{}, fmt.Errorf("objectstore: upload %s already aborted", h.uploadID)
	}
	parts := append([]types.CompletedPart(nil), h.parts...)
	h.mu.Unlock()

	err := retryTransient(ctx, maxRetries, func() error {
		_, err := h.store.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:          &h.store.bucket,
			Key:             &h.key,
			UploadId:        &h.uploadID,
			MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
		})
		return err
	})
	if err != nil {
		return Location{}, classify(err)
	}

	h.mu.Lock()
	h.complete = true
	h.mu.Unlock()
	return Location{Bucket: h.store.bucket, Key: h.key}, nil
}

// Abort cancels the upload. Idempotent: a second Abort, or an Abort after
// Complete, is a no-op.
func (h *UploadHandle) Abort(ctx context.Context) error {
	h.mu.Lock()
	if h.aborted || h.complete {
		h.mu.Unlock()
		return nil
	}
	h.aborted = true
	h.mu.Unlock()

	err := retryTransient(ctx, maxRetries, func() error {
		_, err := h.store.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   &h.store.bucket,
			Key:      &h.key,
			UploadId: &h.uploadID,
		})
		if err != nil && isPermanentError(err) {
			// Already aborted/expired server-side: treat as success.
			return nil
		}
		return err
	})
	if err != nil {
		return errs.Wrap(errs.KindStoragePermanent, "abort multipart upload failed", err)
	}
	return nil
}
