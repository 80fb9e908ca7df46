// Package mock provides an in-memory stand-in for objectstore.Client, for
// driving the engine end-to-end in tests without a real S3 bucket. It
// keeps a bucket/key -> bytes map and implements only the operations
// objectstore.Client actually needs: HeadObject, ranged GetObject, and the
// four multipart operations.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client is a minimal in-memory implementation of objectstore.Client.
type S3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	etags   map[string]string
	uploads map[string]*upload
	nextID  int
}

type upload struct {
	bucket, key string
	parts       map[int32][]byte
}

// NewS3Client creates an empty mock client.
func NewS3Client() *S3Client {
	return &S3Client{
		objects: make(map[string][]byte),
		etags:   make(map[string]string),
		uploads: make(map[string]*upload),
	}
}

func objKey(bucket, key string) string { return bucket + "/" + key }

// PutObject seeds the mock with an object, for test fixture setup.
func (c *S3Client) PutObject(bucket, key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := objKey(bucket, key)
	c.objects[k] = data
	c.etags[k] = fmt.Sprintf("%x", len(data))
}

// Object returns a previously published object, for test assertions against
// a job's output.
func (c *S3Client) Object(bucket, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[objKey(bucket, key)]
	return data, ok
}

func (c *S3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := objKey(*params.Bucket, *params.Key)
	data, ok := c.objects[k]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	size := int64(len(data))
	etag := c.etags[k]
	return &s3.HeadObjectOutput{ContentLength: &size, ETag: &etag}, nil
}

func (c *S3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	c.mu.Lock()
	data, ok := c.objects[objKey(*params.Bucket, *params.Key)]
	c.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	start, end := 0, len(data)
	if params.Range != nil {
		spec := strings.TrimPrefix(*params.Range, "bytes=")
		parts := strings.SplitN(spec, "-", 2)
		if parts[0] != "" {
			start, _ = strconv.Atoi(parts[0])
		}
		if len(parts) > 1 && parts[1] != "" {
			e, _ := strconv.Atoi(parts[1])
			end = e + 1
		}
		if end > len(data) {
			end = len(data)
		}
	}
	body := data[start:end]
	size := int64(len(body))
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body)), ContentLength: &size}, nil
}

func (c *S3Client) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := fmt.Sprintf("upload-%d", c.nextID)
	c.uploads[id] = &upload{bucket: *params.Bucket, key: *params.Key, parts: make(map[int32][]byte)}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (c *S3Client) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	up, ok := c.uploads[*params.UploadId]
	if !ok {
		return nil, fmt.Errorf("unknown upload %s", *params.UploadId)
	}
	up.parts[*params.PartNumber] = data
	etag := fmt.Sprintf("part-%d", *params.PartNumber)
	return &s3.UploadPartOutput{ETag: &etag}, nil
}

func (c *S3Client) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	c.mu.Lock()
	up, ok := c.uploads[*params.UploadId]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown upload %s", *params.UploadId)
	}
	var buf bytes.Buffer
	for _, part := range params.MultipartUpload.Parts {
		buf.Write(up.parts[*part.PartNumber])
	}
	c.PutObject(up.bucket, up.key, buf.Bytes())
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (c *S3Client) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.uploads, *params.UploadId)
	return &s3.AbortMultipartUploadOutput{}, nil
}
