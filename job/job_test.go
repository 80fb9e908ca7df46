package job

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"io"

	"github.com/vegafs/streamengine/cache"
	"github.com/vegafs/streamengine/pipeline"
)

// fakeS3 is a minimal in-memory stand-in for objectstore.Client, grounded
// on the shape of integration/mock.S3Client (bucket/key -> bytes map, Range
// header support) but trimmed to what the job driver's read/write path
// exercises: ranged GET and multipart PUT.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	etags   map[string]string
	uploads map[string]*fakeUpload
	nextID  int
}

type fakeUpload struct {
	bucket, key string
	parts       map[int32][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: make(map[string][]byte),
		etags:   make(map[string]string),
		uploads: make(map[string]*fakeUpload),
	}
}

func objKey(bucket, key string) string { return bucket + "/" + key }

func (f *fakeS3) putObject(bucket, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := objKey(bucket, key)
	f.objects[k] = data
	f.etags[k] = fmt.Sprintf("%x", len(data))
}

func (f *fakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := objKey(*params.Bucket, *params.Key)
	data, ok := f.objects[k]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	size := int64(len(data))
	etag := f.etags[k]
	return &s3.HeadObjectOutput{ContentLength: &size, ETag: &etag}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	data, ok := f.objects[objKey(*params.Bucket, *params.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	start, end := 0, len(data)
	if params.Range != nil {
		var s, e int
		spec := strings.TrimPrefix(*params.Range, "bytes=")
		parts := strings.SplitN(spec, "-", 2)
		if parts[0] != "" {
			s, _ = strconv.Atoi(parts[0])
		}
		if len(parts) > 1 && parts[1] != "" {
			e, _ = strconv.Atoi(parts[1])
			end = e + 1
		}
		start = s
		if end > len(data) {
			end = len(data)
		}
	}
	body := data[start:end]
	size := int64(len(body))
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body)), ContentLength: &size}, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("upload-%d", f.nextID)
	f.uploads[id] = &fakeUpload{bucket: *params.Bucket, key: *params.Key, parts: make(map[int32][]byte)}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[*params.UploadId]
	if !ok {
		return nil, fmt.Errorf("unknown upload %s", *params.UploadId)
	}
	up.parts[*params.PartNumber] = data
	etag := fmt.Sprintf("part-%d", *params.PartNumber)
	return &s3.UploadPartOutput{ETag: &etag}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	up, ok := f.uploads[*params.UploadId]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown upload %s", *params.UploadId)
	}
	var buf bytes.Buffer
	for _, part := range params.MultipartUpload.Parts {
		buf.Write(up.parts[*part.PartNumber])
	}
	f.putObject(up.bucket, up.key, buf.Bytes())
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.uploads, *params.UploadId)
	return &s3.AbortMultipartUploadOutput{}, nil
}

const peopleCSV = "name,country,age\nAlice,USA,30\nBob,India,24\nCharlie,UK,35\nDavid,India,29\n"

func filterIndiaSpec() pipeline.Spec {
	return pipeline.Spec{{
		Type:   pipeline.StepFilter,
		Column: "country",
		Op:     "eq",
		Value:  "India",
	}}
}

func awaitTerminal(t *testing.T, d *Driver, id string) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := d.Await(ctx, id)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	return v
}

func TestDriverCSVFilterStreaming(t *testing.T) {
	s3 := newFakeS3()
	s3.putObject("in-bucket", "people.csv", []byte(peopleCSV))

	d := NewDriver(s3, cache.NewMemoryStore(), "v-test")
	spec := Spec{
		Input:    InputSpec{Bucket: "in-bucket", Key: "people.csv", Format: "csv"},
		Output:   OutputSpec{Bucket: "out-bucket", KeyPrefix: "out"},
		Pipeline: filterIndiaSpec(),
	}

	res, err := d.Start(context.Background(), spec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Kind != StartNew {
		t.Fatalf("expected StartNew, got %s", res.Kind)
	}

	v := awaitTerminal(t, d, res.JobRunID)
	if v.State != StateSucceeded {
		t.Fatalf("expected Succeeded, got %s (err=%v)", v.State, v.Err)
	}
	if v.Progress.RowsOut != 2 {
		t.Fatalf("expected 2 rows out, got %d", v.Progress.RowsOut)
	}

	s3.mu.Lock()
	out, ok := s3.objects[objKey("out-bucket", v.Output[len("s3://out-bucket/"):])]
	s3.mu.Unlock()
	if !ok {
		t.Fatal("expected output object to exist")
	}
	if !strings.Contains(string(out), "Bob,India,24") || !strings.Contains(string(out), "David,India,29") {
		t.Fatalf("unexpected output content: %s", out)
	}
}

func TestDriverCachedSecondRunSkipsExecutor(t *testing.T) {
	s3 := newFakeS3()
	s3.putObject("in-bucket", "people.csv", []byte(peopleCSV))

	d := NewDriver(s3, cache.NewMemoryStore(), "v-test")
	spec := Spec{
		Input:    InputSpec{Bucket: "in-bucket", Key: "people.csv", Format: "csv"},
		Output:   OutputSpec{Bucket: "out-bucket", KeyPrefix: "out"},
		Pipeline: filterIndiaSpec(),
	}

	first, err := d.Start(context.Background(), spec)
	if err != nil {
		t.Fatalf("Start (first): %v", err)
	}
	v1 := awaitTerminal(t, d, first.JobRunID)
	if v1.State != StateSucceeded {
		t.Fatalf("first run: expected Succeeded, got %s", v1.State)
	}

	second, err := d.Start(context.Background(), spec)
	if err != nil {
		t.Fatalf("Start (second): %v", err)
	}
	if second.Kind != StartCacheHit {
		t.Fatalf("expected StartCacheHit, got %s", second.Kind)
	}
	if second.OutputLocation != v1.Output {
		t.Fatalf("cache hit location %s != first run output %s", second.OutputLocation, v1.Output)
	}
}

func TestDriverConcurrentStartsDedup(t *testing.T) {
	s3 := newFakeS3()
	s3.putObject("in-bucket", "people.csv", []byte(peopleCSV))

	d := NewDriver(s3, cache.NewMemoryStore(), "v-test")
	spec := Spec{
		Input:    InputSpec{Bucket: "in-bucket", Key: "people.csv", Format: "csv"},
		Output:   OutputSpec{Bucket: "out-bucket", KeyPrefix: "out"},
		Pipeline: filterIndiaSpec(),
	}

	first, err := d.Start(context.Background(), spec)
	if err != nil {
		t.Fatalf("Start (first): %v", err)
	}
	second, err := d.Start(context.Background(), spec)
	if err != nil {
		t.Fatalf("Start (second): %v", err)
	}
	if first.Kind != StartNew {
		t.Fatalf("expected first start to be new, got %s", first.Kind)
	}
	if second.Kind != StartDuplicate || second.JobRunID != first.JobRunID {
		t.Fatalf("expected duplicate pointing at %s, got %s/%s", first.JobRunID, second.Kind, second.JobRunID)
	}

	awaitTerminal(t, d, first.JobRunID)
}

func TestDriverCancel(t *testing.T) {
	s3 := newFakeS3()
	s3.putObject("in-bucket", "people.csv", []byte(peopleCSV))

	d := NewDriver(s3, cache.NewMemoryStore(), "v-test")
	spec := Spec{
		Input:    InputSpec{Bucket: "in-bucket", Key: "people.csv", Format: "csv"},
		Output:   OutputSpec{Bucket: "out-bucket", KeyPrefix: "out"},
		Pipeline: filterIndiaSpec(),
	}

	res, err := d.Start(context.Background(), spec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Cancel(res.JobRunID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	v := awaitTerminal(t, d, res.JobRunID)
	if v.State != StateCancelled && v.State != StateSucceeded {
		t.Fatalf("expected Cancelled or a already-finished Succeeded, got %s", v.State)
	}
}
