// Package main implements the engine's command-line driver. It parses
// flags describing one job (input, output, pipeline file), submits it to
// a job.Driver backed by real S3 and a fingerprint cache (S3-backed when
// -cache is given, in-memory otherwise), and polls until it reaches a
// terminal state.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vegafs/streamengine/cache"
	"github.com/vegafs/streamengine/config"
	"github.com/vegafs/streamengine/job"
	"github.com/vegafs/streamengine/metrics"
	"github.com/vegafs/streamengine/pipeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("engine", flag.ExitOnError)

	inputBucket := fs.String("input-bucket", "", "bucket holding the input object")
	inputKey := fs.String("input-key", "", "key of the input object")
	inputFormat := fs.String("input-format", "", "input format (csv|jsonl|parquet), empty auto-detects")
	outputBucket := fs.String("output-bucket", "", "bucket to publish output into")
	outputPrefix := fs.String("output-prefix", "", "key prefix for the output object")
	pipelinePath := fs.String("pipeline", "", "path to a JSON pipeline spec file")
	cacheURI := fs.String("cache", "", "S3 URI for the fingerprint cache (s3://bucket/prefix); defaults to in-memory")
	region := fs.String("region", "", "AWS region (defaults to AWS_REGION env)")
	metricsAddr := fs.String("metrics-addr", "", "address to serve /metrics on, empty disables")
	engineVersion := fs.String("engine-version", "dev", "engine version stamped into the job fingerprint")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if *inputBucket == "" || *inputKey == "" || *outputBucket == "" || *pipelinePath == "" {
		return errors.New("input-bucket, input-key, output-bucket, and pipeline are required")
	}

	specBytes, err := os.ReadFile(*pipelinePath)
	if err != nil {
		return fmt.Errorf("failed to read pipeline spec: %w", err)
	}
	pipelineSpec, err := pipeline.ParseSpec(specBytes)
	if err != nil {
		return fmt.Errorf("invalid pipeline spec: %w", err)
	}

	defaults, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("invalid engine configuration: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(*region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)

	var cacheStore cache.Store
	if *cacheURI != "" {
		cacheStore, err = cache.NewS3Store(client, *cacheURI)
		if err != nil {
			return fmt.Errorf("failed to create cache store: %w", err)
		}
	} else {
		cacheStore = cache.NewMemoryStore()
	}

	m := metrics.New()
	driver := job.NewDriver(client, cacheStore, *engineVersion).
		WithMetrics(m).
		WithDefaults(defaults)

	if *metricsAddr != "" {
		go func() {
			srv := &http.Server{Addr: *metricsAddr, Handler: m.Handler()}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	spec := job.Spec{
		Input:    job.InputSpec{Bucket: *inputBucket, Key: *inputKey, Format: *inputFormat},
		Output:   job.OutputSpec{Bucket: *outputBucket, KeyPrefix: *outputPrefix},
		Pipeline: pipelineSpec,
	}

	res, err := driver.Start(ctx, spec)
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}

	switch res.Kind {
	case job.StartCacheHit:
		fmt.Printf("cache hit, output already at %s\n", res.OutputLocation)
		return nil
	case job.StartDuplicate:
		fmt.Printf("job already running as %s, attaching\n", res.JobRunID)
	case job.StartNew:
		fmt.Printf("started job %s\n", res.JobRunID)
	}

	go reportProgress(ctx, driver, res.JobRunID)

	view, err := driver.Await(ctx, res.JobRunID)
	if err != nil {
		return fmt.Errorf("job did not complete: %w", err)
	}
	if view.State != job.StateSucceeded {
		return fmt.Errorf("job finished as %s: %w", view.State, view.Err)
	}
	fmt.Printf("job %s succeeded, output at %s\n", res.JobRunID, view.Output)
	return nil
}

func reportProgress(ctx context.Context, driver *job.Driver, id string) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v, err := driver.Progress(id)
			if err != nil || v.State.Terminal() {
				return
			}
			fmt.Printf("progress: %d rows in, %d rows out, %d bytes out\n",
				v.Progress.RowsIn, v.Progress.RowsOut, v.Progress.BytesOut)
		}
	}
}
