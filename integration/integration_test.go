package integration

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/vegafs/streamengine/cache"
	csvformat "github.com/vegafs/streamengine/format/csv"
	"github.com/vegafs/streamengine/format"
	parquetformat "github.com/vegafs/streamengine/format/parquet"
	"github.com/vegafs/streamengine/integration/mock"
	"github.com/vegafs/streamengine/job"
	"github.com/vegafs/streamengine/pipeline"
)

const peopleCSV = "name,country,age\nAlice,USA,30\nBob,India,24\nCharlie,UK,35\nDavid,India,29\n"

func awaitTerminal(t *testing.T, d *job.Driver, id string) job.View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	v, err := d.Await(ctx, id)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	return v
}

// TestProjectThenConvertToParquet drives a CSV input through a
// project-then-convert_format pipeline end to end, then decodes the
// resulting Parquet object to verify schema and row content.
func TestProjectThenConvertToParquet(t *testing.T) {
	client := mock.NewS3Client()
	client.PutObject("in-bucket", "people.csv", []byte(peopleCSV))

	driver := job.NewDriver(client, cache.NewMemoryStore(), "v-test")
	spec := job.Spec{
		Input:  job.InputSpec{Bucket: "in-bucket", Key: "people.csv", Format: "csv"},
		Output: job.OutputSpec{Bucket: "out-bucket", KeyPrefix: "out"},
		Pipeline: pipeline.Spec{
			{Type: pipeline.StepProject, Columns: []string{"name", "age"}},
			{Type: pipeline.StepConvertFormat, ToFormat: "parquet"},
		},
	}

	res, err := driver.Start(context.Background(), spec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	v := awaitTerminal(t, driver, res.JobRunID)
	if v.State != job.StateSucceeded {
		t.Fatalf("expected Succeeded, got %s (err=%v)", v.State, v.Err)
	}
	if v.Progress.RowsOut != 4 {
		t.Fatalf("expected 4 rows out, got %d", v.Progress.RowsOut)
	}

	outKey := strings.TrimPrefix(v.Output, "s3://out-bucket/")
	data, ok := client.Object("out-bucket", outKey)
	if !ok {
		t.Fatalf("expected output object %q to exist", outKey)
	}

	r, err := parquetformat.NewReader(bytes.NewReader(data), int64(len(data)), format.ReadOptions{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	names := r.Schema().Names()
	if len(names) != 2 || names[0] != "name" || names[1] != "age" {
		t.Fatalf("expected schema [name age], got %v", names)
	}

	var gotNames []string
	rowCount := 0
	for {
		b, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		rowCount += b.RowCount
		col, err := b.Column("name")
		if err != nil {
			t.Fatalf("Column: %v", err)
		}
		for i := 0; i < b.RowCount; i++ {
			gotNames = append(gotNames, col.At(i).S)
		}
	}
	if rowCount != 4 {
		t.Fatalf("expected 4 rows in parquet output, got %d", rowCount)
	}
	want := []string{"Alice", "Bob", "Charlie", "David"}
	for i, name := range want {
		if i >= len(gotNames) || gotNames[i] != name {
			t.Fatalf("expected projected name order %v, got %v", want, gotNames)
		}
	}
}

// TestAggregateGroupByPreservesFirstInsertionOrder drives a group-by
// aggregate end to end and verifies the output rows appear in the order
// each group key was first observed in the input, not sorted or
// map-iteration order.
func TestAggregateGroupByPreservesFirstInsertionOrder(t *testing.T) {
	client := mock.NewS3Client()
	client.PutObject("in-bucket", "people.csv", []byte(peopleCSV))

	driver := job.NewDriver(client, cache.NewMemoryStore(), "v-test")
	spec := job.Spec{
		Input:  job.InputSpec{Bucket: "in-bucket", Key: "people.csv", Format: "csv"},
		Output: job.OutputSpec{Bucket: "out-bucket", KeyPrefix: "out"},
		Pipeline: pipeline.Spec{
			{
				Type:    pipeline.StepAggregate,
				GroupBy: []string{"country"},
				Aggregations: []pipeline.AggregationSpec{
					{Column: "age", Fn: "mean", As: "mean_age"},
					{Column: "*", Fn: "count", As: "n"},
				},
			},
		},
	}

	res, err := driver.Start(context.Background(), spec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	v := awaitTerminal(t, driver, res.JobRunID)
	if v.State != job.StateSucceeded {
		t.Fatalf("expected Succeeded, got %s (err=%v)", v.State, v.Err)
	}

	outKey := strings.TrimPrefix(v.Output, "s3://out-bucket/")
	data, ok := client.Object("out-bucket", outKey)
	if !ok {
		t.Fatalf("expected output object %q to exist", outKey)
	}

	r, err := csvformat.NewReader(bytes.NewReader(data), format.ReadOptions{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	type row struct {
		country string
		meanAge float64
		n       int64
	}
	var rows []row
	for {
		b, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		countryCol, _ := b.Column("country")
		meanCol, _ := b.Column("mean_age")
		nCol, _ := b.Column("n")
		for i := 0; i < b.RowCount; i++ {
			rows = append(rows, row{
				country: countryCol.At(i).S,
				meanAge: meanCol.At(i).F,
				n:       nCol.At(i).I,
			})
		}
	}

	want := []row{
		{country: "USA", meanAge: 30.0, n: 1},
		{country: "India", meanAge: 26.5, n: 2},
		{country: "UK", meanAge: 35.0, n: 1},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d groups, got %d: %+v", len(want), len(rows), rows)
	}
	for i, w := range want {
		if rows[i] != w {
			t.Errorf("row %d: expected %+v, got %+v", i, w, rows[i])
		}
	}
}
