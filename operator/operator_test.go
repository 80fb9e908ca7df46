package operator

import (
	"context"
	"testing"

	"github.com/vegafs/streamengine/batch"
)

func peopleSchema() batch.Schema {
	return batch.NewSchema(
		batch.Field{Name: "name", Type: batch.String},
		batch.Field{Name: "country", Type: batch.String},
		batch.Field{Name: "age", Type: batch.Int64},
	)
}

func peopleBatch(t *testing.T) *batch.Batch {
	t.Helper()
	schema := peopleSchema()
	b := batch.New(schema, 4)
	rows := []struct {
		name, country string
		age           int64
	}{
		{"Alice", "USA", 30},
		{"Bob", "India", 24},
		{"Charlie", "UK", 35},
		{"David", "India", 29},
	}
	for _, r := range rows {
		b.Columns[0].Append(batch.StringValue(r.name))
		b.Columns[1].Append(batch.StringValue(r.country))
		b.Columns[2].Append(batch.IntValue(r.age))
	}
	if err := b.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}
	return b
}

func TestFilterEqSelectsMatchingRows(t *testing.T) {
	schema := peopleSchema()
	f, err := NewFilter(0, schema, "country", FilterEq, batch.StringValue("India"), nil)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	out, err := f.Apply(context.Background(), peopleBatch(t))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out == nil || out.RowCount != 2 {
		t.Fatalf("want 2 rows, got %+v", out)
	}
	names := out.Columns[0]
	if names.At(0).S != "Bob" || names.At(1).S != "David" {
		t.Fatalf("want Bob, David in order; got %s, %s", names.At(0).S, names.At(1).S)
	}
}

func TestFilterNullNeverMatchesEq(t *testing.T) {
	schema := batch.NewSchema(batch.Field{Name: "v", Type: batch.Int64, Nullable: true})
	b := batch.New(schema, 2)
	b.Columns[0].AppendNull()
	b.Columns[0].Append(batch.IntValue(5))
	if err := b.Seal(); err != nil {
		t.Fatal(err)
	}
	f, err := NewFilter(0, schema, "v", FilterEq, batch.IntValue(5), nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := f.Apply(context.Background(), b)
	if err != nil {
		t.Fatal(err)
	}
	if out.RowCount != 1 {
		t.Fatalf("want 1 matching row, got %d", out.RowCount)
	}
}

func TestFilterRejectsOrderingOnBool(t *testing.T) {
	schema := batch.NewSchema(batch.Field{Name: "flag", Type: batch.Bool})
	if _, err := NewFilter(0, schema, "flag", FilterGt, batch.BoolValue(true), nil); err == nil {
		t.Fatal("expected error for ordering comparison on bool column")
	}
}

func TestProjectNarrowsAndReorders(t *testing.T) {
	schema := peopleSchema()
	p, err := NewProject(0, schema, []string{"age", "name"})
	if err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	out, err := p.Apply(context.Background(), peopleBatch(t))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Schema.Names()[0] != "age" || out.Schema.Names()[1] != "name" {
		t.Fatalf("unexpected schema order: %v", out.Schema.Names())
	}
	if out.Columns[0].At(0).I != 30 {
		t.Fatalf("want age 30, got %v", out.Columns[0].At(0))
	}
}

func TestRenamePreservesColumnOrder(t *testing.T) {
	schema := peopleSchema()
	r, err := NewRename(0, schema, map[string]string{"country": "nation"})
	if err != nil {
		t.Fatalf("NewRename: %v", err)
	}
	names := r.OutputSchema().Names()
	if names[0] != "name" || names[1] != "nation" || names[2] != "age" {
		t.Fatalf("unexpected rename schema: %v", names)
	}
}

func TestCastStringToInt64(t *testing.T) {
	schema := batch.NewSchema(batch.Field{Name: "v", Type: batch.String})
	b := batch.New(schema, 2)
	b.Columns[0].Append(batch.StringValue("42"))
	b.Columns[0].Append(batch.StringValue("not-a-number"))
	if err := b.Seal(); err != nil {
		t.Fatal(err)
	}

	c, err := NewCast(0, schema, "v", batch.Int64, false)
	if err != nil {
		t.Fatalf("NewCast: %v", err)
	}
	out, err := c.Apply(context.Background(), b)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Columns[0].At(0).I != 42 {
		t.Fatalf("want 42, got %v", out.Columns[0].At(0))
	}
	if !out.Columns[0].At(1).Null {
		t.Fatalf("want non-strict cast failure to yield null")
	}
}

func TestCastStrictFailsRun(t *testing.T) {
	schema := batch.NewSchema(batch.Field{Name: "v", Type: batch.String})
	b := batch.New(schema, 1)
	b.Columns[0].Append(batch.StringValue("nope"))
	if err := b.Seal(); err != nil {
		t.Fatal(err)
	}
	c, err := NewCast(0, schema, "v", batch.Int64, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Apply(context.Background(), b); err == nil {
		t.Fatal("expected strict cast failure")
	}
}

func TestAggregateGroupByMeanAndCount(t *testing.T) {
	schema := peopleSchema()
	a, err := NewAggregate(0, schema, []string{"country"}, []AggSpec{
		{Column: "age", Fn: AggMean, As: "mean_age"},
		{Column: "*", Fn: AggCount, As: "n"},
	})
	if err != nil {
		t.Fatalf("NewAggregate: %v", err)
	}
	if err := a.Ingest(context.Background(), peopleBatch(t)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	batches, err := a.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(batches) != 1 || batches[0].RowCount != 3 {
		t.Fatalf("want 1 batch of 3 groups, got %+v", batches)
	}
	out := batches[0]
	wantCountry := []string{"USA", "India", "UK"}
	wantMean := []float64{30.0, 26.5, 35.0}
	wantN := []int64{1, 2, 1}
	for i, country := range wantCountry {
		if out.Columns[0].At(i).S != country {
			t.Fatalf("row %d: want country %s, got %s", i, country, out.Columns[0].At(i).S)
		}
		if out.Columns[1].At(i).F != wantMean[i] {
			t.Fatalf("row %d: want mean %v, got %v", i, wantMean[i], out.Columns[1].At(i).F)
		}
		if out.Columns[2].At(i).I != wantN[i] {
			t.Fatalf("row %d: want n %v, got %v", i, wantN[i], out.Columns[2].At(i).I)
		}
	}
}

func TestAggregateSumOverflowFails(t *testing.T) {
	schema := batch.NewSchema(
		batch.Field{Name: "g", Type: batch.String},
		batch.Field{Name: "v", Type: batch.Int64},
	)
	a, err := NewAggregate(0, schema, []string{"g"}, []AggSpec{{Column: "v", Fn: AggSum, As: "total"}})
	if err != nil {
		t.Fatal(err)
	}
	b := batch.New(schema, 2)
	b.Columns[0].Append(batch.StringValue("x"))
	b.Columns[1].Append(batch.IntValue(9223372036854775807))
	b.Columns[0].Append(batch.StringValue("x"))
	b.Columns[1].Append(batch.IntValue(1))
	if err := b.Seal(); err != nil {
		t.Fatal(err)
	}
	if err := a.Ingest(context.Background(), b); err == nil {
		t.Fatal("expected overflow to fail ingest")
	}
}
