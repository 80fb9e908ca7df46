// Package main generates synthetic CSV and JSON-lines fixtures for local
// engine runs, so a pipeline can be exercised without a real object store
// full of production data.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"

	json "github.com/goccy/go-json"
)

var countries = []string{"USA", "India", "UK", "Germany", "Brazil", "Japan"}

func randomString(r *rand.Rand, n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[r.Intn(len(letters))]
	}
	return string(b)
}

type record struct {
	Name    string `json:"name"`
	Country string `json:"country"`
	Age     int     `json:"age"`
	Score   float64 `json:"score"`
}

func generate(r *rand.Rand, n int) []record {
	out := make([]record, n)
	for i := range out {
		out[i] = record{
			Name:    randomString(r, 8),
			Country: countries[r.Intn(len(countries))],
			Age:     18 + r.Intn(60),
			Score:   r.Float64() * 100,
		}
	}
	return out
}

func writeCSV(path string, records []record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, "name,country,age,score"); err != nil {
		return err
	}
	for _, rec := range records {
		if _, err := fmt.Fprintf(f, "%s,%s,%d,%s\n", rec.Name, rec.Country, rec.Age,
			strconv.FormatFloat(rec.Score, 'f', 2, 64)); err != nil {
			return err
		}
	}
	return nil
}

func writeJSONL(path string, records []record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("datagen", flag.ExitOnError)
	out := fs.String("out", "fixture.csv", "output file path (.csv or .jsonl)")
	format := fs.String("format", "csv", "output format: csv or jsonl")
	numRows := fs.Int("rows", 1000, "number of rows to generate")
	seed := fs.Int64("seed", 1, "random seed")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	r := rand.New(rand.NewSource(*seed))
	records := generate(r, *numRows)

	switch *format {
	case "csv":
		if err := writeCSV(*out, records); err != nil {
			return fmt.Errorf("failed to write CSV fixture: %w", err)
		}
	case "jsonl":
		if err := writeJSONL(*out, records); err != nil {
			return fmt.Errorf("failed to write JSON-lines fixture: %w", err)
		}
	default:
		return fmt.Errorf("unknown format %q", *format)
	}

	fmt.Printf("wrote %d rows to %s (%s)\n", *numRows, *out, *format)
	return nil
}
