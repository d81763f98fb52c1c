//go:build ignore

// +build ignore

// generate_testdata.go creates standard chart datasets for benchmarking.
// Usage: go run scripts/generate_testdata.go
//
// Creates:
//   pkg/parity/testdata/benchmark/small.jsonl   (200 rows)
//   pkg/parity/testdata/benchmark/medium.jsonl  (1000 rows)
//   pkg/parity/testdata/benchmark/large.jsonl   (4000 rows)
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vanderheijden86/stepparity/pkg/testutil"
)

type datasetSpec struct {
	name string
	rows int
	bpm  float64
}

var datasets = []datasetSpec{
	{"small", 200, 120},
	{"medium", 1000, 150},
	{"large", 4000, 180},
}

func main() {
	outputDir := "pkg/parity/testdata/benchmark"
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	for _, ds := range datasets {
		fmt.Printf("Generating %s dataset (%d rows)...\n", ds.name, ds.rows)

		cfg := testutil.DefaultConfig()
		cfg.Seed = int64(ds.rows) // Reproducible per-size
		cfg.BPM = ds.bpm
		// Faster songs get denser streams
		if ds.bpm >= 150 {
			cfg.Division = 0.25
		}

		notes := testutil.New(cfg).Random(ds.rows)
		jsonl := testutil.ToJSONL(notes)

		outputPath := filepath.Join(outputDir, ds.name+".jsonl")
		if err := os.WriteFile(outputPath, []byte(jsonl), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", outputPath, err)
			os.Exit(1)
		}

		fmt.Printf("  Written %s (%d bytes, %s)\n", outputPath, len(jsonl), testutil.Describe(notes))
	}

	fmt.Println("\nDone! Benchmark charts created in", outputDir)
}
