// Command validate checks the arrays saved by the etl command: dtypes and
// ranks, normalized value range, label classes, spatial agreement between
// features and labels, and agreement with the latest run in the catalog.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -output-dir processed_data \
//	  -catalog processed_data/catalog.db \
//	  -classes 3
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/couchcryptid/radiance-feature-etl/internal/adapter/catalog"
	"github.com/couchcryptid/radiance-feature-etl/internal/adapter/npy"
	"github.com/couchcryptid/radiance-feature-etl/internal/domain"
	"github.com/sbinet/npyio"
)

// maxErrors caps the per-phase error list for large arrays.
const maxErrors = 20

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
	extra  int
}

func (p *phase) errorf(format string, args ...any) {
	if len(p.errors) >= maxErrors {
		p.extra++
		return
	}
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// array is a decoded .npy file.
type array[T any] struct {
	descr string
	shape []int
	data  []T
}

func main() {
	outputDir := flag.String("output-dir", "processed_data", "directory holding preprocessed_data.npy and labels.npy")
	catalogPath := flag.String("catalog", "", "run catalog to compare against (optional)")
	classes := flag.Int("classes", 3, "number of label classes, excluding 0 = unlabeled")
	flag.Parse()

	if *classes < 1 {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*outputDir, *catalogPath, int64(*classes)))
}

func run(outputDir, catalogPath string, classes int64) int {
	fmt.Println("=== Radiance Output Validation ===")
	fmt.Println()

	features, err := loadNPY[float32](filepath.Join(outputDir, npy.FeaturesFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load features: %v\n", err)
		return 1
	}

	var labels *array[int64]
	l, err := loadNPY[int64](filepath.Join(outputDir, npy.LabelsFile))
	switch {
	case err == nil:
		labels = &l
	case errors.Is(err, os.ErrNotExist):
		fmt.Println("labels.npy not found, label phases will report it")
	default:
		fmt.Fprintf(os.Stderr, "FATAL: load labels: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateFeatures(features),
		validateLabels(labels, classes),
		validateAlignment(features, labels),
	}
	if catalogPath != "" {
		phases = append(phases, validateCatalog(catalogPath, features, labels))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors)+p.extra)
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Features: shape %v %s\n", features.shape, features.descr)
	if labels != nil {
		fmt.Printf("Labels:   shape %v %s\n", labels.shape, labels.descr)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
		if p.extra > 0 {
			fmt.Printf("  ... and %d more\n", p.extra)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadNPY[T float32 | int64](path string) (array[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return array[T]{}, err
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return array[T]{}, fmt.Errorf("read header %s: %w", path, err)
	}
	out := array[T]{descr: r.Header.Descr.Type, shape: r.Header.Descr.Shape}
	if err := r.Read(&out.data); err != nil {
		return array[T]{}, fmt.Errorf("read data %s: %w", path, err)
	}
	return out, nil
}

// ── Phase 1: Features ──

func validateFeatures(features array[float32]) *phase {
	p := &phase{name: "Phase 1: Feature array"}

	if features.descr != npy.DescrFloat32 {
		p.errorf("dtype %s, want %s", features.descr, npy.DescrFloat32)
	}
	if len(features.shape) != 4 {
		p.errorf("rank %d, want 4 (samples, rows, cols, channels)", len(features.shape))
		return p
	}
	if features.shape[0] == 0 {
		p.errorf("no samples")
	}

	for i, v := range features.data {
		switch {
		case math.IsNaN(float64(v)) || math.IsInf(float64(v), 0):
			p.errorf("value %v at flat index %d is not finite", v, i)
		case v < 0 || v > 1:
			p.errorf("value %v at flat index %d outside [0, 1]", v, i)
		}
	}
	return p
}

// ── Phase 2: Labels ──

func validateLabels(labels *array[int64], classes int64) *phase {
	p := &phase{name: "Phase 2: Label array"}

	if labels == nil {
		p.errorf("%s missing", npy.LabelsFile)
		return p
	}
	if labels.descr != npy.DescrInt64 {
		p.errorf("dtype %s, want %s", labels.descr, npy.DescrInt64)
	}
	if len(labels.shape) != 3 {
		p.errorf("rank %d, want 3 (samples, rows, cols)", len(labels.shape))
		return p
	}

	counts := make(map[int64]int)
	for i, c := range labels.data {
		if c < domain.ClassUnlabeled || c > classes {
			p.errorf("class %d at flat index %d outside [0, %d]", c, i, classes)
			continue
		}
		counts[c]++
	}
	fmt.Printf("Label class counts: %v\n", counts)
	return p
}

// ── Phase 3: Alignment ──

func validateAlignment(features array[float32], labels *array[int64]) *phase {
	p := &phase{name: "Phase 3: Feature/label alignment"}

	if labels == nil || len(features.shape) != 4 || len(labels.shape) != 3 {
		p.errorf("cannot compare shapes %v and %v", features.shape, shapeOf(labels))
		return p
	}
	if !slices.Equal(features.shape[1:3], labels.shape[1:3]) {
		p.errorf("spatial dims %v vs %v", features.shape[1:3], labels.shape[1:3])
	}
	if features.shape[0] != labels.shape[0] {
		p.errorf("%d feature samples but %d label samples", features.shape[0], labels.shape[0])
	}
	return p
}

// ── Phase 4: Catalog ──

func validateCatalog(path string, features array[float32], labels *array[int64]) *phase {
	p := &phase{name: "Phase 4: Catalog agreement"}

	store, err := catalog.Open(path)
	if err != nil {
		p.errorf("open catalog: %v", err)
		return p
	}
	defer store.Close()

	run, err := store.LatestRun(context.Background())
	if err != nil {
		p.errorf("latest run: %v", err)
		return p
	}
	fmt.Printf("Latest run %s finished %s\n", run.ID, run.FinishedAt.Format("2006-01-02T15:04:05Z07:00"))

	if !slices.Equal(run.FeatureShape, features.shape) {
		p.errorf("catalog feature shape %v, file has %v", run.FeatureShape, features.shape)
	}
	if !slices.Equal(run.LabelShape, shapeOf(labels)) {
		p.errorf("catalog label shape %v, file has %v", run.LabelShape, shapeOf(labels))
	}
	if len(features.shape) > 0 && len(run.Samples) != features.shape[0] {
		p.errorf("catalog lists %d samples, features hold %d", len(run.Samples), features.shape[0])
	}
	return p
}

func shapeOf(a *array[int64]) []int {
	if a == nil {
		return nil
	}
	return a.shape
}
