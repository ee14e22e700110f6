package domain

import (
	"errors"
	"fmt"
	"time"
)

// Label classes assigned by CombineLabels. File position i maps to class i+1.
const (
	ClassUnlabeled int64 = 0
	ClassIce       int64 = 1
	ClassClear     int64 = 2
	ClassCloud     int64 = 3
)

// DefaultLabelFiles lists the mask files in class-index order.
var DefaultLabelFiles = []string{"ice_labels.nc", "clear_labels.nc", "cloud_labels.nc"}

var (
	// ErrShapeMismatch is returned when a grid does not match the sample's (rows, cols).
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrZeroVariance is returned when a channel has zero standard deviation.
	ErrZeroVariance = errors.New("zero variance")
	// ErrZeroRange is returned when min-max scaling sees max == min.
	ErrZeroRange = errors.New("zero value range")
	// ErrNoLayers is returned when a sample has no radiance channels.
	ErrNoLayers = errors.New("no radiance layers")
	// ErrNoSamples is returned when there is nothing to stack.
	ErrNoSamples = errors.New("no samples")
)

// Grid is a row-major 2D grid of values.
type Grid struct {
	Rows   int
	Cols   int
	Values []float64
}

// NewGrid allocates a zero-filled grid.
func NewGrid(rows, cols int) Grid {
	return Grid{Rows: rows, Cols: cols, Values: make([]float64, rows*cols)}
}

// At returns the value at (r, c).
func (g Grid) At(r, c int) float64 { return g.Values[r*g.Cols+c] }

// Set stores v at (r, c).
func (g Grid) Set(r, c int, v float64) { g.Values[r*g.Cols+c] = v }

// Shape returns (rows, cols).
func (g Grid) Shape() (int, int) { return g.Rows, g.Cols }

// SameShape reports whether g has the given dimensions.
func (g Grid) SameShape(rows, cols int) bool { return g.Rows == rows && g.Cols == cols }

// Layer is a named grid read from a source file.
type Layer struct {
	Name   string
	Source string
	Grid   Grid
}

// SampleRef locates the files of one sample directory.
type SampleRef struct {
	Name          string
	Dir           string
	RadiancePaths []string
	// LabelPaths is empty unless every expected label file exists.
	LabelPaths []string
}

// HasLabels reports whether the sample has a complete set of label files.
func (r SampleRef) HasLabels() bool { return len(r.LabelPaths) > 0 }

// RawSample holds the decoded, unnormalized grids of one sample.
type RawSample struct {
	Ref    SampleRef
	Layers []Layer
	Labels []Layer
}

// FeatureTensor is a (rows, cols, channels) float32 tensor.
type FeatureTensor struct {
	Rows         int
	Cols         int
	Channels     int
	ChannelNames []string
	Values       []float32
}

// At returns the value of channel ch at (r, c).
func (t FeatureTensor) At(r, c, ch int) float32 {
	return t.Values[(r*t.Cols+c)*t.Channels+ch]
}

// Channel copies one channel out as a grid.
func (t FeatureTensor) Channel(ch int) Grid {
	g := NewGrid(t.Rows, t.Cols)
	for i := range g.Values {
		g.Values[i] = float64(t.Values[i*t.Channels+ch])
	}
	return g
}

// LabelGrid is a (rows, cols) grid of class indices.
type LabelGrid struct {
	Rows    int
	Cols    int
	Classes []int64
}

// At returns the class at (r, c).
func (l LabelGrid) At(r, c int) int64 { return l.Classes[r*l.Cols+c] }

// LayerStats records what normalization observed for one channel.
type LayerStats struct {
	Name         string
	Source       string
	Mean         float64
	StdDev       float64
	Min          float64
	Max          float64
	NonFinite    int
	Sanitized    bool
	ZeroVariance bool
}

// Sample is one normalized feature tensor and its optional label grid.
type Sample struct {
	Name        string
	Features    FeatureTensor
	Labels      *LabelGrid
	Stats       []LayerStats
	ClassCounts map[int64]int
}

// SampleSummary is the persisted record of one processed sample.
type SampleSummary struct {
	Position    int
	Name        string
	Rows        int
	Cols        int
	Channels    int
	Labeled     bool
	ClassCounts map[int64]int
	Stats       []LayerStats
}

// RunSummary describes one batch run.
type RunSummary struct {
	ID           string
	BasePath     string
	OutputDir    string
	StartedAt    time.Time
	FinishedAt   time.Time
	FeatureShape []int
	LabelShape   []int
	Aligned      bool
	Samples      []SampleSummary
}

// NewRunSummary starts a run summary stamped with the package clock.
func NewRunSummary(id, basePath, outputDir string) RunSummary {
	return RunSummary{
		ID:        id,
		BasePath:  basePath,
		OutputDir: outputDir,
		StartedAt: clock.Now().UTC(),
	}
}

// AddSample appends a sample record at the next position.
func (s *RunSummary) AddSample(sample Sample) {
	s.Samples = append(s.Samples, SampleSummary{
		Position:    len(s.Samples),
		Name:        sample.Name,
		Rows:        sample.Features.Rows,
		Cols:        sample.Features.Cols,
		Channels:    sample.Features.Channels,
		Labeled:     sample.Labels != nil,
		ClassCounts: sample.ClassCounts,
		Stats:       sample.Stats,
	})
}

// Finish records the output shapes and the finish time.
func (s *RunSummary) Finish(batch Batch) {
	s.FeatureShape = batch.Features.Shape()
	if batch.Labels != nil {
		s.LabelShape = batch.Labels.Shape()
	}
	s.Aligned = batch.Aligned()
	s.FinishedAt = clock.Now().UTC()
}

// Duration returns the wall time between start and finish.
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return clock.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

func shapeError(source string, gotRows, gotCols, wantRows, wantCols int) error {
	return fmt.Errorf("%w: %s has shape (%d, %d), want (%d, %d)",
		ErrShapeMismatch, source, gotRows, gotCols, wantRows, wantCols)
}
