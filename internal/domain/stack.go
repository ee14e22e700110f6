package domain

import (
	"fmt"
	"slices"
)

// FeatureStack is a (samples, rows, cols, channels) float32 array.
type FeatureStack struct {
	Samples  int
	Rows     int
	Cols     int
	Channels int
	Values   []float32
}

// Shape returns the array dimensions.
func (s FeatureStack) Shape() []int { return []int{s.Samples, s.Rows, s.Cols, s.Channels} }

// LabelStack is a (samples, rows, cols) int64 array.
type LabelStack struct {
	Samples int
	Rows    int
	Cols    int
	Values  []int64
}

// Shape returns the array dimensions.
func (s LabelStack) Shape() []int { return []int{s.Samples, s.Rows, s.Cols} }

// Batch is everything one run saves.
type Batch struct {
	Features FeatureStack
	// Labels is nil when no sample was labeled.
	Labels *LabelStack

	FeatureSamples []string
	LabelSamples   []string
}

// Aligned reports whether the label stack covers exactly the feature samples.
func (b Batch) Aligned() bool {
	return b.Labels != nil && slices.Equal(b.FeatureSamples, b.LabelSamples)
}

// StackFeatures concatenates tensors along a new leading sample axis.
func StackFeatures(tensors []FeatureTensor) (FeatureStack, error) {
	if len(tensors) == 0 {
		return FeatureStack{}, ErrNoSamples
	}
	first := tensors[0]
	stack := FeatureStack{
		Samples:  len(tensors),
		Rows:     first.Rows,
		Cols:     first.Cols,
		Channels: first.Channels,
		Values:   make([]float32, 0, len(tensors)*len(first.Values)),
	}
	for i, t := range tensors {
		if t.Rows != first.Rows || t.Cols != first.Cols || t.Channels != first.Channels {
			return FeatureStack{}, fmt.Errorf("%w: sample %d has shape (%d, %d, %d), want (%d, %d, %d)",
				ErrShapeMismatch, i, t.Rows, t.Cols, t.Channels, first.Rows, first.Cols, first.Channels)
		}
		stack.Values = append(stack.Values, t.Values...)
	}
	return stack, nil
}

// StackLabels concatenates label grids along a new leading sample axis.
func StackLabels(grids []LabelGrid) (LabelStack, error) {
	if len(grids) == 0 {
		return LabelStack{}, ErrNoSamples
	}
	first := grids[0]
	stack := LabelStack{
		Samples: len(grids),
		Rows:    first.Rows,
		Cols:    first.Cols,
		Values:  make([]int64, 0, len(grids)*len(first.Classes)),
	}
	for i, g := range grids {
		if g.Rows != first.Rows || g.Cols != first.Cols {
			return LabelStack{}, fmt.Errorf("%w: label sample %d has shape (%d, %d), want (%d, %d)",
				ErrShapeMismatch, i, g.Rows, g.Cols, first.Rows, first.Cols)
		}
		stack.Values = append(stack.Values, g.Classes...)
	}
	return stack, nil
}

// NewBatch stacks every sample's features and, when any sample is labeled,
// the labels of the labeled samples.
func NewBatch(samples []Sample) (Batch, error) {
	tensors := make([]FeatureTensor, 0, len(samples))
	var grids []LabelGrid
	var batch Batch

	for _, s := range samples {
		tensors = append(tensors, s.Features)
		batch.FeatureSamples = append(batch.FeatureSamples, s.Name)
		if s.Labels != nil {
			grids = append(grids, *s.Labels)
			batch.LabelSamples = append(batch.LabelSamples, s.Name)
		}
	}

	features, err := StackFeatures(tensors)
	if err != nil {
		return Batch{}, fmt.Errorf("stack features: %w", err)
	}
	batch.Features = features

	if len(grids) > 0 {
		labels, err := StackLabels(grids)
		if err != nil {
			return Batch{}, fmt.Errorf("stack labels: %w", err)
		}
		batch.Labels = &labels
	}

	return batch, nil
}
