package domain

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// NormalizeMode selects how a channel is rescaled.
type NormalizeMode string

const (
	// ModeStandardize rescales to zero mean and unit variance.
	ModeStandardize NormalizeMode = "standardize"
	// ModeMinMax standardizes and then rescales to [0, 1].
	ModeMinMax NormalizeMode = "minmax"
)

// ZeroVariancePolicy decides what happens to a constant channel.
type ZeroVariancePolicy string

const (
	// ZeroVarianceFail aborts with ErrZeroVariance.
	ZeroVarianceFail ZeroVariancePolicy = "fail"
	// ZeroVarianceFill replaces the channel with zeros.
	ZeroVarianceFill ZeroVariancePolicy = "zero"
)

// NormalizeOptions configures NormalizeLayer.
type NormalizeOptions struct {
	Mode              NormalizeMode
	SanitizeNonFinite bool
	ZeroVariance      ZeroVariancePolicy
}

// DefaultNormalizeOptions matches the training data preparation: sanitize,
// standardize, min-max, and abort on constant channels.
func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{
		Mode:              ModeMinMax,
		SanitizeNonFinite: true,
		ZeroVariance:      ZeroVarianceFail,
	}
}

// CountNonFinite returns the number of NaN and ±Inf values.
func CountNonFinite(values []float64) int {
	n := 0
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			n++
		}
	}
	return n
}

// SanitizeNonFinite replaces NaN and ±Inf with 0 in place and returns how many
// values were replaced.
func SanitizeNonFinite(values []float64) int {
	n := 0
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			values[i] = 0
			n++
		}
	}
	return n
}

// Standardize returns (x - mean) / std using the N-1 standard deviation.
// A constant or single-valued input returns ErrZeroVariance. NaN statistics
// from unsanitized input are not checked and propagate into the result.
func Standardize(values []float64) ([]float64, float64, float64, error) {
	if len(values) < 2 {
		return nil, 0, 0, ErrZeroVariance
	}
	mean, std := stat.MeanStdDev(values, nil)
	if std == 0 || floats.Min(values) == floats.Max(values) {
		return nil, mean, 0, ErrZeroVariance
	}

	out := slices.Clone(values)
	floats.AddConst(-mean, out)
	floats.Scale(1/std, out)
	return out, mean, std, nil
}

// MinMaxScale returns (x - min) / (max - min).
func MinMaxScale(values []float64) ([]float64, error) {
	if len(values) == 0 {
		return nil, ErrZeroRange
	}
	lo, hi := floats.Min(values), floats.Max(values)
	if hi == lo {
		return nil, ErrZeroRange
	}

	out := slices.Clone(values)
	floats.AddConst(-lo, out)
	floats.Scale(1/(hi-lo), out)
	return out, nil
}

// NormalizeLayer sanitizes (when enabled), standardizes and optionally
// min-max scales one channel. The input grid is not modified.
func NormalizeLayer(layer Layer, opts NormalizeOptions) (Grid, LayerStats, error) {
	values := slices.Clone(layer.Grid.Values)
	stats := LayerStats{
		Name:      layer.Name,
		Source:    layer.Source,
		NonFinite: CountNonFinite(values),
	}

	if opts.SanitizeNonFinite && stats.NonFinite > 0 {
		SanitizeNonFinite(values)
		stats.Sanitized = true
	}
	if len(values) > 0 {
		stats.Min, stats.Max = floats.Min(values), floats.Max(values)
	}

	z, mean, std, err := Standardize(values)
	stats.Mean, stats.StdDev = mean, std
	if err != nil {
		if errors.Is(err, ErrZeroVariance) && opts.ZeroVariance == ZeroVarianceFill {
			stats.ZeroVariance = true
			return NewGrid(layer.Grid.Rows, layer.Grid.Cols), stats, nil
		}
		return Grid{}, stats, fmt.Errorf("standardize layer %s: %w", layer.Name, err)
	}

	if opts.Mode == ModeMinMax {
		z, err = MinMaxScale(z)
		if err != nil {
			return Grid{}, stats, fmt.Errorf("min-max scale layer %s: %w", layer.Name, err)
		}
	}

	return Grid{Rows: layer.Grid.Rows, Cols: layer.Grid.Cols, Values: z}, stats, nil
}

// BuildFeatures normalizes every layer and interleaves them into a
// (rows, cols, channels) tensor. All layers must share the first layer's shape.
func BuildFeatures(layers []Layer, opts NormalizeOptions) (FeatureTensor, []LayerStats, error) {
	if len(layers) == 0 {
		return FeatureTensor{}, nil, ErrNoLayers
	}

	rows, cols := layers[0].Grid.Shape()
	t := FeatureTensor{
		Rows:         rows,
		Cols:         cols,
		Channels:     len(layers),
		ChannelNames: make([]string, len(layers)),
		Values:       make([]float32, rows*cols*len(layers)),
	}
	allStats := make([]LayerStats, 0, len(layers))

	for ch, layer := range layers {
		if !layer.Grid.SameShape(rows, cols) {
			return FeatureTensor{}, nil, shapeError("layer "+layer.Name, layer.Grid.Rows, layer.Grid.Cols, rows, cols)
		}
		norm, stats, err := NormalizeLayer(layer, opts)
		if err != nil {
			return FeatureTensor{}, nil, err
		}
		t.ChannelNames[ch] = layer.Name
		for i, v := range norm.Values {
			t.Values[i*t.Channels+ch] = float32(v)
		}
		allStats = append(allStats, stats)
	}

	return t, allStats, nil
}
