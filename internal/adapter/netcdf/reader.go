// Package netcdf reads and writes NetCDF classic files holding radiance
// channels and label masks.
package netcdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/couchcryptid/radiance-feature-etl/internal/domain"
	"github.com/ctessum/cdf"
	"golang.org/x/sync/errgroup"
)

// Attribute names decoded the same way xarray's mask-and-scale does.
const (
	attrFillValue   = "_FillValue"
	attrScaleFactor = "scale_factor"
	attrAddOffset   = "add_offset"
)

// Reader loads the radiance channels and label masks of one sample.
// It implements pipeline.SampleReader.
type Reader struct {
	variable string
	workers  int
	logger   *slog.Logger
}

// NewReader creates a Reader selecting data variables whose name contains
// variable. Radiance files are read by up to workers goroutines.
func NewReader(variable string, workers int, logger *slog.Logger) *Reader {
	if workers < 1 {
		workers = 1
	}
	return &Reader{variable: variable, workers: workers, logger: logger}
}

// ReadSample decodes every radiance layer, in file then variable order, and
// the first data variable of every label file.
func (r *Reader) ReadSample(ctx context.Context, ref domain.SampleRef) (domain.RawSample, error) {
	perFile := make([][]domain.Layer, len(ref.RadiancePaths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, path := range ref.RadiancePaths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			layers, err := ReadMatching(path, r.variable)
			if err != nil {
				return err
			}
			perFile[i] = layers
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.RawSample{}, fmt.Errorf("read radiance for sample %s: %w", ref.Name, err)
	}

	raw := domain.RawSample{Ref: ref}
	sources := make(map[string]string)
	for _, layers := range perFile {
		for _, layer := range layers {
			if prev, ok := sources[layer.Name]; ok {
				return domain.RawSample{}, fmt.Errorf("read radiance for sample %s: variable %s in both %s and %s",
					ref.Name, layer.Name, prev, layer.Source)
			}
			sources[layer.Name] = layer.Source
			r.logger.Debug("radiance layer loaded",
				"sample", ref.Name,
				"layer", layer.Name,
				"rows", layer.Grid.Rows,
				"cols", layer.Grid.Cols,
			)
			raw.Layers = append(raw.Layers, layer)
		}
	}

	for _, path := range ref.LabelPaths {
		if err := ctx.Err(); err != nil {
			return domain.RawSample{}, err
		}
		label, err := ReadFirst(path)
		if err != nil {
			return domain.RawSample{}, fmt.Errorf("read labels for sample %s: %w", ref.Name, err)
		}
		r.logger.Debug("label layer loaded",
			"sample", ref.Name,
			"path", path,
			"rows", label.Grid.Rows,
			"cols", label.Grid.Cols,
		)
		raw.Labels = append(raw.Labels, label)
	}

	return raw, nil
}

// ReadMatching decodes every 2-D data variable of path whose name contains substr.
func ReadMatching(path, substr string) ([]domain.Layer, error) {
	fh, f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var layers []domain.Layer
	for _, name := range dataVariables(f.Header) {
		if !strings.Contains(name, substr) {
			continue
		}
		grid, err := readGrid(f, name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		layers = append(layers, domain.Layer{Name: name, Source: path, Grid: grid})
	}
	return layers, nil
}

// ReadFirst decodes the first data variable of path.
func ReadFirst(path string) (domain.Layer, error) {
	fh, f, err := open(path)
	if err != nil {
		return domain.Layer{}, err
	}
	defer fh.Close()

	names := dataVariables(f.Header)
	if len(names) == 0 {
		return domain.Layer{}, fmt.Errorf("%s: no data variables", path)
	}
	grid, err := readGrid(f, names[0])
	if err != nil {
		return domain.Layer{}, fmt.Errorf("%s: %w", path, err)
	}
	return domain.Layer{Name: names[0], Source: path, Grid: grid}, nil
}

func open(path string) (*os.File, *cdf.File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open netcdf: %w", err)
	}
	f, err := cdf.Open(fh)
	if err != nil {
		fh.Close()
		return nil, nil, fmt.Errorf("parse netcdf header %s: %w", path, err)
	}
	return fh, f, nil
}

// dataVariables lists variables in header order, skipping coordinate
// variables (1-D variables named after their own dimension).
func dataVariables(h *cdf.Header) []string {
	var names []string
	for _, name := range h.Variables() {
		dims := h.Dimensions(name)
		if len(dims) == 1 && dims[0] == name {
			continue
		}
		names = append(names, name)
	}
	return names
}

func readGrid(f *cdf.File, name string) (domain.Grid, error) {
	lengths := f.Header.Lengths(name)
	if len(lengths) != 2 {
		return domain.Grid{}, fmt.Errorf("variable %s has %d dimensions, want 2", name, len(lengths))
	}
	rows, cols := lengths[0], lengths[1]

	r := f.Reader(name, nil, nil)
	buf := r.Zero(rows * cols)
	n, err := r.Read(buf)
	if err != nil && !(errors.Is(err, io.EOF) && n == rows*cols) {
		return domain.Grid{}, fmt.Errorf("read variable %s: %w", name, err)
	}
	if n != rows*cols {
		return domain.Grid{}, fmt.Errorf("read variable %s: got %d values, want %d", name, n, rows*cols)
	}

	values, err := toFloat64(buf)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("read variable %s: %w", name, err)
	}
	decode(f.Header, name, values)

	return domain.Grid{Rows: rows, Cols: cols, Values: values}, nil
}

// decode masks fill values as NaN and applies scale_factor and add_offset.
func decode(h *cdf.Header, name string, values []float64) {
	fill, hasFill := attrFloat(h, name, attrFillValue)
	scale, hasScale := attrFloat(h, name, attrScaleFactor)
	offset, hasOffset := attrFloat(h, name, attrAddOffset)
	if !hasScale {
		scale = 1
	}
	if !hasOffset {
		offset = 0
	}
	if !hasFill && !hasScale && !hasOffset {
		return
	}

	for i, v := range values {
		if hasFill && v == fill {
			values[i] = math.NaN()
			continue
		}
		values[i] = v*scale + offset
	}
}

func attrFloat(h *cdf.Header, variable, attr string) (float64, bool) {
	switch v := h.GetAttribute(variable, attr).(type) {
	case []float64:
		if len(v) > 0 {
			return v[0], true
		}
	case []float32:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	case []int32:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	case []int16:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	case []int8:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	case []uint8:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	}
	return 0, false
}

func toFloat64(buf any) ([]float64, error) {
	switch v := buf.(type) {
	case []float64:
		return v, nil
	case []float32:
		return convert(v), nil
	case []int32:
		return convert(v), nil
	case []int16:
		return convert(v), nil
	case []int8:
		return convert(v), nil
	case []uint8:
		return convert(v), nil
	default:
		return nil, fmt.Errorf("unsupported data type %T", buf)
	}
}

func convert[T float32 | int32 | int16 | int8 | uint8](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
