package netcdf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/radiance-feature-etl/internal/domain"
	"github.com/ctessum/cdf"
)

// Output file names written by Writer.
const (
	FeaturesFile = "preprocessed_data.nc"
	LabelsFile   = "labels.nc"
)

// Variable is one array to write. Data must be a []float32, []float64,
// []int16 or []int32 holding prod(Shape) values in row-major order.
type Variable struct {
	Name       string
	Dims       []string
	Shape      []int
	Data       any
	Attributes map[string]any
}

// WriteFile creates path and writes the variables into it. Dimensions are
// declared in first-use order; a dimension reused with another length is an error.
func WriteFile(path string, vars ...Variable) error {
	if len(vars) == 0 {
		return errors.New("write netcdf: no variables")
	}

	var dimNames []string
	var dimLengths []int
	declared := make(map[string]int)
	for _, v := range vars {
		if len(v.Dims) != len(v.Shape) {
			return fmt.Errorf("write netcdf: variable %s has %d dims but %d lengths", v.Name, len(v.Dims), len(v.Shape))
		}
		want := 1
		for i, dim := range v.Dims {
			n := v.Shape[i]
			if n <= 0 {
				return fmt.Errorf("write netcdf: variable %s dimension %s has length %d", v.Name, dim, n)
			}
			want *= n
			if prev, ok := declared[dim]; ok {
				if prev != n {
					return fmt.Errorf("write netcdf: dimension %s has lengths %d and %d", dim, prev, n)
				}
				continue
			}
			declared[dim] = n
			dimNames = append(dimNames, dim)
			dimLengths = append(dimLengths, n)
		}
		got, err := dataLen(v.Data)
		if err != nil {
			return fmt.Errorf("write netcdf: variable %s: %w", v.Name, err)
		}
		if got != want {
			return fmt.Errorf("write netcdf: variable %s has %d values, shape needs %d", v.Name, got, want)
		}
	}

	h := cdf.NewHeader(dimNames, dimLengths)
	for _, v := range vars {
		zero, _ := zeroOf(v.Data)
		h.AddVariable(v.Name, v.Dims, zero)
		keys := make([]string, 0, len(v.Attributes))
		for k := range v.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.AddAttribute(v.Name, k, v.Attributes[k])
		}
	}
	h.Define()

	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create netcdf: %w", err)
	}
	f, err := cdf.Create(fh, h)
	if err != nil {
		fh.Close()
		return fmt.Errorf("write netcdf header %s: %w", path, err)
	}

	for _, v := range vars {
		w := f.Writer(v.Name, make([]int, len(v.Shape)), v.Shape)
		if _, err := w.Write(v.Data); err != nil {
			fh.Close()
			return fmt.Errorf("write netcdf variable %s to %s: %w", v.Name, path, err)
		}
	}
	return fh.Close()
}

func dataLen(data any) (int, error) {
	switch v := data.(type) {
	case []float32:
		return len(v), nil
	case []float64:
		return len(v), nil
	case []int16:
		return len(v), nil
	case []int32:
		return len(v), nil
	default:
		return 0, fmt.Errorf("unsupported data type %T", data)
	}
}

func zeroOf(data any) (any, error) {
	switch data.(type) {
	case []float32:
		return []float32{0}, nil
	case []float64:
		return []float64{0}, nil
	case []int16:
		return []int16{0}, nil
	case []int32:
		return []int32{0}, nil
	default:
		return nil, fmt.Errorf("unsupported data type %T", data)
	}
}

// Writer saves the stacked arrays as NetCDF.
// It implements pipeline.Loader.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a NetCDF sink writing into dir.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// Load writes the feature stack and, when present, the label stack.
func (w *Writer) Load(_ context.Context, batch domain.Batch) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	fs := batch.Features
	featuresPath := filepath.Join(w.dir, FeaturesFile)
	err := WriteFile(featuresPath, Variable{
		Name:  "features",
		Dims:  []string{"sample", "rows", "columns", "channel"},
		Shape: fs.Shape(),
		Data:  fs.Values,
	})
	if err != nil {
		return err
	}
	w.logger.Info("features saved", "path", featuresPath, "shape", fs.Shape())

	if batch.Labels == nil {
		return nil
	}

	ls := batch.Labels
	classes := make([]int32, len(ls.Values))
	for i, c := range ls.Values {
		classes[i] = int32(c)
	}
	labelsPath := filepath.Join(w.dir, LabelsFile)
	err = WriteFile(labelsPath, Variable{
		Name:  "labels",
		Dims:  []string{"sample", "rows", "columns"},
		Shape: ls.Shape(),
		Data:  classes,
		Attributes: map[string]any{
			"long_name": "class index, 0 = unlabeled",
		},
	})
	if err != nil {
		return err
	}
	w.logger.Info("labels saved", "path", labelsPath, "shape", ls.Shape())
	return nil
}
