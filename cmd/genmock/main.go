// Command genmock writes synthetic sample directories for local runs. Each
// sample holds radiance channels in NetCDF classic files and, unless it is
// chosen to be unlabeled, disjoint ice, clear and cloud masks.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out ../images \
//	  -samples 4 -rows 64 -cols 64 -channels 3 \
//	  -unlabeled 1 -nan-rate 0.001 -seed 7
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/couchcryptid/radiance-feature-etl/internal/adapter/netcdf"
)

var gridDims = []string{"rows", "columns"}

// packed channels are stored as int16 counts decoded with these attributes.
const (
	packedFill   int16   = -32768
	packedScale  float64 = 0.01
	packedOffset float64 = 200
)

type options struct {
	out       string
	samples   int
	rows      int
	cols      int
	channels  int
	unlabeled int
	nanRate   float64
	seed      uint64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var o options
	flag.StringVar(&o.out, "out", "", "directory to create sample directories in")
	flag.IntVar(&o.samples, "samples", 4, "number of sample directories")
	flag.IntVar(&o.rows, "rows", 64, "grid rows")
	flag.IntVar(&o.cols, "cols", 64, "grid columns")
	flag.IntVar(&o.channels, "channels", 3, "radiance channels per sample")
	flag.IntVar(&o.unlabeled, "unlabeled", 0, "number of trailing samples written without label files")
	flag.Float64Var(&o.nanRate, "nan-rate", 0, "fraction of radiance cells replaced with NaN or fill")
	flag.Uint64Var(&o.seed, "seed", 1, "random seed")
	flag.Parse()

	if o.out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if o.samples < 1 || o.rows < 2 || o.cols < 2 || o.channels < 1 {
		return fmt.Errorf("samples, channels must be >= 1 and rows, cols >= 2")
	}

	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	for s := range o.samples {
		name := fmt.Sprintf("scene_%03d", s+1)
		labeled := s < o.samples-o.unlabeled
		if err := writeSample(filepath.Join(o.out, name), o, labeled, rng); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		log.Printf("%s: %dx%d, %d channels, labeled=%t", name, o.rows, o.cols, o.channels, labeled)
	}
	return nil
}

func writeSample(dir string, o options, labeled bool, rng *rand.Rand) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// cloudiness drives both the radiance fields and the masks
	cloud := field(o.rows, o.cols, rng)

	for ch := range o.channels {
		gain := 40 + 20*float64(ch)
		values := make([]float64, len(cloud))
		for i, c := range cloud {
			values[i] = 220 + gain*c + rng.NormFloat64()*2
		}

		name := fmt.Sprintf("S%d_radiance_in", ch+1)
		v := netcdf.Variable{Name: name, Dims: gridDims, Shape: []int{o.rows, o.cols}}
		if ch%2 == 1 {
			v.Data = pack(values, o.nanRate, rng)
			v.Attributes = map[string]any{
				"_FillValue":   []int16{packedFill},
				"scale_factor": []float64{packedScale},
				"add_offset":   []float64{packedOffset},
			}
		} else {
			data := make([]float32, len(values))
			for i, x := range values {
				data[i] = float32(x)
				if rng.Float64() < o.nanRate {
					data[i] = float32(math.NaN())
				}
			}
			v.Data = data
		}
		if err := netcdf.WriteFile(filepath.Join(dir, name+".nc"), v); err != nil {
			return err
		}
	}

	if !labeled {
		return nil
	}

	masks := map[string][]int32{
		"ice_labels.nc":   make([]int32, len(cloud)),
		"clear_labels.nc": make([]int32, len(cloud)),
		"cloud_labels.nc": make([]int32, len(cloud)),
	}
	for i, c := range cloud {
		switch {
		case c > 0.65:
			masks["cloud_labels.nc"][i] = 1
		case c < 0.2:
			masks["ice_labels.nc"][i] = 1
		case c < 0.45:
			masks["clear_labels.nc"][i] = 1
		}
	}
	for file, mask := range masks {
		err := netcdf.WriteFile(filepath.Join(dir, file), netcdf.Variable{
			Name: "mask", Dims: gridDims, Shape: []int{o.rows, o.cols}, Data: mask,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// field returns a smooth random surface in [0, 1] built from a few plane waves.
func field(rows, cols int, rng *rand.Rand) []float64 {
	type wave struct{ kx, ky, phase float64 }
	waves := make([]wave, 4)
	for i := range waves {
		waves[i] = wave{
			kx:    rng.Float64() * 2 * math.Pi / float64(cols) * 3,
			ky:    rng.Float64() * 2 * math.Pi / float64(rows) * 3,
			phase: rng.Float64() * 2 * math.Pi,
		}
	}

	out := make([]float64, rows*cols)
	for r := range rows {
		for c := range cols {
			var sum float64
			for _, w := range waves {
				sum += math.Sin(w.kx*float64(c) + w.ky*float64(r) + w.phase)
			}
			out[r*cols+c] = (sum/float64(len(waves)) + 1) / 2
		}
	}
	return out
}

func pack(values []float64, nanRate float64, rng *rand.Rand) []int16 {
	out := make([]int16, len(values))
	for i, v := range values {
		if rng.Float64() < nanRate {
			out[i] = packedFill
			continue
		}
		counts := math.Round((v - packedOffset) / packedScale)
		out[i] = int16(max(min(counts, math.MaxInt16), math.MinInt16+1))
	}
	return out
}
