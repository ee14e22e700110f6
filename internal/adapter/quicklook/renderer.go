// Package quicklook renders heatmap previews of normalized samples.
package quicklook

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/couchcryptid/radiance-feature-etl/internal/domain"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const paletteSize = 64

// Renderer writes one PNG per feature channel and one for the label grid.
// It implements pipeline.Previewer.
type Renderer struct {
	dir    string
	logger *slog.Logger
}

// NewRenderer creates a Renderer writing into dir.
func NewRenderer(dir string, logger *slog.Logger) *Renderer {
	return &Renderer{dir: dir, logger: logger}
}

// Preview renders sample into <dir>/<sample>_<channel>.png and <dir>/<sample>_labels.png.
func (r *Renderer) Preview(ctx context.Context, sample domain.Sample) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create quicklook dir: %w", err)
	}

	ft := sample.Features
	for ch := 0; ch < ft.Channels; ch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := fmt.Sprintf("channel_%d", ch)
		if ch < len(ft.ChannelNames) {
			name = ft.ChannelNames[ch]
		}
		g := newGrid(ft.Channel(ch))
		path := filepath.Join(r.dir, fmt.Sprintf("%s_%s.png", sample.Name, name))
		if err := render(path, sample.Name+" "+name, g, g.min, g.max, palette.Heat(paletteSize, 1)); err != nil {
			return err
		}
	}

	if sample.Labels != nil {
		lg := sample.Labels
		values := make([]float64, len(lg.Classes))
		for i, c := range lg.Classes {
			values[i] = float64(c)
		}
		g := newGrid(domain.Grid{Rows: lg.Rows, Cols: lg.Cols, Values: values})
		path := filepath.Join(r.dir, sample.Name+"_labels.png")
		if err := render(path, sample.Name+" labels", g, 0, math.Max(g.max, 1), palette.Heat(4, 1)); err != nil {
			return err
		}
	}

	r.logger.Debug("quicklook rendered", "sample", sample.Name, "dir", r.dir)
	return nil
}

func render(path, title string, g grid, lo, hi float64, pal palette.Palette) error {
	if hi <= lo {
		hi = lo + 1
	}

	p := plot.New()
	p.Title.Text = title
	p.HideAxes()

	hm := plotter.NewHeatMap(g, pal)
	hm.Min = lo
	hm.Max = hi
	p.Add(hm)

	w := vg.Length(g.src.Cols) * vg.Points(4)
	h := vg.Length(g.src.Rows) * vg.Points(4)
	if err := p.Save(max(w, 3*vg.Inch), max(h, 3*vg.Inch), path); err != nil {
		return fmt.Errorf("save quicklook %s: %w", path, err)
	}
	return nil
}

// grid adapts a domain.Grid to plotter.GridXYZ with row 0 drawn at the top.
// Non-finite cells are drawn at the minimum.
type grid struct {
	src      domain.Grid
	min, max float64
}

func newGrid(g domain.Grid) grid {
	out := grid{src: g, min: math.Inf(1), max: math.Inf(-1)}
	for _, v := range g.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out.min = math.Min(out.min, v)
		out.max = math.Max(out.max, v)
	}
	if math.IsInf(out.min, 1) {
		out.min, out.max = 0, 0
	}
	return out
}

func (g grid) Dims() (c, r int) { return g.src.Cols, g.src.Rows }

func (g grid) Z(c, r int) float64 {
	v := g.src.At(g.src.Rows-1-r, c)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return g.min
	}
	return v
}

func (g grid) X(c int) float64 { return float64(c) }

func (g grid) Y(r int) float64 { return float64(r) }
