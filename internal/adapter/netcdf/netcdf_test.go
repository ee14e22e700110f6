package netcdf_test

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/radiance-feature-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/radiance-feature-etl/internal/domain"
	"github.com/ctessum/cdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gridDims = []string{"rows", "columns"}

func radianceVar(name string, values ...float32) netcdf.Variable {
	return netcdf.Variable{Name: name, Dims: gridDims, Shape: []int{2, 2}, Data: values}
}

func writeFixture(t *testing.T, dir, name string, vars ...netcdf.Variable) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, netcdf.WriteFile(path, vars...))
	return path
}

func TestReadMatching_SelectsRadianceVariables(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "S1_radiance_in.nc",
		netcdf.Variable{Name: "rows", Dims: []string{"rows"}, Shape: []int{2}, Data: []float64{0, 1}},
		radianceVar("S1_radiance_in", 1, 2, 3, 4),
		radianceVar("S1_exception_in", 0, 0, 0, 0),
		radianceVar("S1_radiance_in_alt", 5, 6, 7, 8),
	)

	layers, err := netcdf.ReadMatching(path, "radiance_in")
	require.NoError(t, err)
	require.Len(t, layers, 2)

	assert.Equal(t, "S1_radiance_in", layers[0].Name)
	assert.Equal(t, path, layers[0].Source)
	assert.Equal(t, domain.Grid{Rows: 2, Cols: 2, Values: []float64{1, 2, 3, 4}}, layers[0].Grid)
	assert.Equal(t, "S1_radiance_in_alt", layers[1].Name)
}

func TestReadMatching_DecodesFillAndScale(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "S2_radiance_in.nc", netcdf.Variable{
		Name:  "S2_radiance_in",
		Dims:  gridDims,
		Shape: []int{2, 2},
		Data:  []int16{100, -32768, 300, 400},
		Attributes: map[string]any{
			"_FillValue":   []int16{-32768},
			"scale_factor": []float64{0.5},
			"add_offset":   []float64{10},
		},
	})

	layers, err := netcdf.ReadMatching(path, "radiance_in")
	require.NoError(t, err)
	require.Len(t, layers, 1)

	values := layers[0].Grid.Values
	assert.InDelta(t, 60, values[0], 1e-9)
	assert.True(t, math.IsNaN(values[1]))
	assert.InDelta(t, 160, values[2], 1e-9)
	assert.InDelta(t, 210, values[3], 1e-9)
}

func TestReadMatching_RejectsNon2D(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "S3_radiance_in.nc", netcdf.Variable{
		Name:  "S3_radiance_in",
		Dims:  []string{"time", "rows", "columns"},
		Shape: []int{2, 2, 2},
		Data:  make([]float32, 8),
	})

	_, err := netcdf.ReadMatching(path, "radiance_in")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 dimensions")
}

func TestReadFirst(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "ice_labels.nc",
		netcdf.Variable{Name: "bayes_in", Dims: gridDims, Shape: []int{2, 2}, Data: []int32{1, 0, 0, 1}},
		netcdf.Variable{Name: "confidence_in", Dims: gridDims, Shape: []int{2, 2}, Data: []int32{9, 9, 9, 9}},
	)

	layer, err := netcdf.ReadFirst(path)
	require.NoError(t, err)
	assert.Equal(t, "bayes_in", layer.Name)
	assert.Equal(t, []float64{1, 0, 0, 1}, layer.Grid.Values)
}

func TestReadFirst_MissingFile(t *testing.T) {
	_, err := netcdf.ReadFirst(filepath.Join(t.TempDir(), "missing.nc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open netcdf")
}

func TestReader_ReadSample(t *testing.T) {
	dir := t.TempDir()
	ref := domain.SampleRef{
		Name: "scene-a",
		Dir:  dir,
		RadiancePaths: []string{
			writeFixture(t, dir, "S1_radiance_in.nc", radianceVar("S1_radiance_in", 1, 1, 1, 2)),
			writeFixture(t, dir, "S2_radiance_in.nc", radianceVar("S2_radiance_in", 2, 2, 2, 3)),
			writeFixture(t, dir, "S3_radiance_in.nc", radianceVar("S3_radiance_in", 3, 3, 3, 4)),
		},
		LabelPaths: []string{
			writeFixture(t, dir, "ice_labels.nc", netcdf.Variable{Name: "ice", Dims: gridDims, Shape: []int{2, 2}, Data: []int32{1, 0, 0, 0}}),
			writeFixture(t, dir, "clear_labels.nc", netcdf.Variable{Name: "clear", Dims: gridDims, Shape: []int{2, 2}, Data: []int32{0, 1, 0, 0}}),
		},
	}

	for _, workers := range []int{1, 3} {
		reader := netcdf.NewReader("radiance_in", workers, slog.Default())
		raw, err := reader.ReadSample(context.Background(), ref)
		require.NoError(t, err)

		require.Len(t, raw.Layers, 3)
		assert.Equal(t, "S1_radiance_in", raw.Layers[0].Name)
		assert.Equal(t, "S2_radiance_in", raw.Layers[1].Name)
		assert.Equal(t, "S3_radiance_in", raw.Layers[2].Name)
		assert.InDelta(t, 4, raw.Layers[2].Grid.At(1, 1), 0)

		require.Len(t, raw.Labels, 2)
		assert.Equal(t, ref.LabelPaths[1], raw.Labels[1].Source)
		assert.Equal(t, ref, raw.Ref)
	}
}

func TestReader_ReadSample_DuplicateVariable(t *testing.T) {
	dir := t.TempDir()
	ref := domain.SampleRef{
		Name: "scene-a",
		RadiancePaths: []string{
			writeFixture(t, dir, "S1_radiance_in.nc", radianceVar("S1_radiance_in", 1, 2, 3, 4)),
			writeFixture(t, dir, "S1b_radiance_in.nc", radianceVar("S1_radiance_in", 1, 2, 3, 4)),
		},
	}

	_, err := netcdf.NewReader("radiance_in", 1, slog.Default()).ReadSample(context.Background(), ref)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S1_radiance_in")
}

func TestReader_ReadSample_Cancelled(t *testing.T) {
	dir := t.TempDir()
	ref := domain.SampleRef{
		Name:          "scene-a",
		RadiancePaths: []string{writeFixture(t, dir, "S1_radiance_in.nc", radianceVar("S1_radiance_in", 1, 2, 3, 4))},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := netcdf.NewReader("radiance_in", 1, slog.Default()).ReadSample(ctx, ref)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteFile_Validation(t *testing.T) {
	dir := t.TempDir()

	err := netcdf.WriteFile(filepath.Join(dir, "a.nc"), netcdf.Variable{
		Name: "x", Dims: gridDims, Shape: []int{2, 2}, Data: []float32{1, 2, 3},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape needs 4")

	err = netcdf.WriteFile(filepath.Join(dir, "b.nc"),
		netcdf.Variable{Name: "x", Dims: gridDims, Shape: []int{2, 2}, Data: make([]float32, 4)},
		netcdf.Variable{Name: "y", Dims: gridDims, Shape: []int{1, 4}, Data: make([]float32, 4)},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension rows")

	err = netcdf.WriteFile(filepath.Join(dir, "c.nc"), netcdf.Variable{
		Name: "x", Dims: gridDims, Shape: []int{2, 2}, Data: []string{"a"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported data type")
}

func TestWriter_Load(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	batch := domain.Batch{
		Features: domain.FeatureStack{
			Samples: 2, Rows: 2, Cols: 2, Channels: 3,
			Values: make([]float32, 24),
		},
		Labels: &domain.LabelStack{
			Samples: 2, Rows: 2, Cols: 2,
			Values: []int64{0, 1, 2, 3, 3, 2, 1, 0},
		},
	}
	batch.Features.Values[23] = 0.5

	w := netcdf.NewWriter(dir, slog.Default())
	require.NoError(t, w.Load(context.Background(), batch))

	features := openCDF(t, filepath.Join(dir, netcdf.FeaturesFile))
	assert.Equal(t, []int{2, 2, 2, 3}, features.Header.Lengths("features"))
	assert.Equal(t, []string{"sample", "rows", "columns", "channel"}, features.Header.Dimensions("features"))
	values := make([]float32, 24)
	_, err := features.Reader("features", nil, nil).Read(values)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), values[23])

	labels := openCDF(t, filepath.Join(dir, netcdf.LabelsFile))
	assert.Equal(t, []int{2, 2, 2}, labels.Header.Lengths("labels"))
	classes := make([]int32, 8)
	_, err = labels.Reader("labels", nil, nil).Read(classes)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2, 3, 3, 2, 1, 0}, classes)
}

func TestWriter_Load_WithoutLabels(t *testing.T) {
	dir := t.TempDir()
	batch := domain.Batch{Features: domain.FeatureStack{Samples: 1, Rows: 1, Cols: 2, Channels: 1, Values: []float32{0, 1}}}

	require.NoError(t, netcdf.NewWriter(dir, slog.Default()).Load(context.Background(), batch))
	assert.FileExists(t, filepath.Join(dir, netcdf.FeaturesFile))
	assert.NoFileExists(t, filepath.Join(dir, netcdf.LabelsFile))
}

func openCDF(t *testing.T, path string) *cdf.File {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { fh.Close() })
	f, err := cdf.Open(fh)
	require.NoError(t, err)
	return f
}
