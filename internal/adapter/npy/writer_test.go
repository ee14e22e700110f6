package npy_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/radiance-feature-etl/internal/adapter/npy"
	"github.com/couchcryptid/radiance-feature-etl/internal/domain"
	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_Aligned(t *testing.T) {
	for _, shape := range [][]int{{3}, {2, 4, 4, 3}, {1000000, 512, 512, 16}} {
		h := npy.Header(npy.DescrFloat32, shape)
		assert.Zero(t, len(h)%64, "shape %v", shape)
		assert.Equal(t, byte('\n'), h[len(h)-1])
		assert.Equal(t, "\x93NUMPY", string(h[:6]))
	}
}

func TestHeader_ShapeTuple(t *testing.T) {
	assert.Contains(t, string(npy.Header(npy.DescrInt64, []int{5})), "'shape': (5,)")
	assert.Contains(t, string(npy.Header(npy.DescrInt64, []int{2, 3})), "'shape': (2, 3)")
}

func TestWriteFloat32_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.npy")
	data := []float32{0, 0.25, 0.5, 0.75, 1, 0.125}
	require.NoError(t, npy.WriteFloat32(path, []int{1, 2, 3}, data))

	shape, got := readFloat32(t, path)
	assert.Equal(t, []int{1, 2, 3}, shape)
	assert.Equal(t, data, got)
}

func TestWriteInt64_ShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "l.npy")
	err := npy.WriteInt64(path, []int{2, 2}, []int64{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs 4")
	assert.NoFileExists(t, path)
}

func TestWriter_Load(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	batch := domain.Batch{
		Features: domain.FeatureStack{Samples: 2, Rows: 1, Cols: 2, Channels: 2, Values: []float32{0, 1, 0.5, 0.5, 1, 0, 0.25, 0.75}},
		Labels:   &domain.LabelStack{Samples: 2, Rows: 1, Cols: 2, Values: []int64{0, 3, 1, 2}},
	}

	require.NoError(t, npy.NewWriter(dir, slog.Default()).Load(context.Background(), batch))

	shape, features := readFloat32(t, filepath.Join(dir, npy.FeaturesFile))
	assert.Equal(t, []int{2, 1, 2, 2}, shape)
	assert.Equal(t, batch.Features.Values, features)

	f, err := os.Open(filepath.Join(dir, npy.LabelsFile))
	require.NoError(t, err)
	defer f.Close()
	r, err := npyio.NewReader(f)
	require.NoError(t, err)
	assert.Equal(t, npy.DescrInt64, r.Header.Descr.Type)
	assert.Equal(t, []int{2, 1, 2}, r.Header.Descr.Shape)
	var labels []int64
	require.NoError(t, r.Read(&labels))
	assert.Equal(t, []int64{0, 3, 1, 2}, labels)
}

func TestWriter_Load_WithoutLabels(t *testing.T) {
	dir := t.TempDir()
	batch := domain.Batch{Features: domain.FeatureStack{Samples: 1, Rows: 1, Cols: 1, Channels: 1, Values: []float32{1}}}

	require.NoError(t, npy.NewWriter(dir, slog.Default()).Load(context.Background(), batch))
	assert.FileExists(t, filepath.Join(dir, npy.FeaturesFile))
	assert.NoFileExists(t, filepath.Join(dir, npy.LabelsFile))
}

func readFloat32(t *testing.T, path string) ([]int, []float32) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r, err := npyio.NewReader(f)
	require.NoError(t, err)
	require.Equal(t, npy.DescrFloat32, r.Header.Descr.Type)
	var data []float32
	require.NoError(t, r.Read(&data))
	return r.Header.Descr.Shape, data
}
