package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineLabels(t *testing.T) {
	t.Run("disjoint masks map to class indices", func(t *testing.T) {
		masks := []Layer{
			{Source: "ice_labels.nc", Grid: testGrid(2, 3, 1, 0, 0, 0, 0, 0)},
			{Source: "clear_labels.nc", Grid: testGrid(2, 3, 0, 1, 0, 0, 0, 0)},
			{Source: "cloud_labels.nc", Grid: testGrid(2, 3, 0, 0, 1, 1, 0, 0)},
		}
		labels, err := CombineLabels(masks, 2, 3)
		require.NoError(t, err)

		assert.Equal(t, []int64{ClassIce, ClassClear, ClassCloud, ClassCloud, ClassUnlabeled, ClassUnlabeled}, labels.Classes)
		assert.Equal(t, ClassCloud, labels.At(1, 0))
		assert.Equal(t, map[int64]int{0: 2, 1: 1, 2: 1, 3: 2}, ClassCounts(labels))
	})

	t.Run("later masks overwrite earlier ones", func(t *testing.T) {
		masks := []Layer{
			{Source: "ice_labels.nc", Grid: testGrid(1, 2, 1, 1)},
			{Source: "clear_labels.nc", Grid: testGrid(1, 2, 0, 0)},
			{Source: "cloud_labels.nc", Grid: testGrid(1, 2, 0, 1)},
		}
		labels, err := CombineLabels(masks, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, []int64{ClassIce, ClassCloud}, labels.Classes)
	})

	t.Run("only exact ones are labeled", func(t *testing.T) {
		masks := []Layer{{Source: "ice_labels.nc", Grid: testGrid(1, 4, 2, 0.5, -1, 1)}}
		labels, err := CombineLabels(masks, 1, 4)
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 0, 0, ClassIce}, labels.Classes)
	})

	t.Run("shape mismatch names the file", func(t *testing.T) {
		masks := []Layer{
			{Source: "ice_labels.nc", Grid: testGrid(2, 2, 1, 0, 0, 0)},
			{Source: "clear_labels.nc", Grid: testGrid(1, 4, 0, 1, 0, 0)},
		}
		_, err := CombineLabels(masks, 2, 2)
		require.ErrorIs(t, err, ErrShapeMismatch)
		assert.Contains(t, err.Error(), "clear_labels.nc")
		assert.Contains(t, err.Error(), "(1, 4)")
	})

	t.Run("no masks leaves everything unlabeled", func(t *testing.T) {
		labels, err := CombineLabels(nil, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 0, 0, 0}, labels.Classes)
	})
}
