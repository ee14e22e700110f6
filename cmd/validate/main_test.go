package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFeatures(t *testing.T) {
	ok := array[float32]{descr: "<f4", shape: []int{1, 1, 2, 1}, data: []float32{0, 1}}
	assert.True(t, validateFeatures(ok).passed())

	bad := array[float32]{descr: "<f8", shape: []int{1, 1, 3, 1}, data: []float32{float32(math.NaN()), 1.5, 0.5}}
	p := validateFeatures(bad)
	assert.Len(t, p.errors, 3)

	assert.False(t, validateFeatures(array[float32]{descr: "<f4", shape: []int{2, 2}}).passed())
}

func TestValidateLabels(t *testing.T) {
	assert.True(t, validateLabels(&array[int64]{descr: "<i8", shape: []int{1, 2, 2}, data: []int64{0, 1, 2, 3}}, 3).passed())
	assert.False(t, validateLabels(&array[int64]{descr: "<i8", shape: []int{1, 1, 2}, data: []int64{4, -1}}, 3).passed())
	assert.False(t, validateLabels(nil, 3).passed())
}

func TestValidateAlignment(t *testing.T) {
	features := array[float32]{shape: []int{2, 4, 4, 3}}

	assert.True(t, validateAlignment(features, &array[int64]{shape: []int{2, 4, 4}}).passed())
	assert.Len(t, validateAlignment(features, &array[int64]{shape: []int{1, 4, 5}}).errors, 2)
	assert.False(t, validateAlignment(features, nil).passed())
}

func TestPhase_CapsErrors(t *testing.T) {
	p := &phase{name: "cap"}
	for i := range maxErrors + 5 {
		p.errorf("error %d", i)
	}
	assert.Len(t, p.errors, maxErrors)
	assert.Equal(t, 5, p.extra)
}
