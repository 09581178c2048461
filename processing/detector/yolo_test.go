package processing

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// head builds a [1, attrs, anchors] output from per-anchor attribute rows.
func head(attrs, anchors int, rows map[int][]float32, transposed bool) []float32 {
	data := make([]float32, attrs*anchors)
	for anchor, vals := range rows {
		for attr, v := range vals {
			if transposed {
				data[anchor*attrs+attr] = v
			} else {
				data[attr*anchors+anchor] = v
			}
		}
	}
	return data
}

func TestNewHeadLayout(t *testing.T) {
	l, err := NewHeadLayout([]int{1, 10, 8400})
	require.NoError(t, err)
	assert.Equal(t, HeadLayout{Attrs: 10, Anchors: 8400}, l)

	l, err = NewHeadLayout([]int{1, 8400, 10})
	require.NoError(t, err)
	assert.Equal(t, HeadLayout{Attrs: 10, Anchors: 8400, Transposed: true}, l)

	for _, shape := range [][]int{
		{10, 8400},
		{2, 10, 8400},
		{1, 4, 8400},
	} {
		_, err := NewHeadLayout(shape)
		assert.Error(t, err, "shape %v", shape)
	}
}

func TestDecodeYOLO(t *testing.T) {
	rows := map[int][]float32{
		0: {100, 100, 20, 40, 0.05, 0.9},
		1: {10, 10, 4, 4, 0.1, 0},
		3: {50, 60, 10, 10, 0.6, 0.3},
	}

	for _, transposed := range []bool{false, true} {
		l := HeadLayout{Attrs: 6, Anchors: 8, Transposed: transposed}
		got, err := DecodeYOLO(head(6, 8, rows, transposed), l, 0.25, 2, 1)
		require.NoError(t, err)
		require.Len(t, got, 2, "transposed=%v", transposed)

		assert.Equal(t, 1, got[0].ClassID)
		assert.InDelta(t, 0.9, got[0].Score, 1e-6)
		assert.Equal(t, image.Rect(180, 80, 220, 120), got[0].Rect)

		assert.Equal(t, 0, got[1].ClassID)
		assert.Equal(t, image.Rect(90, 55, 110, 65), got[1].Rect)
	}
}

func TestDecodeYOLO_ShortOutput(t *testing.T) {
	_, err := DecodeYOLO(make([]float32, 10), HeadLayout{Attrs: 6, Anchors: 8}, 0.25, 1, 1)
	assert.Error(t, err)
}
