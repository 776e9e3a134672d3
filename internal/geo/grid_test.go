package geo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartevonmorgen/kvmsync/internal/conf"
)

func TestGridCellCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		latChunks, lngChunks int
	}{
		{2, 2},
		{3, 2},
		{2, 5},
		{10, 10},
		{4, 7},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%dx%d", tc.latChunks, tc.lngChunks), func(t *testing.T) {
			t.Parallel()

			area := &conf.AreaSettings{
				Name:      "test",
				LatMin:    47.0,
				LatMax:    55.0,
				LngMin:    5.0,
				LngMax:    15.0,
				LatChunks: tc.latChunks,
				LngChunks: tc.lngChunks,
			}
			boxes := Grid(area)
			assert.Len(t, boxes, (tc.latChunks-1)*(tc.lngChunks-1))
		})
	}
}

func TestGridCellsAreOrdered(t *testing.T) {
	t.Parallel()

	area := &conf.AreaSettings{
		LatMin: 0, LatMax: 10,
		LngMin: 0, LngMax: 10,
		LatChunks: 5, LngChunks: 5,
	}
	for _, box := range Grid(area) {
		assert.Less(t, box.LatMin, box.LatMax)
		assert.Less(t, box.LngMin, box.LngMax)
	}
}

func TestGridReproducesLinearGridPoints(t *testing.T) {
	t.Parallel()

	area := &conf.AreaSettings{
		LatMin: 52.4, LatMax: 52.6,
		LngMin: 13.3, LngMax: 13.5,
		LatChunks: 3, LngChunks: 3,
	}
	boxes := Grid(area)
	require.Len(t, boxes, 4)

	// Corner coordinates must reproduce the original grid points exactly,
	// including both endpoints of each axis.
	assert.Equal(t, 52.4, boxes[0].LatMin)
	assert.Equal(t, 13.3, boxes[0].LngMin)
	assert.Equal(t, 52.6, boxes[3].LatMax)
	assert.Equal(t, 13.5, boxes[3].LngMax)

	// Adjacent cells share their boundary points.
	assert.Equal(t, boxes[0].LngMax, boxes[1].LngMin)
	assert.Equal(t, boxes[0].LatMax, boxes[2].LatMin)
}

func TestGridRowMajorLayout(t *testing.T) {
	t.Parallel()

	area := &conf.AreaSettings{
		LatMin: 0, LatMax: 2,
		LngMin: 0, LngMax: 3,
		LatChunks: 3, LngChunks: 4,
	}
	boxes := Grid(area)
	require.Len(t, boxes, 6)

	// Longitude varies fastest: the first row covers lat [0,1) across all
	// longitude cells before latitude advances.
	assert.Equal(t, 0.0, boxes[0].LatMin)
	assert.Equal(t, 0.0, boxes[1].LatMin)
	assert.Equal(t, 0.0, boxes[2].LatMin)
	assert.Equal(t, 1.0, boxes[3].LatMin)

	assert.Equal(t, 0.0, boxes[0].LngMin)
	assert.Equal(t, 1.0, boxes[1].LngMin)
	assert.Equal(t, 2.0, boxes[2].LngMin)
	assert.Equal(t, 0.0, boxes[3].LngMin)
}

func TestBoundingBoxString(t *testing.T) {
	t.Parallel()

	box := BoundingBox{LatMin: 52.4, LngMin: 13.3, LatMax: 52.5, LngMax: 13.4}
	assert.Equal(t, "52.4,13.3,52.5,13.4", box.String())
}

func TestGridBerlinExample(t *testing.T) {
	t.Parallel()

	area := &conf.AreaSettings{
		Name:   "berlin",
		LatMin: 52.4, LatMax: 52.6,
		LngMin: 13.3, LngMax: 13.5,
		LatChunks: 3, LngChunks: 2,
	}
	boxes := Grid(area)
	require.Len(t, boxes, 2)

	assert.Equal(t, 52.4, boxes[0].LatMin)
	assert.Equal(t, 52.6, boxes[1].LatMax)
	assert.Equal(t, 13.3, boxes[0].LngMin)
	assert.Equal(t, 13.5, boxes[0].LngMax)
	assert.Equal(t, 13.5, boxes[1].LngMax)
}
