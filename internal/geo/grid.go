// Package geo partitions configured areas into regular grids of bounding
// boxes for exhaustive coverage search.
package geo

import (
	"fmt"

	"github.com/kartevonmorgen/kvmsync/internal/conf"
)

// BoundingBox is one rectangular grid cell, derived from an area and never
// persisted. LatMin < LatMax and LngMin < LngMax always hold because the
// boxes come from monotonically increasing grid points.
type BoundingBox struct {
	LatMin float64
	LngMin float64
	LatMax float64
	LngMax float64
}

// String renders the box in OFDB bbox query syntax.
func (b BoundingBox) String() string {
	return fmt.Sprintf("%v,%v,%v,%v", b.LatMin, b.LngMin, b.LatMax, b.LngMax)
}

// Grid subdivides the area into (LatChunks-1) x (LngChunks-1) cells by
// placing LatChunks evenly spaced points on the latitude axis and LngChunks
// on the longitude axis, then pairing adjacent points into cells. Degenerate
// chunk counts (<2) are rejected by config validation before this runs.
func Grid(area *conf.AreaSettings) []BoundingBox {
	lats := linspace(area.LatMin, area.LatMax, area.LatChunks)
	lngs := linspace(area.LngMin, area.LngMax, area.LngChunks)

	boxes := make([]BoundingBox, 0, (len(lats)-1)*(len(lngs)-1))
	for i := 0; i < len(lats)-1; i++ {
		for j := 0; j < len(lngs)-1; j++ {
			boxes = append(boxes, BoundingBox{
				LatMin: lats[i],
				LngMin: lngs[j],
				LatMax: lats[i+1],
				LngMax: lngs[j+1],
			})
		}
	}
	return boxes
}

// linspace returns n evenly spaced points over [lo, hi], exact at both
// endpoints. n must be >= 2.
func linspace(lo, hi float64, n int) []float64 {
	points := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range points {
		points[i] = lo + float64(i)*step
	}
	points[n-1] = hi
	return points
}
