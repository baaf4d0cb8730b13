/*
Copyright © 2025 the gridconv authors.
This file is part of gridconv.

gridconv is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

gridconv is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with gridconv.  If not, see <http://www.gnu.org/licenses/>.
*/

package gridconv

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

// Target describes the grid that geometries are rasterized onto.
type Target struct {
	Rows, Cols   int
	GeoTransform GeoTransform
	CRS          string
}

// TargetOf returns the target matching g's grid.
func TargetOf(g *Grid) Target {
	return Target{Rows: g.Rows(), Cols: g.Cols(), GeoTransform: g.GeoTransform, CRS: g.CRS.ID}
}

// TargetFromBounds returns a north-up target covering b with cells of
// size dx by dy. The upper left corner of the target is at (b.Min.X,
// b.Max.Y).
func TargetFromBounds(b *geom.Bounds, dx, dy float64, crs string) (Target, error) {
	if !(dx > 0) || !(dy > 0) || math.IsInf(dx, 0) || math.IsInf(dy, 0) {
		return Target{}, &Error{Kind: IncompatibleOptions, Err: fmt.Errorf("invalid resolution %g x %g", dx, dy)}
	}
	cols := int(math.Ceil((b.Max.X - b.Min.X) / dx))
	rows := int(math.Ceil((b.Max.Y - b.Min.Y) / dy))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return Target{
		Rows:         rows,
		Cols:         cols,
		GeoTransform: GeoTransform{b.Min.X, dx, 0, b.Max.Y, 0, -dy},
		CRS:          crs,
	}, nil
}

func (t Target) grid() *Grid {
	return &Grid{Data: &sparse.DenseArray{Shape: []int{t.Rows, t.Cols}}, GeoTransform: t.GeoTransform}
}

// Rasterize burns the features of set onto a grid described by t. Every
// cell whose center lies inside a polygon or on its edge receives
// burn(attributes); points burn the cell that contains them and lines burn
// every cell they pass through. Features are burned in order, so where
// they overlap the last one wins. Cells not covered by any feature are set
// to fill.
func Rasterize(set *GeometrySet, t Target, burn BurnFunc, fill float64) (*sparse.DenseArray, error) {
	if t.Rows <= 0 || t.Cols <= 0 {
		return nil, &Error{Kind: ShapeMismatch, Err: fmt.Errorf("target grid is %dx%d", t.Rows, t.Cols)}
	}
	if err := t.GeoTransform.valid(); err != nil {
		return nil, &Error{Kind: ShapeMismatch, Err: err}
	}
	crs, err := ParseCRS(t.CRS)
	if err != nil {
		return nil, err
	}
	if err := checkCRS(set.CRS, crs); err != nil {
		return nil, err
	}
	out := sparse.ZerosDense(t.Rows, t.Cols)
	for i := range out.Elements {
		out.Elements[i] = fill
	}
	g := t.grid()
	for i, f := range set.Features {
		v, err := burn(f.Attributes)
		if err != nil {
			return nil, fmt.Errorf("gridconv: rasterizing feature %d: %w", i, err)
		}
		burnGeom(g, out, f.Geom, v)
	}
	return out, nil
}

// RasterizeGrid is like Rasterize but returns a float64 grid with fill
// as its nodata value.
func RasterizeGrid(set *GeometrySet, t Target, burn BurnFunc, fill float64) (*Grid, error) {
	data, err := Rasterize(set, t, burn, fill)
	if err != nil {
		return nil, err
	}
	return NewGrid(Header{
		GeoTransform: t.GeoTransform,
		CRS:          t.CRS,
		DType:        Float64,
		NoData:       &fill,
	}, data)
}

func burnGeom(g *Grid, out *sparse.DenseArray, gg geom.Geom, v float64) {
	switch t := gg.(type) {
	case geom.Point:
		burnPoint(g, out, t, v)
	case *geom.Point:
		burnPoint(g, out, *t, v)
	case geom.MultiPoint:
		for _, p := range t {
			burnPoint(g, out, p, v)
		}
	case geom.LineString:
		burnLine(g, out, t, v)
	case geom.MultiLineString:
		for _, l := range t {
			burnLine(g, out, l, v)
		}
	case geom.Polygonal:
		burnPolygon(g, out, t, v)
	}
}

func burnPoint(g *Grid, out *sparse.DenseArray, p geom.Point, v float64) {
	if r, c, ok := g.Index(p.X, p.Y); ok {
		out.Elements[r*g.Cols()+c] = v
	}
}

// burnLine walks each segment through the cells it crosses in index
// space, where the affine transform keeps segments straight.
func burnLine(g *Grid, out *sparse.DenseArray, l []geom.Point, v float64) {
	for i := 0; i+1 < len(l); i++ {
		c0, r0 := g.GeoTransform.Invert(l[i].X, l[i].Y)
		c1, r1 := g.GeoTransform.Invert(l[i+1].X, l[i+1].Y)
		traverse(c0, r0, c1, r1, func(c, r int) {
			if r >= 0 && c >= 0 && r < g.Rows() && c < g.Cols() {
				out.Elements[r*g.Cols()+c] = v
			}
		})
	}
}

// traverse calls f for every unit cell crossed by the segment from
// (x0, y0) to (x1, y1).
func traverse(x0, y0, x1, y1 float64, f func(x, y int)) {
	x, y := int(math.Floor(x0)), int(math.Floor(y0))
	xEnd, yEnd := int(math.Floor(x1)), int(math.Floor(y1))
	dx, dy := x1-x0, y1-y0
	stepX, tMaxX, tDeltaX := axisStep(x0, dx)
	stepY, tMaxY, tDeltaY := axisStep(y0, dy)
	f(x, y)
	for x != xEnd || y != yEnd {
		if tMaxX > 1 && tMaxY > 1 {
			break
		}
		if tMaxX < tMaxY {
			x += stepX
			tMaxX += tDeltaX
		} else {
			y += stepY
			tMaxY += tDeltaY
		}
		f(x, y)
	}
}

func axisStep(p0, d float64) (step int, tMax, tDelta float64) {
	switch {
	case d > 0:
		return 1, (math.Floor(p0) + 1 - p0) / d, 1 / d
	case d < 0:
		return -1, (p0 - math.Floor(p0)) / -d, 1 / -d
	}
	return 0, math.Inf(1), math.Inf(1)
}

// cellRange returns the range of cells that may intersect b.
func (g *Grid) cellRange(b *geom.Bounds) (r0, r1, c0, c1 int) {
	r0, c0 = math.MaxInt32, math.MaxInt32
	r1, c1 = math.MinInt32, math.MinInt32
	for _, p := range []geom.Point{b.Min, b.Max, {X: b.Min.X, Y: b.Max.Y}, {X: b.Max.X, Y: b.Min.Y}} {
		fc, fr := g.GeoTransform.Invert(p.X, p.Y)
		c, r := int(math.Floor(fc)), int(math.Floor(fr))
		r0, r1 = imin(r0, r), imax(r1, r)
		c0, c1 = imin(c0, c), imax(c1, c)
	}
	return imax(r0, 0), imin(r1, g.Rows()-1), imax(c0, 0), imin(c1, g.Cols()-1)
}

func burnPolygon(g *Grid, out *sparse.DenseArray, p geom.Polygonal, v float64) {
	r0, r1, c0, c1 := g.cellRange(p.Bounds())
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			if g.CellCenter(r, c).Within(p) != geom.Outside {
				out.Elements[r*g.Cols()+c] = v
			}
		}
	}
}
