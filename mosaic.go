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

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// MosaicTarget returns a north-up target in the CRS of grids[0] that
// covers every grid. Cells are dx by dy, or the size of the cells of
// grids[0] when either is not positive.
func MosaicTarget(grids []*Grid, dx, dy float64) (Target, error) {
	if len(grids) == 0 {
		return Target{}, &Error{Kind: IncompatibleOptions, Err: fmt.Errorf("no grids to mosaic")}
	}
	first := grids[0]
	b := geom.NewBounds()
	for _, g := range grids {
		if g.CRS.Equal(first.CRS) {
			b.Extend(g.Bounds())
			continue
		}
		fwd, err := g.CRS.NewTransform(first.CRS)
		if err != nil {
			return Target{}, err
		}
		for _, p := range g.boundary() {
			x, y, err := fwd(p.X, p.Y)
			if err != nil || !finite(geom.Point{X: x, Y: y}) {
				continue
			}
			b.Extend(geom.NewBoundsPoint(geom.Point{X: x, Y: y}))
		}
	}
	if !(dx > 0) || !(dy > 0) {
		dx, dy = first.CellSize()
	}
	return TargetFromBounds(b, dx, dy, first.CRS.ID)
}

// Mosaic merges grids onto t. Each target cell center is located in
// every grid, transformed from the CRS of t where the grid's differs,
// and sampled with m. Where several grids have a valid value the last
// one wins, as when later tiles are laid over earlier ones. All grids
// must have the same number of steps; the result takes its name, units
// and time axis from grids[0], and is float64 unless all grids share a
// data type.
func Mosaic(grids []*Grid, t Target, m Resampling) (*Grid, error) {
	if len(grids) == 0 {
		return nil, &Error{Kind: IncompatibleOptions, Err: fmt.Errorf("no grids to mosaic")}
	}
	crs, err := ParseCRS(t.CRS)
	if err != nil {
		return nil, err
	}
	if t.Rows < 1 || t.Cols < 1 {
		return nil, &Error{Kind: ShapeMismatch, Err: fmt.Errorf("target has %d rows and %d columns", t.Rows, t.Cols)}
	}
	if err := t.GeoTransform.valid(); err != nil {
		return nil, &Error{Kind: IncompatibleOptions, Err: err}
	}
	first := grids[0]
	for i, g := range grids[1:] {
		if g.Steps() != first.Steps() {
			return nil, &Error{Kind: ShapeMismatch, Variable: g.Name,
				Err: fmt.Errorf("grid %d has %d steps, grid 0 has %d", i+1, g.Steps(), first.Steps())}
		}
	}
	o := first.resampled(t.Rows, t.Cols, t.GeoTransform, m)
	o.CRS = crs
	for _, g := range grids[1:] {
		if g.DType != first.DType {
			o.DType = Float64
		}
	}
	for _, g := range grids {
		var inv proj.Transformer
		if !g.CRS.Equal(crs) {
			if inv, err = crs.NewTransform(g.CRS); err != nil {
				return nil, err
			}
		}
		for r := 0; r < t.Rows; r++ {
			for c := 0; c < t.Cols; c++ {
				p := o.CellCenter(r, c)
				x, y := p.X, p.Y
				if inv != nil {
					if x, y, err = inv(x, y); err != nil {
						continue
					}
				}
				fc, fr := g.GeoTransform.Invert(x, y)
				for s := 0; s < g.Steps(); s++ {
					if v, ok := g.sample(s, fc, fr, m); ok {
						o.Set(v, s, r, c)
					}
				}
			}
		}
	}
	return o, nil
}

// Fishnet returns one square polygon per cell of t, in row-major order,
// with "row" and "col" attributes. When within is not nil each cell also
// gets a "within" attribute: 1 if any part of a feature of within falls
// in the cell, 0 otherwise. Features that only touch a cell edge do not
// count.
func Fishnet(t Target, within *GeometrySet) (*GeometrySet, error) {
	crs, err := ParseCRS(t.CRS)
	if err != nil {
		return nil, err
	}
	if within != nil {
		if err := checkCRS(within.CRS, crs); err != nil {
			return nil, err
		}
	}
	if t.Rows < 1 || t.Cols < 1 {
		return nil, &Error{Kind: ShapeMismatch, Err: fmt.Errorf("target has %d rows and %d columns", t.Rows, t.Cols)}
	}
	gt := t.GeoTransform
	out := &GeometrySet{CRS: crs, Features: make([]*Feature, 0, t.Rows*t.Cols)}
	for r := 0; r < t.Rows; r++ {
		for c := 0; c < t.Cols; c++ {
			var ring geom.Path
			for _, corner := range [][2]float64{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}} {
				x, y := gt.Apply(float64(c)+corner[0], float64(r)+corner[1])
				ring = append(ring, geom.Point{X: x, Y: y})
			}
			cell := geom.Polygon{ring}
			attrs := map[string]interface{}{"row": r, "col": c}
			if within != nil {
				attrs["within"] = 0
				if within.Clip(cell).Len() > 0 {
					attrs["within"] = 1
				}
			}
			out.Features = append(out.Features, &Feature{Geom: cell, Attributes: attrs})
		}
	}
	return out, nil
}
