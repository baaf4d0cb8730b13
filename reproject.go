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
)

// boundarySamples is the minimum number of points per side used to
// trace the grid boundary into the destination CRS.
const boundarySamples = 20

// Reproject returns g in the coordinate reference system to. The
// destination grid covers the transformed source boundary. It keeps the
// source row and column counts unless res gives a destination cell size.
// Every destination cell center is transformed back into the source CRS
// and sampled with m.
func Reproject(g *Grid, to string, res [2]float64, m Resampling) (*Grid, error) {
	dst, err := ParseCRS(to)
	if err != nil {
		return nil, err
	}
	if dst.Equal(g.CRS) {
		if res[0] > 0 && res[1] > 0 {
			return Resample(g, res[0], res[1], m)
		}
		return g.Copy(), nil
	}
	fwd, err := g.CRS.NewTransform(dst)
	if err != nil {
		return nil, err
	}
	inv, err := dst.NewTransform(g.CRS)
	if err != nil {
		return nil, err
	}

	b := geom.NewBounds()
	for _, p := range g.boundary() {
		x, y, err := fwd(p.X, p.Y)
		if err != nil || math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			continue
		}
		b.Extend(geom.NewBoundsPoint(geom.Point{X: x, Y: y}))
	}
	if !(b.Max.X > b.Min.X) || !(b.Max.Y > b.Min.Y) {
		return nil, &Error{Kind: InvalidCRS, Variable: g.Name,
			Err: fmt.Errorf("grid extent cannot be transformed from %s to %s", g.CRS, dst)}
	}

	rows, cols := g.Rows(), g.Cols()
	dx, dy := (b.Max.X-b.Min.X)/float64(cols), (b.Max.Y-b.Min.Y)/float64(rows)
	if res[0] > 0 && res[1] > 0 {
		t, err := TargetFromBounds(b, res[0], res[1], dst.ID)
		if err != nil {
			return nil, err
		}
		rows, cols, dx, dy = t.Rows, t.Cols, res[0], res[1]
	}
	o := g.resampled(rows, cols, GeoTransform{b.Min.X, dx, 0, b.Max.Y, 0, -dy}, m)
	o.CRS = dst
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			p := o.CellCenter(r, c)
			x, y, err := inv(p.X, p.Y)
			if err != nil {
				continue
			}
			fc, fr := g.GeoTransform.Invert(x, y)
			for t := 0; t < g.Steps(); t++ {
				if v, ok := g.sample(t, fc, fr, m); ok {
					o.Set(v, t, r, c)
				}
			}
		}
	}
	return o, nil
}

// boundary returns points along the outline of the grid, at least one
// per cell edge and boundarySamples per side.
func (g *Grid) boundary() []geom.Point {
	rows, cols := float64(g.Rows()), float64(g.Cols())
	nx := imax(g.Cols(), boundarySamples)
	ny := imax(g.Rows(), boundarySamples)
	pts := make([]geom.Point, 0, 2*(nx+ny)+4)
	add := func(c, r float64) {
		x, y := g.GeoTransform.Apply(c, r)
		pts = append(pts, geom.Point{X: x, Y: y})
	}
	for i := 0; i <= nx; i++ {
		c := cols * float64(i) / float64(nx)
		add(c, 0)
		add(c, rows)
	}
	for i := 0; i <= ny; i++ {
		r := rows * float64(i) / float64(ny)
		add(0, r)
		add(cols, r)
	}
	return pts
}
