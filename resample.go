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
	"strings"
)

// Resampling is a method of sampling a grid at arbitrary positions.
type Resampling int

// Resampling methods.
const (
	Nearest Resampling = iota
	Bilinear
)

func (m Resampling) String() string {
	switch m {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	}
	return fmt.Sprintf("Resampling(%d)", int(m))
}

// ParseResampling parses "nearest" or "bilinear". An empty string
// means nearest.
func ParseResampling(s string) (Resampling, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nearest", "near":
		return Nearest, nil
	case "bilinear", "linear":
		return Bilinear, nil
	}
	return 0, &Error{Kind: IncompatibleOptions, Err: fmt.Errorf("unknown resampling method %q", s)}
}

// sample returns the value of step t at the fractional cell position
// (fc, fr). ok is false outside the grid or where no valid value is
// available.
func (g *Grid) sample(t int, fc, fr float64, m Resampling) (v float64, ok bool) {
	rows, cols := g.Rows(), g.Cols()
	if !(fc >= 0 && fr >= 0 && fc <= float64(cols) && fr <= float64(rows)) {
		return 0, false
	}
	if m == Nearest {
		c, r := imin(int(fc), cols-1), imin(int(fr), rows-1)
		v = g.At(t, r, c)
		return v, !g.IsNoData(v)
	}
	u, w := fc-0.5, fr-0.5
	c0, r0 := int(math.Floor(u)), int(math.Floor(w))
	wx, wy := u-float64(c0), w-float64(r0)
	var sum, wsum float64
	var found bool
	for _, n := range [4]struct {
		r, c int
		w    float64
	}{
		{r0, c0, (1 - wx) * (1 - wy)},
		{r0, c0 + 1, wx * (1 - wy)},
		{r0 + 1, c0, (1 - wx) * wy},
		{r0 + 1, c0 + 1, wx * wy},
	} {
		r, c := imax(0, imin(n.r, rows-1)), imax(0, imin(n.c, cols-1))
		x := g.At(t, r, c)
		if g.IsNoData(x) {
			continue
		}
		found = true
		sum += x * n.w
		wsum += n.w
	}
	if !found {
		return 0, false
	}
	if wsum == 0 {
		return g.sample(t, fc, fr, Nearest)
	}
	return sum / wsum, true
}

// resampled returns an empty copy of g for the given geometry, typed to
// hold the output of m.
func (g *Grid) resampled(rows, cols int, gt GeoTransform, m Resampling) *Grid {
	o := g.withData(rows, cols, gt)
	if m == Bilinear && o.DType.IsInteger() {
		o.DType = Float64
	}
	return o
}

// Resample returns g on a grid covering the same extent with cells of
// size dx by dy. The number of rows and columns is rounded to the
// nearest integer, with at least one of each.
func Resample(g *Grid, dx, dy float64, m Resampling) (*Grid, error) {
	if !(dx > 0) || !(dy > 0) || math.IsInf(dx, 0) || math.IsInf(dy, 0) {
		return nil, &Error{Kind: IncompatibleOptions, Variable: g.Name, Err: fmt.Errorf("invalid resolution %g x %g", dx, dy)}
	}
	gt := g.GeoTransform
	if !gt.NorthUp() {
		return nil, &Error{Kind: IncompatibleOptions, Variable: g.Name, Err: fmt.Errorf("cannot resample a rotated grid")}
	}
	sx, sy := g.CellSize()
	cols := imax(1, int(math.Round(float64(g.Cols())*sx/dx)))
	rows := imax(1, int(math.Round(float64(g.Rows())*sy/dy)))
	ngt := GeoTransform{gt[0], math.Copysign(dx, gt[1]), 0, gt[3], 0, math.Copysign(dy, gt[5])}
	o := g.resampled(rows, cols, ngt, m)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			p := o.CellCenter(r, c)
			fc, fr := gt.Invert(p.X, p.Y)
			for t := 0; t < g.Steps(); t++ {
				if v, ok := g.sample(t, fc, fr, m); ok {
					o.Set(v, t, r, c)
				}
			}
		}
	}
	return o, nil
}
