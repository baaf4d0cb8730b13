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

	"github.com/ctessum/sparse"
	"github.com/ctessum/unit"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds descriptive statistics of the valid cells of a grid.
type Summary struct {
	Count               int
	Min, Max, Sum, Mean float64
	StdDev              float64
}

func (s Summary) String() string {
	return fmt.Sprintf("n=%d min=%g max=%g sum=%g mean=%g sd=%g", s.Count, s.Min, s.Max, s.Sum, s.Mean, s.StdDev)
}

// valid returns the values in v that are not missing.
func (g *Grid) valid(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, x := range v {
		if !g.IsNoData(x) {
			out = append(out, x)
		}
	}
	return out
}

func summarize(v []float64) (Summary, error) {
	if len(v) == 0 {
		return Summary{}, ErrNoData
	}
	s := Summary{
		Count: len(v),
		Min:   floats.Min(v),
		Max:   floats.Max(v),
		Sum:   floats.Sum(v),
	}
	s.Mean = s.Sum / float64(s.Count)
	_, s.StdDev = popMeanStdDev(v)
	return s, nil
}

// popMeanStdDev returns the mean and population standard deviation of v.
func popMeanStdDev(v []float64) (mean, std float64) {
	if len(v) < 2 {
		return stat.Mean(v, nil), 0
	}
	mean, variance := stat.MeanVariance(v, nil)
	n := float64(len(v))
	return mean, math.Sqrt(variance * (n - 1) / n)
}

// Stats summarizes every valid cell of g at all steps. Nodata and NaN
// cells are excluded; ErrNoData is returned if there are none left.
func (g *Grid) Stats() (Summary, error) {
	return summarize(g.valid(g.Data.Elements))
}

// StatsAt summarizes the valid cells of step t.
func (g *Grid) StatsAt(t int) (Summary, error) {
	if t < 0 || t >= g.Steps() {
		return Summary{}, &Error{Kind: IndexOutOfRange, Variable: g.Name,
			Err: fmt.Errorf("step %d, grid has %d", t, g.Steps())}
	}
	n := g.Rows() * g.Cols()
	return summarize(g.valid(g.Data.Elements[t*n : (t+1)*n]))
}

// AggMethod is a method of combining the steps of a grid.
type AggMethod int

// Aggregation methods.
const (
	AggSum AggMethod = iota
	AggMean
	AggMin
	AggMax
)

// ParseAggMethod parses "sum", "mean", "min" or "max".
func ParseAggMethod(s string) (AggMethod, error) {
	switch s {
	case "sum":
		return AggSum, nil
	case "mean", "average":
		return AggMean, nil
	case "min":
		return AggMin, nil
	case "max":
		return AggMax, nil
	}
	return 0, &Error{Kind: IncompatibleOptions, Err: fmt.Errorf("unknown aggregation method %q", s)}
}

// Aggregate collapses the leading axis of g into a static 2D grid. A cell
// that is missing at every step stays missing; otherwise only its valid
// steps contribute.
func Aggregate(g *Grid, method AggMethod) (*Grid, error) {
	rows, cols := g.Rows(), g.Cols()
	o := *g
	o.Time = nil
	o.Data = sparse.ZerosDense(rows, cols)
	if method == AggMean || (method == AggSum && g.DType.IsInteger()) {
		o.DType = Float64
	}
	if !o.HasNoData {
		o.SetNoData(o.DType.DefaultNoData())
	}
	vals := make([]float64, 0, g.Steps())
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			vals = vals[:0]
			for t := 0; t < g.Steps(); t++ {
				if v := g.At(t, r, c); !g.IsNoData(v) {
					vals = append(vals, v)
				}
			}
			if len(vals) == 0 {
				o.Data.Elements[r*cols+c] = o.NoData
				continue
			}
			v, err := aggregate(vals, method)
			if err != nil {
				return nil, &Error{Kind: IncompatibleOptions, Variable: g.Name, Err: err}
			}
			o.Data.Elements[r*cols+c] = v
		}
	}
	return &o, nil
}

// Combine aggregates grids that share a georeference and shape cell by
// cell and step by step, as when summing the same variable over several
// files. The result takes its header from grids[0]. A cell missing in
// every grid stays missing.
func Combine(grids []*Grid, method AggMethod) (*Grid, error) {
	if len(grids) == 0 {
		return nil, &Error{Kind: IncompatibleOptions, Err: fmt.Errorf("no grids to combine")}
	}
	first := grids[0]
	for i, g := range grids[1:] {
		if err := checkCRS(first.CRS, g.CRS); err != nil {
			return nil, err
		}
		if g.GeoTransform != first.GeoTransform || !sameShape(g.Data.Shape, first.Data.Shape) {
			return nil, &Error{Kind: ShapeMismatch, Variable: g.Name,
				Err: fmt.Errorf("grid %d has shape %v and geotransform %v, grid 0 has %v and %v",
					i+1, g.Data.Shape, g.GeoTransform, first.Data.Shape, first.GeoTransform)}
		}
	}
	o := first.withData(first.Rows(), first.Cols(), first.GeoTransform)
	if method == AggMean || (method == AggSum && o.DType.IsInteger()) {
		o.DType = Float64
	}
	for _, g := range grids[1:] {
		if g.DType != first.DType {
			o.DType = Float64
		}
	}
	vals := make([]float64, 0, len(grids))
	for i := range o.Data.Elements {
		vals = vals[:0]
		for _, g := range grids {
			if v := g.Data.Elements[i]; !g.IsNoData(v) {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			continue
		}
		v, err := aggregate(vals, method)
		if err != nil {
			return nil, &Error{Kind: IncompatibleOptions, Variable: first.Name, Err: err}
		}
		o.Data.Elements[i] = v
	}
	return o, nil
}

func aggregate(vals []float64, method AggMethod) (float64, error) {
	switch method {
	case AggSum:
		return floats.Sum(vals), nil
	case AggMean:
		return stat.Mean(vals, nil), nil
	case AggMin:
		return floats.Min(vals), nil
	case AggMax:
		return floats.Max(vals), nil
	}
	return 0, fmt.Errorf("unknown aggregation method %d", method)
}

const earthRadius = 6371007.2 // m, authalic

// CellArea returns the area of each cell in square meters, in row-major
// order. For geographic grids the area is computed on a sphere; for
// projected grids the cell size is scaled by the projection's unit.
func (g *Grid) CellArea() ([]*unit.Unit, error) {
	if g.CRS.SR == nil {
		return nil, &Error{Kind: InvalidCRS, Variable: g.Name, Err: fmt.Errorf("grid has no spatial reference")}
	}
	out := make([]*unit.Unit, g.Rows()*g.Cols())
	if !g.CRS.Geographic() {
		toMeter := g.CRS.SR.ToMeter
		if toMeter == 0 {
			toMeter = 1
		}
		a := math.Abs(g.GeoTransform.det()) * toMeter * toMeter
		for i := range out {
			out[i] = unit.New(a, unit.Meter2)
		}
		return out, nil
	}
	const deg = math.Pi / 180
	gt := g.GeoTransform
	for r := 0; r < g.Rows(); r++ {
		for c := 0; c < g.Cols(); c++ {
			x0, y0 := gt.Apply(float64(c), float64(r))
			x1, y1 := gt.Apply(float64(c+1), float64(r+1))
			lat0 := math.Max(-90, math.Min(90, math.Min(y0, y1)))
			lat1 := math.Max(-90, math.Min(90, math.Max(y0, y1)))
			a := earthRadius * earthRadius * math.Abs(x1-x0) * deg *
				(math.Sin(lat1*deg) - math.Sin(lat0*deg))
			out[r*g.Cols()+c] = unit.New(a, unit.Meter2)
		}
	}
	return out, nil
}
