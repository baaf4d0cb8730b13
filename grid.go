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
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

// GeoTransform is a six-parameter affine mapping from cell indices to
// coordinates, in GDAL order. The upper left corner of the cell at
// (row, col) is at
//	x = gt[0] + col*gt[1] + row*gt[2]
//	y = gt[3] + col*gt[4] + row*gt[5]
type GeoTransform [6]float64

// Apply returns the coordinates of the fractional cell position (col, row).
func (gt GeoTransform) Apply(col, row float64) (x, y float64) {
	return gt[0] + col*gt[1] + row*gt[2], gt[3] + col*gt[4] + row*gt[5]
}

func (gt GeoTransform) det() float64 { return gt[1]*gt[5] - gt[2]*gt[4] }

// Invert returns the fractional cell position (col, row) of (x, y).
func (gt GeoTransform) Invert(x, y float64) (col, row float64) {
	d := gt.det()
	dx, dy := x-gt[0], y-gt[3]
	return (gt[5]*dx - gt[2]*dy) / d, (gt[1]*dy - gt[4]*dx) / d
}

// NorthUp reports whether gt has no rotation terms.
func (gt GeoTransform) NorthUp() bool { return gt[2] == 0 && gt[4] == 0 }

func (gt GeoTransform) valid() error {
	for i, v := range gt {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("geotransform term %d is not finite", i)
		}
	}
	if gt.det() == 0 {
		return fmt.Errorf("geotransform %v is degenerate", [6]float64(gt))
	}
	return nil
}

// Header holds everything about a grid except its values.
type Header struct {
	// Rows and Cols, if not zero, are the declared grid dimensions.
	// They must agree with the last two dimensions of the data.
	Rows, Cols int

	GeoTransform GeoTransform

	// CRS is the identifier of the coordinate reference system, e.g.
	// "EPSG:4326", a PROJ.4 string or WKT.
	CRS string

	DType DType

	// NoData is the missing-value sentinel, or nil if there is none.
	NoData *float64

	// Time is the time axis, or nil for a static grid.
	Time *TimeAxis

	Name, Units, LongName string
}

// Grid is an in-memory gridded dataset. Data has shape (T, R, C) or
// (R, C); a 3-dimensional grid without a time axis is a stack of bands.
type Grid struct {
	Name, Units, LongName string

	Data  *sparse.DenseArray
	DType DType

	NoData    float64
	HasNoData bool

	GeoTransform GeoTransform
	CRS          CRS
	Time         *TimeAxis
}

// NewGrid creates a grid from h and data. It returns a ShapeMismatch
// error if the data shape disagrees with the declared dimensions,
// geotransform or time axis, and an InvalidCRS error if the CRS cannot
// be parsed.
func NewGrid(h Header, data *sparse.DenseArray) (*Grid, error) {
	g := &Grid{
		Name:         h.Name,
		Units:        h.Units,
		LongName:     h.LongName,
		Data:         data,
		DType:        h.DType,
		GeoTransform: h.GeoTransform,
		Time:         h.Time,
	}
	if h.NoData != nil {
		g.NoData, g.HasNoData = *h.NoData, true
	}
	if err := g.checkShape(); err != nil {
		return nil, err
	}
	if (h.Rows != 0 && h.Rows != g.Rows()) || (h.Cols != 0 && h.Cols != g.Cols()) {
		return nil, &Error{Kind: ShapeMismatch, Variable: h.Name,
			Err: fmt.Errorf("declared %dx%d grid, data is %dx%d", h.Rows, h.Cols, g.Rows(), g.Cols())}
	}
	crs, err := ParseCRS(h.CRS)
	if err != nil {
		return nil, err
	}
	g.CRS = crs
	return g, nil
}

// checkShape validates the shape invariants.
func (g *Grid) checkShape() error {
	fail := func(format string, args ...interface{}) error {
		return &Error{Kind: ShapeMismatch, Variable: g.Name, Err: fmt.Errorf(format, args...)}
	}
	if g.Data == nil {
		return fail("no data")
	}
	shape := g.Data.Shape
	if len(shape) != 2 && len(shape) != 3 {
		return fail("data has %d dimensions, need 2 or 3", len(shape))
	}
	n := 1
	for _, l := range shape {
		if l <= 0 {
			return fail("data shape %v has an empty dimension", shape)
		}
		n *= l
	}
	if n != len(g.Data.Elements) {
		return fail("data shape %v implies %d values but there are %d", shape, n, len(g.Data.Elements))
	}
	if err := g.GeoTransform.valid(); err != nil {
		return fail("%v", err)
	}
	if g.Time != nil {
		if len(shape) != 3 {
			return fail("time axis of length %d on a static grid", g.Time.Len())
		}
		if g.Time.Len() != shape[0] {
			return fail("time axis has %d steps but data has %d", g.Time.Len(), shape[0])
		}
		if err := g.Time.validate(); err != nil {
			return fail("%v", err)
		}
	}
	return nil
}

// Rows returns the number of rows.
func (g *Grid) Rows() int { return g.Data.Shape[len(g.Data.Shape)-2] }

// Cols returns the number of columns.
func (g *Grid) Cols() int { return g.Data.Shape[len(g.Data.Shape)-1] }

// Steps returns the length of the leading time or band axis, which is 1
// for a 2-dimensional grid.
func (g *Grid) Steps() int {
	if len(g.Data.Shape) == 3 {
		return g.Data.Shape[0]
	}
	return 1
}

// Static reports whether g has no time axis.
func (g *Grid) Static() bool { return g.Time == nil }

func (g *Grid) index(t, r, c int) int { return (t*g.Rows()+r)*g.Cols() + c }

// At returns the value at step t, row r and column c.
func (g *Grid) At(t, r, c int) float64 { return g.Data.Elements[g.index(t, r, c)] }

// Set sets the value at step t, row r and column c.
func (g *Grid) Set(v float64, t, r, c int) { g.Data.Elements[g.index(t, r, c)] = v }

// SetNoData sets the nodata value.
func (g *Grid) SetNoData(v float64) { g.NoData, g.HasNoData = v, true }

// sameValue compares two values exactly. NaN matches NaN.
func sameValue(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

// IsNoData reports whether v is a missing value: equal to the nodata
// sentinel, or NaN.
func (g *Grid) IsNoData(v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	return g.HasNoData && sameValue(v, g.NoData)
}

func (g *Grid) hasMissing() bool {
	for _, v := range g.Data.Elements {
		if g.IsNoData(v) {
			return true
		}
	}
	return false
}

// MaskNoData returns a mask with the same layout as g.Data.Elements that
// is true where the value is missing. g is not modified.
func (g *Grid) MaskNoData() []bool {
	m := make([]bool, len(g.Data.Elements))
	for i, v := range g.Data.Elements {
		m[i] = g.IsNoData(v)
	}
	return m
}

// Bounds returns the axis-aligned extent of the grid in CRS units.
func (g *Grid) Bounds() *geom.Bounds {
	r, c := float64(g.Rows()), float64(g.Cols())
	b := &geom.Bounds{
		Min: geom.Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: geom.Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, corner := range [][2]float64{{0, 0}, {c, 0}, {0, r}, {c, r}} {
		x, y := g.GeoTransform.Apply(corner[0], corner[1])
		b.Min.X = math.Min(b.Min.X, x)
		b.Min.Y = math.Min(b.Min.Y, y)
		b.Max.X = math.Max(b.Max.X, x)
		b.Max.Y = math.Max(b.Max.Y, y)
	}
	return b
}

// CellSize returns the width and height of a cell.
func (g *Grid) CellSize() (dx, dy float64) {
	gt := g.GeoTransform
	return math.Hypot(gt[1], gt[4]), math.Hypot(gt[2], gt[5])
}

// TimeAt returns the time of step i. It returns an IndexOutOfRange error
// if g has no time axis or i is beyond its end.
func (g *Grid) TimeAt(i int) (time.Time, error) {
	if g.Time == nil {
		return time.Time{}, &Error{Kind: IndexOutOfRange, Variable: g.Name,
			Err: fmt.Errorf("time index %d on a static grid", i)}
	}
	t, err := g.Time.At(i)
	if err != nil {
		if e, ok := err.(*Error); ok {
			e.Variable = g.Name
			return t, e
		}
		return t, &Error{Kind: CorruptSource, Variable: g.Name, Err: err}
	}
	return t, nil
}

// CellCenter returns the coordinates of the center of the cell at
// (row, col).
func (g *Grid) CellCenter(row, col int) geom.Point {
	x, y := g.GeoTransform.Apply(float64(col)+0.5, float64(row)+0.5)
	return geom.Point{X: x, Y: y}
}

// Index returns the row and column of the cell containing (x, y).
// ok is false if the point is outside the grid.
func (g *Grid) Index(x, y float64) (row, col int, ok bool) {
	fc, fr := g.GeoTransform.Invert(x, y)
	if math.IsNaN(fc) || math.IsNaN(fr) {
		return 0, 0, false
	}
	col, row = int(math.Floor(fc)), int(math.Floor(fr))
	if row < 0 || col < 0 || row >= g.Rows() || col >= g.Cols() {
		return 0, 0, false
	}
	return row, col, true
}

// ValueAt returns the value of step t at point (x, y). ok is false if
// the point is outside the grid or the value is missing.
func (g *Grid) ValueAt(x, y float64, t int) (v float64, ok bool) {
	if t < 0 || t >= g.Steps() {
		return 0, false
	}
	r, c, in := g.Index(x, y)
	if !in {
		return 0, false
	}
	v = g.At(t, r, c)
	if g.IsNoData(v) {
		return v, false
	}
	return v, true
}

// Copy returns a deep copy of g.
func (g *Grid) Copy() *Grid {
	o := *g
	o.Data = sparse.ZerosDense(append([]int(nil), g.Data.Shape...)...)
	copy(o.Data.Elements, g.Data.Elements)
	if g.Time != nil {
		ta := *g.Time
		ta.Values = append([]float64(nil), g.Time.Values...)
		o.Time = &ta
	}
	return &o
}

// Slice returns step t of g as a new static grid.
func (g *Grid) Slice(t int) (*Grid, error) {
	if t < 0 || t >= g.Steps() {
		return nil, &Error{Kind: IndexOutOfRange, Variable: g.Name,
			Err: fmt.Errorf("step %d, grid has %d", t, g.Steps())}
	}
	o := *g
	o.Time = nil
	n := g.Rows() * g.Cols()
	o.Data = sparse.ZerosDense(g.Rows(), g.Cols())
	copy(o.Data.Elements, g.Data.Elements[t*n:(t+1)*n])
	return &o, nil
}

// withData returns a grid with g's metadata and a new geotransform and
// data array of the given size, filled with the nodata value.
func (g *Grid) withData(rows, cols int, gt GeoTransform) *Grid {
	o := *g
	o.GeoTransform = gt
	if len(g.Data.Shape) == 3 {
		o.Data = sparse.ZerosDense(g.Steps(), rows, cols)
	} else {
		o.Data = sparse.ZerosDense(rows, cols)
	}
	if !o.HasNoData {
		o.SetNoData(o.DType.DefaultNoData())
	}
	for i := range o.Data.Elements {
		o.Data.Elements[i] = o.NoData
	}
	if g.Time != nil {
		ta := *g.Time
		ta.Values = append([]float64(nil), g.Time.Values...)
		o.Time = &ta
	}
	return &o
}

// Clip returns the part of g whose cell centers fall within b.
// It returns a ShapeMismatch error if no cell center is within b and an
// IncompatibleOptions error for rotated grids.
func (g *Grid) Clip(b *geom.Bounds) (*Grid, error) {
	if !g.GeoTransform.NorthUp() {
		return nil, &Error{Kind: IncompatibleOptions, Variable: g.Name, Err: fmt.Errorf("cannot clip a rotated grid")}
	}
	r0, r1, c0, c1 := g.Rows(), -1, g.Cols(), -1
	for r := 0; r < g.Rows(); r++ {
		p := g.CellCenter(r, 0)
		if p.Y >= b.Min.Y && p.Y <= b.Max.Y {
			r0, r1 = imin(r0, r), imax(r1, r)
		}
	}
	for c := 0; c < g.Cols(); c++ {
		p := g.CellCenter(0, c)
		if p.X >= b.Min.X && p.X <= b.Max.X {
			c0, c1 = imin(c0, c), imax(c1, c)
		}
	}
	if r1 < r0 || c1 < c0 {
		return nil, &Error{Kind: ShapeMismatch, Variable: g.Name,
			Err: fmt.Errorf("clip bounds %v do not overlap the grid", *b)}
	}
	gt := g.GeoTransform
	x0, y0 := gt.Apply(float64(c0), float64(r0))
	o := g.withData(r1-r0+1, c1-c0+1, GeoTransform{x0, gt[1], 0, y0, 0, gt[5]})
	o.NoData, o.HasNoData = g.NoData, g.HasNoData
	for t := 0; t < g.Steps(); t++ {
		for r := r0; r <= r1; r++ {
			for c := c0; c <= c1; c++ {
				o.Set(g.At(t, r, c), t, r-r0, c-c0)
			}
		}
	}
	return o, nil
}

// MaskPolygon sets to nodata every cell whose center is outside p.
// If g has no nodata value, the default for its type is assigned.
// It returns the number of cells masked per step.
func (g *Grid) MaskPolygon(p geom.Polygonal) int {
	if !g.HasNoData {
		g.SetNoData(g.DType.DefaultNoData())
	}
	var n int
	for r := 0; r < g.Rows(); r++ {
		for c := 0; c < g.Cols(); c++ {
			if g.CellCenter(r, c).Within(p) != geom.Outside {
				continue
			}
			n++
			for t := 0; t < g.Steps(); t++ {
				g.Set(g.NoData, t, r, c)
			}
		}
	}
	return n
}

// Mask sets to nodata every valid cell whose value satisfies pred.
// It returns the number of cells masked.
func (g *Grid) Mask(pred MaskPredicate) (int, error) {
	if !g.HasNoData {
		g.SetNoData(g.DType.DefaultNoData())
	}
	var n int
	for i, v := range g.Data.Elements {
		if g.IsNoData(v) {
			continue
		}
		m, err := pred(v)
		if err != nil {
			return n, err
		}
		if m {
			g.Data.Elements[i] = g.NoData
			n++
		}
	}
	return n, nil
}

func imin(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func imax(a, b int) int {
	if a > b {
		return a
	}
	return b
}
