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
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"github.com/kr/pretty"
)

// newTestGrid returns a north-up EPSG:4326 grid with unit cells whose
// lower left corner is at the origin.
func newTestGrid(t *testing.T, rows, cols int, vals []float64, nodata *float64) *Grid {
	data := sparse.ZerosDense(rows, cols)
	copy(data.Elements, vals)
	g, err := NewGrid(Header{
		GeoTransform: GeoTransform{0, 1, 0, float64(rows), 0, -1},
		CRS:          "EPSG:4326",
		DType:        Float64,
		NoData:       nodata,
	}, data)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func fp(v float64) *float64 { return &v }

func TestNewGrid(t *testing.T) {
	gt := GeoTransform{0, 1, 0, 2, 0, -1}
	tests := []struct {
		name string
		h    Header
		data *sparse.DenseArray
		want error
	}{
		{
			name: "ok",
			h:    Header{Rows: 2, Cols: 3, GeoTransform: gt, CRS: "EPSG:4326"},
			data: sparse.ZerosDense(2, 3),
		},
		{
			name: "declared rows",
			h:    Header{Rows: 3, Cols: 3, GeoTransform: gt, CRS: "EPSG:4326"},
			data: sparse.ZerosDense(2, 3),
			want: ErrShapeMismatch,
		},
		{
			name: "time length",
			h: Header{GeoTransform: gt, CRS: "EPSG:4326",
				Time: &TimeAxis{Values: []float64{0, 1}, Units: "days since 2000-01-01"}},
			data: sparse.ZerosDense(3, 2, 3),
			want: ErrShapeMismatch,
		},
		{
			name: "time on static grid",
			h: Header{GeoTransform: gt, CRS: "EPSG:4326",
				Time: &TimeAxis{Values: []float64{0, 1}, Units: "days since 2000-01-01"}},
			data: sparse.ZerosDense(2, 3),
			want: ErrShapeMismatch,
		},
		{
			name: "element count",
			h:    Header{GeoTransform: gt, CRS: "EPSG:4326"},
			data: &sparse.DenseArray{Shape: []int{2, 3}, Elements: make([]float64, 5)},
			want: ErrShapeMismatch,
		},
		{
			name: "zero pixel size",
			h:    Header{GeoTransform: GeoTransform{0, 0, 0, 2, 0, -1}, CRS: "EPSG:4326"},
			data: sparse.ZerosDense(2, 3),
			want: ErrShapeMismatch,
		},
		{
			name: "decreasing time",
			h: Header{GeoTransform: gt, CRS: "EPSG:4326",
				Time: &TimeAxis{Values: []float64{1, 0}, Units: "days since 2000-01-01"}},
			data: sparse.ZerosDense(2, 2, 3),
			want: ErrShapeMismatch,
		},
		{
			name: "bad crs",
			h:    Header{GeoTransform: gt, CRS: "not a crs"},
			data: sparse.ZerosDense(2, 3),
			want: ErrInvalidCRS,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewGrid(test.h, test.data)
			if test.want == nil {
				if err != nil {
					t.Fatal(err)
				}
				return
			}
			if !errors.Is(err, test.want) {
				t.Errorf("got error %v, want %v", err, test.want)
			}
		})
	}
}

func TestBoundsCellSize(t *testing.T) {
	g, err := NewGrid(Header{GeoTransform: GeoTransform{10, 2, 0, 50, 0, -1}, CRS: "EPSG:4326"}, sparse.ZerosDense(3, 4))
	if err != nil {
		t.Fatal(err)
	}
	b := g.Bounds()
	want := &geom.Bounds{Min: geom.Point{X: 10, Y: 47}, Max: geom.Point{X: 18, Y: 50}}
	if !reflect.DeepEqual(b, want) {
		t.Errorf("bounds: %v", pretty.Diff(b, want))
	}
	dx, dy := g.CellSize()
	if dx != 2 || dy != 1 {
		t.Errorf("cell size = %g, %g; want 2, 1", dx, dy)
	}
}

func TestTimeAt(t *testing.T) {
	g, err := NewGrid(Header{
		GeoTransform: GeoTransform{0, 1, 0, 1, 0, -1},
		CRS:          "EPSG:4326",
		Time:         &TimeAxis{Values: []float64{0, 31, 59.5}, Units: "days since 2000-01-01 00:00:00", Calendar: CalendarStandard},
	}, sparse.ZerosDense(3, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Time{
		time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2000, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2000, 2, 29, 12, 0, 0, 0, time.UTC),
	}
	for i, w := range want {
		tt, err := g.TimeAt(i)
		if err != nil {
			t.Fatal(err)
		}
		if !tt.Equal(w) {
			t.Errorf("step %d: %v != %v", i, tt, w)
		}
	}
	if _, err := g.TimeAt(3); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("past the end: got %v", err)
	}
	static := newTestGrid(t, 1, 1, nil, nil)
	if _, err := static.TimeAt(0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("static grid: got %v", err)
	}
}

func TestMaskNoData(t *testing.T) {
	t.Run("sentinel", func(t *testing.T) {
		g := newTestGrid(t, 2, 2, []float64{1, -9999, math.NaN(), 4}, fp(-9999))
		want := []bool{false, true, true, false}
		if got := g.MaskNoData(); !reflect.DeepEqual(got, want) {
			t.Errorf("%v != %v", got, want)
		}
		if g.Data.Elements[1] != -9999 {
			t.Error("mask modified the data")
		}
	})
	t.Run("nan sentinel", func(t *testing.T) {
		g := newTestGrid(t, 1, 3, []float64{math.NaN(), 0, -9999}, fp(math.NaN()))
		want := []bool{true, false, false}
		if got := g.MaskNoData(); !reflect.DeepEqual(got, want) {
			t.Errorf("%v != %v", got, want)
		}
	})
}

func TestIndexValueAt(t *testing.T) {
	g := newTestGrid(t, 2, 3, []float64{0, 1, 2, 3, 4, -1}, fp(-1))
	tests := []struct {
		x, y   float64
		r, c   int
		in     bool
		v      float64
		hasVal bool
	}{
		{x: 0.5, y: 1.5, r: 0, c: 0, in: true, v: 0, hasVal: true},
		{x: 1.2, y: 0.1, r: 1, c: 1, in: true, v: 4, hasVal: true},
		{x: 2.9, y: 0.9, r: 1, c: 2, in: true, v: -1},
		{x: 3.1, y: 0.5},
		{x: 1, y: -0.1},
	}
	for _, test := range tests {
		r, c, in := g.Index(test.x, test.y)
		if in != test.in || (in && (r != test.r || c != test.c)) {
			t.Errorf("Index(%g, %g) = %d, %d, %v", test.x, test.y, r, c, in)
		}
		v, ok := g.ValueAt(test.x, test.y, 0)
		if ok != test.hasVal || (ok && v != test.v) {
			t.Errorf("ValueAt(%g, %g) = %g, %v", test.x, test.y, v, ok)
		}
	}
}

func TestClip(t *testing.T) {
	vals := make([]float64, 16)
	for i := range vals {
		vals[i] = float64(i)
	}
	g := newTestGrid(t, 4, 4, vals, fp(-1))
	o, err := g.Clip(&geom.Bounds{Min: geom.Point{X: 1, Y: 1}, Max: geom.Point{X: 3, Y: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{5, 6, 9, 10}; !reflect.DeepEqual(o.Data.Elements, want) {
		t.Errorf("values: %v != %v", o.Data.Elements, want)
	}
	if want := (GeoTransform{1, 1, 0, 3, 0, -1}); o.GeoTransform != want {
		t.Errorf("geotransform: %v != %v", o.GeoTransform, want)
	}
	if g.Data.Elements[0] != 0 {
		t.Error("clip modified the source")
	}
	_, err = g.Clip(&geom.Bounds{Min: geom.Point{X: 10, Y: 10}, Max: geom.Point{X: 11, Y: 11}})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("disjoint clip: got %v", err)
	}
}

func TestMaskPolygon(t *testing.T) {
	vals := make([]float64, 16)
	for i := range vals {
		vals[i] = 1
	}
	g := newTestGrid(t, 4, 4, vals, nil)
	square := geom.Polygon{geom.Path{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}, {X: 0, Y: 0}}}
	if n := g.MaskPolygon(square); n != 12 {
		t.Errorf("masked %d cells, want 12", n)
	}
	if !g.HasNoData || g.NoData != Float64.DefaultNoData() {
		t.Errorf("nodata = %g, %v", g.NoData, g.HasNoData)
	}
	s, err := g.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if s.Count != 4 {
		t.Errorf("%d valid cells remain, want 4", s.Count)
	}
	if v, ok := g.ValueAt(1, 1, 0); !ok || v != 1 {
		t.Errorf("cell inside the polygon = %g, %v", v, ok)
	}
}

func TestSliceCopy(t *testing.T) {
	data := sparse.ZerosDense(2, 1, 2)
	copy(data.Elements, []float64{1, 2, 3, 4})
	g, err := NewGrid(Header{
		GeoTransform: GeoTransform{0, 1, 0, 1, 0, -1},
		CRS:          "EPSG:4326",
		Time:         &TimeAxis{Values: []float64{0, 1}, Units: "hours since 2010-06-01"},
	}, data)
	if err != nil {
		t.Fatal(err)
	}
	s, err := g.Slice(1)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Static() || !reflect.DeepEqual(s.Data.Shape, []int{1, 2}) || !reflect.DeepEqual(s.Data.Elements, []float64{3, 4}) {
		t.Errorf("slice: %# v", pretty.Formatter(s.Data))
	}
	if _, err := g.Slice(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("slice past end: %v", err)
	}
	c := g.Copy()
	c.Set(100, 0, 0, 0)
	c.Time.Values[0] = 5
	if g.At(0, 0, 0) != 1 || g.Time.Values[0] != 0 {
		t.Error("copy shares storage with the original")
	}
}
