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

	"github.com/ctessum/sparse"
)

func coarseGrid(t *testing.T, nodata *float64, vals ...float64) *Grid {
	data := sparse.ZerosDense(2, 2)
	copy(data.Elements, vals)
	g, err := NewGrid(Header{GeoTransform: GeoTransform{0, 2, 0, 4, 0, -2}, CRS: "EPSG:4326", DType: Int16, NoData: nodata}, data)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestResampleNearest(t *testing.T) {
	g := coarseGrid(t, nil, 1, 2, 3, 4)
	o, err := Resample(g, 1, 1, Nearest)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}
	if !reflect.DeepEqual(o.Data.Elements, want) {
		t.Errorf("%v != %v", o.Data.Elements, want)
	}
	if o.GeoTransform != (GeoTransform{0, 1, 0, 4, 0, -1}) {
		t.Errorf("geotransform %v", o.GeoTransform)
	}
	if o.DType != Int16 {
		t.Errorf("nearest changed the type to %s", o.DType)
	}
	if !reflect.DeepEqual(o.Bounds(), g.Bounds()) {
		t.Errorf("bounds changed: %v", o.Bounds())
	}
}

func TestResampleBilinear(t *testing.T) {
	t.Run("interior", func(t *testing.T) {
		g := coarseGrid(t, nil, 1, 2, 3, 4)
		o, err := Resample(g, 1, 1, Bilinear)
		if err != nil {
			t.Fatal(err)
		}
		if o.DType != Float64 {
			t.Errorf("type %s", o.DType)
		}
		if v := o.At(0, 0, 0); v != 1 {
			t.Errorf("corner = %g", v)
		}
		if v := o.At(0, 1, 1); math.Abs(v-1.75) > 1e-12 {
			t.Errorf("interior = %g, want 1.75", v)
		}
	})
	t.Run("nodata neighbour", func(t *testing.T) {
		g := coarseGrid(t, fp(-1), 1, 2, 3, -1)
		o, err := Resample(g, 1, 1, Bilinear)
		if err != nil {
			t.Fatal(err)
		}
		if v := o.At(0, 1, 1); math.Abs(v-1.6) > 1e-12 {
			t.Errorf("interior = %g, want 1.6", v)
		}
		if v := o.At(0, 3, 3); v != -1 {
			t.Errorf("all-nodata neighbourhood = %g, want nodata", v)
		}
	})
	t.Run("bad resolution", func(t *testing.T) {
		g := coarseGrid(t, nil, 1, 2, 3, 4)
		if _, err := Resample(g, 0, 1, Nearest); !errors.Is(err, ErrIncompatibleOptions) {
			t.Errorf("got %v", err)
		}
	})
}

func TestReproject(t *testing.T) {
	data := sparse.ZerosDense(10, 10)
	for i := range data.Elements {
		data.Elements[i] = float64(i)
	}
	g, err := NewGrid(Header{GeoTransform: GeoTransform{0, 1, 0, 10, 0, -1}, CRS: "EPSG:4326", NoData: fp(-9999)}, data)
	if err != nil {
		t.Fatal(err)
	}
	t.Run("identity", func(t *testing.T) {
		o, err := Reproject(g, "EPSG:4326", [2]float64{}, Nearest)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(o.Data.Elements, g.Data.Elements) || o.GeoTransform != g.GeoTransform {
			t.Error("reprojection to the same CRS changed the grid")
		}
	})
	t.Run("mercator", func(t *testing.T) {
		o, err := Reproject(g, "EPSG:3857", [2]float64{}, Nearest)
		if err != nil {
			t.Fatal(err)
		}
		if o.CRS.ID != "EPSG:3857" || o.Rows() != 10 || o.Cols() != 10 {
			t.Fatalf("crs %s, %dx%d", o.CRS, o.Rows(), o.Cols())
		}
		b := o.Bounds()
		if math.Abs(b.Min.X) > 1e-6 || math.Abs(b.Max.X-1113194.9079327357) > 1e-3 {
			t.Errorf("x extent %v", b)
		}
		for _, c := range [][2]int{{0, 0}, {9, 9}, {0, 9}, {9, 0}} {
			if v, want := o.At(0, c[0], c[1]), g.At(0, c[0], c[1]); v != want {
				t.Errorf("cell %v = %g, want %g", c, v, want)
			}
		}
		back, err := Reproject(o, "EPSG:4326", [2]float64{1, 1}, Nearest)
		if err != nil {
			t.Fatal(err)
		}
		bb := back.Bounds()
		if math.Abs(bb.Min.X) > 1e-6 || math.Abs(bb.Max.Y-10) > 1e-6 {
			t.Errorf("round trip bounds %v", bb)
		}
	})
}
