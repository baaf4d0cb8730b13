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
)

func TestRepresents(t *testing.T) {
	tests := []struct {
		d    DType
		v    float64
		want bool
	}{
		{Uint8, 255, true},
		{Uint8, 256, false},
		{Uint8, -1, false},
		{Uint8, 1.5, false},
		{Int16, -32768, true},
		{Int16, 32768, false},
		{Uint16, 65535, true},
		{Int32, math.NaN(), false},
		{Uint32, 4294967295, true},
		{Float32, 0.5, true},
		{Float32, 0.1, false},
		{Float32, math.NaN(), true},
		{Float64, 0.1, true},
	}
	for _, test := range tests {
		if got := test.d.Represents(test.v); got != test.want {
			t.Errorf("%s.Represents(%g) = %v", test.d, test.v, got)
		}
	}
}

func TestParseDType(t *testing.T) {
	for s, want := range map[string]DType{"float64": Float64, "Float": Float32, "byte": Uint8, "int16": Int16, "uint32": Uint32} {
		d, err := ParseDType(s)
		if err != nil {
			t.Fatal(err)
		}
		if d != want {
			t.Errorf("%s: %s != %s", s, d, want)
		}
	}
	if _, err := ParseDType("complex128"); !errors.Is(err, ErrIncompatibleOptions) {
		t.Errorf("got %v", err)
	}
}

func TestPlanWrite(t *testing.T) {
	u8, f32 := Uint8, Float32
	t.Run("same type", func(t *testing.T) {
		g := newTestGrid(t, 1, 3, []float64{1, 2, -9999}, fp(-9999))
		p, err := PlanWrite(g, WriteOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if p.DType != Float64 || p.NoData != -9999 || !p.HasNoData {
			t.Errorf("plan %+v", p)
		}
		if !reflect.DeepEqual(p.Values, g.Data.Elements) {
			t.Errorf("%v != %v", p.Values, g.Data.Elements)
		}
	})
	t.Run("narrow to uint8 with new nodata", func(t *testing.T) {
		g := newTestGrid(t, 1, 3, []float64{1, 2, -9999}, fp(-9999))
		p, err := PlanWrite(g, WriteOptions{DType: &u8, NoData: fp(0)})
		if err != nil {
			t.Fatal(err)
		}
		if want := []float64{1, 2, 0}; !reflect.DeepEqual(p.Values, want) {
			t.Errorf("%v != %v", p.Values, want)
		}
		if g.Data.Elements[2] != -9999 {
			t.Error("plan modified the grid")
		}
	})
	t.Run("default integer nodata", func(t *testing.T) {
		g := newTestGrid(t, 1, 2, []float64{1, math.NaN()}, nil)
		p, err := PlanWrite(g, WriteOptions{DType: &u8})
		if err != nil {
			t.Fatal(err)
		}
		if !p.HasNoData || p.NoData != 255 || !reflect.DeepEqual(p.Values, []float64{1, 255}) {
			t.Errorf("plan %+v", p)
		}
	})
	t.Run("nan with sentinel", func(t *testing.T) {
		i16 := Int16
		g := newTestGrid(t, 1, 4, []float64{1, math.NaN(), 3, -9999}, fp(-9999))
		p, err := PlanWrite(g, WriteOptions{DType: &i16})
		if err != nil {
			t.Fatal(err)
		}
		if want := []float64{1, -9999, 3, -9999}; !reflect.DeepEqual(p.Values, want) {
			t.Errorf("%v != %v", p.Values, want)
		}
		if !math.IsNaN(g.Data.Elements[1]) {
			t.Error("plan modified the grid")
		}
	})
	for _, test := range []struct {
		name string
		vals []float64
		opts WriteOptions
	}{
		{name: "fraction to integer", vals: []float64{1.5}, opts: WriteOptions{DType: &u8}},
		{name: "out of range", vals: []float64{300}, opts: WriteOptions{DType: &u8}},
		{name: "nodata out of range", vals: []float64{1}, opts: WriteOptions{DType: &u8, NoData: fp(-9999)}},
		{name: "float32 precision", vals: []float64{0.1}, opts: WriteOptions{DType: &f32}},
		{name: "nodata collision", vals: []float64{0, 1}, opts: WriteOptions{NoData: fp(0)}},
	} {
		t.Run(test.name, func(t *testing.T) {
			g := newTestGrid(t, 1, len(test.vals), test.vals, nil)
			if _, err := PlanWrite(g, test.opts); !errors.Is(err, ErrIncompatibleOptions) {
				t.Errorf("got %v", err)
			}
		})
	}
}
