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
	"math"
	"reflect"
	"testing"

	"github.com/ctessum/geom"
)

func TestPolygonizeSingleCell(t *testing.T) {
	nd := -9999.
	g := newTestGrid(t, 3, 3, []float64{nd, nd, nd, nd, 4, nd, nd, nd, nd}, fp(nd))
	set, err := Polygonize(g, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if set.Len() != 1 {
		t.Fatalf("%d features, want 1", set.Len())
	}
	f := set.Features[0]
	p, ok := f.Geom.(geom.Polygon)
	if !ok || len(p) != 1 {
		t.Fatalf("geometry %#v", f.Geom)
	}
	ring := p[0]
	if len(ring) != 5 || ring[0] != ring[4] {
		t.Errorf("ring is not a closed square: %v", ring)
	}
	if a := p.Area(); a != 1 {
		t.Errorf("area = %g", a)
	}
	if b := p.Bounds(); b.Min != (geom.Point{X: 1, Y: 1}) || b.Max != (geom.Point{X: 2, Y: 2}) {
		t.Errorf("bounds %v", b)
	}
	want := map[string]interface{}{"region": 1, "cells": 1, "value": 4.}
	if !reflect.DeepEqual(f.Attributes, want) {
		t.Errorf("attributes %v != %v", f.Attributes, want)
	}
	if set.CRS.ID != "EPSG:4326" {
		t.Errorf("crs %s", set.CRS)
	}
}

func TestPolygonizeHole(t *testing.T) {
	nd := -1.
	t.Run("enclosed", func(t *testing.T) {
		g := newTestGrid(t, 3, 3, []float64{1, 1, 1, 1, nd, 1, 1, 1, 2}, fp(nd))
		set, err := Polygonize(g, 0, nil)
		if err != nil {
			t.Fatal(err)
		}
		if set.Len() != 1 {
			t.Fatalf("%d features, want 1", set.Len())
		}
		p := set.Features[0].Geom.(geom.Polygon)
		if len(p) != 2 {
			t.Fatalf("%d rings, want 2", len(p))
		}
		if a := p.Area(); a != 8 {
			t.Errorf("area = %g, want 8", a)
		}
		if s := (geom.Point{X: 1.5, Y: 1.5}).Within(p); s != geom.Outside {
			t.Errorf("hole center is %v", s)
		}
		if s := (geom.Point{X: 0.5, Y: 0.5}).Within(p); s != geom.Inside {
			t.Errorf("cell center is %v", s)
		}
		if _, ok := set.Features[0].Attributes["value"]; ok {
			t.Error("non-uniform region has a value")
		}
	})
	t.Run("touching the outside at a corner", func(t *testing.T) {
		g := newTestGrid(t, 3, 3, []float64{1, 1, 1, 1, nd, 1, 1, 1, nd}, fp(nd))
		set, err := Polygonize(g, 0, nil)
		if err != nil {
			t.Fatal(err)
		}
		if set.Len() != 1 {
			t.Fatalf("%d features, want 1", set.Len())
		}
		p := set.Features[0].Geom.(geom.Polygon)
		if len(p) != 2 {
			t.Errorf("%d rings, want a shell and a hole", len(p))
		}
		if a := p.Area(); a != 7 {
			t.Errorf("area = %g, want 7", a)
		}
	})
}

func TestPolygonizeRegions(t *testing.T) {
	nd := -1.
	t.Run("numbering", func(t *testing.T) {
		g := newTestGrid(t, 1, 5, []float64{1, nd, 2, 2, nd}, fp(nd))
		set, err := Polygonize(g, 0, nil)
		if err != nil {
			t.Fatal(err)
		}
		want := []map[string]interface{}{
			{"region": 1, "cells": 1, "value": 1.},
			{"region": 2, "cells": 2, "value": 2.},
		}
		if set.Len() != len(want) {
			t.Fatalf("%d features", set.Len())
		}
		for i, w := range want {
			if !reflect.DeepEqual(set.Features[i].Attributes, w) {
				t.Errorf("feature %d: %v != %v", i, set.Features[i].Attributes, w)
			}
		}
		if a := set.Features[1].Geom.(geom.Polygonal).Area(); a != 2 {
			t.Errorf("area %g", a)
		}
	})
	t.Run("predicate", func(t *testing.T) {
		g := newTestGrid(t, 1, 5, []float64{1, nd, 2, 2, nd}, fp(nd))
		set, err := Polygonize(g, 0, Threshold(2, 2))
		if err != nil {
			t.Fatal(err)
		}
		if set.Len() != 1 || set.Features[0].Attributes["cells"] != 2 {
			t.Errorf("got %d features", set.Len())
		}
	})
	t.Run("diagonal cells are separate", func(t *testing.T) {
		g := newTestGrid(t, 2, 2, []float64{1, nd, nd, 1}, fp(nd))
		set, err := Polygonize(g, 0, nil)
		if err != nil {
			t.Fatal(err)
		}
		if set.Len() != 2 {
			t.Fatalf("%d features, want 2", set.Len())
		}
		for _, f := range set.Features {
			if a := f.Geom.(geom.Polygonal).Area(); a != 1 {
				t.Errorf("area %g", a)
			}
		}
	})
}

// A polygon rasterized at fine resolution and polygonized again covers
// the original polygon.
func TestRasterizePolygonizeCoverage(t *testing.T) {
	tri := geom.Polygon{geom.Path{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 0, Y: 10}, {X: 0, Y: 0}}}
	set, err := NewGeometrySet("EPSG:4326", &Feature{Geom: tri})
	if err != nil {
		t.Fatal(err)
	}
	const res = 0.02
	target, err := TargetFromBounds(tri.Bounds(), res, res, "EPSG:4326")
	if err != nil {
		t.Fatal(err)
	}
	g, err := RasterizeGrid(set, target, BurnConstant(1), 0)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Polygonize(g, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 1 {
		t.Fatalf("%d regions, want 1", out.Len())
	}
	poly := out.Features[0].Geom.(geom.Polygonal)
	if a := poly.Area(); math.Abs(a-50)/50 > 0.01 {
		t.Errorf("area = %g, want about 50", a)
	}
	var n, in int
	for x := 0.05; x < 10; x += 0.1 {
		for y := 0.05; x+y < 10; y += 0.1 {
			n++
			if (geom.Point{X: x, Y: y}).Within(poly) != geom.Outside {
				in++
			}
		}
	}
	if frac := float64(in) / float64(n); frac < 0.99 {
		t.Errorf("polygonized area covers %.4f of the original", frac)
	}
}
