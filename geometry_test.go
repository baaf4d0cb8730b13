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

	"github.com/ctessum/geom"
)

func TestNewGeometrySet(t *testing.T) {
	square := geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}}
	tests := []struct {
		name string
		g    geom.Geom
		ok   bool
	}{
		{"polygon", square, true},
		{"closed polygon", geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}}}, true},
		{"point", geom.Point{X: 1, Y: 2}, true},
		{"line", geom.LineString{{X: 0, Y: 0}, {X: 1, Y: 1}}, true},
		{"nil", nil, false},
		{"short line", geom.LineString{{X: 0, Y: 0}}, false},
		{"nan point", geom.Point{X: math.NaN(), Y: 0}, false},
		{"two point ring", geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 0}}}, false},
		{"flat polygon", geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}}, false},
		{"empty multipolygon", geom.MultiPolygon{}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewGeometrySet("EPSG:4326", &Feature{Geom: test.g})
			if test.ok && err != nil {
				t.Fatal(err)
			}
			if !test.ok && !errors.Is(err, ErrInvalidGeometry) {
				t.Fatalf("want an invalid geometry error, got %v", err)
			}
		})
	}
	if _, err := NewGeometrySet("EPSG:0", &Feature{Geom: square}); !errors.Is(err, ErrInvalidCRS) {
		t.Errorf("bad CRS: %v", err)
	}
}

func TestGeometrySetTransform(t *testing.T) {
	s, err := NewGeometrySet("EPSG:4326",
		&Feature{Geom: geom.Point{X: 1, Y: 0}, Attributes: map[string]interface{}{"id": 1}},
		&Feature{Geom: geom.Polygon{{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if s.Features[1].Attributes == nil {
		t.Error("attributes not initialized")
	}
	m, err := s.Transform("EPSG:3857")
	if err != nil {
		t.Fatal(err)
	}
	if !m.CRS.Equal(MustParseCRS("EPSG:3857")) {
		t.Errorf("CRS %v", m.CRS)
	}
	p := m.Features[0].Geom.(geom.Point)
	const metersPerDegree = 6378137 * math.Pi / 180
	if math.Abs(p.X-metersPerDegree) > 1e-6 || math.Abs(p.Y) > 1e-6 {
		t.Errorf("point transformed to %v", p)
	}
	m.Features[0].Attributes["id"] = 2
	if s.Features[0].Attributes["id"] != 1 {
		t.Error("transform shares attributes with the source")
	}
	b := m.Bounds()
	if math.Abs(b.Min.X+metersPerDegree) > 1e-6 || math.Abs(b.Max.X-metersPerDegree) > 1e-6 {
		t.Errorf("bounds %v", b)
	}
	if s.Len() != 2 || m.Len() != 2 {
		t.Errorf("lengths %d and %d", s.Len(), m.Len())
	}
}

func TestGeometrySetClip(t *testing.T) {
	id := func(i int) map[string]interface{} { return map[string]interface{}{"id": i} }
	set, err := NewGeometrySet("EPSG:4326",
		&Feature{Geom: square(2, 2, 6, 6), Attributes: id(0)},
		&Feature{Geom: geom.LineString{{X: -1, Y: 1}, {X: 5, Y: 1}}, Attributes: id(1)},
		&Feature{Geom: geom.Point{X: 1, Y: 1}, Attributes: id(2)},
		&Feature{Geom: geom.Point{X: 5, Y: 5}, Attributes: id(3)},
		&Feature{Geom: geom.MultiPoint{{X: 1, Y: 1}, {X: 3, Y: 9}}, Attributes: id(4)},
		&Feature{Geom: square(10, 10, 11, 11), Attributes: id(5)},
	)
	if err != nil {
		t.Fatal(err)
	}
	out := set.Clip(square(0, 0, 4, 4))
	if out.Len() != 4 || !out.CRS.Equal(set.CRS) {
		t.Fatalf("%d features in %s", out.Len(), out.CRS)
	}
	var ids []interface{}
	for _, f := range out.Features {
		ids = append(ids, f.Attributes["id"])
	}
	if want := []interface{}{0, 1, 2, 4}; !reflect.DeepEqual(ids, want) {
		t.Errorf("kept %v, want %v", ids, want)
	}
	if p, ok := out.Features[0].Geom.(geom.Polygonal); !ok || math.Abs(p.Area()-4) > 1e-9 {
		t.Errorf("polygon %v", out.Features[0].Geom)
	}
	if l, ok := out.Features[1].Geom.(geom.Linear); !ok || math.Abs(l.Length()-4) > 1e-9 {
		t.Errorf("line %v", out.Features[1].Geom)
	}
	if mp := out.Features[3].Geom.(geom.MultiPoint); len(mp) != 1 {
		t.Errorf("multipoint %v", mp)
	}
	if set.Len() != 6 {
		t.Error("clip modified the set")
	}
}
