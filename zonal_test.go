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
	"testing"

	"github.com/ctessum/geom"
)

func TestZonalStats(t *testing.T) {
	vals := make([]float64, 16)
	for i := range vals {
		vals[i] = float64(i + 1)
	}
	vals[4] = -1 // row 1, col 0
	g := newTestGrid(t, 4, 4, vals, fp(-1))
	set, err := NewGeometrySet("EPSG:4326",
		&Feature{Geom: square(0, 0, 2, 4), Attributes: map[string]interface{}{"name": "west"}},
		&Feature{Geom: geom.Point{X: 3.5, Y: 3.5}},
		&Feature{Geom: geom.LineString{{X: 0.5, Y: 0.5}, {X: 3.5, Y: 0.5}}},
		&Feature{Geom: square(10, 10, 11, 11)},
	)
	if err != nil {
		t.Fatal(err)
	}
	zs, err := ZonalStats(g, set, 0)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		cells, count int
		sum, mean    float64
	}{
		{cells: 8, count: 7, sum: 1 + 2 + 6 + 9 + 10 + 13 + 14, mean: 55.0 / 7},
		{cells: 1, count: 1, sum: 4, mean: 4},
		{cells: 4, count: 4, sum: 13 + 14 + 15 + 16, mean: 14.5},
		{},
	}
	for i, test := range tests {
		z := zs[i]
		if z.Feature != i || z.Cells != test.cells || z.Count != test.count || z.Sum != test.sum || z.Mean != test.mean {
			t.Errorf("zone %d: %+v", i, z)
		}
	}
	if zs[0].Attributes["name"] != "west" {
		t.Errorf("attributes %v", zs[0].Attributes)
	}
}

func TestZonalStatsOverlap(t *testing.T) {
	vals := make([]float64, 16)
	for i := range vals {
		vals[i] = float64(i + 1)
	}
	g := newTestGrid(t, 4, 4, vals, nil)
	set, err := NewGeometrySet("EPSG:4326",
		&Feature{Geom: square(0, 0, 2, 2)},
		&Feature{Geom: square(1, 1, 3, 3)},
		&Feature{Geom: geom.MultiPolygon{square(3, 3, 4, 4), square(0, 3, 1, 4)}},
	)
	if err != nil {
		t.Fatal(err)
	}
	zs, err := ZonalStats(g, set, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []float64{9 + 10 + 13 + 14, 6 + 7 + 10 + 11, 1 + 4} {
		if zs[i].Sum != want {
			t.Errorf("zone %d: sum %g, want %g", i, zs[i].Sum, want)
		}
	}
	if zs[0].Cells != 4 || zs[1].Cells != 4 || zs[2].Cells != 2 {
		t.Errorf("cells %d %d %d", zs[0].Cells, zs[1].Cells, zs[2].Cells)
	}

	areas, err := g.CellArea()
	if err != nil {
		t.Fatal(err)
	}
	var area, weighted float64
	for _, i := range []int{8, 9, 12, 13} {
		area += areas[i].Value()
		weighted += vals[i] * areas[i].Value()
	}
	if math.Abs(zs[0].Area-area)/area > 1e-12 {
		t.Errorf("area %g, want %g", zs[0].Area, area)
	}
	if math.Abs(zs[0].AreaMean-weighted/area) > 1e-9 {
		t.Errorf("area mean %g, want %g", zs[0].AreaMean, weighted/area)
	}
	// Cells farther from the equator are smaller.
	if zs[0].AreaMean <= zs[0].Mean {
		t.Errorf("area mean %g not above mean %g", zs[0].AreaMean, zs[0].Mean)
	}
	if math.Abs(zs[2].AreaMean-2.5) > 1e-9 {
		t.Errorf("same-row area mean %g", zs[2].AreaMean)
	}
}
