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
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/sparse"
	"github.com/ctessum/unit"
)

// ZoneSummary holds the statistics of the grid cells covered by one
// feature. Summary.Count is zero when none of the covered cells is valid.
type ZoneSummary struct {
	Feature    int
	Attributes map[string]interface{}

	// Cells is the number of cells covered, including nodata cells.
	Cells int
	Summary

	// Area is the area of the valid covered cells in m², and AreaMean
	// their area-weighted mean. Both are zero when the cell area is
	// unknown.
	Area     float64
	AreaMean float64
}

// zone is a polygonal feature indexed by its position in the set.
type zone struct {
	geom.Polygonal
	i int
}

// ZonalStats summarizes step t of g within each feature of set. A cell
// belongs to a polygon when its center is inside the polygon or on its
// edge; points and lines cover the cells they touch, as in Rasterize.
// Overlapping features each count the shared cells.
func ZonalStats(g *Grid, set *GeometrySet, t int) ([]ZoneSummary, error) {
	if err := checkCRS(set.CRS, g.CRS); err != nil {
		return nil, err
	}
	if t < 0 || t >= g.Steps() {
		return nil, &Error{Kind: IndexOutOfRange, Variable: g.Name,
			Err: fmt.Errorf("step %d, grid has %d", t, g.Steps())}
	}
	rows, cols := g.Rows(), g.Cols()
	off := t * rows * cols
	vals := make([][]float64, len(set.Features))
	cells := make([]int, len(set.Features))
	cellArea, areaErr := g.CellArea()
	area := make([]*unit.Unit, len(set.Features))
	weighted := make([]float64, len(set.Features))
	for i := range area {
		area[i] = unit.New(0, unit.Meter2)
	}
	add := func(i, cell int) {
		cells[i]++
		v := g.Data.Elements[off+cell]
		if g.IsNoData(v) {
			return
		}
		vals[i] = append(vals[i], v)
		if areaErr == nil {
			area[i].Add(cellArea[cell])
			weighted[i] += v * cellArea[cell].Value()
		}
	}

	tree := rtree.NewTree(25, 50)
	var polygons int
	for i, f := range set.Features {
		if p, ok := f.Geom.(geom.Polygonal); ok {
			tree.Insert(&zone{Polygonal: p, i: i})
			polygons++
			continue
		}
		scratch := sparse.ZerosDense(rows, cols)
		for j := range scratch.Elements {
			scratch.Elements[j] = math.NaN()
		}
		burnGeom(g, scratch, f.Geom, 1)
		for j, v := range scratch.Elements {
			if v == 1 {
				add(i, j)
			}
		}
	}

	if polygons > 0 {
		r0, r1, c0, c1 := g.cellRange(set.Bounds())
		for r := r0; r <= r1; r++ {
			for c := c0; c <= c1; c++ {
				p := g.CellCenter(r, c)
				for _, s := range tree.SearchIntersect(p.Bounds()) {
					z := s.(*zone)
					if p.Within(z.Polygonal) != geom.Outside {
						add(z.i, r*cols+c)
					}
				}
			}
		}
	}

	out := make([]ZoneSummary, len(set.Features))
	for i, f := range set.Features {
		out[i] = ZoneSummary{Feature: i, Attributes: f.Attributes, Cells: cells[i]}
		if s, err := summarize(vals[i]); err == nil {
			out[i].Summary = s
		}
		if a := area[i].Value(); a > 0 {
			out[i].Area = a
			out[i].AreaMean = weighted[i] / a
		}
	}
	return out, nil
}
