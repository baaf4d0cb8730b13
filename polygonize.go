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

	"github.com/ctessum/geom"
)

// Polygonize groups the 4-connected cells of step t that are not nodata
// and satisfy pred into polygons, holes included. A nil pred selects
// every valid cell. Regions are numbered from 1 in the raster order of
// their first cell. Each feature has the attributes "region", "cells"
// and, when every cell in the region has the same value, "value".
func Polygonize(g *Grid, t int, pred MaskPredicate) (*GeometrySet, error) {
	if t < 0 || t >= g.Steps() {
		return nil, &Error{Kind: IndexOutOfRange, Variable: g.Name,
			Err: fmt.Errorf("step %d, grid has %d", t, g.Steps())}
	}
	if pred == nil {
		pred = NotNoData
	}
	rows, cols := g.Rows(), g.Cols()
	n := rows * cols
	data := g.Data.Elements[t*n : (t+1)*n]

	sel := make([]bool, n)
	for i, v := range data {
		if g.IsNoData(v) {
			continue
		}
		ok, err := pred(v)
		if err != nil {
			return nil, fmt.Errorf("gridconv: polygonize: %w", err)
		}
		sel[i] = ok
	}

	labels := make([]int, n)
	var regions []*region
	var stack []int
	for i := range data {
		if !sel[i] || labels[i] != 0 {
			continue
		}
		reg := &region{id: len(regions) + 1, value: data[i], uniform: true, out: make(map[int][]int)}
		regions = append(regions, reg)
		labels[i] = reg.id
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			j := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			reg.cells++
			if !sameValue(data[j], reg.value) {
				reg.uniform = false
			}
			r, c := j/cols, j%cols
			for _, nb := range [4][2]int{{r - 1, c}, {r + 1, c}, {r, c - 1}, {r, c + 1}} {
				if nb[0] < 0 || nb[1] < 0 || nb[0] >= rows || nb[1] >= cols {
					continue
				}
				k := nb[0]*cols + nb[1]
				if sel[k] && labels[k] == 0 {
					labels[k] = reg.id
					stack = append(stack, k)
				}
			}
		}
	}

	// Boundary edges run with the region on their right in index space,
	// where rows increase downward.
	vid := func(r, c int) int { return r*(cols+1) + c }
	other := func(r, c, id int) bool {
		return r < 0 || c < 0 || r >= rows || c >= cols || labels[r*cols+c] != id
	}
	for i, id := range labels {
		if id == 0 {
			continue
		}
		reg := regions[id-1]
		r, c := i/cols, i%cols
		if other(r-1, c, id) {
			reg.addEdge(vid(r, c), vid(r, c+1))
		}
		if other(r, c+1, id) {
			reg.addEdge(vid(r, c+1), vid(r+1, c+1))
		}
		if other(r+1, c, id) {
			reg.addEdge(vid(r+1, c+1), vid(r+1, c))
		}
		if other(r, c-1, id) {
			reg.addEdge(vid(r+1, c), vid(r, c))
		}
	}

	features := make([]*Feature, len(regions))
	for i, reg := range regions {
		var shells, holes [][]geom.Point
		for _, ring := range reg.rings(cols + 1) {
			ring = dropCollinear(ring)
			world := make([]geom.Point, len(ring), len(ring)+1)
			for j, v := range ring {
				x, y := g.GeoTransform.Apply(float64(v[1]), float64(v[0]))
				world[j] = geom.Point{X: x, Y: y}
			}
			hole := indexArea(ring) < 0
			if a := ringArea(world); (a < 0) != hole {
				reverse(world)
			}
			world = append(world, world[0])
			if hole {
				holes = append(holes, world)
			} else {
				shells = append(shells, world)
			}
		}
		attrs := map[string]interface{}{"region": reg.id, "cells": reg.cells}
		if reg.uniform {
			attrs["value"] = reg.value
		}
		features[i] = &Feature{Geom: assemble(shells, holes), Attributes: attrs}
	}
	return NewGeometrySet(g.CRS.ID, features...)
}

type edge struct{ from, to int }

type region struct {
	id, cells int
	value     float64
	uniform   bool
	edges     []edge
	out       map[int][]int
}

func (reg *region) addEdge(from, to int) {
	reg.out[from] = append(reg.out[from], len(reg.edges))
	reg.edges = append(reg.edges, edge{from: from, to: to})
}

// rings chains the boundary edges into closed rings of (row, col)
// vertices. Where two rings touch at a vertex, the ring turns left so
// that it keeps following the same neighboring area.
func (reg *region) rings(stride int) [][][2]int {
	dir := func(e edge) (dr, dc int) {
		return e.to/stride - e.from/stride, e.to%stride - e.from%stride
	}
	used := make([]bool, len(reg.edges))
	var out [][][2]int
	for e0 := range reg.edges {
		if used[e0] {
			continue
		}
		used[e0] = true
		start := reg.edges[e0].from
		ring := [][2]int{{start / stride, start % stride}}
		cur := e0
		for {
			v := reg.edges[cur].to
			dr0, dc0 := dir(reg.edges[cur])
			next, best := -1, 2
			for _, e := range reg.out[v] {
				if used[e] && e != e0 {
					continue
				}
				dr1, dc1 := dir(reg.edges[e])
				// Cross product with x = col and y = row; negative is a
				// left turn on a north-up display.
				if cross := dc0*dr1 - dr0*dc1; cross < best {
					next, best = e, cross
				}
			}
			if next == e0 || next < 0 {
				break
			}
			used[next] = true
			ring = append(ring, [2]int{v / stride, v % stride})
			cur = next
		}
		out = append(out, ring)
	}
	return out
}

// dropCollinear removes vertices where the ring does not change
// direction.
func dropCollinear(ring [][2]int) [][2]int {
	n := len(ring)
	out := make([][2]int, 0, n)
	for i, v := range ring {
		p, q := ring[(i+n-1)%n], ring[(i+1)%n]
		if (v[0]-p[0])*(q[1]-v[1]) == (v[1]-p[1])*(q[0]-v[0]) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// indexArea returns twice the signed area of a ring of (row, col)
// vertices, positive for rings that have their interior on the right.
func indexArea(ring [][2]int) int {
	var a int
	for i, v := range ring {
		w := ring[(i+1)%len(ring)]
		a += v[1]*w[0] - w[1]*v[0]
	}
	return a
}

// ringArea returns the signed area of an open ring, positive when
// counter-clockwise.
func ringArea(r []geom.Point) float64 {
	var a float64
	for i, p := range r {
		q := r[(i+1)%len(r)]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}

func reverse(r []geom.Point) {
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
}

// assemble attaches each hole to the shell that contains it.
func assemble(shells, holes [][]geom.Point) geom.Geom {
	polys := make([]geom.Polygon, len(shells))
	for i, s := range shells {
		polys[i] = geom.Polygon{s}
	}
	for _, h := range holes {
		owner := 0
		if len(shells) > 1 {
		search:
			for _, p := range h {
				for i := range polys {
					switch p.Within(geom.Polygon{shells[i]}) {
					case geom.Inside:
						owner = i
						break search
					case geom.OnEdge:
						continue
					}
				}
			}
		}
		polys[owner] = append(polys[owner], h)
	}
	if len(polys) == 1 {
		return polys[0]
	}
	return geom.MultiPolygon(polys)
}
