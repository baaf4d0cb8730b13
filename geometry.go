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
)

// Feature is a geometry with attributes.
type Feature struct {
	Geom       geom.Geom
	Attributes map[string]interface{}
}

// Bounds returns the bounds of the feature geometry, so features can be
// stored in a spatial index.
func (f *Feature) Bounds() *geom.Bounds { return f.Geom.Bounds() }

// GeometrySet is an ordered collection of features sharing one CRS.
type GeometrySet struct {
	Features []*Feature
	CRS      CRS
}

// NewGeometrySet validates features and returns them as a set in the
// coordinate reference system crs. Empty or invalid geometries cause an
// InvalidGeometry error; they are never dropped.
func NewGeometrySet(crs string, features ...*Feature) (*GeometrySet, error) {
	c, err := ParseCRS(crs)
	if err != nil {
		return nil, err
	}
	for i, f := range features {
		if f == nil {
			return nil, &Error{Kind: InvalidGeometry, Err: fmt.Errorf("feature %d is nil", i)}
		}
		if err := validGeom(f.Geom); err != nil {
			return nil, &Error{Kind: InvalidGeometry, Err: fmt.Errorf("feature %d: %v", i, err)}
		}
		if f.Attributes == nil {
			f.Attributes = make(map[string]interface{})
		}
	}
	return &GeometrySet{Features: features, CRS: c}, nil
}

// Len returns the number of features.
func (s *GeometrySet) Len() int { return len(s.Features) }

// Bounds returns the combined bounds of all features.
func (s *GeometrySet) Bounds() *geom.Bounds {
	b := geom.NewBounds()
	for _, f := range s.Features {
		b.Extend(f.Geom.Bounds())
	}
	return b
}

// Transform returns a copy of s in CRS to.
func (s *GeometrySet) Transform(to string) (*GeometrySet, error) {
	dst, err := ParseCRS(to)
	if err != nil {
		return nil, err
	}
	t, err := s.CRS.NewTransform(dst)
	if err != nil {
		return nil, err
	}
	out := &GeometrySet{Features: make([]*Feature, len(s.Features)), CRS: dst}
	for i, f := range s.Features {
		g, err := f.Geom.Transform(t)
		if err != nil {
			return nil, &Error{Kind: InvalidGeometry, Err: fmt.Errorf("transforming feature %d: %v", i, err)}
		}
		if err := validGeom(g); err != nil {
			return nil, &Error{Kind: InvalidGeometry, Err: fmt.Errorf("feature %d after transform: %v", i, err)}
		}
		attrs := make(map[string]interface{}, len(f.Attributes))
		for k, v := range f.Attributes {
			attrs[k] = v
		}
		out.Features[i] = &Feature{Geom: g, Attributes: attrs}
	}
	return out, nil
}

// Clip returns the parts of the features of s that fall within
// boundary, which must be in the CRS of s. Polygons are cut with the
// polygon intersection and lines with a line clip; points outside are
// removed. Features with nothing left are dropped. Attributes are kept.
func (s *GeometrySet) Clip(boundary geom.Polygonal) *GeometrySet {
	out := &GeometrySet{CRS: s.CRS}
	bb := boundary.Bounds()
	for _, f := range s.Features {
		if !f.Bounds().Overlaps(bb) {
			continue
		}
		if g := clipGeom(f.Geom, boundary); g != nil {
			out.Features = append(out.Features, &Feature{Geom: g, Attributes: f.Attributes})
		}
	}
	return out
}

// clipGeom returns the part of g within boundary, or nil if there is none.
func clipGeom(g geom.Geom, boundary geom.Polygonal) geom.Geom {
	switch t := g.(type) {
	case geom.Point:
		if t.Within(boundary) == geom.Outside {
			return nil
		}
		return t
	case *geom.Point:
		return clipGeom(*t, boundary)
	case geom.MultiPoint:
		var mp geom.MultiPoint
		for _, p := range t {
			if p.Within(boundary) != geom.Outside {
				mp = append(mp, p)
			}
		}
		if len(mp) == 0 {
			return nil
		}
		return mp
	case geom.Linear:
		ml, _ := t.Clip(boundary).(geom.MultiLineString)
		var keep geom.MultiLineString
		for _, l := range ml {
			if len(l) >= 2 {
				keep = append(keep, l)
			}
		}
		if len(keep) == 0 {
			return nil
		}
		return keep
	case geom.Polygonal:
		var keep geom.MultiPolygon
		for _, p := range t.Intersection(boundary).Polygons() {
			if len(p) > 0 && p.Area() > 0 {
				keep = append(keep, p)
			}
		}
		switch len(keep) {
		case 0:
			return nil
		case 1:
			return keep[0]
		}
		return keep
	}
	return nil
}

func finite(p geom.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

func validPoints(pts []geom.Point, min int, what string) error {
	if len(pts) < min {
		return fmt.Errorf("%s has %d points, needs at least %d", what, len(pts), min)
	}
	for _, p := range pts {
		if !finite(p) {
			return fmt.Errorf("%s has non-finite coordinate %v", what, p)
		}
	}
	return nil
}

// validRing checks a polygon ring. Rings may be stored open or closed;
// either way they need three distinct vertices.
func validRing(r []geom.Point) error {
	n := len(r)
	if n > 0 && r[0] == r[n-1] {
		n--
	}
	if n < 3 {
		return fmt.Errorf("ring has %d distinct points, needs at least 3 (4 when closed)", n)
	}
	return validPoints(r, 3, "ring")
}

func validGeom(g geom.Geom) error {
	switch t := g.(type) {
	case nil:
		return fmt.Errorf("empty geometry")
	case geom.Point:
		return validPoints([]geom.Point{t}, 1, "point")
	case *geom.Point:
		if t == nil {
			return fmt.Errorf("empty geometry")
		}
		return validPoints([]geom.Point{*t}, 1, "point")
	case geom.MultiPoint:
		return validPoints(t, 1, "multipoint")
	case geom.LineString:
		return validPoints(t, 2, "linestring")
	case geom.MultiLineString:
		if len(t) == 0 {
			return fmt.Errorf("empty multilinestring")
		}
		for _, l := range t {
			if err := validPoints(l, 2, "linestring"); err != nil {
				return err
			}
		}
		return nil
	case geom.Polygonal:
		polys := t.Polygons()
		if len(polys) == 0 {
			return fmt.Errorf("empty polygon")
		}
		for _, p := range polys {
			if len(p) == 0 {
				return fmt.Errorf("polygon has no rings")
			}
			for _, r := range p {
				if err := validRing(r); err != nil {
					return err
				}
			}
		}
		if a := t.Area(); !(a > 0) {
			return fmt.Errorf("polygon has zero area")
		}
		return nil
	}
	return fmt.Errorf("unsupported geometry type %T", g)
}
