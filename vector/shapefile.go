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

package vector

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
	"github.com/spatialmodel/gridconv"
	"github.com/spf13/cast"
)

// ReadShapefile reads a shapefile and the CRS in its .prj sidecar.
func ReadShapefile(path string) (*gridconv.GeometrySet, error) {
	base := strings.TrimSuffix(path, ".shp")
	b, err := os.ReadFile(base + ".prj")
	if err != nil {
		return nil, &gridconv.Error{Kind: gridconv.MissingGeoreference, Path: path, Err: err}
	}
	crs, err := gridconv.ParseCRS(string(b))
	if err != nil {
		if e, ok := err.(*gridconv.Error); ok {
			e.Path = path
		}
		return nil, err
	}

	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, &gridconv.Error{Kind: gridconv.CorruptSource, Path: path, Err: err}
	}
	defer d.Close()

	fields := d.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(bytes.Trim(f.Name[:], "\x00"))
	}
	var features []*gridconv.Feature
	for {
		g, vals, more := d.DecodeRowFields(names...)
		if !more {
			break
		}
		attrs := make(map[string]interface{}, len(names))
		for i, f := range fields {
			attrs[names[i]] = fieldValue(f, vals[names[i]])
		}
		features = append(features, &gridconv.Feature{Geom: g, Attributes: attrs})
	}
	if err := d.Error(); err != nil {
		return nil, &gridconv.Error{Kind: gridconv.CorruptSource, Path: path, Err: err}
	}
	set, err := gridconv.NewGeometrySet(crs.ID, features...)
	if err != nil {
		if e, ok := err.(*gridconv.Error); ok {
			e.Path = path
		}
		return nil, err
	}
	return set, nil
}

// fieldValue converts a DBF text value to int, float64 or string
// according to the field definition.
func fieldValue(f goshp.Field, s string) interface{} {
	s = strings.TrimSpace(strings.Trim(s, "\x00"))
	switch f.Fieldtype {
	case 'N', 'F':
		if f.Precision == 0 {
			if v, err := strconv.Atoi(s); err == nil {
				return v
			}
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
		return nil
	}
	return s
}

// field describes a DBF column inferred from feature attributes.
type field struct {
	key string
	def goshp.Field
	// kind is 'N' for integers, 'F' for floats or 'C' for text.
	kind byte
}

const (
	maxFieldName   = 10
	floatLength    = 24
	floatPrecision = 12
	maxStringLen   = 254
)

// inferFields chooses a DBF column for every attribute key, in sorted
// order. Names are cut to the DBF limit and made unique.
func inferFields(features []*gridconv.Feature) []field {
	kinds := make(map[string]byte)
	lengths := make(map[string]int)
	for _, f := range features {
		for k, v := range f.Attributes {
			k0 := kinds[k]
			switch v.(type) {
			case nil:
				if k0 == 0 {
					kinds[k] = 'N'
				}
			case int, int8, int16, int32, int64, uint8, uint16, uint32:
				if k0 == 0 {
					kinds[k] = 'N'
				}
			case float32, float64:
				if k0 != 'C' {
					kinds[k] = 'F'
				}
			default:
				kinds[k] = 'C'
				if l := len(cast.ToString(v)); l > lengths[k] {
					lengths[k] = l
				}
			}
		}
	}
	keys := make([]string, 0, len(kinds))
	for k := range kinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	used := make(map[string]bool)
	out := make([]field, len(keys))
	for i, k := range keys {
		name := k
		if len(name) > maxFieldName {
			name = name[:maxFieldName]
		}
		for j := 1; used[strings.ToLower(name)]; j++ {
			suffix := strconv.Itoa(j)
			n := k
			if len(n) > maxFieldName-len(suffix) {
				n = n[:maxFieldName-len(suffix)]
			}
			name = n + suffix
		}
		used[strings.ToLower(name)] = true
		fd := field{key: k, kind: kinds[k]}
		switch fd.kind {
		case 'N':
			fd.def = goshp.NumberField(name, 10)
		case 'F':
			fd.def = goshp.FloatField(name, floatLength, floatPrecision)
		default:
			l := lengths[k]
			if l < 1 {
				l = 1
			} else if l > maxStringLen {
				l = maxStringLen
			}
			fd.def = goshp.StringField(name, uint8(l))
		}
		out[i] = fd
	}
	return out
}

// value returns v in the Go type the DBF writer expects for fd.
func (fd field) value(v interface{}) interface{} {
	switch fd.kind {
	case 'N':
		return cast.ToInt(v)
	case 'F':
		return cast.ToFloat64(v)
	}
	return cast.ToString(v)
}

// shapeType returns the shapefile type that holds g, and g converted to
// a geometry the shapefile encoder supports.
func shapeType(g geom.Geom) (goshp.ShapeType, geom.Geom, error) {
	switch t := g.(type) {
	case geom.Point:
		return goshp.POINT, t, nil
	case *geom.Point:
		return goshp.POINT, *t, nil
	case geom.MultiPoint:
		return goshp.MULTIPOINT, t, nil
	case geom.LineString:
		return goshp.POLYLINE, geom.MultiLineString{t}, nil
	case geom.MultiLineString:
		return goshp.POLYLINE, t, nil
	case geom.Polygon:
		return goshp.POLYGON, t, nil
	case geom.MultiPolygon:
		var rings geom.Polygon
		for _, p := range t {
			rings = append(rings, p...)
		}
		return goshp.POLYGON, rings, nil
	}
	return goshp.NULL, nil, fmt.Errorf("geometry type %T cannot be stored in a shapefile", g)
}

// WriteShapefile writes set as a shapefile with a .prj sidecar. Every
// feature must have the same kind of geometry.
func WriteShapefile(set *gridconv.GeometrySet, path string) error {
	fail := func(kind gridconv.ErrorKind, err error) error {
		return &gridconv.Error{Kind: kind, Path: path, Err: err}
	}
	if len(set.Features) == 0 {
		return fail(gridconv.IncompatibleOptions, fmt.Errorf("a shapefile needs at least one feature"))
	}
	geoms := make([]geom.Geom, len(set.Features))
	var st goshp.ShapeType
	for i, f := range set.Features {
		t, g, err := shapeType(f.Geom)
		if err != nil {
			return fail(gridconv.IncompatibleOptions, err)
		}
		if i > 0 && t != st {
			return fail(gridconv.IncompatibleOptions, fmt.Errorf("feature %d has shape type %d, earlier features have %d", i, t, st))
		}
		st, geoms[i] = t, g
	}

	fields := inferFields(set.Features)
	defs := make([]goshp.Field, len(fields))
	for i, f := range fields {
		defs[i] = f.def
	}
	e, err := shp.NewEncoderFromFields(path, st, defs...)
	if err != nil {
		return fail(gridconv.UnwritableTarget, err)
	}
	for i, f := range set.Features {
		vals := make([]interface{}, len(fields))
		for j, fd := range fields {
			vals[j] = fd.value(f.Attributes[fd.key])
		}
		if err := e.EncodeFields(geoms[i], vals...); err != nil {
			e.Close()
			removeAll(path)
			return fail(gridconv.UnwritableTarget, fmt.Errorf("feature %d: %v", i, err))
		}
	}
	e.Close()
	base := strings.TrimSuffix(path, ".shp")
	if err := os.WriteFile(base+".prj", []byte(prj(set.CRS)), 0644); err != nil {
		removeAll(path)
		return fail(gridconv.UnwritableTarget, err)
	}
	return nil
}

func removeAll(path string) {
	for _, p := range Siblings(path) {
		os.Remove(p)
	}
}
