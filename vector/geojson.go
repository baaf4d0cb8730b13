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
	"encoding/json"
	"fmt"
	"os"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/spatialmodel/gridconv"
)

type featureCollection struct {
	Type     string         `json:"type"`
	CRS      *namedCRS      `json:"crs,omitempty"`
	Features []*jsonFeature `json:"features"`
}

type namedCRS struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

type jsonFeature struct {
	Type       string                 `json:"type"`
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// ReadGeoJSON reads a GeoJSON FeatureCollection. The CRS is taken from
// the legacy crs member and defaults to EPSG:4326.
func ReadGeoJSON(path string) (*gridconv.GeometrySet, error) {
	fail := func(kind gridconv.ErrorKind, err error) error {
		return &gridconv.Error{Kind: kind, Path: path, Err: err}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fail(gridconv.SourceNotFound, err)
	}
	var fc featureCollection
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, fail(gridconv.CorruptSource, err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fail(gridconv.UnsupportedFormat, fmt.Errorf("GeoJSON type %q, need FeatureCollection", fc.Type))
	}
	crs := "EPSG:4326"
	if fc.CRS != nil && fc.CRS.Properties.Name != "" {
		crs = fc.CRS.Properties.Name
	}
	features := make([]*gridconv.Feature, len(fc.Features))
	for i, f := range fc.Features {
		g, err := decodeGeometry(f.Geometry)
		if err != nil {
			return nil, fail(gridconv.InvalidGeometry, fmt.Errorf("feature %d: %v", i, err))
		}
		features[i] = &gridconv.Feature{Geom: g, Attributes: f.Properties}
	}
	set, err := gridconv.NewGeometrySet(crs, features...)
	if err != nil {
		if e, ok := err.(*gridconv.Error); ok {
			e.Path = path
		}
		return nil, err
	}
	return set, nil
}

type multiGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func points(c [][]float64) ([]geom.Point, error) {
	out := make([]geom.Point, len(c))
	for i, p := range c {
		if len(p) < 2 {
			return nil, fmt.Errorf("position with %d coordinates", len(p))
		}
		out[i] = geom.Point{X: p[0], Y: p[1]}
	}
	return out, nil
}

// decodeGeometry decodes a GeoJSON geometry object. Single geometries
// are handled by geom's decoder; the multi-part types are decoded here.
func decodeGeometry(raw json.RawMessage) (geom.Geom, error) {
	var mg multiGeometry
	if err := json.Unmarshal(raw, &mg); err != nil {
		return nil, err
	}
	switch mg.Type {
	case "MultiPoint":
		var c [][]float64
		if err := json.Unmarshal(mg.Coordinates, &c); err != nil {
			return nil, err
		}
		p, err := points(c)
		return geom.MultiPoint(p), err
	case "MultiLineString":
		var c [][][]float64
		if err := json.Unmarshal(mg.Coordinates, &c); err != nil {
			return nil, err
		}
		out := make(geom.MultiLineString, len(c))
		for i, l := range c {
			p, err := points(l)
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	case "MultiPolygon":
		var c [][][][]float64
		if err := json.Unmarshal(mg.Coordinates, &c); err != nil {
			return nil, err
		}
		out := make(geom.MultiPolygon, len(c))
		for i, poly := range c {
			out[i] = make(geom.Polygon, len(poly))
			for j, r := range poly {
				p, err := points(r)
				if err != nil {
					return nil, err
				}
				out[i][j] = p
			}
		}
		return out, nil
	}
	return geojson.Decode(raw)
}

// encodeGeometry is the inverse of decodeGeometry.
func encodeGeometry(g geom.Geom) (*geojson.Geometry, error) {
	coords := func(p []geom.Point) [][]float64 {
		out := make([][]float64, len(p))
		for i, pt := range p {
			out[i] = []float64{pt.X, pt.Y}
		}
		return out
	}
	switch t := g.(type) {
	case *geom.Point:
		return geojson.ToGeoJSON(*t)
	case geom.MultiPoint:
		return &geojson.Geometry{Type: "MultiPoint", Coordinates: coords(t)}, nil
	case geom.MultiLineString:
		c := make([][][]float64, len(t))
		for i, l := range t {
			c[i] = coords(l)
		}
		return &geojson.Geometry{Type: "MultiLineString", Coordinates: c}, nil
	case geom.MultiPolygon:
		c := make([][][][]float64, len(t))
		for i, poly := range t {
			c[i] = make([][][]float64, len(poly))
			for j, r := range poly {
				c[i][j] = coords(r)
			}
		}
		return &geojson.Geometry{Type: "MultiPolygon", Coordinates: c}, nil
	}
	return geojson.ToGeoJSON(g)
}

// WriteGeoJSON writes set as a GeoJSON FeatureCollection. A crs member
// is written unless the CRS is EPSG:4326.
func WriteGeoJSON(set *gridconv.GeometrySet, path string) error {
	fc := featureCollection{Type: "FeatureCollection", Features: make([]*jsonFeature, len(set.Features))}
	if set.CRS.ID != "EPSG:4326" {
		fc.CRS = &namedCRS{Type: "name"}
		fc.CRS.Properties.Name = crsName(set.CRS)
	}
	for i, f := range set.Features {
		g, err := encodeGeometry(f.Geom)
		if err != nil {
			return &gridconv.Error{Kind: gridconv.IncompatibleOptions, Path: path, Err: fmt.Errorf("feature %d: %v", i, err)}
		}
		b, err := json.Marshal(g)
		if err != nil {
			return &gridconv.Error{Kind: gridconv.IncompatibleOptions, Path: path, Err: fmt.Errorf("feature %d: %v", i, err)}
		}
		props := f.Attributes
		if props == nil {
			props = map[string]interface{}{}
		}
		fc.Features[i] = &jsonFeature{Type: "Feature", Geometry: b, Properties: props}
	}
	b, err := json.Marshal(fc)
	if err != nil {
		return &gridconv.Error{Kind: gridconv.IncompatibleOptions, Path: path, Err: err}
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return &gridconv.Error{Kind: gridconv.UnwritableTarget, Path: path, Err: err}
	}
	return nil
}
