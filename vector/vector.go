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

// Package vector reads and writes gridconv geometry sets as shapefiles
// and GeoJSON.
package vector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spatialmodel/gridconv"
)

// Format is a vector file format.
type Format int

// Vector formats.
const (
	Unknown Format = iota
	Shapefile
	GeoJSON
)

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return Shapefile
	case ".geojson", ".json":
		return GeoJSON
	}
	return Unknown
}

// Read reads the shapefile or GeoJSON file at path.
func Read(path string) (*gridconv.GeometrySet, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &gridconv.Error{Kind: gridconv.SourceNotFound, Path: path, Err: err}
		}
		return nil, &gridconv.Error{Kind: gridconv.CorruptSource, Path: path, Err: err}
	}
	switch FormatOf(path) {
	case Shapefile:
		return ReadShapefile(path)
	case GeoJSON:
		return ReadGeoJSON(path)
	}
	return nil, &gridconv.Error{Kind: gridconv.UnsupportedFormat, Path: path,
		Err: fmt.Errorf("unknown vector extension %q", filepath.Ext(path))}
}

// Write writes set to path as a shapefile or GeoJSON depending on its
// extension.
func Write(set *gridconv.GeometrySet, path string) error {
	if fi, err := os.Stat(filepath.Dir(path)); err != nil {
		return &gridconv.Error{Kind: gridconv.UnwritableTarget, Path: path, Err: err}
	} else if !fi.IsDir() {
		return &gridconv.Error{Kind: gridconv.UnwritableTarget, Path: path, Err: fmt.Errorf("%s is not a directory", filepath.Dir(path))}
	}
	switch FormatOf(path) {
	case Shapefile:
		return WriteShapefile(set, path)
	case GeoJSON:
		return WriteGeoJSON(set, path)
	}
	return &gridconv.Error{Kind: gridconv.IncompatibleOptions, Path: path,
		Err: fmt.Errorf("unknown vector extension %q", filepath.Ext(path))}
}

// shapefileExts are the files making up a shapefile.
var shapefileExts = []string{".shp", ".shx", ".dbf", ".prj"}

// Siblings returns every file that makes up the dataset at path: the
// path itself, plus the .shx, .dbf and .prj files for a shapefile.
func Siblings(path string) []string {
	if FormatOf(path) != Shapefile {
		return []string{path}
	}
	base := strings.TrimSuffix(path, filepath.Ext(path))
	out := make([]string, len(shapefileExts))
	for i, ext := range shapefileExts {
		out[i] = base + ext
	}
	out[0] = path
	return out
}
