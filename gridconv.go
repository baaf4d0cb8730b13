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

// Package gridconv holds the in-memory model of gridded geospatial data
// and the operations that move it between grids and vector geometries.
// Format specific readers and writers live in the netcdf, raster and
// vector subpackages; the convert package ties them together.
package gridconv

import "fmt"

// Version gives the version number.
const Version = "1.0.0"

// Kind tags a family of file formats.
type Kind int

// Format kinds.
const (
	KindUnknown Kind = iota
	KindNetCDF
	KindRaster
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindNetCDF:
		return "netcdf"
	case KindRaster:
		return "raster"
	case KindVector:
		return "vector"
	}
	return "unknown"
}

// ParseKind returns the Kind named by s ("netcdf", "raster" or "vector").
func ParseKind(s string) (Kind, error) {
	switch s {
	case "netcdf", "nc":
		return KindNetCDF, nil
	case "raster", "gdal":
		return KindRaster, nil
	case "vector", "shp", "shapefile":
		return KindVector, nil
	}
	return KindUnknown, &Error{Kind: UnsupportedFormat, Err: fmt.Errorf("unknown format kind %q", s)}
}

// Reader populates a Grid from a file.
// selector names the NetCDF variable or raster band to read; an empty
// selector lets the implementation choose.
type Reader interface {
	Kind() Kind
	Read(path, selector string) (*Grid, error)
}

// Writer serializes a Grid to a file.
type Writer interface {
	Kind() Kind
	Write(g *Grid, path string, opts WriteOptions) error
}
