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

package convert

import (
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/spatialmodel/gridconv"
)

// Options control a conversion. The zero value copies the source
// unchanged into the destination format.
type Options struct {
	// Selector names the NetCDF variable or the 1-based raster band to
	// read.
	Selector string

	Resampling gridconv.Resampling

	// Resolution is the destination cell size (x, y). Zero keeps the
	// source resolution. For vector sources without a Template it sets
	// the rasterization cell size.
	Resolution [2]float64

	// ReprojectTo is the identifier of the destination CRS.
	ReprojectTo string

	Compression gridconv.Compression
	DType       *gridconv.DType
	NoData      *float64
	Driver      string

	// Clip limits the output to cells (or features) within these bounds.
	Clip *geom.Bounds

	// ClipPolygon sets cells outside the polygon to nodata.
	ClipPolygon geom.Polygonal

	// Mask sets cells for which it returns true to nodata.
	Mask gridconv.MaskPredicate

	// Burn gives the value burned for each feature when rasterizing.
	// The default burns 1.
	Burn gridconv.BurnFunc

	// Template is the path of a grid file whose geometry is used as the
	// rasterization target.
	Template string

	// Predicate selects the cells that are polygonized. The default
	// selects every valid cell.
	Predicate gridconv.MaskPredicate

	// Step is the time step or band that is polygonized.
	Step int
}

func (o Options) writeOptions() gridconv.WriteOptions {
	return gridconv.WriteOptions{
		Compression: o.Compression,
		DType:       o.DType,
		NoData:      o.NoData,
		Driver:      o.Driver,
	}
}

// hasWriteOptions reports whether any grid write option is set.
func (o Options) hasWriteOptions() bool {
	return o.Compression != gridconv.CompressionNone || o.DType != nil || o.Driver != ""
}

var extensionKinds = map[string]gridconv.Kind{
	".nc":      gridconv.KindNetCDF,
	".nc4":     gridconv.KindNetCDF,
	".cdf":     gridconv.KindNetCDF,
	".tif":     gridconv.KindRaster,
	".tiff":    gridconv.KindRaster,
	".img":     gridconv.KindRaster,
	".shp":     gridconv.KindVector,
	".geojson": gridconv.KindVector,
	".json":    gridconv.KindVector,
}

// KindOf returns the format kind implied by the extension of path, or
// gridconv.KindUnknown.
func KindOf(path string) gridconv.Kind {
	return extensionKinds[strings.ToLower(filepath.Ext(path))]
}
