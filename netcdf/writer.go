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

package netcdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/gridconv"
)

// Conventions is the value of the global Conventions attribute.
const Conventions = "CF-1.6"

// DTypeAttribute records the in-memory type of a variable whose type the
// classic format lacks, so that readers can restore it.
const DTypeAttribute = "gridconv_dtype"

// Writer writes grids as classic-format CF NetCDF files.
type Writer struct{}

// Kind returns gridconv.KindNetCDF.
func (Writer) Kind() gridconv.Kind { return gridconv.KindNetCDF }

// storageType returns the classic NetCDF type used to store d. Types
// the classic format lacks are widened without loss.
func storageType(d gridconv.DType) gridconv.DType {
	switch d {
	case gridconv.Uint32:
		return gridconv.Float64
	case gridconv.Uint16:
		return gridconv.Int32
	case gridconv.Uint8:
		return gridconv.Int16
	}
	return d
}

// buffer converts vals to a slice of the Go type cdf uses for d.
func buffer(d gridconv.DType, vals []float64) interface{} {
	switch d {
	case gridconv.Float32:
		b := make([]float32, len(vals))
		for i, v := range vals {
			b[i] = float32(v)
		}
		return b
	case gridconv.Int32:
		b := make([]int32, len(vals))
		for i, v := range vals {
			b[i] = int32(v)
		}
		return b
	case gridconv.Int16:
		b := make([]int16, len(vals))
		for i, v := range vals {
			b[i] = int16(v)
		}
		return b
	}
	return vals
}

// Write writes g to path. Compression is refused because the classic
// format does not support it.
func (Writer) Write(g *gridconv.Grid, path string, opts gridconv.WriteOptions) error {
	if opts.Compression != gridconv.CompressionNone {
		return &gridconv.Error{Kind: gridconv.IncompatibleOptions, Path: path, Variable: g.Name,
			Err: fmt.Errorf("%s compression is not available in the classic NetCDF format", opts.Compression)}
	}
	if fi, err := os.Stat(filepath.Dir(path)); err != nil {
		return &gridconv.Error{Kind: gridconv.UnwritableTarget, Path: path, Err: err}
	} else if !fi.IsDir() {
		return &gridconv.Error{Kind: gridconv.UnwritableTarget, Path: path, Err: fmt.Errorf("%s is not a directory", filepath.Dir(path))}
	}
	plan, err := gridconv.PlanWrite(g, opts)
	if err != nil {
		if e, ok := err.(*gridconv.Error); ok {
			e.Path = path
		}
		return err
	}

	h, name := header(g, plan)
	if errs := h.Check(); len(errs) > 0 {
		return &gridconv.Error{Kind: gridconv.IncompatibleOptions, Path: path, Variable: name, Err: errs[0]}
	}

	f, err := os.Create(path)
	if err != nil {
		return &gridconv.Error{Kind: gridconv.UnwritableTarget, Path: path, Err: err}
	}
	if err := write(f, h, g, plan, name); err != nil {
		f.Close()
		os.Remove(path)
		return &gridconv.Error{Kind: gridconv.UnwritableTarget, Path: path, Variable: name, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return &gridconv.Error{Kind: gridconv.UnwritableTarget, Path: path, Err: err}
	}
	return nil
}

// axes returns the dimension names of g's leading, y and x axes. The
// leading name is empty for 2-dimensional grids.
func axes(g *gridconv.Grid) (lead, y, x string) {
	y, x = "y", "x"
	if g.CRS.Geographic() {
		y, x = "lat", "lon"
	}
	switch {
	case g.Time != nil:
		lead = "time"
	case len(g.Data.Shape) == 3:
		lead = "band"
	}
	return lead, y, x
}

// gridMappingNames maps PROJ.4 projection names to CF grid_mapping_name
// values.
var gridMappingNames = map[string]string{
	"longlat": "latitude_longitude",
	"latlong": "latitude_longitude",
	"utm":     "transverse_mercator",
	"tmerc":   "transverse_mercator",
	"merc":    "mercator",
	"aea":     "albers_conical_equal_area",
	"lcc":     "lambert_conformal_conic",
	"laea":    "lambert_azimuthal_equal_area",
	"stere":   "polar_stereographic",
	"ortho":   "orthographic",
}

func header(g *gridconv.Grid, plan *gridconv.WritePlan) (*cdf.Header, string) {
	lead, ydim, xdim := axes(g)
	name := g.Name
	if name == "" {
		name = "data"
	}
	switch name {
	case "crs", lead, ydim, xdim:
		name += "_data"
	}
	dims := []string{ydim, xdim}
	lengths := []int{g.Rows(), g.Cols()}
	if lead != "" {
		dims = append([]string{lead}, dims...)
		lengths = append([]int{g.Steps()}, lengths...)
	}
	h := cdf.NewHeader(dims, lengths)
	h.AddAttribute("", "Conventions", Conventions)
	h.AddAttribute("", "source", "gridconv "+gridconv.Version)

	h.AddVariable("crs", []string{}, []int32{0})
	h.AddAttribute("crs", "crs_id", g.CRS.ID)
	if g.CRS.IsWKT() {
		h.AddAttribute("crs", "spatial_ref", g.CRS.ID)
		h.AddAttribute("crs", "crs_wkt", g.CRS.ID)
	} else {
		h.AddAttribute("crs", "spatial_ref", g.CRS.Proj4())
		h.AddAttribute("crs", "proj4", g.CRS.Proj4())
	}
	mapping := "unknown"
	if g.CRS.SR != nil {
		if m, ok := gridMappingNames[strings.ToLower(g.CRS.SR.Name)]; ok {
			mapping = m
		} else if g.CRS.SR.Name != "" {
			mapping = g.CRS.SR.Name
		}
	}
	h.AddAttribute("crs", "grid_mapping_name", mapping)
	if code, ok := g.CRS.EPSG(); ok {
		h.AddAttribute("crs", "epsg_code", fmt.Sprintf("EPSG:%d", code))
	}
	gt := g.GeoTransform
	h.AddAttribute("crs", "GeoTransform", fmt.Sprintf("%.17g %.17g %.17g %.17g %.17g %.17g", gt[0], gt[1], gt[2], gt[3], gt[4], gt[5]))

	switch lead {
	case "time":
		h.AddVariable("time", []string{"time"}, []float64{0})
		h.AddAttribute("time", "standard_name", "time")
		h.AddAttribute("time", "axis", "T")
		h.AddAttribute("time", "units", g.Time.Units)
		cal := g.Time.Calendar
		if cal == "" {
			cal = gridconv.CalendarStandard
		}
		h.AddAttribute("time", "calendar", cal)
	case "band":
		h.AddVariable("band", []string{"band"}, []int32{0})
		h.AddAttribute("band", "long_name", "band number")
	}

	h.AddVariable(ydim, []string{ydim}, []float64{0})
	h.AddVariable(xdim, []string{xdim}, []float64{0})
	if ydim == "lat" {
		h.AddAttribute(ydim, "standard_name", "latitude")
		h.AddAttribute(ydim, "long_name", "latitude")
		h.AddAttribute(ydim, "units", "degrees_north")
		h.AddAttribute(xdim, "standard_name", "longitude")
		h.AddAttribute(xdim, "long_name", "longitude")
		h.AddAttribute(xdim, "units", "degrees_east")
	} else {
		h.AddAttribute(ydim, "standard_name", "projection_y_coordinate")
		h.AddAttribute(ydim, "long_name", "y coordinate of projection")
		h.AddAttribute(ydim, "units", "m")
		h.AddAttribute(xdim, "standard_name", "projection_x_coordinate")
		h.AddAttribute(xdim, "long_name", "x coordinate of projection")
		h.AddAttribute(xdim, "units", "m")
	}
	h.AddAttribute(ydim, "axis", "Y")
	h.AddAttribute(xdim, "axis", "X")

	st := storageType(plan.DType)
	h.AddVariable(name, dims, buffer(st, []float64{0}))
	h.AddAttribute(name, "grid_mapping", "crs")
	if st != plan.DType {
		h.AddAttribute(name, DTypeAttribute, plan.DType.String())
	}
	if plan.HasNoData {
		h.AddAttribute(name, "_FillValue", buffer(st, []float64{plan.NoData}))
	}
	if g.Units != "" {
		h.AddAttribute(name, "units", g.Units)
	}
	if g.LongName != "" {
		h.AddAttribute(name, "long_name", g.LongName)
	}
	h.Define()
	return h, name
}

func write(f *os.File, h *cdf.Header, g *gridconv.Grid, plan *gridconv.WritePlan, name string) error {
	nc, err := cdf.Create(f, h)
	if err != nil {
		return err
	}
	put := func(v string, data interface{}, n int) error {
		w := nc.Writer(v, []int{0}, []int{n})
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("writing %s: %v", v, err)
		}
		return nil
	}
	lead, ydim, xdim := axes(g)
	switch lead {
	case "time":
		if err := put("time", g.Time.Values, g.Time.Len()); err != nil {
			return err
		}
	case "band":
		b := make([]int32, g.Steps())
		for i := range b {
			b[i] = int32(i + 1)
		}
		if err := put("band", b, len(b)); err != nil {
			return err
		}
	}
	ys := make([]float64, g.Rows())
	for r := range ys {
		ys[r] = g.CellCenter(r, 0).Y
	}
	xs := make([]float64, g.Cols())
	for c := range xs {
		xs[c] = g.CellCenter(0, c).X
	}
	if err := put(ydim, ys, len(ys)); err != nil {
		return err
	}
	if err := put(xdim, xs, len(xs)); err != nil {
		return err
	}

	shape := h.Lengths(name)
	begin := make([]int, len(shape))
	w := nc.Writer(name, begin, shape)
	if _, err := w.Write(buffer(storageType(plan.DType), plan.Values)); err != nil {
		return fmt.Errorf("writing %s: %v", name, err)
	}
	return nil
}
