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

// Package netcdf reads and writes gridconv grids as CF NetCDF files.
package netcdf

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/gridconv"
)

// Reader reads grids from NetCDF files.
type Reader struct{}

// Kind returns gridconv.KindNetCDF.
func (Reader) Kind() gridconv.Kind { return gridconv.KindNetCDF }

// VariableInfo describes a variable in a NetCDF file.
type VariableInfo struct {
	Name       string
	Dimensions []string
	Shape      []int
	Units      string
	LongName   string
}

// Variables lists the variables in the file at path.
func Variables(path string) ([]VariableInfo, error) {
	ds, err := open(path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()
	var out []VariableInfo
	for _, v := range ds.variables() {
		out = append(out, VariableInfo{
			Name:       v,
			Dimensions: ds.dims(v),
			Shape:      ds.shape(v),
			Units:      attrString(ds, v, "units"),
			LongName:   attrString(ds, v, "long_name"),
		})
	}
	return out, nil
}

// Read reads the variable named by selector from the file at path.
// If selector is empty, the file must contain exactly one data variable
// with at least two dimensions.
func (Reader) Read(path, selector string) (*gridconv.Grid, error) {
	ds, err := open(path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()
	g, err := read(ds, selector)
	if err != nil {
		if e, ok := err.(*gridconv.Error); ok {
			if e.Path == "" {
				e.Path = path
			}
			return nil, e
		}
		return nil, &gridconv.Error{Kind: gridconv.CorruptSource, Path: path, Variable: selector, Err: err}
	}
	return g, nil
}

func read(ds dataset, selector string) (*gridconv.Grid, error) {
	name, err := selectVariable(ds, selector)
	if err != nil {
		return nil, err
	}
	fail := func(kind gridconv.ErrorKind, format string, args ...interface{}) error {
		return &gridconv.Error{Kind: kind, Variable: name, Err: fmt.Errorf(format, args...)}
	}

	dims, shape := ds.dims(name), ds.shape(name)
	vals, dtype, err := ds.values(name)
	if err != nil {
		return nil, fail(gridconv.CorruptSource, "%v", err)
	}
	// Squeeze length-1 dimensions such as a single vertical level.
	var sdims []string
	var sshape []int
	for i, l := range shape {
		if l == 1 && i < len(shape)-2 && !isTimeDim(ds, dims[i]) {
			continue
		}
		sdims, sshape = append(sdims, dims[i]), append(sshape, l)
	}
	if len(sshape) > 3 {
		return nil, fail(gridconv.UnsupportedFormat, "variable has dimensions %v; at most one besides y and x is supported", dims)
	}
	n := 1
	for _, l := range sshape {
		n *= l
	}
	if n != len(vals) {
		return nil, fail(gridconv.CorruptSource, "shape %v but %d values", sshape, len(vals))
	}
	rows, cols := sshape[len(sshape)-2], sshape[len(sshape)-1]
	ydim, xdim := sdims[len(sdims)-2], sdims[len(sdims)-1]

	h := gridconv.Header{
		Name:     name,
		DType:    dtype,
		Units:    attrString(ds, name, "units"),
		LongName: attrString(ds, name, "long_name"),
	}
	if len(sshape) == 3 {
		ta, err := timeAxis(ds, sdims[0], sshape[0])
		if err != nil {
			return nil, fail(gridconv.CorruptSource, "%v", err)
		}
		h.Time = ta
	}
	for _, a := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrFloat(ds, name, a); ok {
			h.NoData = &v
			break
		}
	}
	if d, ok := storedDType(ds, name, dtype, vals); ok {
		h.DType = d
	}

	gm := gridMapping(ds, name)
	gt, hasGT, err := geoTransformAttr(ds, gm)
	if err != nil {
		return nil, fail(gridconv.MissingGeoreference, "%v", err)
	}
	ys, yok := coordinate(ds, ydim, rows)
	flip := yok && rows > 1 && ys[rows-1] > ys[0]
	if !hasGT {
		xs, xok := coordinate(ds, xdim, cols)
		if !xok || !yok {
			return nil, fail(gridconv.MissingGeoreference, "no GeoTransform and no coordinate variables for %s, %s", ydim, xdim)
		}
		gt, err = fromCenters(xs, ys)
		if err != nil {
			return nil, fail(gridconv.MissingGeoreference, "%v", err)
		}
	} else if gt[5] > 0 {
		flip = false
	}
	if flip {
		flipRows(vals, rows, cols)
	}
	h.GeoTransform = gt

	crs, err := crsAttr(ds, gm)
	if err != nil {
		return nil, err
	}
	if crs == "" {
		if !isLatLon(ds, ydim, xdim) {
			return nil, fail(gridconv.MissingGeoreference, "no CRS attributes and %s, %s are not latitude and longitude", ydim, xdim)
		}
		crs = "EPSG:4326"
	}
	h.CRS = crs

	data := sparse.ZerosDense(append([]int(nil), sshape...)...)
	copy(data.Elements, vals)
	return gridconv.NewGrid(h, data)
}

// selectVariable returns the variable to read.
func selectVariable(ds dataset, selector string) (string, error) {
	vars := ds.variables()
	if selector != "" {
		for _, v := range vars {
			if v == selector {
				if len(ds.dims(v)) < 2 {
					return "", &gridconv.Error{Kind: gridconv.UnsupportedFormat, Variable: v,
						Err: fmt.Errorf("variable has %d dimensions, need at least 2", len(ds.dims(v)))}
				}
				return v, nil
			}
		}
		return "", &gridconv.Error{Kind: gridconv.SourceNotFound, Variable: selector,
			Err: fmt.Errorf("no such variable; file has %s", strings.Join(vars, ", "))}
	}
	bounds := make(map[string]bool)
	for _, v := range vars {
		if b := attrString(ds, v, "bounds"); b != "" {
			bounds[b] = true
		}
	}
	var candidates []string
	for _, v := range vars {
		dims := ds.dims(v)
		if len(dims) < 2 || bounds[v] {
			continue
		}
		candidates = append(candidates, v)
	}
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return "", &gridconv.Error{Kind: gridconv.UnsupportedFormat, Err: fmt.Errorf("no gridded variables")}
	}
	sort.Strings(candidates)
	return "", &gridconv.Error{Kind: gridconv.UnsupportedFormat,
		Err: fmt.Errorf("several gridded variables, choose one of %s", strings.Join(candidates, ", "))}
}

// gridMapping returns the name of the grid-mapping variable for v, or "".
func gridMapping(ds dataset, v string) string {
	vars := make(map[string]bool)
	for _, name := range ds.variables() {
		vars[name] = true
	}
	if gm := attrString(ds, v, "grid_mapping"); gm != "" {
		// Extended form: "crs: x y".
		gm = strings.TrimSpace(strings.SplitN(gm, ":", 2)[0])
		if vars[gm] {
			return gm
		}
	}
	for _, name := range []string{"crs", "spatial_ref"} {
		if vars[name] {
			return name
		}
	}
	return ""
}

func geoTransformAttr(ds dataset, gm string) (gridconv.GeoTransform, bool, error) {
	var gt gridconv.GeoTransform
	if gm == "" {
		return gt, false, nil
	}
	a, ok := ds.attr(gm, "GeoTransform")
	if !ok {
		return gt, false, nil
	}
	var vals []float64
	switch t := a.(type) {
	case string:
		for _, f := range strings.FieldsFunc(t, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' }) {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return gt, false, fmt.Errorf("GeoTransform attribute %q: %v", t, err)
			}
			vals = append(vals, v)
		}
	case []float64:
		vals = t
	}
	if len(vals) != 6 {
		return gt, false, fmt.Errorf("GeoTransform attribute has %d values, need 6", len(vals))
	}
	copy(gt[:], vals)
	return gt, true, nil
}

// crsAttrs are checked in order on the grid-mapping variable.
var crsAttrs = []string{"crs_id", "spatial_ref", "crs_wkt", "proj4", "proj4text", "epsg_code"}

func crsAttr(ds dataset, gm string) (string, error) {
	if gm == "" {
		return "", nil
	}
	var firstErr error
	for _, a := range crsAttrs {
		s := attrString(ds, gm, a)
		if s == "" {
			if v, ok := attrFloat(ds, gm, a); ok && a == "epsg_code" {
				s = fmt.Sprintf("EPSG:%d", int(v))
			} else {
				continue
			}
		}
		if a == "epsg_code" && !strings.Contains(s, ":") {
			s = "EPSG:" + s
		}
		c, err := gridconv.ParseCRS(s)
		if err == nil {
			return c.ID, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", firstErr
}

// coordinate reads the 1-D coordinate variable for dimension dim.
func coordinate(ds dataset, dim string, n int) ([]float64, bool) {
	for _, v := range ds.variables() {
		if v != dim {
			continue
		}
		d := ds.dims(v)
		if len(d) != 1 || d[0] != dim {
			return nil, false
		}
		vals, _, err := ds.values(v)
		if err != nil || len(vals) != n {
			return nil, false
		}
		return vals, true
	}
	return nil, false
}

// fromCenters derives a north-up geotransform from regularly spaced cell
// center coordinates.
func fromCenters(xs, ys []float64) (gridconv.GeoTransform, error) {
	dx, err := spacing(xs)
	if err != nil {
		return gridconv.GeoTransform{}, fmt.Errorf("x coordinate: %v", err)
	}
	dy, err := spacing(ys)
	if err != nil {
		return gridconv.GeoTransform{}, fmt.Errorf("y coordinate: %v", err)
	}
	dx, dy = math.Abs(dx), math.Abs(dy)
	x0 := math.Min(xs[0], xs[len(xs)-1]) - dx/2
	y0 := math.Max(ys[0], ys[len(ys)-1]) + dy/2
	return gridconv.GeoTransform{x0, dx, 0, y0, 0, -dy}, nil
}

// spacingTolerance is the relative deviation allowed between coordinate
// steps.
const spacingTolerance = 1e-6

func spacing(c []float64) (float64, error) {
	if len(c) < 2 {
		return 0, fmt.Errorf("need at least 2 values to find the cell size")
	}
	d := (c[len(c)-1] - c[0]) / float64(len(c)-1)
	if d == 0 {
		return 0, fmt.Errorf("zero spacing")
	}
	for i := 1; i < len(c); i++ {
		if math.Abs((c[i]-c[i-1])-d) > spacingTolerance*math.Abs(d) {
			return 0, fmt.Errorf("irregular spacing at index %d", i)
		}
	}
	return d, nil
}

func flipRows(vals []float64, rows, cols int) {
	plane := rows * cols
	for off := 0; off < len(vals); off += plane {
		for r := 0; r < rows/2; r++ {
			a := vals[off+r*cols : off+(r+1)*cols]
			b := vals[off+(rows-1-r)*cols : off+(rows-r)*cols]
			for c := range a {
				a[c], b[c] = b[c], a[c]
			}
		}
	}
}

func isLatLon(ds dataset, ydim, xdim string) bool {
	is := func(dim string, names []string, stdName, unitsPrefix string) bool {
		for _, n := range names {
			if strings.EqualFold(dim, n) {
				return true
			}
		}
		return attrString(ds, dim, "standard_name") == stdName ||
			strings.HasPrefix(attrString(ds, dim, "units"), unitsPrefix)
	}
	return is(ydim, []string{"lat", "latitude"}, "latitude", "degrees_n") &&
		is(xdim, []string{"lon", "longitude"}, "longitude", "degrees_e")
}

// timeAxis returns the time axis for the leading dimension, or nil if
// the dimension is not time.
func timeAxis(ds dataset, dim string, n int) (*gridconv.TimeAxis, error) {
	units := attrString(ds, dim, "units")
	if !gridconv.IsTimeUnits(units) {
		if isTimeDim(ds, dim) {
			return nil, fmt.Errorf("time dimension %s has invalid units %q", dim, units)
		}
		return nil, nil
	}
	vals, ok := coordinate(ds, dim, n)
	if !ok {
		return nil, fmt.Errorf("time dimension %s has no coordinate values", dim)
	}
	cal := attrString(ds, dim, "calendar")
	if cal == "" {
		cal = gridconv.CalendarStandard
	}
	return &gridconv.TimeAxis{Values: vals, Units: units, Calendar: cal}, nil
}

// storedDType returns the type named by the DTypeAttribute of v when the
// file widened that type to stored and every value fits it.
func storedDType(ds dataset, v string, stored gridconv.DType, vals []float64) (gridconv.DType, bool) {
	s := attrString(ds, v, DTypeAttribute)
	if s == "" {
		return 0, false
	}
	d, err := gridconv.ParseDType(s)
	if err != nil || d == stored || storageType(d) != stored {
		return 0, false
	}
	for _, x := range vals {
		if !d.Represents(x) {
			return 0, false
		}
	}
	return d, true
}

// isTimeDim reports whether dim is declared as time by its name, its
// axis or standard_name attribute, or its units.
func isTimeDim(ds dataset, dim string) bool {
	switch strings.ToLower(dim) {
	case "time", "t":
		return true
	}
	return strings.EqualFold(attrString(ds, dim, "axis"), "T") ||
		attrString(ds, dim, "standard_name") == "time" ||
		gridconv.IsTimeUnits(attrString(ds, dim, "units"))
}

func attrString(ds dataset, v, name string) string {
	a, ok := ds.attr(v, name)
	if !ok {
		return ""
	}
	s, _ := a.(string)
	return strings.TrimRight(s, "\x00")
}

func attrFloat(ds dataset, v, name string) (float64, bool) {
	a, ok := ds.attr(v, name)
	if !ok {
		return 0, false
	}
	f, ok := a.([]float64)
	if !ok || len(f) == 0 {
		return 0, false
	}
	return f[0], true
}
