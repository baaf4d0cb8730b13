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

// Package raster reads and writes gridconv grids with GDAL.
package raster

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/gridconv"
)

var setup sync.Once

// Setup registers the GDAL drivers. It is safe to call more than once;
// only the first call has an effect.
func Setup() {
	setup.Do(godal.RegisterAll)
}

// errLogger returns a GDAL error handler that turns failures into errors
// and logs everything else at debug level.
func errLogger(log logrus.FieldLogger) godal.ErrorHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(ec godal.ErrorCategory, code int, msg string) error {
		if ec >= godal.CE_Failure {
			return errors.New(msg)
		}
		log.WithFields(logrus.Fields{
			"gdal_code": code,
			"category":  int(ec),
		}).Debug(msg)
		return nil
	}
}

// extensions maps file extensions to GDAL drivers.
var extensions = map[string]godal.DriverName{
	".tif":  godal.GTiff,
	".tiff": godal.GTiff,
	".img":  godal.HFA,
	".vrt":  godal.VRT,
}

func dataType(d gridconv.DType) godal.DataType {
	switch d {
	case gridconv.Float32:
		return godal.Float32
	case gridconv.Int32:
		return godal.Int32
	case gridconv.Uint32:
		return godal.UInt32
	case gridconv.Int16:
		return godal.Int16
	case gridconv.Uint16:
		return godal.UInt16
	case gridconv.Uint8:
		return godal.Byte
	}
	return godal.Float64
}

func dtypeOf(d godal.DataType) (gridconv.DType, error) {
	switch d {
	case godal.Float64:
		return gridconv.Float64, nil
	case godal.Float32:
		return gridconv.Float32, nil
	case godal.Int32:
		return gridconv.Int32, nil
	case godal.UInt32:
		return gridconv.Uint32, nil
	case godal.Int16:
		return gridconv.Int16, nil
	case godal.UInt16:
		return gridconv.Uint16, nil
	case godal.Byte:
		return gridconv.Uint8, nil
	}
	return 0, fmt.Errorf("unsupported band data type %s", d)
}

// Reader reads grids from any raster format GDAL can open.
type Reader struct {
	Log logrus.FieldLogger
}

// Kind returns gridconv.KindRaster.
func (Reader) Kind() gridconv.Kind { return gridconv.KindRaster }

// Read reads the 1-based band given by selector from the dataset at
// path, or every band stacked along the leading axis if selector is
// empty.
func (r Reader) Read(path, selector string) (*gridconv.Grid, error) {
	Setup()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &gridconv.Error{Kind: gridconv.SourceNotFound, Path: path, Err: err}
		}
		return nil, &gridconv.Error{Kind: gridconv.CorruptSource, Path: path, Err: err}
	}
	ds, err := godal.Open(path, godal.RasterOnly(), godal.ErrLogger(errLogger(r.Log)))
	if err != nil {
		kind := gridconv.CorruptSource
		if _, known := extensions[strings.ToLower(filepath.Ext(path))]; !known {
			kind = gridconv.UnsupportedFormat
		}
		return nil, &gridconv.Error{Kind: kind, Path: path, Err: err}
	}
	defer ds.Close()

	g, err := read(ds, path, selector)
	if err != nil {
		if e, ok := err.(*gridconv.Error); ok {
			e.Path = path
			return nil, e
		}
		return nil, &gridconv.Error{Kind: gridconv.CorruptSource, Path: path, Variable: selector, Err: err}
	}
	return g, nil
}

func read(ds *godal.Dataset, path, selector string) (*gridconv.Grid, error) {
	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, &gridconv.Error{Kind: gridconv.UnsupportedFormat, Err: fmt.Errorf("dataset has no raster bands")}
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if selector != "" {
		i, err := strconv.Atoi(selector)
		if err != nil || i < 1 || i > len(bands) {
			return nil, &gridconv.Error{Kind: gridconv.IndexOutOfRange, Variable: selector,
				Err: fmt.Errorf("band selector must be a number between 1 and %d", len(bands))}
		}
		bands = bands[i-1 : i]
		name = fmt.Sprintf("%s_band%d", name, i)
	}

	st := ds.Structure()
	rows, cols := st.SizeY, st.SizeX
	dtype, err := dtypeOf(bands[0].Structure().DataType)
	if err != nil {
		return nil, &gridconv.Error{Kind: gridconv.UnsupportedFormat, Err: err}
	}
	h := gridconv.Header{Name: name, DType: dtype}
	if nd, ok := bands[0].NoData(); ok {
		h.NoData = &nd
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, &gridconv.Error{Kind: gridconv.MissingGeoreference, Err: err}
	}
	h.GeoTransform = gridconv.GeoTransform(gt)
	crs, err := datasetCRS(ds)
	if err != nil {
		return nil, err
	}
	h.CRS = crs

	plane := rows * cols
	shape := []int{rows, cols}
	if len(bands) > 1 {
		shape = []int{len(bands), rows, cols}
	}
	data := sparse.ZerosDense(shape...)
	for i, b := range bands {
		if err := b.Read(0, 0, data.Elements[i*plane:(i+1)*plane], cols, rows); err != nil {
			return nil, fmt.Errorf("reading band %d: %v", i+1, err)
		}
	}
	return gridconv.NewGrid(h, data)
}

// datasetCRS identifies the dataset's spatial reference as EPSG:nnnn when
// GDAL can, and otherwise returns its WKT.
func datasetCRS(ds *godal.Dataset) (string, error) {
	wkt := ds.Projection()
	if wkt == "" {
		return "", &gridconv.Error{Kind: gridconv.MissingGeoreference, Err: fmt.Errorf("dataset has no spatial reference")}
	}
	sr, err := godal.NewSpatialRefFromWKT(wkt)
	if err != nil {
		return "", &gridconv.Error{Kind: gridconv.InvalidCRS, Err: err}
	}
	defer sr.Close()
	if sr.AuthorityName("") != "EPSG" {
		sr.AutoIdentifyEPSG() // Failure leaves the authority empty.
	}
	if sr.AuthorityName("") == "EPSG" {
		id := "EPSG:" + sr.AuthorityCode("")
		if _, err := gridconv.ParseCRS(id); err == nil {
			return id, nil
		}
	}
	c, err := gridconv.ParseCRS(wkt)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// spatialRef returns a GDAL spatial reference for c. The caller must
// close it.
func spatialRef(c gridconv.CRS) (*godal.SpatialRef, error) {
	if code, ok := c.EPSG(); ok {
		return godal.NewSpatialRefFromEPSG(code)
	}
	if c.IsWKT() {
		return godal.NewSpatialRefFromWKT(c.ID)
	}
	return godal.NewSpatialRefFromProj4(c.Proj4())
}

// Writer writes grids with GDAL, one band per time step or band.
type Writer struct {
	Log logrus.FieldLogger
}

// Kind returns gridconv.KindRaster.
func (Writer) Kind() gridconv.Kind { return gridconv.KindRaster }

// driver returns the GDAL driver for path given an optional explicit
// driver name.
func driver(path, name string) (godal.DriverName, error) {
	d := godal.DriverName(name)
	if name == "" {
		var ok bool
		d, ok = extensions[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return "", fmt.Errorf("no raster driver for extension %q; set a driver", filepath.Ext(path))
		}
	}
	if strings.EqualFold(string(d), string(godal.VRT)) {
		return "", fmt.Errorf("VRT datasets reference other files and cannot hold grid values")
	}
	return d, nil
}

func creationOptions(d godal.DriverName, c gridconv.Compression) []string {
	if c == gridconv.CompressionNone {
		return nil
	}
	if d == godal.HFA {
		return []string{"COMPRESSED=YES"}
	}
	if c == gridconv.CompressionLZW {
		return []string{"COMPRESS=LZW"}
	}
	return []string{"COMPRESS=DEFLATE"}
}

// Write writes g to path.
func (w Writer) Write(g *gridconv.Grid, path string, opts gridconv.WriteOptions) error {
	Setup()
	fail := func(kind gridconv.ErrorKind, err error) error {
		return &gridconv.Error{Kind: kind, Path: path, Variable: g.Name, Err: err}
	}
	drv, err := driver(path, opts.Driver)
	if err != nil {
		return fail(gridconv.IncompatibleOptions, err)
	}
	if fi, err := os.Stat(filepath.Dir(path)); err != nil {
		return fail(gridconv.UnwritableTarget, err)
	} else if !fi.IsDir() {
		return fail(gridconv.UnwritableTarget, fmt.Errorf("%s is not a directory", filepath.Dir(path)))
	}
	plan, err := gridconv.PlanWrite(g, opts)
	if err != nil {
		if e, ok := err.(*gridconv.Error); ok {
			e.Path = path
		}
		return err
	}
	sr, err := spatialRef(g.CRS)
	if err != nil {
		return fail(gridconv.InvalidCRS, err)
	}
	defer sr.Close()

	rows, cols, steps := g.Rows(), g.Cols(), g.Steps()
	ds, err := godal.Create(drv, path, steps, dataType(plan.DType), cols, rows,
		godal.CreationOption(creationOptions(drv, opts.Compression)...))
	if err != nil {
		return fail(gridconv.UnwritableTarget, err)
	}
	if err := fill(ds, g, plan, sr); err != nil {
		ds.Close()
		os.Remove(path)
		return fail(gridconv.UnwritableTarget, err)
	}
	if err := ds.Close(); err != nil {
		os.Remove(path)
		return fail(gridconv.UnwritableTarget, err)
	}
	log := w.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{
		"path":   path,
		"driver": drv,
		"bands":  steps,
		"dtype":  plan.DType,
	}).Debug("wrote raster")
	return nil
}

func fill(ds *godal.Dataset, g *gridconv.Grid, plan *gridconv.WritePlan, sr *godal.SpatialRef) error {
	if err := ds.SetGeoTransform([6]float64(g.GeoTransform)); err != nil {
		return fmt.Errorf("setting geotransform: %v", err)
	}
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("setting spatial reference: %v", err)
	}
	rows, cols := g.Rows(), g.Cols()
	plane := rows * cols
	for i, b := range ds.Bands() {
		if plan.HasNoData {
			if err := b.SetNoData(plan.NoData); err != nil {
				return fmt.Errorf("setting nodata on band %d: %v", i+1, err)
			}
		}
		if err := b.Write(0, 0, plan.Values[i*plane:(i+1)*plane], cols, rows); err != nil {
			return fmt.Errorf("writing band %d: %v", i+1, err)
		}
	}
	return nil
}
