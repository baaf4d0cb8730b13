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


package gridconvutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/gridconv"
	"github.com/spatialmodel/gridconv/convert"
	"github.com/spatialmodel/gridconv/netcdf"
	"github.com/spatialmodel/gridconv/vector"
	"gonum.org/v1/plot/vg"
)

// Convert converts src into dst. Either may be a blob storage URL, and
// src may also be an http(s) URL.
func Convert(ctx context.Context, log logrus.FieldLogger, src, dst string, o *ConvertOptions) error {
	st := newStager(log)
	defer st.close()
	return convertStaged(ctx, st, log, src, dst, o)
}

func convertStaged(ctx context.Context, st *stager, log logrus.FieldLogger, src, dst string, o *ConvertOptions) error {
	srcKind, dstKind, err := o.kinds()
	if err != nil {
		return err
	}
	if srcKind == gridconv.KindUnknown {
		srcKind = convert.KindOf(src)
	}
	if dstKind == gridconv.KindUnknown {
		dstKind = convert.KindOf(dst)
	}
	localSrc, err := st.input(ctx, src)
	if err != nil {
		return err
	}
	opts, err := o.options(ctx, st)
	if err != nil {
		return err
	}
	localDst, err := st.output(dst)
	if err != nil {
		return err
	}
	if err := convert.New(log).Convert(localSrc, srcKind, localDst, dstKind, opts); err != nil {
		return err
	}
	return st.flush(ctx)
}

func kindOf(path, override string) (gridconv.Kind, error) {
	if override != "" {
		return gridconv.ParseKind(override)
	}
	return convert.KindOf(path), nil
}

// Rasterize burns the vector features in src into the grid file dst.
func Rasterize(ctx context.Context, log logrus.FieldLogger, src, dst string, o *ConvertOptions) error {
	k, err := kindOf(src, o.From)
	if err != nil {
		return err
	}
	if k != gridconv.KindVector {
		return gridconv.Errorf(gridconv.IncompatibleOptions, src, "rasterize needs a vector source, not %v", k)
	}
	return Convert(ctx, log, src, dst, o)
}

// Polygonize traces the selected cells of the grid in src into polygons
// written to the vector file dst.
func Polygonize(ctx context.Context, log logrus.FieldLogger, src, dst string, o *ConvertOptions) error {
	k, err := kindOf(src, o.From)
	if err != nil {
		return err
	}
	if k == gridconv.KindVector {
		return gridconv.Errorf(gridconv.IncompatibleOptions, src, "polygonize needs a grid source")
	}
	if k, err = kindOf(dst, o.To); err != nil {
		return err
	}
	if k != gridconv.KindVector {
		return gridconv.Errorf(gridconv.IncompatibleOptions, dst, "polygonize writes vector data, not %v", k)
	}
	return Convert(ctx, log, src, dst, o)
}

func readGrid(ctx context.Context, st *stager, log logrus.FieldLogger, path, selector string) (*gridconv.Grid, error) {
	local, err := st.input(ctx, path)
	if err != nil {
		return nil, err
	}
	return convert.New(log).ReadGrid(local, convert.KindOf(path), selector)
}

// writeReport saves tables to the spreadsheet at path, if path is set.
func writeReport(ctx context.Context, st *stager, path string, tables ...*table) error {
	if path == "" {
		return nil
	}
	path, err := checkOutputFile(path)
	if err != nil {
		return err
	}
	local, err := st.output(path)
	if err != nil {
		return err
	}
	if err := saveReport(local, tables...); err != nil {
		return err
	}
	return st.flush(ctx)
}

// Variables lists the variables of a NetCDF file or the bands of a
// raster file.
func Variables(ctx context.Context, log logrus.FieldLogger, w io.Writer, path string) error {
	st := newStager(log)
	defer st.close()
	local, err := st.input(ctx, path)
	if err != nil {
		return err
	}
	t := &table{name: "variables", header: []string{"name", "dimensions", "shape", "units", "long_name"}}
	switch convert.KindOf(path) {
	case gridconv.KindNetCDF:
		vars, err := netcdf.Variables(local)
		if err != nil {
			return err
		}
		for _, v := range vars {
			t.rows = append(t.rows, []interface{}{v.Name, strings.Join(v.Dimensions, ","), shapeString(v.Shape), v.Units, v.LongName})
		}
	case gridconv.KindRaster:
		g, err := convert.New(log).ReadGrid(local, gridconv.KindRaster, "")
		if err != nil {
			return err
		}
		// Every band is read when no band is selected.
		for i := 0; i < g.Steps(); i++ {
			t.rows = append(t.rows, []interface{}{fmt.Sprintf("%d", i+1), "y,x", shapeString([]int{g.Rows(), g.Cols()}), g.Units, ""})
		}
	default:
		return gridconv.Errorf(gridconv.UnsupportedFormat, path, "variables can only be listed for NetCDF and raster files")
	}
	return t.write(w)
}

func shapeString(s []int) string {
	p := make([]string, len(s))
	for i, v := range s {
		p[i] = fmt.Sprint(v)
	}
	return strings.Join(p, "x")
}

// Stats prints summary statistics of every step of a grid.
func Stats(ctx context.Context, log logrus.FieldLogger, w io.Writer, path, selector, report string) error {
	st := newStager(log)
	defer st.close()
	g, err := readGrid(ctx, st, log, path, selector)
	if err != nil {
		return err
	}
	t, err := statsTable(g)
	if err != nil {
		return err
	}
	if err := t.write(w); err != nil {
		return err
	}
	return writeReport(ctx, st, report, t)
}

// Sample prints the value of every step of a grid at point (x, y),
// given in the grid's CRS.
func Sample(ctx context.Context, log logrus.FieldLogger, w io.Writer, path, selector string, x, y float64) error {
	st := newStager(log)
	defer st.close()
	g, err := readGrid(ctx, st, log, path, selector)
	if err != nil {
		return err
	}
	row, col, ok := g.Index(x, y)
	if !ok {
		return gridconv.Errorf(gridconv.IndexOutOfRange, path, "point (%g, %g) is outside the grid", x, y)
	}
	t := &table{name: "sample", header: []string{"step", "time", "row", "col", "value"}}
	for i := 0; i < g.Steps(); i++ {
		var when string
		if g.Time != nil {
			tm, err := g.TimeAt(i)
			if err != nil {
				return err
			}
			when = tm.Format(time.RFC3339)
		}
		var v interface{}
		if val, ok := g.ValueAt(x, y, i); ok {
			v = val
		}
		t.rows = append(t.rows, []interface{}{i, when, row, col, v})
	}
	return t.write(w)
}

// Aggregate combines grids with method and writes the result to dst.
// A single source has its time axis collapsed. Several sources, which
// must share one grid, are combined cell by cell and step by step.
func Aggregate(ctx context.Context, log logrus.FieldLogger, srcs []string, dst, method string, o *ConvertOptions) error {
	m, err := gridconv.ParseAggMethod(method)
	if err != nil {
		return err
	}
	if len(srcs) == 0 {
		return gridconv.Errorf(gridconv.IncompatibleOptions, dst, "aggregate needs at least one source")
	}
	opts, err := o.writeOptions()
	if err != nil {
		return err
	}
	st := newStager(log)
	defer st.close()
	grids, err := readGrids(ctx, st, log, srcs, o.Selector)
	if err != nil {
		return err
	}
	var agg *gridconv.Grid
	if len(grids) == 1 {
		agg, err = gridconv.Aggregate(grids[0], m)
	} else {
		agg, err = gridconv.Combine(grids, m)
	}
	if err != nil {
		return err
	}
	return writeStaged(ctx, st, log, agg, dst, o, opts)
}

// Mosaic merges the grids in srcs into one grid written to dst. Where
// sources overlap the last valid value wins. The output is in the CRS of
// the first source, at the configured resolution or at the cell size of
// the first source.
func Mosaic(ctx context.Context, log logrus.FieldLogger, srcs []string, dst string, o *ConvertOptions) error {
	if len(srcs) == 0 {
		return gridconv.Errorf(gridconv.IncompatibleOptions, dst, "mosaic needs at least one source")
	}
	st := newStager(log)
	defer st.close()
	opts, err := o.options(ctx, st)
	if err != nil {
		return err
	}
	grids, err := readGrids(ctx, st, log, srcs, o.Selector)
	if err != nil {
		return err
	}
	t, err := gridconv.MosaicTarget(grids, opts.Resolution[0], opts.Resolution[1])
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"sources": len(grids), "rows": t.Rows, "cols": t.Cols}).Info("mosaicking")
	g, err := gridconv.Mosaic(grids, t, opts.Resampling)
	if err != nil {
		return err
	}
	return writeStaged(ctx, st, log, g, dst, o, opts)
}

// Fishnet writes a polygon for every cell of a grid to the vector file
// dst. For a grid source the cells are those of the grid. For a vector
// source they cover the extent of its features at the configured
// resolution, optionally after reprojecting them, and each cell records
// whether it holds part of a feature.
func Fishnet(ctx context.Context, log logrus.FieldLogger, src, dst string, o *ConvertOptions) error {
	k, err := kindOf(dst, o.To)
	if err != nil {
		return err
	}
	if k != gridconv.KindVector {
		return gridconv.Errorf(gridconv.IncompatibleOptions, dst, "fishnet writes vector data, not %v", k)
	}
	if k, err = kindOf(src, o.From); err != nil {
		return err
	}
	st := newStager(log)
	defer st.close()
	opts, err := o.options(ctx, st)
	if err != nil {
		return err
	}
	var (
		t      gridconv.Target
		within *gridconv.GeometrySet
	)
	if k == gridconv.KindVector {
		local, err := st.input(ctx, src)
		if err != nil {
			return err
		}
		if within, err = vector.Read(local); err != nil {
			return err
		}
		if opts.ReprojectTo != "" {
			if within, err = within.Transform(opts.ReprojectTo); err != nil {
				return err
			}
		}
		if opts.Resolution[0] == 0 {
			return gridconv.Errorf(gridconv.IncompatibleOptions, src, "fishnet of vector data needs a resolution")
		}
		if within.Len() == 0 {
			return gridconv.Errorf(gridconv.InvalidGeometry, src, "no features to cover")
		}
		t, err = gridconv.TargetFromBounds(within.Bounds(), opts.Resolution[0], opts.Resolution[1], within.CRS.ID)
		if err != nil {
			return err
		}
	} else {
		g, err := readGrid(ctx, st, log, src, o.Selector)
		if err != nil {
			return err
		}
		t = gridconv.TargetOf(g)
	}
	set, err := gridconv.Fishnet(t, within)
	if err != nil {
		return err
	}
	local, err := st.output(dst)
	if err != nil {
		return err
	}
	if err := vector.Write(set, local); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"dst": dst, "cells": set.Len()}).Info("wrote fishnet")
	return st.flush(ctx)
}

func readGrids(ctx context.Context, st *stager, log logrus.FieldLogger, paths []string, selector string) ([]*gridconv.Grid, error) {
	grids := make([]*gridconv.Grid, len(paths))
	for i, p := range paths {
		g, err := readGrid(ctx, st, log, p, selector)
		if err != nil {
			return nil, err
		}
		grids[i] = g
	}
	return grids, nil
}

// writeStaged writes g to dst through st.
func writeStaged(ctx context.Context, st *stager, log logrus.FieldLogger, g *gridconv.Grid, dst string, o *ConvertOptions, opts convert.Options) error {
	_, dstKind, err := o.kinds()
	if err != nil {
		return err
	}
	if dstKind == gridconv.KindUnknown {
		dstKind = convert.KindOf(dst)
	}
	local, err := st.output(dst)
	if err != nil {
		return err
	}
	if err := convert.New(log).WriteGrid(g, local, dstKind, opts); err != nil {
		return err
	}
	return st.flush(ctx)
}

// Compare prints measures of agreement between an observed and a
// simulated grid.
func Compare(ctx context.Context, log logrus.FieldLogger, w io.Writer, observed, simulated, selector, report string) error {
	st := newStager(log)
	defer st.close()
	obs, err := readGrid(ctx, st, log, observed, selector)
	if err != nil {
		return err
	}
	sim, err := readGrid(ctx, st, log, simulated, selector)
	if err != nil {
		return err
	}
	a, err := gridconv.Compare(obs, sim)
	if err != nil {
		return err
	}
	t := agreementTable(a)
	if err := t.write(w); err != nil {
		return err
	}
	return writeReport(ctx, st, report, t)
}

// Zonal prints statistics of one step of a grid within each feature of
// a vector file.
func Zonal(ctx context.Context, log logrus.FieldLogger, w io.Writer, gridPath, zonesPath, selector string, step int, report string) error {
	st := newStager(log)
	defer st.close()
	g, err := readGrid(ctx, st, log, gridPath, selector)
	if err != nil {
		return err
	}
	local, err := st.input(ctx, zonesPath)
	if err != nil {
		return err
	}
	set, err := vector.Read(local)
	if err != nil {
		return err
	}
	zs, err := gridconv.ZonalStats(g, set, step)
	if err != nil {
		return err
	}
	t := zonalTable(zs)
	if err := t.write(w); err != nil {
		return err
	}
	return writeReport(ctx, st, report, t)
}

// Quicklook renders one step of a grid as a PNG image width inches
// wide.
func Quicklook(ctx context.Context, log logrus.FieldLogger, src, dst, selector string, step int, width float64) error {
	st := newStager(log)
	defer st.close()
	g, err := readGrid(ctx, st, log, src, selector)
	if err != nil {
		return err
	}
	dst, err = checkOutputFile(dst)
	if err != nil {
		return err
	}
	local, err := st.output(dst)
	if err != nil {
		return err
	}
	f, err := os.Create(local)
	if err != nil {
		return gridconv.Errorf(gridconv.UnwritableTarget, dst, "%v", err)
	}
	if err := quicklook(f, g, step, vg.Length(width)*vg.Inch); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return gridconv.Errorf(gridconv.UnwritableTarget, dst, "%v", err)
	}
	return st.flush(ctx)
}
