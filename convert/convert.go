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

// Package convert moves gridded and vector data between file formats,
// optionally clipping, masking, resampling and reprojecting it on the
// way.
package convert

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/gridconv"
	"github.com/spatialmodel/gridconv/netcdf"
	"github.com/spatialmodel/gridconv/raster"
	"github.com/spatialmodel/gridconv/vector"
)

// Converter converts files using the readers and writers registered
// for each format kind.
type Converter struct {
	Log logrus.FieldLogger

	readers map[gridconv.Kind]gridconv.Reader
	writers map[gridconv.Kind]gridconv.Writer
}

// New returns a Converter with the NetCDF and GDAL raster formats
// registered. If log is nil the standard logger is used.
func New(log logrus.FieldLogger) *Converter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Converter{Log: log}
	c.Register(netcdf.Reader{}, netcdf.Writer{})
	c.Register(raster.Reader{Log: log}, raster.Writer{Log: log})
	return c
}

// Register adds a grid reader and writer. Either may be nil. A later
// registration for the same kind replaces an earlier one.
func (c *Converter) Register(r gridconv.Reader, w gridconv.Writer) {
	if c.readers == nil {
		c.readers = make(map[gridconv.Kind]gridconv.Reader)
		c.writers = make(map[gridconv.Kind]gridconv.Writer)
	}
	if r != nil {
		c.readers[r.Kind()] = r
	}
	if w != nil {
		c.writers[w.Kind()] = w
	}
}

// Convert converts src to dst with a default Converter.
func Convert(src string, srcKind gridconv.Kind, dst string, dstKind gridconv.Kind, opts Options) error {
	return New(nil).Convert(src, srcKind, dst, dstKind, opts)
}

// state is the data handed from one stage to the next. Exactly one of
// grid and set is non-nil after the read stage.
type state struct {
	grid *gridconv.Grid
	set  *gridconv.GeometrySet
}

// stageFunc performs one stage of a conversion.
type stageFunc func(s *state) error

type step struct {
	stage Stage
	path  string
	run   stageFunc
}

// Convert reads src, applies the processing requested in opts and
// writes the result to dst. A kind of gridconv.KindUnknown is inferred
// from the file extension. Nothing is written to dst unless every stage
// succeeds. Errors are returned as *ConversionFailed.
func (c *Converter) Convert(src string, srcKind gridconv.Kind, dst string, dstKind gridconv.Kind, opts Options) error {
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	if srcKind == gridconv.KindUnknown {
		srcKind = KindOf(src)
	}
	if dstKind == gridconv.KindUnknown {
		dstKind = KindOf(dst)
	}
	if srcKind == gridconv.KindUnknown {
		return &ConversionFailed{Stage: StageRead, Path: src, Err: &gridconv.Error{Kind: gridconv.UnsupportedFormat, Path: src,
			Err: fmt.Errorf("cannot tell the format of %s from its extension", filepath.Base(src))}}
	}
	if dstKind == gridconv.KindUnknown {
		return &ConversionFailed{Stage: StageWrite, Path: dst, Err: &gridconv.Error{Kind: gridconv.UnsupportedFormat, Path: dst,
			Err: fmt.Errorf("cannot tell the format of %s from its extension", filepath.Base(dst))}}
	}

	log := c.Log.WithFields(logrus.Fields{"src": src, "dst": dst})
	start := time.Now()
	s := new(state)
	for _, st := range c.plan(src, srcKind, dst, dstKind, opts) {
		stageStart := time.Now()
		if err := st.run(s); err != nil {
			log.WithFields(logrus.Fields{"stage": st.stage, "error": err}).Debug("stage failed")
			return &ConversionFailed{Stage: st.stage, Path: st.path, Err: err}
		}
		log.WithFields(s.fields()).WithFields(logrus.Fields{
			"stage":    st.stage,
			"duration": time.Since(stageStart),
		}).Debug("stage complete")
	}
	log.WithField("duration", time.Since(start)).Info("conversion complete")
	return nil
}

func (s *state) fields() logrus.Fields {
	if s.grid != nil {
		return logrus.Fields{"rows": s.grid.Rows(), "cols": s.grid.Cols(), "steps": s.grid.Steps(), "crs": s.grid.CRS.ID}
	}
	if s.set != nil {
		return logrus.Fields{"features": s.set.Len(), "crs": s.set.CRS.ID}
	}
	return logrus.Fields{}
}

// plan returns the stages needed to get from srcKind to dstKind.
func (c *Converter) plan(src string, srcKind gridconv.Kind, dst string, dstKind gridconv.Kind, opts Options) []step {
	var steps []step
	add := func(stage Stage, path string, f stageFunc) {
		steps = append(steps, step{stage: stage, path: path, run: f})
	}
	if srcKind == gridconv.KindVector {
		add(StageRead, src, readVector(src))
	} else {
		add(StageRead, src, c.readGrid(src, srcKind, opts.Selector))
	}
	if opts.Clip != nil || opts.ClipPolygon != nil || opts.Mask != nil {
		add(StageMask, src, mask(opts))
	}
	if srcKind == gridconv.KindVector {
		if opts.ReprojectTo != "" {
			add(StageReproject, src, transform(opts.ReprojectTo))
		}
		if dstKind != gridconv.KindVector {
			add(StageRasterize, src, c.rasterize(dst, opts))
		}
	} else {
		if opts.Resolution != [2]float64{} {
			add(StageResample, src, resample(opts))
		}
		if opts.ReprojectTo != "" {
			add(StageReproject, src, reproject(opts))
		}
		if dstKind == gridconv.KindVector {
			add(StagePolygonize, src, polygonize(opts))
		}
	}
	add(StageWrite, dst, c.write(dst, dstKind, opts))
	return steps
}

func (c *Converter) readGrid(path string, kind gridconv.Kind, selector string) stageFunc {
	return func(s *state) error {
		r, ok := c.readers[kind]
		if !ok {
			return &gridconv.Error{Kind: gridconv.UnsupportedFormat, Path: path, Err: fmt.Errorf("no reader for %s files", kind)}
		}
		g, err := r.Read(path, selector)
		if err != nil {
			return err
		}
		s.grid = g
		return nil
	}
}

func readVector(path string) stageFunc {
	return func(s *state) error {
		set, err := vector.Read(path)
		if err != nil {
			return err
		}
		s.set = set
		return nil
	}
}

// mask applies the clip bounds, clip polygon and mask predicate. For
// geometry sets, features are cut to the clip bounds and the clip
// polygon, and features with nothing left inside are dropped.
func mask(opts Options) stageFunc {
	return func(s *state) error {
		if s.set != nil {
			if opts.Mask != nil {
				return &gridconv.Error{Kind: gridconv.IncompatibleOptions, Err: fmt.Errorf("a value mask cannot be applied to vector data")}
			}
			if opts.Clip != nil {
				s.set = s.set.Clip(opts.Clip)
			}
			if opts.ClipPolygon != nil {
				s.set = s.set.Clip(opts.ClipPolygon)
			}
			return nil
		}
		g := s.grid
		if opts.Clip != nil {
			var err error
			if g, err = g.Clip(opts.Clip); err != nil {
				return err
			}
		}
		if opts.ClipPolygon != nil {
			g.MaskPolygon(opts.ClipPolygon)
		}
		if opts.Mask != nil {
			if _, err := g.Mask(opts.Mask); err != nil {
				return &gridconv.Error{Kind: gridconv.IncompatibleOptions, Variable: g.Name, Err: err}
			}
		}
		s.grid = g
		return nil
	}
}

// sameSize reports whether a and b differ by less than one part in 1e9.
func sameSize(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

// resample changes the cell size of the grid. It does nothing when the
// grid is going to be reprojected into a different CRS, since
// reprojection applies the resolution itself.
func resample(opts Options) stageFunc {
	return func(s *state) error {
		if opts.ReprojectTo != "" {
			crs, err := gridconv.ParseCRS(opts.ReprojectTo)
			if err != nil || !crs.Equal(s.grid.CRS) {
				return nil
			}
		}
		dx, dy := s.grid.CellSize()
		if sameSize(dx, opts.Resolution[0]) && sameSize(dy, opts.Resolution[1]) {
			return nil
		}
		g, err := gridconv.Resample(s.grid, opts.Resolution[0], opts.Resolution[1], opts.Resampling)
		if err != nil {
			return err
		}
		s.grid = g
		return nil
	}
}

func reproject(opts Options) stageFunc {
	return func(s *state) error {
		crs, err := gridconv.ParseCRS(opts.ReprojectTo)
		if err != nil {
			return err
		}
		if crs.Equal(s.grid.CRS) {
			return nil
		}
		g, err := gridconv.Reproject(s.grid, opts.ReprojectTo, opts.Resolution, opts.Resampling)
		if err != nil {
			return err
		}
		s.grid = g
		return nil
	}
}

func transform(to string) stageFunc {
	return func(s *state) error {
		crs, err := gridconv.ParseCRS(to)
		if err != nil {
			return err
		}
		if crs.Equal(s.set.CRS) {
			return nil
		}
		set, err := s.set.Transform(to)
		if err != nil {
			return err
		}
		s.set = set
		return nil
	}
}

// rasterize burns the geometry set onto the template grid, or onto a
// grid covering the set's bounds at the requested resolution.
func (c *Converter) rasterize(dst string, opts Options) stageFunc {
	return func(s *state) error {
		var t gridconv.Target
		switch {
		case opts.Template != "":
			kind := KindOf(opts.Template)
			r, ok := c.readers[kind]
			if !ok {
				return &gridconv.Error{Kind: gridconv.IncompatibleOptions, Path: opts.Template,
					Err: fmt.Errorf("template must be a grid file")}
			}
			tmpl, err := r.Read(opts.Template, "")
			if err != nil {
				return err
			}
			t = gridconv.TargetOf(tmpl)
		case opts.Resolution[0] > 0 && opts.Resolution[1] > 0:
			var err error
			t, err = gridconv.TargetFromBounds(s.set.Bounds(), opts.Resolution[0], opts.Resolution[1], s.set.CRS.ID)
			if err != nil {
				return err
			}
		default:
			return &gridconv.Error{Kind: gridconv.IncompatibleOptions,
				Err: fmt.Errorf("rasterizing needs a template grid or a resolution")}
		}
		fill := gridconv.Float64.DefaultNoData()
		if opts.NoData != nil {
			fill = *opts.NoData
		}
		burn := opts.Burn
		if burn == nil {
			burn = gridconv.BurnConstant(1)
		}
		g, err := gridconv.RasterizeGrid(s.set, t, burn, fill)
		if err != nil {
			return err
		}
		g.Name = strings.TrimSuffix(filepath.Base(dst), filepath.Ext(dst))
		s.grid, s.set = g, nil
		return nil
	}
}

func polygonize(opts Options) stageFunc {
	return func(s *state) error {
		set, err := gridconv.Polygonize(s.grid, opts.Step, opts.Predicate)
		if err != nil {
			return err
		}
		s.grid, s.set = nil, set
		return nil
	}
}

// write writes to a temporary file next to dst and renames it over dst
// once writing has succeeded.
func (c *Converter) write(dst string, kind gridconv.Kind, opts Options) stageFunc {
	return func(s *state) error {
		tmp, err := tempSibling(dst)
		if err != nil {
			return &gridconv.Error{Kind: gridconv.UnwritableTarget, Path: dst, Err: err}
		}
		if err := c.writeTo(s, tmp, kind, opts); err != nil {
			removeSiblings(tmp)
			var e *gridconv.Error
			if errors.As(err, &e) && e.Path == tmp {
				e.Path = dst
			}
			return err
		}
		if err := commit(tmp, dst); err != nil {
			removeSiblings(tmp)
			return &gridconv.Error{Kind: gridconv.UnwritableTarget, Path: dst, Err: err}
		}
		return nil
	}
}

func (c *Converter) writeTo(s *state, path string, kind gridconv.Kind, opts Options) error {
	if kind == gridconv.KindVector {
		if opts.hasWriteOptions() {
			return &gridconv.Error{Kind: gridconv.IncompatibleOptions, Path: path,
				Err: fmt.Errorf("compression, data type and driver options do not apply to vector output")}
		}
		return vector.Write(s.set, path)
	}
	w, ok := c.writers[kind]
	if !ok {
		return &gridconv.Error{Kind: gridconv.UnsupportedFormat, Path: path, Err: fmt.Errorf("no writer for %s files", kind)}
	}
	return w.Write(s.grid, path, opts.writeOptions())
}

// tempSibling returns an unused path in the directory of path with the
// same extension.
func tempSibling(path string) (string, error) {
	dir, ext := filepath.Dir(path), filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	f, err := os.CreateTemp(dir, "."+stem+".*"+ext)
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return "", err
	}
	return name, nil
}

// commit renames every file of the dataset at tmp to the matching
// file of dst. Files of an old dst with no counterpart are removed.
func commit(tmp, dst string) error {
	from, to := vector.Siblings(tmp), vector.Siblings(dst)
	for i := range from {
		if _, err := os.Stat(from[i]); os.IsNotExist(err) {
			os.Remove(to[i])
			continue
		}
		if err := os.Rename(from[i], to[i]); err != nil {
			return err
		}
	}
	return nil
}

func removeSiblings(path string) {
	for _, p := range vector.Siblings(path) {
		os.Remove(p)
	}
}

// ReadGrid reads a grid with the reader registered for kind, or for the
// extension of path if kind is gridconv.KindUnknown.
func (c *Converter) ReadGrid(path string, kind gridconv.Kind, selector string) (*gridconv.Grid, error) {
	if kind == gridconv.KindUnknown {
		kind = KindOf(path)
	}
	s := new(state)
	if err := c.readGrid(path, kind, selector)(s); err != nil {
		return nil, err
	}
	return s.grid, nil
}

// WriteGrid writes g to path the same way the write stage of Convert
// does: through a temporary file that replaces path on success.
func (c *Converter) WriteGrid(g *gridconv.Grid, path string, kind gridconv.Kind, opts Options) error {
	if kind == gridconv.KindUnknown {
		kind = KindOf(path)
	}
	if kind == gridconv.KindVector {
		return &gridconv.Error{Kind: gridconv.IncompatibleOptions, Path: path, Err: fmt.Errorf("a grid cannot be written as vector data")}
	}
	if kind == gridconv.KindUnknown {
		return &gridconv.Error{Kind: gridconv.UnsupportedFormat, Path: path,
			Err: fmt.Errorf("cannot tell the format of %s from its extension", filepath.Base(path))}
	}
	return c.write(path, kind, opts)(&state{grid: g})
}
