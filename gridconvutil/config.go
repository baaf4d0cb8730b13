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
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/spatialmodel/gridconv"
	"github.com/spatialmodel/gridconv/convert"
	"github.com/spatialmodel/gridconv/vector"
	"github.com/spf13/cast"
	"github.com/lnashier/viper"
)

// ConvertOptions holds conversion options in the textual form in which
// they appear on the command line and in batch files.
type ConvertOptions struct {
	// From and To override the format kinds inferred from the file
	// extensions.
	From, To string

	Selector   string
	Resampling string

	// Resolution holds one cell size for both axes or an (x, y) pair.
	Resolution []float64

	ReprojectTo string
	Compression string
	DType       string
	NoData      *float64
	Driver      string

	// Clip holds minx, miny, maxx, maxy.
	Clip []float64

	// ClipPolygon is the path of a vector file whose polygons clip the
	// output.
	ClipPolygon string

	Mask      string
	Burn      string
	Template  string
	Predicate string
	Step      int
}

func (o *ConvertOptions) kinds() (src, dst gridconv.Kind, err error) {
	if o.From != "" {
		if src, err = gridconv.ParseKind(o.From); err != nil {
			return
		}
	}
	if o.To != "" {
		dst, err = gridconv.ParseKind(o.To)
	}
	return
}

// writeOptions converts only the options that apply to writing a grid.
func (o *ConvertOptions) writeOptions() (convert.Options, error) {
	var opts convert.Options
	var err error
	if opts.Compression, err = gridconv.ParseCompression(o.Compression); err != nil {
		return opts, err
	}
	if o.DType != "" {
		d, err := gridconv.ParseDType(o.DType)
		if err != nil {
			return opts, err
		}
		opts.DType = &d
	}
	opts.NoData = o.NoData
	opts.Driver = o.Driver
	opts.Selector = o.Selector
	return opts, nil
}

// options converts o, staging any files it refers to with st.
func (o *ConvertOptions) options(ctx context.Context, st *stager) (convert.Options, error) {
	opts, err := o.writeOptions()
	if err != nil {
		return opts, err
	}
	if opts.Resampling, err = gridconv.ParseResampling(o.Resampling); err != nil {
		return opts, err
	}
	switch len(o.Resolution) {
	case 0:
	case 1:
		opts.Resolution = [2]float64{o.Resolution[0], o.Resolution[0]}
	case 2:
		opts.Resolution = [2]float64{o.Resolution[0], o.Resolution[1]}
	default:
		return opts, gridconv.Errorf(gridconv.IncompatibleOptions, "", "resolution needs 1 or 2 values, got %d", len(o.Resolution))
	}
	opts.ReprojectTo = o.ReprojectTo
	switch len(o.Clip) {
	case 0:
	case 4:
		opts.Clip = &geom.Bounds{
			Min: geom.Point{X: o.Clip[0], Y: o.Clip[1]},
			Max: geom.Point{X: o.Clip[2], Y: o.Clip[3]},
		}
	default:
		return opts, gridconv.Errorf(gridconv.IncompatibleOptions, "", "clip needs 4 values (minx,miny,maxx,maxy), got %d", len(o.Clip))
	}
	if o.ClipPolygon != "" {
		path, err := st.input(ctx, os.ExpandEnv(o.ClipPolygon))
		if err != nil {
			return opts, err
		}
		if opts.ClipPolygon, err = clipPolygon(path); err != nil {
			return opts, err
		}
	}
	if opts.Mask, err = predicate(o.Mask); err != nil {
		return opts, err
	}
	if opts.Predicate, err = predicate(o.Predicate); err != nil {
		return opts, err
	}
	if o.Burn != "" {
		e, err := gridconv.ParseExpression(o.Burn)
		if err != nil {
			return opts, err
		}
		opts.Burn = e.Burn()
	}
	if o.Template != "" {
		if opts.Template, err = st.input(ctx, os.ExpandEnv(o.Template)); err != nil {
			return opts, err
		}
	}
	opts.Step = o.Step
	return opts, nil
}

func predicate(s string) (gridconv.MaskPredicate, error) {
	if s == "" {
		return nil, nil
	}
	e, err := gridconv.ParseExpression(s)
	if err != nil {
		return nil, err
	}
	return e.Predicate(), nil
}

// clipPolygon reads the polygons in the vector file at path. Any other
// geometry type is an error.
func clipPolygon(path string) (geom.MultiPolygon, error) {
	set, err := vector.Read(path)
	if err != nil {
		return nil, err
	}
	var mask geom.MultiPolygon
	for i, f := range set.Features {
		switch p := f.Geom.(type) {
		case geom.Polygon:
			mask = append(mask, p)
		case geom.MultiPolygon:
			mask = append(mask, p...)
		default:
			return nil, gridconv.Errorf(gridconv.InvalidGeometry, path, "clip feature %d is %T, not a polygon", i, f.Geom)
		}
	}
	if len(mask) == 0 {
		return nil, gridconv.Errorf(gridconv.InvalidGeometry, path, "no clip polygons")
	}
	return mask, nil
}

// floats parses a comma separated list of numbers.
func floats(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := cast.ToFloat64E(strings.TrimSpace(p))
		if err != nil {
			return nil, gridconv.Errorf(gridconv.IncompatibleOptions, "", "invalid number %q in %q", p, s)
		}
		out[i] = v
	}
	return out, nil
}

// convertOptions reads the conversion options from cfg.
func convertOptions(cfg *viper.Viper) (*ConvertOptions, error) {
	o := &ConvertOptions{
		From:        cfg.GetString("from"),
		To:          cfg.GetString("to"),
		Selector:    cfg.GetString("selector"),
		Resampling:  cfg.GetString("resampling"),
		ReprojectTo: cfg.GetString("reproject"),
		Compression: cfg.GetString("compression"),
		DType:       cfg.GetString("dtype"),
		Driver:      cfg.GetString("driver"),
		ClipPolygon: cfg.GetString("clip-polygon"),
		Mask:        cfg.GetString("mask"),
		Burn:        cfg.GetString("burn"),
		Template:    cfg.GetString("template"),
		Predicate:   cfg.GetString("predicate"),
		Step:        cfg.GetInt("step"),
	}
	var err error
	if o.Resolution, err = floats(cfg.GetString("resolution")); err != nil {
		return nil, err
	}
	if o.Clip, err = floats(cfg.GetString("clip")); err != nil {
		return nil, err
	}
	if s := cfg.GetString("nodata"); s != "" {
		v, err := cast.ToFloat64E(s)
		if err != nil {
			return nil, gridconv.Errorf(gridconv.IncompatibleOptions, "", "invalid nodata value %q", s)
		}
		o.NoData = &v
	}
	return o, nil
}

// checkOutputFile makes sure that the output file is specified and, for
// local files, that its directory exists. Environment variables in f
// are expanded.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf("gridconvutil: no output file specified")
	}
	f = os.ExpandEnv(f)
	if IsRemote(f) {
		return f, nil
	}
	if _, err := os.Stat(filepath.Dir(f)); err != nil {
		return f, fmt.Errorf("gridconvutil: the output directory doesn't exist: %v", err)
	}
	return f, nil
}
