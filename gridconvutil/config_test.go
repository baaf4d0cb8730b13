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
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/geom"
	"github.com/kr/pretty"
	"github.com/spatialmodel/gridconv"
	"github.com/spatialmodel/gridconv/vector"
	"github.com/spf13/pflag"
)

func TestFloats(t *testing.T) {
	tests := []struct {
		in   string
		want []float64
		err  bool
	}{
		{in: "", want: nil},
		{in: "0.5", want: []float64{0.5}},
		{in: "0.5, 0.25", want: []float64{0.5, 0.25}},
		{in: "-10,20,-5e1,1e2", want: []float64{-10, 20, -50, 100}},
		{in: "1,x", err: true},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			got, err := floats(test.in)
			if (err != nil) != test.err {
				t.Fatalf("error: %v", err)
			}
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("got %v, want %v", got, test.want)
			}
		})
	}
}

// setCfg sets configuration values and returns a function that clears
// them.
func setCfg(vals map[string]interface{}) func() {
	for k, v := range vals {
		Cfg.Set(k, v)
	}
	return func() {
		for k, v := range vals {
			switch v.(type) {
			case int:
				Cfg.Set(k, 0)
			default:
				Cfg.Set(k, "")
			}
		}
	}
}

func TestConvertOptions(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	clipFile := filepath.Join(dir, "clip.geojson")
	set, err := gridconv.NewGeometrySet("EPSG:4326", &gridconv.Feature{
		Geom: geom.Polygon{{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}, {X: 0, Y: 0}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := vector.Write(set, clipFile); err != nil {
		t.Fatal(err)
	}

	defer setCfg(map[string]interface{}{
		"from":         "netcdf",
		"selector":     "pm25",
		"resampling":   "bilinear",
		"resolution":   "0.5,0.25",
		"reproject":    "EPSG:3857",
		"compression":  "deflate",
		"dtype":        "int16",
		"nodata":       "-1",
		"clip":         "0,0,3,3",
		"clip-polygon": clipFile,
		"mask":         "value < 0",
		"burn":         "id * 2",
		"step":         2,
	})()

	o, err := convertOptions(Cfg)
	if err != nil {
		t.Fatal(err)
	}
	nodata := -1.
	want := &ConvertOptions{
		From:        "netcdf",
		Selector:    "pm25",
		Resampling:  "bilinear",
		Resolution:  []float64{0.5, 0.25},
		ReprojectTo: "EPSG:3857",
		Compression: "deflate",
		DType:       "int16",
		NoData:      &nodata,
		Clip:        []float64{0, 0, 3, 3},
		ClipPolygon: clipFile,
		Mask:        "value < 0",
		Burn:        "id * 2",
		Step:        2,
	}
	if !reflect.DeepEqual(o, want) {
		t.Fatalf("options differ: %v", pretty.Diff(o, want))
	}

	s := testStager()
	defer s.close()
	opts, err := o.options(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Resolution != [2]float64{0.5, 0.25} {
		t.Errorf("resolution %v", opts.Resolution)
	}
	if opts.Resampling != gridconv.Bilinear {
		t.Errorf("resampling %v", opts.Resampling)
	}
	if opts.Compression != gridconv.CompressionDeflate {
		t.Errorf("compression %v", opts.Compression)
	}
	if opts.DType == nil || *opts.DType != gridconv.Int16 {
		t.Errorf("dtype %v", opts.DType)
	}
	if opts.NoData == nil || *opts.NoData != -1 {
		t.Errorf("nodata %v", opts.NoData)
	}
	wantClip := &geom.Bounds{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 3, Y: 3}}
	if !reflect.DeepEqual(opts.Clip, wantClip) {
		t.Errorf("clip %v", opts.Clip)
	}
	if mp, ok := opts.ClipPolygon.(geom.MultiPolygon); !ok || len(mp) != 1 {
		t.Errorf("clip polygon %#v", opts.ClipPolygon)
	} else if a := mp.Area(); a != 4 {
		t.Errorf("clip polygon area %g", a)
	}
	if masked, err := opts.Mask(-1); err != nil || !masked {
		t.Errorf("mask(-1) = %v, %v", masked, err)
	}
	if masked, err := opts.Mask(1); err != nil || masked {
		t.Errorf("mask(1) = %v, %v", masked, err)
	}
	if v, err := opts.Burn(map[string]interface{}{"id": 3}); err != nil || v != 6 {
		t.Errorf("burn = %v, %v", v, err)
	}
	if opts.Predicate != nil {
		t.Errorf("predicate should not be set")
	}
	if opts.Step != 2 || opts.Selector != "pm25" || opts.ReprojectTo != "EPSG:3857" {
		t.Errorf("options not copied: %+v", opts)
	}
}

func TestConvertOptionsErrors(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	lineFile := filepath.Join(dir, "line.geojson")
	set, err := gridconv.NewGeometrySet("EPSG:4326", &gridconv.Feature{
		Geom: geom.LineString{{X: 0, Y: 0}, {X: 2, Y: 2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := vector.Write(set, lineFile); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		o    ConvertOptions
		kind gridconv.ErrorKind
	}{
		{name: "resolution", o: ConvertOptions{Resolution: []float64{1, 2, 3}}, kind: gridconv.IncompatibleOptions},
		{name: "clip", o: ConvertOptions{Clip: []float64{0, 0}}, kind: gridconv.IncompatibleOptions},
		{name: "resampling", o: ConvertOptions{Resampling: "cubic"}, kind: gridconv.IncompatibleOptions},
		{name: "compression", o: ConvertOptions{Compression: "zstd"}, kind: gridconv.IncompatibleOptions},
		{name: "clip-polygon", o: ConvertOptions{ClipPolygon: lineFile}, kind: gridconv.InvalidGeometry},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := testStager()
			defer s.close()
			_, err := test.o.options(context.Background(), s)
			if err == nil {
				t.Fatal("expected an error")
			}
			if k := gridconv.KindOf(err); k != test.kind {
				t.Errorf("error kind %v, want %v: %v", k, test.kind, err)
			}
		})
	}

	defer setCfg(map[string]interface{}{"nodata": "none"})()
	if _, err := convertOptions(Cfg); !errors.Is(err, gridconv.ErrIncompatibleOptions) {
		t.Errorf("invalid nodata: %v", err)
	}
}

func TestFlagsShared(t *testing.T) {
	for _, name := range []string{"selector", "resolution", "compression", "report", "step"} {
		var first *pflag.Flag
		n := 0
		for _, c := range Root.Commands() {
			f := c.Flags().Lookup(name)
			if f == nil {
				continue
			}
			n++
			if first == nil {
				first = f
			} else if f != first {
				t.Errorf("%s: %s has its own flag", name, c.Name())
			}
		}
		if n == 0 {
			t.Errorf("no command has flag %s", name)
		}
	}

	if err := aggregateCmd.Flags().Set("method", "max"); err != nil {
		t.Fatal(err)
	}
	defer aggregateCmd.Flags().Set("method", "mean")
	if m := Cfg.GetString("method"); m != "max" {
		t.Errorf("method flag not bound: %q", m)
	}
}

func TestCheckOutputFile(t *testing.T) {
	if _, err := checkOutputFile(""); err == nil {
		t.Error("empty output should fail")
	}
	if _, err := checkOutputFile("/does/not/exist/out.nc"); err == nil {
		t.Error("missing directory should fail")
	}
	os.Setenv("GRIDCONV_TEST_OUT", "gs://bucket")
	defer os.Unsetenv("GRIDCONV_TEST_OUT")
	f, err := checkOutputFile("$GRIDCONV_TEST_OUT/out.nc")
	if err != nil {
		t.Fatal(err)
	}
	if f != "gs://bucket/out.nc" {
		t.Errorf("expanded to %s", f)
	}
}
