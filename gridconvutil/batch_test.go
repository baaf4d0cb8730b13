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
	"strings"
	"testing"

	"github.com/kr/pretty"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/gridconv/netcdf"
)

const batchFile = `
Workers = 2

[[Job]]
Src = "${GRIDCONV_TEST_DATA}/a.nc"
Dst = "b.tif"
Selector = "pm25"
Resolution = [0.5]
NoData = -1.0
Clip = [0.0, 0.0, 1.0, 1.0]
Compression = "deflate"

[[Job]]
Src = "zones.geojson"
Dst = "zones.nc"
Burn = "id"
Resolution = [1.0, 2.0]
ReprojectTo = "EPSG:3857"
`

func TestReadBatch(t *testing.T) {
	os.Setenv("GRIDCONV_TEST_DATA", "/data")
	defer os.Unsetenv("GRIDCONV_TEST_DATA")
	b, err := ReadBatch(strings.NewReader(batchFile))
	if err != nil {
		t.Fatal(err)
	}
	nodata := -1.
	want := &Batch{
		Workers: 2,
		Job: []Job{
			{
				Src: "/data/a.nc",
				Dst: "b.tif",
				ConvertOptions: ConvertOptions{
					Selector:    "pm25",
					Resolution:  []float64{0.5},
					NoData:      &nodata,
					Clip:        []float64{0, 0, 1, 1},
					Compression: "deflate",
				},
			},
			{
				Src: "zones.geojson",
				Dst: "zones.nc",
				ConvertOptions: ConvertOptions{
					Burn:        "id",
					Resolution:  []float64{1, 2},
					ReprojectTo: "EPSG:3857",
				},
			},
		},
	}
	if !reflect.DeepEqual(b, want) {
		t.Errorf("batch differs: %v", pretty.Diff(b, want))
	}
}

func TestReadBatchErrors(t *testing.T) {
	for name, f := range map[string]string{
		"syntax":  "[[Job]\nSrc = 1",
		"no dst":  "[[Job]]\nSrc = \"a.nc\"",
		"no src":  "[[Job]]\nDst = \"a.nc\"",
		"badtype": "[[Job]]\nSrc = \"a.nc\"\nDst = \"b.nc\"\nStep = \"x\"",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadBatch(strings.NewReader(f)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestBatchUnique(t *testing.T) {
	b := &Batch{Job: []Job{
		{Src: "a.nc", Dst: "b.nc"},
		{Src: "c.nc", Dst: "d.nc"},
		{Src: "a.nc", Dst: "b.nc"},
	}}
	jobs, err := b.unique()
	if err != nil {
		t.Fatal(err)
	}
	want := []Job{{Src: "a.nc", Dst: "b.nc"}, {Src: "c.nc", Dst: "d.nc"}}
	if !reflect.DeepEqual(jobs, want) {
		t.Errorf("unique jobs differ: %v", pretty.Diff(jobs, want))
	}

	b.Job = append(b.Job, Job{Src: "a.nc", Dst: "b.nc", ConvertOptions: ConvertOptions{Selector: "x"}})
	if _, err := b.unique(); err == nil {
		t.Error("two jobs writing b.nc should fail")
	}
}

func TestBatchRun(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	src := writeGrid(t, fourByFour(t), dir, "a.nc")
	clipped := filepath.Join(dir, "clipped.nc")
	b := &Batch{
		Workers: 2,
		Job: []Job{
			{Src: src, Dst: clipped, ConvertOptions: ConvertOptions{Clip: []float64{0, 0, 2, 2}}},
			{Src: filepath.Join(dir, "missing.nc"), Dst: filepath.Join(dir, "c.nc")},
			{Src: src, Dst: clipped, ConvertOptions: ConvertOptions{Clip: []float64{0, 0, 2, 2}}},
			{Src: src, Dst: filepath.Join(dir, "copy.nc")},
		},
	}
	err := b.Run(context.Background(), logrus.StandardLogger())
	var be *BatchError
	if !errors.As(err, &be) {
		t.Fatalf("want a *BatchError, got %v", err)
	}
	if len(be.Failed) != 1 || len(be.Jobs) != 3 {
		t.Fatalf("%d of %d jobs failed", len(be.Failed), len(be.Jobs))
	}
	if _, ok := be.Failed[1]; !ok {
		t.Errorf("wrong job failed: %v", be.Failed)
	}

	g, err := netcdf.Reader{}.Read(clipped, "")
	if err != nil {
		t.Fatal(err)
	}
	if g.Rows() != 2 || g.Cols() != 2 {
		t.Errorf("clipped grid is %dx%d", g.Rows(), g.Cols())
	}
	// Row 2, column 0 of the source.
	if v := g.At(0, 0, 0); v != 8 {
		t.Errorf("clipped corner = %g, want 8", v)
	}
	if _, err := os.Stat(filepath.Join(dir, "copy.nc")); err != nil {
		t.Error(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "c.nc")); !os.IsNotExist(err) {
		t.Errorf("failed job left output behind")
	}
}

func TestRunBatchFile(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	writeGrid(t, fourByFour(t), dir, "a.nc")
	os.Setenv("GRIDCONV_TEST_DATA", dir)
	defer os.Unsetenv("GRIDCONV_TEST_DATA")
	jobFile := filepath.Join(dir, "jobs.toml")
	f, err := os.Create(jobFile)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`
[[Job]]
Src = "$GRIDCONV_TEST_DATA/a.nc"
Dst = "$GRIDCONV_TEST_DATA/b.nc"
DType = "float32"
`)
	f.Close()

	if err := RunBatch(context.Background(), logrus.StandardLogger(), jobFile, 0); err != nil {
		t.Fatal(err)
	}
	g, err := netcdf.Reader{}.Read(filepath.Join(dir, "b.nc"), "")
	if err != nil {
		t.Fatal(err)
	}
	if g.Rows() != 4 || g.Cols() != 4 {
		t.Errorf("grid is %dx%d", g.Rows(), g.Cols())
	}
}
