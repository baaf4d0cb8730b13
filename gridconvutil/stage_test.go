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
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/gridconv"
	"github.com/spatialmodel/gridconv/netcdf"
)

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "gridconvutil")
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

// fourByFour returns a 4x4 EPSG:4326 grid with values 0 to 15 and the
// cell at row 0, column 1 missing.
func fourByFour(t *testing.T) *gridconv.Grid {
	data := sparse.ZerosDense(4, 4)
	for i := range data.Elements {
		data.Elements[i] = float64(i)
	}
	data.Elements[1] = -9999
	nodata := -9999.
	g, err := gridconv.NewGrid(gridconv.Header{
		Name:         "pm25",
		Units:        "ug/m3",
		GeoTransform: gridconv.GeoTransform{0, 1, 0, 4, 0, -1},
		CRS:          "EPSG:4326",
		DType:        gridconv.Float64,
		NoData:       &nodata,
	}, data)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// writeGrid writes g to a NetCDF file named name in dir.
func writeGrid(t *testing.T, g *gridconv.Grid, dir, name string) string {
	path := filepath.Join(dir, name)
	if err := (netcdf.Writer{}).Write(g, path, gridconv.WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	return path
}

func testStager() *stager {
	s := newStager(logrus.StandardLogger())
	s.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return s
}

func TestStageLocal(t *testing.T) {
	s := testStager()
	defer s.close()
	p, err := s.input(context.Background(), "/some/file.nc")
	if err != nil {
		t.Fatal(err)
	}
	if p != "/some/file.nc" {
		t.Errorf("local input staged as %s", p)
	}
	p, err = s.output("out.tif")
	if err != nil {
		t.Fatal(err)
	}
	if p != "out.tif" {
		t.Errorf("local output staged as %s", p)
	}
	if s.dir != "" {
		t.Errorf("staging directory created for local files")
	}
}

func TestStageFileBlob(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	src := writeGrid(t, fourByFour(t), dir, "a.nc")
	want, err := ioutil.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	s := testStager()
	local, err := s.input(ctx, "file://"+src)
	if err != nil {
		t.Fatal(err)
	}
	if local == src {
		t.Fatalf("blob input was not staged")
	}
	got, err := ioutil.ReadFile(local)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("staged input differs from the original")
	}

	dst := filepath.Join(dir, "b.nc")
	out, err := s.output("file://" + dst)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(out) != "b.nc" {
		t.Errorf("staged output is named %s", filepath.Base(out))
	}
	if err := ioutil.WriteFile(out, want, 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.flush(ctx); err != nil {
		t.Fatal(err)
	}
	got, err = ioutil.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("uploaded output differs from the staged file")
	}

	staging := s.dir
	if err := s.close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Errorf("staging directory %s not removed", staging)
	}
}

func TestStageHTTP(t *testing.T) {
	var missing int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/zones.geojson" {
			fmt.Fprint(w, `{"type":"FeatureCollection","features":[]}`)
			return
		}
		atomic.AddInt32(&missing, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ctx := context.Background()
	s := testStager()
	defer s.close()
	local, err := s.input(ctx, srv.URL+"/zones.geojson")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ioutil.ReadFile(local)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"FeatureCollection","features":[]}` {
		t.Errorf("downloaded %q", b)
	}

	if _, err := s.input(ctx, srv.URL+"/missing.nc"); err == nil {
		t.Errorf("missing download should fail")
	}
	if n := atomic.LoadInt32(&missing); n != maxRetries+1 {
		t.Errorf("missing file requested %d times, want %d", n, maxRetries+1)
	}

	if _, err := s.output(srv.URL + "/out.nc"); err == nil {
		t.Errorf("http output should be refused")
	}
}
