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


package hash

import "testing"

type job struct {
	Src, Dst string
	Clip     []float64
	NoData   *float64
}

func TestKey(t *testing.T) {
	nd := -9999.
	a := job{Src: "a.nc", Dst: "b.tif", Clip: []float64{0, 0, 1, 1}, NoData: &nd}
	nd2 := -9999.
	b := job{Src: "a.nc", Dst: "b.tif", Clip: []float64{0, 0, 1, 1}, NoData: &nd2}
	if Key(a) != Key(b) {
		t.Errorf("equal values have different keys")
	}
	b.Dst = "c.tif"
	if Key(a) == Key(b) {
		t.Errorf("different values have the same key")
	}
	if len(Key(a)) != 32 {
		t.Errorf("key length %d", len(Key(a)))
	}
}

func TestKeyUnencodable(t *testing.T) {
	// gob refuses structs without exported fields.
	type unexported struct {
		name string
	}
	a := Key(unexported{name: "a"})
	b := Key(unexported{name: "b"})
	if a == b {
		t.Errorf("different values have the same key")
	}
	if a != Key(unexported{name: "a"}) {
		t.Errorf("key is not stable")
	}
}
