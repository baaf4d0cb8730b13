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
	"reflect"

	nativenc "github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/cdf"
	"github.com/spatialmodel/gridconv"
)

// dataset is the part of a NetCDF file the reader needs. Numeric
// attribute values are returned as []float64 and text attributes as
// string.
type dataset interface {
	variables() []string
	dims(v string) []string
	shape(v string) []int
	attr(v, name string) (interface{}, bool)
	values(v string) ([]float64, gridconv.DType, error)
	Close() error
}

// open opens path with the classic reader, falling back to the
// NetCDF-4/HDF5 reader for files it cannot parse.
func open(path string) (dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &gridconv.Error{Kind: gridconv.SourceNotFound, Path: path, Err: err}
		}
		return nil, &gridconv.Error{Kind: gridconv.CorruptSource, Path: path, Err: err}
	}
	if nc, cdfErr := cdf.Open(f); cdfErr == nil {
		return &classic{f: f, nc: nc}, nil
	}
	f.Close()
	g, err := nativenc.Open(path)
	if err == nativenc.ErrUnknown {
		return nil, &gridconv.Error{Kind: gridconv.UnsupportedFormat, Path: path, Err: err}
	} else if err != nil {
		return nil, &gridconv.Error{Kind: gridconv.CorruptSource, Path: path, Err: err}
	}
	return &native{g: g}, nil
}

// classic reads CDF-1 and CDF-2 files.
type classic struct {
	f  *os.File
	nc *cdf.File
}

func (c *classic) variables() []string    { return c.nc.Header.Variables() }
func (c *classic) dims(v string) []string { return c.nc.Header.Dimensions(v) }

func (c *classic) shape(v string) []int {
	s := c.nc.Header.Lengths(v)
	if len(s) > 0 && s[0] == 0 {
		// Record variable: the header reports 0 for the unlimited
		// dimension.
		s = append([]int(nil), s...)
		n := c.recordLen(v, s[1:])
		s[0] = n
	}
	return s
}

func (c *classic) recordLen(v string, rest []int) int {
	vals, _, err := c.values(v)
	if err != nil {
		return 0
	}
	n := 1
	for _, l := range rest {
		n *= l
	}
	if n == 0 {
		return 0
	}
	return len(vals) / n
}

func (c *classic) attr(v, name string) (interface{}, bool) {
	a := c.nc.Header.GetAttribute(v, name)
	if a == nil {
		return nil, false
	}
	return normalizeAttr(a)
}

func (c *classic) values(v string) ([]float64, gridconv.DType, error) {
	r := c.nc.Reader(v, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, 0, err
	}
	return toFloat64(buf)
}

func (c *classic) Close() error { return c.f.Close() }

// native reads NetCDF-4 (HDF5) files and any classic file the classic
// reader rejected.
type native struct {
	g api.Group
}

func (n *native) variables() []string { return n.g.ListVariables() }

func (n *native) dims(v string) []string {
	vg, err := n.g.GetVarGetter(v)
	if err != nil {
		return nil
	}
	return vg.Dimensions()
}

func (n *native) shape(v string) []int {
	vg, err := n.g.GetVarGetter(v)
	if err != nil {
		return nil
	}
	dims := vg.Dimensions()
	out := make([]int, len(dims))
	for i, d := range dims {
		l, ok := n.g.GetDimension(d)
		if !ok {
			return nil
		}
		out[i] = int(l)
	}
	if len(out) > 0 && out[0] == 0 {
		// Unlimited dimension: Len is the number of slices along it.
		out[0] = int(vg.Len())
	}
	return out
}

func (n *native) attr(v, name string) (interface{}, bool) {
	var am api.AttributeMap
	if v == "" {
		am = n.g.Attributes()
	} else {
		vg, err := n.g.GetVarGetter(v)
		if err != nil {
			return nil, false
		}
		am = vg.Attributes()
	}
	if am == nil {
		return nil, false
	}
	a, ok := am.Get(name)
	if !ok {
		return nil, false
	}
	return normalizeAttr(a)
}

func (n *native) values(v string) ([]float64, gridconv.DType, error) {
	vg, err := n.g.GetVarGetter(v)
	if err != nil {
		return nil, 0, err
	}
	raw, err := vg.Values()
	if err != nil {
		return nil, 0, err
	}
	var out []float64
	if err := flatten(reflect.ValueOf(raw), &out); err != nil {
		return nil, 0, fmt.Errorf("variable %s: %v", v, err)
	}
	return out, nativeDType(vg.Type()), nil
}

func (n *native) Close() error {
	n.g.Close()
	return nil
}

// nativeDType maps a CDL type name to the in-memory type that holds it
// without loss.
func nativeDType(t string) gridconv.DType {
	switch t {
	case "float":
		return gridconv.Float32
	case "int":
		return gridconv.Int32
	case "uint":
		return gridconv.Uint32
	case "short", "byte":
		return gridconv.Int16
	case "ushort":
		return gridconv.Uint16
	case "ubyte":
		return gridconv.Uint8
	}
	return gridconv.Float64
}

// flatten appends the numbers in v, which may be a scalar or nested
// slices, to out in row-major order.
func flatten(v reflect.Value, out *[]float64) error {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := flatten(v.Index(i), out); err != nil {
				return err
			}
		}
	case reflect.Float32, reflect.Float64:
		*out = append(*out, v.Float())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		*out = append(*out, float64(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		*out = append(*out, float64(v.Uint()))
	case reflect.Interface:
		return flatten(v.Elem(), out)
	default:
		return fmt.Errorf("non-numeric value of type %s", v.Type())
	}
	return nil
}

// normalizeAttr converts an attribute value to a string or []float64.
func normalizeAttr(a interface{}) (interface{}, bool) {
	switch t := a.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	}
	var out []float64
	if err := flatten(reflect.ValueOf(a), &out); err != nil {
		return nil, false
	}
	return out, true
}

// toFloat64 converts a classic-format value buffer.
func toFloat64(buf interface{}) ([]float64, gridconv.DType, error) {
	switch b := buf.(type) {
	case []float64:
		return b, gridconv.Float64, nil
	case []float32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, gridconv.Float32, nil
	case []int32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, gridconv.Int32, nil
	case []int16:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, gridconv.Int16, nil
	case []int8:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, gridconv.Int16, nil
	case []uint8:
		// NetCDF bytes are signed.
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(int8(v))
		}
		return out, gridconv.Int16, nil
	}
	return nil, 0, fmt.Errorf("unsupported variable type %T", buf)
}
