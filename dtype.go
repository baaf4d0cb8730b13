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

package gridconv

import (
	"fmt"
	"math"
	"strings"
)

// DType is the numeric type of grid values in a file. Grid values are held
// as float64 in memory; every DType is exactly representable in float64.
type DType int

// Numeric types.
const (
	Float64 DType = iota
	Float32
	Int32
	Uint32
	Int16
	Uint16
	Uint8
)

var dtypeNames = []string{"float64", "float32", "int32", "uint32", "int16", "uint16", "uint8"}

func (d DType) String() string {
	if int(d) < 0 || int(d) >= len(dtypeNames) {
		return fmt.Sprintf("dtype(%d)", int(d))
	}
	return dtypeNames[d]
}

// ParseDType returns the DType named by s, e.g. "float32" or "int16".
func ParseDType(s string) (DType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "double":
		return Float64, nil
	case "float":
		return Float32, nil
	case "byte":
		return Uint8, nil
	case "short":
		return Int16, nil
	case "int":
		return Int32, nil
	}
	for i, n := range dtypeNames {
		if n == s {
			return DType(i), nil
		}
	}
	return 0, &Error{Kind: IncompatibleOptions, Err: fmt.Errorf("unknown data type %q", s)}
}

// IsInteger reports whether d is an integer type.
func (d DType) IsInteger() bool { return d >= Int32 }

// Range returns the smallest and largest finite values of d.
func (d DType) Range() (min, max float64) {
	switch d {
	case Float32:
		return -math.MaxFloat32, math.MaxFloat32
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Uint32:
		return 0, math.MaxUint32
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Uint16:
		return 0, math.MaxUint16
	case Uint8:
		return 0, math.MaxUint8
	}
	return -math.MaxFloat64, math.MaxFloat64
}

// Represents reports whether v can be stored in d without any change.
func (d DType) Represents(v float64) bool {
	switch d {
	case Float64:
		return true
	case Float32:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
		return float64(float32(v)) == v
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return false
	}
	min, max := d.Range()
	return v >= min && v <= max
}

// DefaultNoData returns the nodata value used for d when a grid needs
// one and none was given.
func (d DType) DefaultNoData() float64 {
	switch d {
	case Uint8, Uint16, Uint32:
		_, max := d.Range()
		return max
	case Int16, Int32:
		min, _ := d.Range()
		return min
	}
	return -9999
}

// Compression is the compression scheme for written files.
type Compression int

// Compression schemes.
const (
	CompressionNone Compression = iota
	CompressionDeflate
	CompressionLZW
)

func (c Compression) String() string {
	switch c {
	case CompressionDeflate:
		return "deflate"
	case CompressionLZW:
		return "lzw"
	}
	return "none"
}

// ParseCompression returns the Compression named by s.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "deflate", "zlib":
		return CompressionDeflate, nil
	case "lzw":
		return CompressionLZW, nil
	}
	return 0, &Error{Kind: IncompatibleOptions, Err: fmt.Errorf("unknown compression %q", s)}
}

// WriteOptions holds the options recognized by writers.
type WriteOptions struct {
	Compression Compression

	// DType, if not nil, overrides the grid's data type.
	DType *DType

	// NoData, if not nil, overrides the grid's nodata value. Cells that
	// are nodata in the grid are written with this value.
	NoData *float64

	// Driver optionally names the output driver for raster formats.
	Driver string
}

// WritePlan is the result of checking a grid against WriteOptions: the
// values to write, their type and nodata value.
type WritePlan struct {
	DType     DType
	NoData    float64
	HasNoData bool
	Values    []float64
}

// PlanWrite resolves the data type and nodata value for writing g with
// opts. It returns an IncompatibleOptions error if the data or the nodata
// value cannot be stored in the target type without loss, or if an
// overriding nodata value collides with valid data.
func PlanWrite(g *Grid, opts WriteOptions) (*WritePlan, error) {
	p := &WritePlan{DType: g.DType, NoData: g.NoData, HasNoData: g.HasNoData, Values: g.Data.Elements}
	if opts.DType != nil {
		p.DType = *opts.DType
	}
	if opts.NoData != nil {
		p.NoData = *opts.NoData
		p.HasNoData = true
	}
	if p.DType.IsInteger() && !p.HasNoData && g.hasMissing() {
		p.NoData = p.DType.DefaultNoData()
		p.HasNoData = true
	}
	if p.HasNoData && !p.DType.Represents(p.NoData) {
		return nil, &Error{Kind: IncompatibleOptions, Variable: g.Name,
			Err: fmt.Errorf("nodata value %g cannot be stored as %s", p.NoData, p.DType)}
	}
	// Values is copied on the first nodata cell that is not already
	// stored as p.NoData, such as NaN in a grid with a sentinel.
	copied := false
	for i, v := range g.Data.Elements {
		if g.IsNoData(v) {
			if p.HasNoData && !sameValue(v, p.NoData) {
				if !copied {
					p.Values = append([]float64(nil), g.Data.Elements...)
					copied = true
				}
				p.Values[i] = p.NoData
			}
			continue
		}
		if !p.DType.Represents(v) {
			return nil, &Error{Kind: IncompatibleOptions, Variable: g.Name,
				Err: fmt.Errorf("value %g at index %d cannot be stored as %s without loss", v, i, p.DType)}
		}
		if p.HasNoData && sameValue(v, p.NoData) {
			return nil, &Error{Kind: IncompatibleOptions, Variable: g.Name,
				Err: fmt.Errorf("nodata value %g is also a valid data value at index %d", p.NoData, i)}
		}
	}
	return p, nil
}
