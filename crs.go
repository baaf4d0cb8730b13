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
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
)

// CRS is a coordinate reference system. ID is the canonical identifier:
// "EPSG:nnnn" when the system is known by code, otherwise the normalized
// PROJ.4 or WKT text it was parsed from. Two CRSs are the same system
// if and only if their identifiers are equal.
type CRS struct {
	ID string
	SR *proj.SR
}

// epsgDefs holds PROJ.4 definitions for the EPSG codes that can be
// used by code.
var epsgDefs = map[int]string{
	4326:  "+proj=longlat +datum=WGS84 +no_defs",
	4269:  "+proj=longlat +datum=NAD83 +no_defs",
	4258:  "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs",
	3857:  "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +no_defs",
	3395:  "+proj=merc +lon_0=0 +k=1 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs",
	5070:  "+proj=aea +lat_1=29.5 +lat_2=45.5 +lat_0=23 +lon_0=-96 +x_0=0 +y_0=0 +datum=NAD83 +units=m +no_defs",
	2154:  "+proj=lcc +lat_1=49 +lat_2=44 +lat_0=46.5 +lon_0=3 +x_0=700000 +y_0=6600000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	3035:  "+proj=laea +lat_0=52 +lon_0=10 +x_0=4321000 +y_0=3210000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	2056:  "+proj=somerc +lat_0=46.95240555555556 +lon_0=7.439583333333333 +k_0=1 +x_0=2600000 +y_0=1200000 +ellps=bessel +towgs84=674.374,15.056,405.346,0,0,0,0 +units=m +no_defs",
	2193:  "+proj=tmerc +lat_0=0 +lon_0=173 +k=0.9996 +x_0=1600000 +y_0=10000000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	27700: "+proj=tmerc +lat_0=49 +lon_0=-2 +k=0.9996012717 +x_0=400000 +y_0=-100000 +ellps=airy +towgs84=446.448,-125.157,542.06,0.15,0.247,0.842,-20.489 +units=m +no_defs",
}

func init() {
	for zone := 1; zone <= 60; zone++ {
		epsgDefs[32600+zone] = fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", zone)
		epsgDefs[32700+zone] = fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", zone)
	}
	for zone := 1; zone <= 23; zone++ {
		epsgDefs[26900+zone] = fmt.Sprintf("+proj=utm +zone=%d +datum=NAD83 +units=m +no_defs", zone)
	}
	for code, def := range epsgDefs {
		proj4ToEPSG[normalizeProj4(def)] = code
	}
}

// proj4ToEPSG maps normalized PROJ.4 definitions back to EPSG codes.
var proj4ToEPSG = make(map[string]int)

var (
	epsgCodeRx = regexp.MustCompile(`^(?i)(?:EPSG:|urn:ogc:def:crs:EPSG::|urn:ogc:def:crs:EPSG:[0-9.]*:)([0-9]+)$`)
	wktAuthRx  = regexp.MustCompile(`(?i)AUTHORITY\[\s*"EPSG"\s*,\s*"?([0-9]+)"?\s*\]\s*\]\s*$`)
	wkt2IDRx   = regexp.MustCompile(`(?i)ID\[\s*"EPSG"\s*,\s*"?([0-9]+)"?\s*\]\s*\]\s*$`)
	spaceRx    = regexp.MustCompile(`\s+`)
)

// ParseCRS parses an EPSG code ("EPSG:4326"), a PROJ.4 string or a WKT
// definition. It returns an error of kind InvalidCRS if s cannot be parsed.
func ParseCRS(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CRS{}, &Error{Kind: InvalidCRS, Err: fmt.Errorf("empty CRS identifier")}
	}
	switch strings.ToUpper(s) {
	case "WGS84", "CRS84", "OGC:CRS84", "LONGLAT", "LATLON":
		return crsFromEPSG(4326)
	}
	if m := epsgCodeRx.FindStringSubmatch(s); m != nil {
		code, err := strconv.Atoi(m[1])
		if err != nil {
			return CRS{}, &Error{Kind: InvalidCRS, Variable: s, Err: err}
		}
		return crsFromEPSG(code)
	}
	if strings.HasPrefix(s, "+") {
		n := normalizeProj4(s)
		if code, ok := proj4ToEPSG[n]; ok {
			return crsFromEPSG(code)
		}
		sr, err := proj.Parse(n)
		if err != nil {
			return CRS{}, &Error{Kind: InvalidCRS, Variable: s, Err: err}
		}
		return CRS{ID: n, SR: sr}, nil
	}
	if m := wktAuthRx.FindStringSubmatch(s); m != nil {
		if code, err := strconv.Atoi(m[1]); err == nil {
			if _, ok := epsgDefs[code]; ok {
				return crsFromEPSG(code)
			}
		}
	}
	if m := wkt2IDRx.FindStringSubmatch(s); m != nil {
		if code, err := strconv.Atoi(m[1]); err == nil {
			if _, ok := epsgDefs[code]; ok {
				return crsFromEPSG(code)
			}
		}
	}
	wkt := spaceRx.ReplaceAllString(s, " ")
	sr, err := proj.Parse(wkt)
	if err != nil {
		return CRS{}, &Error{Kind: InvalidCRS, Variable: s, Err: err}
	}
	return CRS{ID: wkt, SR: sr}, nil
}

// MustParseCRS is like ParseCRS but panics on error. It is intended for
// package-level variables and tests.
func MustParseCRS(s string) CRS {
	c, err := ParseCRS(s)
	if err != nil {
		panic(err)
	}
	return c
}

func crsFromEPSG(code int) (CRS, error) {
	def, ok := epsgDefs[code]
	if !ok {
		return CRS{}, &Error{Kind: InvalidCRS, Variable: fmt.Sprintf("EPSG:%d", code),
			Err: fmt.Errorf("unsupported EPSG code %d; pass a PROJ.4 or WKT definition instead", code)}
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return CRS{}, &Error{Kind: InvalidCRS, Variable: fmt.Sprintf("EPSG:%d", code), Err: err}
	}
	return CRS{ID: fmt.Sprintf("EPSG:%d", code), SR: sr}, nil
}

// normalizeProj4 collapses whitespace and orders the parameters of a
// PROJ.4 definition so that equivalent definitions compare equal.
func normalizeProj4(s string) string {
	fields := strings.Fields(strings.Replace(s, " =", "=", -1))
	var projParam string
	var rest []string
	for _, f := range fields {
		if !strings.HasPrefix(f, "+") {
			continue
		}
		if strings.HasPrefix(f, "+proj=") {
			projParam = f
			continue
		}
		rest = append(rest, f)
	}
	sort.Strings(rest)
	if projParam != "" {
		rest = append([]string{projParam}, rest...)
	}
	return strings.Join(rest, " ")
}

// IsZero reports whether c is unset.
func (c CRS) IsZero() bool { return c.ID == "" }

// Equal reports whether c and o identify the same coordinate system.
func (c CRS) Equal(o CRS) bool { return c.ID != "" && c.ID == o.ID }

func (c CRS) String() string { return c.ID }

// EPSG returns the EPSG code of c, if it has one.
func (c CRS) EPSG() (int, bool) {
	if !strings.HasPrefix(c.ID, "EPSG:") {
		return 0, false
	}
	code, err := strconv.Atoi(strings.TrimPrefix(c.ID, "EPSG:"))
	return code, err == nil
}

// Proj4 returns a PROJ.4 definition of c, or "" if c was defined by WKT.
func (c CRS) Proj4() string {
	if code, ok := c.EPSG(); ok {
		return epsgDefs[code]
	}
	if strings.HasPrefix(c.ID, "+") {
		return c.ID
	}
	return ""
}

// IsWKT reports whether c was defined by a WKT string.
func (c CRS) IsWKT() bool {
	return c.ID != "" && !strings.HasPrefix(c.ID, "+") && !strings.HasPrefix(c.ID, "EPSG:")
}

// Geographic reports whether coordinates in c are longitude and latitude.
func (c CRS) Geographic() bool {
	if c.SR == nil {
		return false
	}
	n := strings.ToLower(c.SR.Name)
	return n == "longlat" || n == "latlong" || n == "lonlat" || n == "latlon"
}

// NewTransform returns a function transforming coordinates from c to dst.
func (c CRS) NewTransform(dst CRS) (proj.Transformer, error) {
	if c.SR == nil || dst.SR == nil {
		return nil, &Error{Kind: InvalidCRS, Err: fmt.Errorf("transform between %q and %q: undefined spatial reference", c.ID, dst.ID)}
	}
	if c.Equal(dst) {
		return func(x, y float64) (float64, float64, error) { return x, y, nil }, nil
	}
	t, err := c.SR.NewTransform(dst.SR)
	if err != nil {
		return nil, &Error{Kind: InvalidCRS, Err: fmt.Errorf("transform from %q to %q: %w", c.ID, dst.ID, err)}
	}
	return t, nil
}

// checkCRS returns a CRSMismatch error unless a and b are the same system.
func checkCRS(a, b CRS) error {
	if !a.Equal(b) {
		return &Error{Kind: CRSMismatch, Err: fmt.Errorf("%q != %q", a.ID, b.ID)}
	}
	return nil
}
