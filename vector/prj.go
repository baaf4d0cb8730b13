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

package vector

import (
	"fmt"

	"github.com/spatialmodel/gridconv"
)

// wktDefs holds the ESRI .prj text for common systems. The trailing
// AUTHORITY node lets the text be parsed back to the same identifier.
var wktDefs = map[int]string{
	4326: `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`,
	4269: `GEOGCS["NAD83",DATUM["North_American_Datum_1983",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],AUTHORITY["EPSG","6269"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4269"]]`,
}

// prj returns the contents of a .prj file for c. Systems without a
// known WKT text are written as PROJ.4 definitions, which ParseCRS
// also accepts.
func prj(c gridconv.CRS) string {
	if code, ok := c.EPSG(); ok {
		if w, ok := wktDefs[code]; ok {
			return w
		}
	}
	if c.IsWKT() {
		return c.ID
	}
	if p := c.Proj4(); p != "" {
		return p
	}
	return c.ID
}

// crsName returns the GeoJSON crs member name for c.
func crsName(c gridconv.CRS) string {
	if code, ok := c.EPSG(); ok {
		return fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", code)
	}
	return c.ID
}
