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
	"fmt"
	"io"

	"github.com/spatialmodel/gridconv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const legendHeight = 0.6 * vg.Inch

// quicklook draws step t of g as a PNG heat map of the given width with
// a color bar below it. Nodata cells are left blank.
func quicklook(w io.Writer, g *gridconv.Grid, t int, width vg.Length) error {
	s, err := g.StatsAt(t)
	if err != nil {
		return err
	}
	cm := moreland.ExtendedBlackBody()
	max := s.Max
	if max == s.Min {
		max = s.Min + 1
	}
	cm.SetMin(s.Min)
	cm.SetMax(max)

	rows, cols := g.Rows(), g.Cols()
	mapHeight := width * vg.Length(rows) / vg.Length(cols)
	img := vgimg.New(width, mapHeight+legendHeight)
	dc := draw.New(img)
	mc := draw.Crop(dc, 0, 0, legendHeight, 0)
	lc := draw.Crop(dc, 0, 0, 0, dc.Min.Y-dc.Max.Y+legendHeight)

	cw := (mc.Max.X - mc.Min.X) / vg.Length(cols)
	ch := (mc.Max.Y - mc.Min.Y) / vg.Length(rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := g.At(t, r, c)
			if g.IsNoData(v) {
				continue
			}
			col, err := cm.At(v)
			if err != nil {
				continue
			}
			x0 := mc.Min.X + vg.Length(c)*cw
			y1 := mc.Max.Y - vg.Length(r)*ch
			var p vg.Path
			p.Move(vg.Point{X: x0, Y: y1 - ch})
			p.Line(vg.Point{X: x0 + cw, Y: y1 - ch})
			p.Line(vg.Point{X: x0 + cw, Y: y1})
			p.Line(vg.Point{X: x0, Y: y1})
			p.Close()
			mc.SetColor(col)
			mc.Fill(p)
		}
	}

	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Add(&plotter.ColorBar{ColorMap: cm})
	p.HideY()
	p.X.Padding = 0
	p.X.Label.Text = g.Units
	p.Draw(lc)

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("gridconvutil: writing quicklook image: %v", err)
	}
	return nil
}
