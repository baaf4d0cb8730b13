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
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spatialmodel/gridconv"
	"github.com/spf13/cast"
	"github.com/tealeg/xlsx"
)

// table is a rectangular report printed to the terminal or saved as a
// spreadsheet sheet.
type table struct {
	name   string
	header []string
	rows   [][]interface{}
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) {
			return ""
		}
		return fmt.Sprintf("%.6g", t)
	case nil:
		return ""
	}
	return cast.ToString(v)
}

// write prints t with aligned columns.
func (t *table) write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.header, "\t"))
	for _, row := range t.rows {
		s := make([]string, len(row))
		for i, v := range row {
			s[i] = formatValue(v)
		}
		fmt.Fprintln(tw, strings.Join(s, "\t"))
	}
	return tw.Flush()
}

// saveReport writes the tables to an Excel file, one sheet per table.
func saveReport(path string, tables ...*table) error {
	f := xlsx.NewFile()
	for _, t := range tables {
		sheet, err := f.AddSheet(t.name)
		if err != nil {
			return fmt.Errorf("gridconvutil: creating report sheet %s: %v", t.name, err)
		}
		row := sheet.AddRow()
		for _, h := range t.header {
			row.AddCell().SetString(h)
		}
		for _, vals := range t.rows {
			row := sheet.AddRow()
			for _, v := range vals {
				c := row.AddCell()
				switch x := v.(type) {
				case float64:
					if !math.IsNaN(x) && !math.IsInf(x, 0) {
						c.SetFloat(x)
					}
				case int:
					c.SetInt(x)
				default:
					c.SetString(formatValue(v))
				}
			}
		}
	}
	if err := f.Save(path); err != nil {
		return fmt.Errorf("gridconvutil: saving report: %v", err)
	}
	return nil
}

var summaryHeader = []string{"count", "min", "max", "sum", "mean", "stddev"}

func summaryRow(s gridconv.Summary) []interface{} {
	if s.Count == 0 {
		nan := math.NaN()
		return []interface{}{0, nan, nan, nan, nan, nan}
	}
	return []interface{}{s.Count, s.Min, s.Max, s.Sum, s.Mean, s.StdDev}
}

// statsTable summarizes every step of g. Steps without valid cells
// have a count of zero and no statistics.
func statsTable(g *gridconv.Grid) (*table, error) {
	t := &table{name: "stats", header: append([]string{"step", "time"}, summaryHeader...)}
	for i := 0; i < g.Steps(); i++ {
		s, err := g.StatsAt(i)
		if err != nil && !errors.Is(err, gridconv.ErrNoData) {
			return nil, err
		}
		var when string
		if g.Time != nil {
			tm, err := g.TimeAt(i)
			if err != nil {
				return nil, err
			}
			when = tm.Format(time.RFC3339)
		}
		t.rows = append(t.rows, append([]interface{}{i, when}, summaryRow(s)...))
	}
	return t, nil
}

// zonalTable lists the zone statistics with the feature attributes in
// sorted column order.
func zonalTable(zs []gridconv.ZoneSummary) *table {
	keySet := make(map[string]bool)
	for _, z := range zs {
		for k := range z.Attributes {
			keySet[k] = true
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	t := &table{name: "zonal", header: append(append([]string{"feature"}, keys...), append(append([]string{"cells"}, summaryHeader...), "area_m2", "area_mean")...)}
	for _, z := range zs {
		row := []interface{}{z.Feature}
		for _, k := range keys {
			row = append(row, z.Attributes[k])
		}
		row = append(row, z.Cells)
		row = append(row, summaryRow(z.Summary)...)
		if z.Area > 0 {
			row = append(row, z.Area, z.AreaMean)
		} else {
			row = append(row, 0., math.NaN())
		}
		t.rows = append(t.rows, row)
	}
	return t
}

func agreementTable(a *gridconv.Agreement) *table {
	return &table{
		name:   "agreement",
		header: []string{"measure", "value"},
		rows: [][]interface{}{
			{"N", a.N},
			{"NSE", a.NSE},
			{"LNSE", a.LNSE},
			{"KGE", a.KGE},
			{"KGE alpha", a.Alpha},
			{"KGE beta", a.Beta},
			{"PBIAS (%)", a.PBIAS},
			{"MAPE (%)", a.MAPE},
			{"MB", a.MB},
			{"ME", a.ME},
			{"MFB", a.MFB},
			{"MFE", a.MFE},
			{"RMSE", a.RMSE},
			{"MAE", a.MAE},
			{"MSE", a.MSE},
			{"slope", a.Slope},
			{"intercept", a.Intercept},
			{"R2", a.R2},
		},
	}
}
