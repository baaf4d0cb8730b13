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

	"github.com/GaryBoone/GoStats/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Agreement holds measures of agreement between observed and simulated
// values. Measures that are undefined for the data (for example NSE when
// the observations are constant) are NaN.
type Agreement struct {
	N int

	NSE, LNSE, KGE float64

	// Alpha and Beta are the KGE variability and bias ratios.
	Alpha, Beta float64

	// PBIAS and MAPE are in percent.
	PBIAS, MAPE float64

	MB, ME, MFB, MFE     float64
	RMSE, MAE, MSE       float64
	Slope, Intercept, R2 float64
}

// Compare computes agreement statistics between observed and simulated
// over the cells that are valid in both. The grids must have the same
// shape and CRS.
func Compare(observed, simulated *Grid) (*Agreement, error) {
	if !sameShape(observed.Data.Shape, simulated.Data.Shape) {
		return nil, &Error{Kind: ShapeMismatch, Variable: simulated.Name,
			Err: fmt.Errorf("observed shape %v != simulated shape %v", observed.Data.Shape, simulated.Data.Shape)}
	}
	if err := checkCRS(observed.CRS, simulated.CRS); err != nil {
		return nil, err
	}
	var obs, sim []float64
	for i, o := range observed.Data.Elements {
		s := simulated.Data.Elements[i]
		if observed.IsNoData(o) || simulated.IsNoData(s) {
			continue
		}
		obs = append(obs, o)
		sim = append(sim, s)
	}
	if len(obs) == 0 {
		return nil, ErrNoData
	}
	return agreement(obs, sim), nil
}

func agreement(obs, sim []float64) *Agreement {
	n := float64(len(obs))
	a := &Agreement{N: len(obs)}

	diff := make([]float64, len(obs))
	floats.SubTo(diff, sim, obs)
	var se, ae, ape, fb, fe float64
	for i, d := range diff {
		se += d * d
		ae += math.Abs(d)
		ape += math.Abs(d / obs[i])
		fb += 2 * d / (obs[i] + sim[i])
		fe += 2 * math.Abs(d) / math.Abs(obs[i]+sim[i])
	}
	a.MSE = se / n
	a.RMSE = math.Sqrt(a.MSE)
	a.MAE = ae / n
	a.ME = a.MAE
	a.MB = floats.Sum(diff) / n
	a.MFB = fb / n
	a.MFE = fe / n
	a.MAPE = 100 * ape / n
	if math.IsInf(a.MAPE, 0) {
		a.MAPE = math.NaN()
	}

	obsMean, obsStd := popMeanStdDev(obs)
	simMean, simStd := popMeanStdDev(sim)

	a.NSE = nse(obs, sim)
	const eps = 0.0001
	lobs, lsim := make([]float64, len(obs)), make([]float64, len(sim))
	for i := range obs {
		lobs[i] = math.Log(obs[i] + eps)
		lsim[i] = math.Log(sim[i] + eps)
	}
	a.LNSE = nse(lobs, lsim)

	if sum := floats.Sum(obs); sum != 0 {
		a.PBIAS = 100 * floats.Sum(diff) / sum
	} else {
		a.PBIAS = math.NaN()
	}

	a.Alpha, a.Beta = math.NaN(), math.NaN()
	if obsStd != 0 {
		a.Alpha = simStd / obsStd
	}
	if obsMean != 0 {
		a.Beta = simMean / obsMean
	}
	r := math.NaN()
	if obsStd != 0 && simStd != 0 {
		r = stat.Correlation(obs, sim, nil)
	}
	a.KGE = 1 - math.Sqrt((r-1)*(r-1)+(a.Alpha-1)*(a.Alpha-1)+(a.Beta-1)*(a.Beta-1))

	if len(obs) > 1 && obsStd != 0 {
		a.Slope, a.Intercept, a.R2, _, _, _ = stats.LinearRegression(obs, sim)
	} else {
		a.Slope, a.Intercept, a.R2 = math.NaN(), math.NaN(), math.NaN()
	}
	return a
}

// nse is the Nash-Sutcliffe efficiency.
func nse(obs, sim []float64) float64 {
	mean := stat.Mean(obs, nil)
	var num, den float64
	for i, o := range obs {
		num += (o - sim[i]) * (o - sim[i])
		den += (o - mean) * (o - mean)
	}
	if den == 0 {
		return math.NaN()
	}
	return 1 - num/den
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
