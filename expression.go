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

	"github.com/Knetic/govaluate"
	"github.com/spf13/cast"
)

// MaskPredicate reports whether a cell value is selected.
type MaskPredicate func(v float64) (bool, error)

// BurnFunc returns the value to burn for a feature with the given
// attributes.
type BurnFunc func(attributes map[string]interface{}) (float64, error)

// BurnConstant returns a BurnFunc that always returns v.
func BurnConstant(v float64) BurnFunc {
	return func(map[string]interface{}) (float64, error) { return v, nil }
}

// BurnAttribute returns a BurnFunc that returns the numeric value of the
// named attribute.
func BurnAttribute(name string) BurnFunc {
	return func(attrs map[string]interface{}) (float64, error) {
		a, ok := attrs[name]
		if !ok {
			return math.NaN(), fmt.Errorf("gridconv: feature has no attribute %q", name)
		}
		v, err := cast.ToFloat64E(a)
		if err != nil {
			return math.NaN(), fmt.Errorf("gridconv: attribute %q: %v", name, err)
		}
		return v, nil
	}
}

// ValueVar is the name of the cell value in predicate expressions.
const ValueVar = "value"

var expressionFunctions = map[string]govaluate.ExpressionFunction{
	"abs": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("gridconv: got %d arguments for function 'abs', but needs 1", len(arg))
		}
		v, err := cast.ToFloat64E(arg[0])
		return math.Abs(v), err
	},
	"isnan": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("gridconv: got %d arguments for function 'isnan', but needs 1", len(arg))
		}
		v, err := cast.ToFloat64E(arg[0])
		return math.IsNaN(v), err
	},
	"min": func(arg ...interface{}) (interface{}, error) {
		return fold("min", math.Min, arg)
	},
	"max": func(arg ...interface{}) (interface{}, error) {
		return fold("max", math.Max, arg)
	},
}

func fold(name string, f func(a, b float64) float64, arg []interface{}) (interface{}, error) {
	if len(arg) == 0 {
		return nil, fmt.Errorf("gridconv: function '%s' needs at least 1 argument", name)
	}
	r, err := cast.ToFloat64E(arg[0])
	if err != nil {
		return nil, err
	}
	for _, a := range arg[1:] {
		v, err := cast.ToFloat64E(a)
		if err != nil {
			return nil, err
		}
		r = f(r, v)
	}
	return r, nil
}

// Expression is a compiled arithmetic or boolean expression, for example
// "value < 0 || value > 1000" or "pop * 1.5".
type Expression struct {
	text string
	expr *govaluate.EvaluableExpression
}

// ParseExpression compiles s. Curly braces around variable names, as in
// "{total pop} > 0", allow names with spaces.
func ParseExpression(s string) (*Expression, error) {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(strings.Replace(strings.Replace(s, "{", "[", -1), "}", "]", -1), expressionFunctions)
	if err != nil {
		return nil, &Error{Kind: IncompatibleOptions, Err: fmt.Errorf("expression %q: %v", s, err)}
	}
	return &Expression{text: s, expr: expr}, nil
}

func (e *Expression) String() string { return e.text }

// Vars returns the distinct variable names used in e.
func (e *Expression) Vars() []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range e.expr.Vars() {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func (e *Expression) eval(params map[string]interface{}) (interface{}, error) {
	r, err := e.expr.Evaluate(params)
	if err != nil {
		return nil, fmt.Errorf("gridconv: evaluating %q: %v", e.text, err)
	}
	return r, nil
}

// Predicate returns a MaskPredicate that evaluates e with the cell value
// bound to "value". The expression must produce a boolean.
func (e *Expression) Predicate() MaskPredicate {
	params := make(map[string]interface{}, 1)
	return func(v float64) (bool, error) {
		params[ValueVar] = v
		r, err := e.eval(params)
		if err != nil {
			return false, err
		}
		b, ok := r.(bool)
		if !ok {
			return false, fmt.Errorf("gridconv: expression %q returned %v, not a boolean", e.text, r)
		}
		return b, nil
	}
}

// Burn returns a BurnFunc that evaluates e with the feature attributes as
// variables. Numeric attributes are converted to float64.
func (e *Expression) Burn() BurnFunc {
	return func(attrs map[string]interface{}) (float64, error) {
		params := make(map[string]interface{}, len(attrs))
		for k, a := range attrs {
			if v, err := cast.ToFloat64E(a); err == nil {
				params[k] = v
			} else {
				params[k] = a
			}
		}
		r, err := e.eval(params)
		if err != nil {
			return math.NaN(), err
		}
		v, err := cast.ToFloat64E(r)
		if err != nil {
			return math.NaN(), fmt.Errorf("gridconv: expression %q returned %v, not a number", e.text, r)
		}
		return v, nil
	}
}

// Threshold returns a predicate selecting values in the closed range
// [min, max].
func Threshold(min, max float64) MaskPredicate {
	return func(v float64) (bool, error) { return v >= min && v <= max, nil }
}

// NotNoData is a predicate selecting every value.
func NotNoData(float64) (bool, error) { return true, nil }
