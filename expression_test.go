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
	"errors"
	"math"
	"reflect"
	"sort"
	"testing"
)

func TestExpressionPredicate(t *testing.T) {
	e, err := ParseExpression("value < 0 || value > 1000")
	if err != nil {
		t.Fatal(err)
	}
	p := e.Predicate()
	for v, want := range map[float64]bool{-1: true, 0: false, 500: false, 1000: false, 1001: true} {
		got, err := p(v)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("%g: got %v, want %v", v, got, want)
		}
	}

	e, err = ParseExpression("max(value, 3) == 3")
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := e.Predicate()(2); err != nil || !ok {
		t.Errorf("max: %v, %v", ok, err)
	}

	e, err = ParseExpression("value * 2")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Predicate()(1); err == nil {
		t.Error("numeric expression accepted as a predicate")
	}
}

func TestExpressionBurn(t *testing.T) {
	e, err := ParseExpression("{total pop} * 1.5 + abs(offset)")
	if err != nil {
		t.Fatal(err)
	}
	vars := e.Vars()
	sort.Strings(vars)
	if want := []string{"offset", "total pop"}; !reflect.DeepEqual(vars, want) {
		t.Errorf("vars %v, want %v", vars, want)
	}
	v, err := e.Burn()(map[string]interface{}{"total pop": "10", "offset": int32(-2)})
	if err != nil {
		t.Fatal(err)
	}
	if v != 17 {
		t.Errorf("burn = %g, want 17", v)
	}
	if _, err := e.Burn()(map[string]interface{}{"offset": 1}); err == nil {
		t.Error("missing attribute accepted")
	}
}

func TestBurnAttribute(t *testing.T) {
	b := BurnAttribute("height")
	if v, err := b(map[string]interface{}{"height": "12.5"}); err != nil || v != 12.5 {
		t.Errorf("got %g, %v", v, err)
	}
	if v, err := b(map[string]interface{}{}); err == nil || !math.IsNaN(v) {
		t.Errorf("missing attribute: %g, %v", v, err)
	}
	if _, err := b(map[string]interface{}{"height": "tall"}); err == nil {
		t.Error("non-numeric attribute accepted")
	}
}

func TestParseExpressionError(t *testing.T) {
	_, err := ParseExpression("value >")
	if !errors.Is(err, ErrIncompatibleOptions) {
		t.Errorf("got %v", err)
	}
}
