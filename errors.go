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
	"fmt"
	"strings"
)

// ErrorKind classifies a failure reported by this module.
type ErrorKind int

// Error kinds. Underlying library errors are always reported as one of
// these, with the library error kept as the cause.
const (
	SourceNotFound ErrorKind = iota + 1
	CorruptSource
	MissingGeoreference
	UnsupportedFormat
	ShapeMismatch
	InvalidCRS
	CRSMismatch
	UnwritableTarget
	IncompatibleOptions
	IndexOutOfRange
	InvalidGeometry
)

var errorKindNames = map[ErrorKind]string{
	SourceNotFound:      "source not found",
	CorruptSource:       "corrupt source",
	MissingGeoreference: "missing georeference",
	UnsupportedFormat:   "unsupported format",
	ShapeMismatch:       "shape mismatch",
	InvalidCRS:          "invalid CRS",
	CRSMismatch:         "CRS mismatch",
	UnwritableTarget:    "unwritable target",
	IncompatibleOptions: "incompatible options",
	IndexOutOfRange:     "index out of range",
	InvalidGeometry:     "invalid geometry",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Error is the error type returned by readers, writers and the grid
// model. Path and Variable identify the offending input when known.
type Error struct {
	Kind     ErrorKind
	Path     string
	Variable string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("gridconv: ")
	b.WriteString(e.Kind.String())
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s", e.Path)
		if e.Variable != "" {
			fmt.Fprintf(&b, ", %s", e.Variable)
		}
		b.WriteString(")")
	} else if e.Variable != "" {
		fmt.Fprintf(&b, " (%s)", e.Variable)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, ErrShapeMismatch) works for any wrapped *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel values for use with errors.Is.
var (
	ErrSourceNotFound      = &Error{Kind: SourceNotFound}
	ErrCorruptSource       = &Error{Kind: CorruptSource}
	ErrMissingGeoreference = &Error{Kind: MissingGeoreference}
	ErrUnsupportedFormat   = &Error{Kind: UnsupportedFormat}
	ErrShapeMismatch       = &Error{Kind: ShapeMismatch}
	ErrInvalidCRS          = &Error{Kind: InvalidCRS}
	ErrCRSMismatch         = &Error{Kind: CRSMismatch}
	ErrUnwritableTarget    = &Error{Kind: UnwritableTarget}
	ErrIncompatibleOptions = &Error{Kind: IncompatibleOptions}
	ErrIndexOutOfRange     = &Error{Kind: IndexOutOfRange}
	ErrInvalidGeometry     = &Error{Kind: InvalidGeometry}
)

// ErrNoData is returned by statistical reductions when every cell
// is nodata.
var ErrNoData = errors.New("gridconv: no data")

// Errorf returns an *Error of the given kind whose cause is formatted
// from format and args.
func Errorf(kind ErrorKind, path, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Path: path, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
