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

package convert

import "fmt"

// Stage names a step of a conversion.
type Stage string

// Conversion stages, in the order they run.
const (
	StageRead       Stage = "read"
	StageMask       Stage = "mask"
	StageResample   Stage = "resample"
	StageReproject  Stage = "reproject"
	StageRasterize  Stage = "rasterize"
	StagePolygonize Stage = "polygonize"
	StageWrite      Stage = "write"
)

// ConversionFailed reports the stage at which a conversion stopped.
// Err is the error returned by the failing component, usually a
// *gridconv.Error.
type ConversionFailed struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *ConversionFailed) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("gridconv: conversion failed at %s stage (%s): %v", e.Stage, e.Path, e.Err)
	}
	return fmt.Sprintf("gridconv: conversion failed at %s stage: %v", e.Stage, e.Err)
}

func (e *ConversionFailed) Unwrap() error { return e.Err }
