// Package granule locates the observation pixel nearest a target
// coordinate inside one granule's hierarchical array groups and extracts
// its reflectance spectrum as a single-time-step record.
package granule

import (
	"errors"
	"fmt"
)

var errEmptyGrid = errors.New("navigation grid is empty")

// errShape reports an array whose dimensions do not line up with the rest
// of the granule.
type errShape struct {
	got  []int
	want string
}

func (e errShape) Error() string {
	return fmt.Sprintf("unexpected shape %v, want %s", e.got, e.want)
}

// Group and variable names of the L2 ocean-color granule layout.
const (
	GroupNavigation = "navigation_data"
	GroupGeophysics = "geophysical_data"
	GroupBands      = "sensor_band_parameters"

	VarLatitude   = "latitude"
	VarLongitude  = "longitude"
	VarWavelength = "wavelength"
	VarFlags      = "l2_flags"

	AttrTimeCoverageStart = "time_coverage_start"
)

// Array is a multi-dimensional numeric variable flattened in row-major
// order, with its shape kept alongside.
type Array struct {
	Data  []float64
	Shape []int
}

// IntArray is an integer variable, used for bitmask flags.
type IntArray struct {
	Data  []int64
	Shape []int
}

// Len returns the total element count implied by the shape.
func (a *Array) Len() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Group exposes the named variables and attributes of one sub-structure
// of a granule.
type Group interface {
	// Floats reads a numeric variable as float64 data with its shape.
	Floats(name string) (*Array, error)

	// Ints reads an integer variable, preserving exact bit patterns.
	Ints(name string) (*IntArray, error)

	// Attr returns a string attribute of the group.
	Attr(name string) (string, bool)
}

// Source is an open granule exposing its named sub-structures. Close
// releases the underlying reader.
type Source interface {
	Group(name string) (Group, error)
	Close() error
}

// unravel converts a flat row-major index into (row, column) for a 2D
// shape.
func unravel(idx int, shape []int) (int, int, error) {
	if len(shape) != 2 {
		return 0, 0, fmt.Errorf("expected 2D shape, got %dD", len(shape))
	}
	nx := shape[1]
	if nx <= 0 {
		return 0, 0, fmt.Errorf("invalid shape %v", shape)
	}
	return idx / nx, idx % nx, nil
}
