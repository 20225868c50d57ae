// Package catalog holds the ordered list of blackmarket positions and
// the coordinate matching rules used to detect the current one.
package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Tolerance is the per-axis slack, in map units, used when comparing
// coordinates read back from a map file against configured positions.
// Coordinates round-trip through text with limited precision.
const Tolerance = 0.5

// Coords is an X, Y, Z triple in map units.
type Coords [3]float64

// UnmarshalJSON enforces exactly three numeric values.
func (c *Coords) UnmarshalJSON(data []byte) error {
	var values []float64
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	if len(values) != 3 {
		return fmt.Errorf("expected 3 values [X, Y, Z], got %d", len(values))
	}

	copy(c[:], values)
	return nil
}

// String renders the coordinates the way map file lines carry them.
func (c Coords) String() string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}

	return strings.Join(parts, " ")
}

// Within reports whether every axis of c is within tol of other.
func (c Coords) Within(other Coords, tol float64) bool {
	for i := range c {
		d := c[i] - other[i]
		if d < -tol || d > tol {
			return false
		}
	}

	return true
}

// Position is one configured blackmarket placement: the vending
// structure and its paired vehicle spawn, plus display metadata.
type Position struct {
	Name               string `json:"name"`
	VendingClassname   string `json:"vending_classname"`
	VendingCoordinates Coords `json:"vending_coordinates"`
	VendingRotation    Coords `json:"vending_rotation"`
	VehicleClassname   string `json:"vehicle_classname"`
	VehicleCoordinates Coords `json:"vehicle_coordinates"`
	VehicleRotation    Coords `json:"vehicle_rotation"`
	ImagePath          string `json:"image_path,omitempty"`
}

// Catalog is an immutable ordered sequence of positions. Order comes
// verbatim from configuration and defines rotation succession.
type Catalog struct {
	positions []Position
}

// New creates a catalog over the given positions.
func New(positions []Position) *Catalog {
	return &Catalog{positions: positions}
}

// Len returns the number of configured positions.
func (c *Catalog) Len() int {
	return len(c.positions)
}

// At returns the position at index i.
func (c *Catalog) At(i int) Position {
	return c.positions[i]
}

// Next returns the index following i, wrapping from the last position
// back to the first.
func (c *Catalog) Next(i int) int {
	return (i + 1) % len(c.positions)
}

// Match returns the index of the position whose vending coordinates
// equal coords within Tolerance on all three axes, or false if none do.
func (c *Catalog) Match(coords Coords) (int, bool) {
	for i, p := range c.positions {
		if coords.Within(p.VendingCoordinates, Tolerance) {
			return i, true
		}
	}

	return 0, false
}
