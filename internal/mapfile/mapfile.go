// Package mapfile reads and rewrites the blackmarket entries of a DayZ
// Expansion object spawner map file. Each entry is a single line of the
// form "<classname>.<group>|<x> <y> <z>|<yaw> <pitch> <roll>"; only the
// two blackmarket lines are ever touched, everything else is preserved
// byte for byte.
package mapfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/venomlabs/bmrotate/internal/catalog"
)

// Entry groups used to locate the blackmarket lines inside a map file.
const (
	VendingGroup = "Blackmarket"
	VehicleGroup = "Blackmarket_Vehicles"
)

// ErrEntryNotFound indicates the expected blackmarket entry is missing
// from the map file, which points at a config/file mismatch.
var ErrEntryNotFound = errors.New("entry not found in map file")

// ReadVendingCoords locates the vending structure entry and returns its
// coordinates.
func ReadVendingCoords(path string) (catalog.Coords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return catalog.Coords{}, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !isGroupLine(line, VendingGroup) {
			continue
		}

		coords, err := parseCoords(line)
		if err != nil {
			return catalog.Coords{}, fmt.Errorf("%s: %w", path, err)
		}
		return coords, nil
	}

	return catalog.Coords{}, fmt.Errorf("%s: %s entry: %w", path, VendingGroup, ErrEntryNotFound)
}

// Rewrite replaces the vending and vehicle entries with the given
// position and atomically swaps the file into place. It returns the
// xxhash checksum of the written content. Both entries must already
// exist in the file.
func Rewrite(path string, pos catalog.Position) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	lines := strings.Split(string(data), "\n")
	vendingDone := false
	vehicleDone := false

	for i, line := range lines {
		switch {
		case isGroupLine(line, VendingGroup):
			lines[i] = FormatLine(pos.VendingClassname, VendingGroup, pos.VendingCoordinates, pos.VendingRotation)
			vendingDone = true
		case isGroupLine(line, VehicleGroup):
			lines[i] = FormatLine(pos.VehicleClassname, VehicleGroup, pos.VehicleCoordinates, pos.VehicleRotation)
			vehicleDone = true
		}
	}

	if !vendingDone {
		return 0, fmt.Errorf("%s: %s entry: %w", path, VendingGroup, ErrEntryNotFound)
	}
	if !vehicleDone {
		return 0, fmt.Errorf("%s: %s entry: %w", path, VehicleGroup, ErrEntryNotFound)
	}

	content := []byte(strings.Join(lines, "\n"))
	if err := replaceFile(path, content); err != nil {
		return 0, err
	}

	return xxhash.Sum64(content), nil
}

// Checksum returns the xxhash of the map file content as it is on
// disk, comparable against the value Rewrite returned for it.
func Checksum(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	return xxhash.Sum64(data), nil
}

// FormatLine renders one object spawner entry.
func FormatLine(classname, group string, coords, rotation catalog.Coords) string {
	return fmt.Sprintf("%s.%s|%s|%s", classname, group, coords, rotation)
}

// isGroupLine reports whether the line's entity name carries the given
// group suffix. Vending and vehicle groups share a prefix, so the match
// is exact on the part after the dot.
func isGroupLine(line, group string) bool {
	name, _, ok := strings.Cut(strings.TrimSpace(line), "|")
	if !ok {
		return false
	}

	_, suffix, ok := strings.Cut(name, ".")
	return ok && suffix == group
}

// parseCoords extracts the coordinate triple from an entry line.
func parseCoords(line string) (catalog.Coords, error) {
	parts := strings.Split(strings.TrimSpace(line), "|")
	if len(parts) < 2 {
		return catalog.Coords{}, fmt.Errorf("malformed entry line %q", line)
	}

	fields := strings.Fields(parts[1])
	if len(fields) < 3 {
		return catalog.Coords{}, fmt.Errorf("malformed coordinates in line %q", line)
	}

	var coords catalog.Coords
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return catalog.Coords{}, fmt.Errorf("malformed coordinate %q in line %q", fields[i], line)
		}
		coords[i] = v
	}

	return coords, nil
}

// replaceFile writes content to a temporary file next to path and
// renames it into place, so a crash never leaves a truncated file.
func replaceFile(path string, content []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode()
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, mode); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}
