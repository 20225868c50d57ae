package mapfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/venomlabs/bmrotate/internal/catalog"
)

const sampleMap = `SurvivorM_Boris|7500.0 300.0 7500.0|0.0 0.0 0.0
bldr_Land_Wreck_Ural.Blackmarket|1542.3 410 14021.9|45 0 0
Land_Mil_Barracks6|1600.0 411.0 14050.0|90.0 0.0 0.0
ExpansionUh1h.Blackmarket_Vehicles|1550 410.2 14030|0 0 0
StaticObj_Misc_Barrel|1601.0 411.0 14051.0|0.0 0.0 0.0
`

func writeMap(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blackmarket.map")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func nextPosition() catalog.Position {
	return catalog.Position{
		Name:               "Skalisty Island",
		VendingClassname:   "bldr_Land_Wreck_Ural",
		VendingCoordinates: catalog.Coords{13571.6, 3.2, 2973},
		VendingRotation:    catalog.Coords{180, 0, 0},
		VehicleClassname:   "ExpansionUh1h",
		VehicleCoordinates: catalog.Coords{13580.1, 3, 2980.5},
		VehicleRotation:    catalog.Coords{90, 0, 0},
	}
}

func TestReadVendingCoords(t *testing.T) {
	path := writeMap(t, sampleMap)

	coords, err := ReadVendingCoords(path)
	if err != nil {
		t.Fatalf("ReadVendingCoords: %v", err)
	}
	if coords != (catalog.Coords{1542.3, 410, 14021.9}) {
		t.Errorf("coords = %v; want [1542.3 410 14021.9]", coords)
	}
}

func TestReadVendingCoordsMissingEntry(t *testing.T) {
	path := writeMap(t, "SurvivorM_Boris|1 2 3|0 0 0\n")

	_, err := ReadVendingCoords(path)
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("err = %v; want ErrEntryNotFound", err)
	}
}

func TestReadVendingCoordsMalformed(t *testing.T) {
	path := writeMap(t, "bldr_Land_Wreck_Ural.Blackmarket|not numbers here|0 0 0\n")

	if _, err := ReadVendingCoords(path); err == nil {
		t.Error("malformed coordinates accepted; want error")
	}
}

func TestRewriteTargetedOnly(t *testing.T) {
	path := writeMap(t, sampleMap)

	if _, err := Rewrite(path, nextPosition()); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	got := strings.Split(string(data), "\n")
	want := strings.Split(sampleMap, "\n")
	if len(got) != len(want) {
		t.Fatalf("line count changed: got %d, want %d", len(got), len(want))
	}

	// Untouched lines survive byte for byte.
	for _, i := range []int{0, 2, 4, 5} {
		if got[i] != want[i] {
			t.Errorf("line %d changed: %q -> %q", i, want[i], got[i])
		}
	}

	if got[1] != "bldr_Land_Wreck_Ural.Blackmarket|13571.6 3.2 2973|180 0 0" {
		t.Errorf("vending line = %q", got[1])
	}
	if got[3] != "ExpansionUh1h.Blackmarket_Vehicles|13580.1 3 2980.5|90 0 0" {
		t.Errorf("vehicle line = %q", got[3])
	}
}

func TestRewriteRoundTrip(t *testing.T) {
	path := writeMap(t, sampleMap)
	pos := nextPosition()

	if _, err := Rewrite(path, pos); err != nil {
		t.Fatal(err)
	}

	coords, err := ReadVendingCoords(path)
	if err != nil {
		t.Fatal(err)
	}
	if !coords.Within(pos.VendingCoordinates, catalog.Tolerance) {
		t.Errorf("read back %v; want %v", coords, pos.VendingCoordinates)
	}
}

func TestRewriteMissingEntryFails(t *testing.T) {
	// Vehicle entry absent: must fail, not silently append.
	path := writeMap(t, "bldr_Land_Wreck_Ural.Blackmarket|1 2 3|0 0 0\n")
	before, _ := os.ReadFile(path)

	_, err := Rewrite(path, nextPosition())
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("err = %v; want ErrEntryNotFound", err)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("file modified despite failed rewrite")
	}
}

func TestRewriteLeavesNoTempFile(t *testing.T) {
	path := writeMap(t, sampleMap)

	if _, err := Rewrite(path, nextPosition()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind after rewrite")
	}
}

func TestRewriteChecksumStable(t *testing.T) {
	pathA := writeMap(t, sampleMap)
	pathB := writeMap(t, sampleMap)

	sumA, err := Rewrite(pathA, nextPosition())
	if err != nil {
		t.Fatal(err)
	}
	sumB, err := Rewrite(pathB, nextPosition())
	if err != nil {
		t.Fatal(err)
	}
	if sumA != sumB || sumA == 0 {
		t.Errorf("checksums differ: %x vs %x", sumA, sumB)
	}
}
