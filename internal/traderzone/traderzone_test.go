package traderzone

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/venomlabs/bmrotate/internal/catalog"
)

const sampleZone = `{
    "m_Version": 12,
    "m_DisplayName": "Blackmarket",
    "Position": [1542.3, 410.0, 14021.9],
    "Radius": 150.0,
    "BuyPricePercent": 100.0,
    "SellPricePercent": -1.0,
    "Stock": {
        "AmmoBox_00762_25rnd": 40,
        "NVGHeadstrap": 3
    }
}`

func writeZone(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Blackmarket.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRewrite(t *testing.T) {
	path := writeZone(t, sampleZone)
	coords := catalog.Coords{13571.6, 3.2, 2973}

	previous, err := Rewrite(path, coords)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if previous != (catalog.Coords{1542.3, 410, 14021.9}) {
		t.Errorf("previous = %v; want [1542.3 410 14021.9]", previous)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var zone struct {
		Version          int            `json:"m_Version"`
		DisplayName      string         `json:"m_DisplayName"`
		Position         catalog.Coords `json:"Position"`
		Radius           float64        `json:"Radius"`
		BuyPricePercent  float64        `json:"BuyPricePercent"`
		SellPricePercent float64        `json:"SellPricePercent"`
		Stock            map[string]int `json:"Stock"`
	}
	if err := json.Unmarshal(data, &zone); err != nil {
		t.Fatalf("rewritten file is not valid JSON: %v", err)
	}

	if zone.Position != coords {
		t.Errorf("Position = %v; want %v", zone.Position, coords)
	}

	// Everything else is preserved.
	if zone.Version != 12 || zone.DisplayName != "Blackmarket" || zone.Radius != 150 {
		t.Errorf("zone metadata changed: %+v", zone)
	}
	if zone.BuyPricePercent != 100 || zone.SellPricePercent != -1 {
		t.Errorf("price settings changed: %+v", zone)
	}
	if zone.Stock["AmmoBox_00762_25rnd"] != 40 || zone.Stock["NVGHeadstrap"] != 3 {
		t.Errorf("stock changed: %v", zone.Stock)
	}
}

func TestRewritePreservesKeyOrder(t *testing.T) {
	path := writeZone(t, sampleZone)

	if _, err := Rewrite(path, catalog.Coords{1, 2, 3}); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// Keys come back in the order the operator wrote them, not sorted.
	order := []string{
		`"m_Version"`, `"m_DisplayName"`, `"Position"`,
		`"Radius"`, `"BuyPricePercent"`, `"SellPricePercent"`, `"Stock"`,
	}
	last := -1
	for _, key := range order {
		i := strings.Index(string(data), key)
		if i < 0 {
			t.Fatalf("key %s missing from rewritten file:\n%s", key, data)
		}
		if i < last {
			t.Fatalf("key %s out of original order:\n%s", key, data)
		}
		last = i
	}
}

func TestRewriteNoPosition(t *testing.T) {
	path := writeZone(t, `{"m_DisplayName": "Blackmarket", "Radius": 150.0}`)
	before, _ := os.ReadFile(path)

	_, err := Rewrite(path, catalog.Coords{1, 2, 3})
	if !errors.Is(err, ErrNoPosition) {
		t.Fatalf("err = %v; want ErrNoPosition", err)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("file modified despite failed rewrite")
	}
}

func TestRewriteInvalidJSON(t *testing.T) {
	path := writeZone(t, `{"Position": [1, 2, 3`)

	if _, err := Rewrite(path, catalog.Coords{1, 2, 3}); err == nil {
		t.Error("invalid JSON accepted; want error")
	}
}

func TestRewriteMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	if _, err := Rewrite(path, catalog.Coords{1, 2, 3}); !os.IsNotExist(err) {
		t.Errorf("err = %v; want not-exist", err)
	}
}
