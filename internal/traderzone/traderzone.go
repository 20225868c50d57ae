// Package traderzone rewrites the Position of a trader zone descriptor
// file. Everything besides the Position array (stock levels, price
// percents, categories) passes through untouched, and keys keep the
// order the operator wrote them in.
package traderzone

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/venomlabs/bmrotate/internal/catalog"
)

// ErrNoPosition indicates the descriptor carries no Position field,
// meaning the configured file is not a trader zone at all.
var ErrNoPosition = errors.New(`trader zone file has no "Position" field`)

// zone holds the descriptor's top-level members in file order.
type zone struct {
	values map[string]json.RawMessage
	keys   []string
}

// Rewrite replaces the zone's Position with coords and atomically swaps
// the file into place. It returns the previous position.
func Rewrite(path string, coords catalog.Coords) (catalog.Coords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return catalog.Coords{}, err
	}

	z, err := parse(data)
	if err != nil {
		return catalog.Coords{}, fmt.Errorf("%s: %w", path, err)
	}

	raw, ok := z.values["Position"]
	if !ok {
		return catalog.Coords{}, fmt.Errorf("%s: %w", path, ErrNoPosition)
	}

	var previous catalog.Coords
	if err := json.Unmarshal(raw, &previous); err != nil {
		return catalog.Coords{}, fmt.Errorf("%s: malformed Position: %w", path, err)
	}

	updated, err := json.Marshal(coords)
	if err != nil {
		return catalog.Coords{}, err
	}
	z.values["Position"] = updated

	content, err := z.render()
	if err != nil {
		return catalog.Coords{}, fmt.Errorf("%s: %w", path, err)
	}

	if err := replaceFile(path, content); err != nil {
		return catalog.Coords{}, err
	}

	return previous, nil
}

// parse reads the descriptor's top-level object member by member so
// the key order survives the round trip; a plain map would re-emit
// keys sorted.
func parse(data []byte) (*zone, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("trader zone must be a JSON object")
	}

	z := &zone{values: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v in trader zone", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}

		z.keys = append(z.keys, key)
		z.values[key] = raw
	}

	return z, nil
}

// render writes the descriptor back out, indented, keys in their
// original order.
func (z *zone) render() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n")

	for i, key := range z.keys {
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}

		buf.WriteString("    ")
		buf.Write(name)
		buf.WriteString(": ")

		if err := json.Indent(&buf, z.values[key], "    ", "    "); err != nil {
			return nil, err
		}

		if i < len(z.keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}

	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// replaceFile writes content to a temporary file next to path and
// renames it into place.
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
