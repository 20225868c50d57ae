// Package rotator advances a server's blackmarket to the next
// configured position: it detects the current position from the live
// map file, rewrites the map and trader zone files, and reports the
// transition.
package rotator

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/venomlabs/bmrotate/internal/catalog"
	"github.com/venomlabs/bmrotate/internal/config"
	"github.com/venomlabs/bmrotate/internal/mapfile"
	"github.com/venomlabs/bmrotate/internal/traderzone"
)

// Result describes a completed (or partially completed) rotation.
type Result struct {
	// To is the position the server was moved to.
	To catalog.Position

	// FromName names the previous position, or "unknown" when the map
	// file coordinates matched no configured position.
	FromName string

	// Checksum is the xxhash of the rewritten map file content.
	Checksum uint64

	FromIndex int
	ToIndex   int

	// Matched is false when the engine fell back to index 0 because the
	// current coordinates matched nothing.
	Matched bool
}

// ChecksumHex renders the map checksum the way the history journal
// stores it.
func (r *Result) ChecksumHex() string {
	return strconv.FormatUint(r.Checksum, 16)
}

// PartialError reports a rotation that rewrote the map file but failed
// on the trader zone file. The two files are now inconsistent and need
// manual reconciliation; the engine never rolls back or retries, since
// re-applying a half-done rewrite risks double rotation.
type PartialError struct {
	Result *Result
	Err    error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("map file updated to %q but trader zone update failed: %v", e.Result.To.Name, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// Engine performs rotations against a fixed position catalog.
type Engine struct {
	catalog *catalog.Catalog
}

// New creates an engine over the catalog.
func New(c *catalog.Catalog) *Engine {
	return &Engine{catalog: c}
}

// Rotate moves srv to the position following its current one. The
// current position is inferred from the map file each time, so the map
// file itself is the durable state and repeated invocations walk the
// configured sequence. Unknown coordinates fall back to index 0 so
// rotation always makes forward progress.
func (e *Engine) Rotate(srv *config.Server) (*Result, error) {
	current, err := mapfile.ReadVendingCoords(srv.MapFilePath)
	if err != nil {
		return nil, fmt.Errorf("read current position: %w", err)
	}

	i, matched := e.catalog.Match(current)
	fromName := "unknown"
	if matched {
		fromName = e.catalog.At(i).Name
	} else {
		log.Warn().
			Str("server", srv.ID).
			Str("coordinates", current.String()).
			Msg("Current coordinates match no configured position, falling back to first")
	}

	j := e.catalog.Next(i)
	to := e.catalog.At(j)

	sum, err := mapfile.Rewrite(srv.MapFilePath, to)
	if err != nil {
		return nil, fmt.Errorf("update map file: %w", err)
	}

	result := &Result{
		To:        to,
		FromName:  fromName,
		FromIndex: i,
		ToIndex:   j,
		Matched:   matched,
		Checksum:  sum,
	}

	if _, err := traderzone.Rewrite(srv.TraderZoneFilePath, to.VendingCoordinates); err != nil {
		return result, &PartialError{Result: result, Err: err}
	}

	return result, nil
}
