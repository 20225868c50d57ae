package rotator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/venomlabs/bmrotate/internal/catalog"
	"github.com/venomlabs/bmrotate/internal/config"
	"github.com/venomlabs/bmrotate/internal/history"
	"github.com/venomlabs/bmrotate/internal/mapfile"
	"github.com/venomlabs/bmrotate/internal/notify"
)

// Runner orchestrates rotations across servers: it drives the engine,
// announces successful moves, and journals every attempt. Servers are
// always processed strictly sequentially, so file writes never race and
// announcements follow configured server order.
type Runner struct {
	cfg      *config.Config
	engine   *Engine
	notifier *notify.Notifier

	// journal may be nil when no history database is configured.
	journal *history.Repository
}

// NewRunner wires a runner over the validated configuration.
func NewRunner(cfg *config.Config, journal *history.Repository) *Runner {
	return &Runner{
		cfg:      cfg,
		engine:   New(catalog.New(cfg.Positions)),
		notifier: notify.New(cfg.Global),
		journal:  journal,
	}
}

// RotateServer rotates a single server by id and reports the outcome.
// A rotation error is scoped to this server; the caller decides whether
// a batch continues.
func (r *Runner) RotateServer(ctx context.Context, id string) error {
	srv, ok := r.cfg.Servers[id]
	if !ok {
		err := fmt.Errorf("server %q not found, available: %s", id, strings.Join(r.cfg.ServerIDs, ", "))
		log.Error().Err(err).Msg("Unknown server")
		return err
	}
	if !srv.Enabled {
		log.Warn().Str("server", id).Msg("Server is disabled, rotating anyway")
	}

	r.checkDrift(srv)

	result, err := r.engine.Rotate(srv)

	var partial *PartialError
	switch {
	case err == nil:
		log.Info().
			Str("server", id).
			Str("from", result.FromName).
			Str("to", result.To.Name).
			Int("position", result.ToIndex+1).
			Int("total", len(r.cfg.Positions)).
			Str("map_checksum", result.ChecksumHex()).
			Msg("Blackmarket rotated")
		r.record(srv, result, history.StatusRotated, "")

		// The rotation already happened: a failed announcement is
		// logged and swallowed, never retried.
		if nerr := r.notifier.Announce(ctx, srv, result.To); nerr != nil {
			log.Warn().Err(nerr).Str("server", id).Msg("Failed to send rotation announcement")
		}
		return nil

	case errors.As(err, &partial):
		log.Error().Err(partial.Err).
			Str("server", id).
			Str("to", partial.Result.To.Name).
			Msg("Partial rotation: map file moved, trader zone did not")
		r.record(srv, partial.Result, history.StatusPartial, partial.Err.Error())
		return err

	default:
		log.Error().Err(err).Str("server", id).Msg("Rotation failed")
		r.recordFailure(srv, err)
		return err
	}
}

// RotateBatch rotates the given servers in order with the configured
// delay between them. Per-server failures are logged and do not stop
// the batch. It returns how many servers rotated fully.
func (r *Runner) RotateBatch(ctx context.Context, servers []*config.Server, delay time.Duration) int {
	rotated := 0
	for i, srv := range servers {
		if i > 0 && delay > 0 {
			log.Debug().Dur("delay", delay).Msg("Waiting before next server")
			if !sleep(ctx, delay) {
				log.Info().Msg("Batch rotation interrupted")
				return rotated
			}
		}

		if err := r.RotateServer(ctx, srv.ID); err == nil {
			rotated++
		}
	}

	log.Info().
		Int("rotated", rotated).
		Int("total", len(servers)).
		Msg("Batch rotation complete, restart the game servers for changes to take effect")

	return rotated
}

// checkDrift compares the map file against the checksum of the last
// journaled rotation and warns when the file was edited out-of-band.
// Detection only, rotation proceeds either way.
func (r *Runner) checkDrift(srv *config.Server) {
	if r.journal == nil {
		return
	}

	last, err := r.journal.LastChecksum(srv.ID)
	if err != nil || last == "" {
		return
	}

	sum, err := mapfile.Checksum(srv.MapFilePath)
	if err != nil {
		return
	}

	if current := strconv.FormatUint(sum, 16); current != last {
		log.Warn().
			Str("server", srv.ID).
			Str("recorded", last).
			Str("current", current).
			Msg("Map file changed since the last recorded rotation")
	}
}

// record journals a finished rotation attempt.
func (r *Runner) record(srv *config.Server, result *Result, status, detail string) {
	if r.journal == nil {
		return
	}

	rec := history.Record{
		ServerID:    srv.ID,
		ServerName:  srv.Name,
		FromName:    result.FromName,
		ToName:      result.To.Name,
		FromIndex:   result.FromIndex,
		ToIndex:     result.ToIndex,
		Status:      status,
		MapChecksum: result.ChecksumHex(),
		Detail:      detail,
	}
	if err := r.journal.Insert(rec); err != nil {
		log.Warn().Err(err).Str("server", srv.ID).Msg("Failed to record rotation history")
	}
}

// recordFailure journals an attempt that did not move the map file.
func (r *Runner) recordFailure(srv *config.Server, cause error) {
	if r.journal == nil {
		return
	}

	rec := history.Record{
		ServerID:   srv.ID,
		ServerName: srv.Name,
		Status:     history.StatusFailed,
		Detail:     cause.Error(),
	}
	if err := r.journal.Insert(rec); err != nil {
		log.Warn().Err(err).Str("server", srv.ID).Msg("Failed to record rotation history")
	}
}

// sleep waits for d unless the context is cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
