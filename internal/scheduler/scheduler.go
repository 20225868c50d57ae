// Package scheduler drives rotations at configured wall-clock times.
// It is a poll-driven state machine: Idle until the current minute hits
// a configured rotation time, Firing while the batch runs, Cooldown
// until the minute advances so one configured time never fires twice.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/venomlabs/bmrotate/internal/config"
	"github.com/venomlabs/bmrotate/internal/logger"
	"github.com/venomlabs/bmrotate/internal/rotator"
)

type state int

const (
	stateIdle state = iota
	stateFiring
	stateCooldown
)

// Scheduler runs the automated rotation loop for one configuration.
type Scheduler struct {
	cfg    *config.Config
	runner *rotator.Runner
	log    zerolog.Logger
	close  func()

	times map[string]struct{}

	// firedAt is the "HH:MM" minute the last fire handled, compared
	// against the clock to leave Cooldown.
	firedAt string
	state   state
}

// New creates a scheduler over the runner. Events are logged to the
// configured run log file in addition to the console.
func New(cfg *config.Config, runner *rotator.Runner) (*Scheduler, error) {
	runLog, closer, err := logger.FileTee(cfg.Scheduler.LogFile)
	if err != nil {
		return nil, err
	}

	times := make(map[string]struct{}, len(cfg.Scheduler.RotationTimes))
	for _, t := range cfg.Scheduler.RotationTimes {
		times[t] = struct{}{}
	}

	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		log:    runLog,
		close:  closer,
		times:  times,
		state:  stateIdle,
	}, nil
}

// Run polls the clock until ctx is cancelled. It returns immediately
// when the scheduler is disabled in configuration.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.close()

	if !s.cfg.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return
	}

	interval := s.cfg.Scheduler.CheckIntervalDuration()
	s.log.Info().
		Strs("rotation_times", s.cfg.Scheduler.RotationTimes).
		Dur("check_interval", interval).
		Msg("Scheduler started, waiting for scheduled times")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx, time.Now())
		}
	}
}

// tick advances the state machine for one poll of the clock.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	minute := now.Format("15:04")

	if s.state == stateCooldown {
		if minute == s.firedAt {
			return
		}
		s.state = stateIdle
	}

	if _, due := s.times[minute]; !due {
		// Skip events reach the run log at debug level and up.
		s.log.Debug().Str("minute", minute).Msg("No rotation scheduled, skipping")
		return
	}

	s.state = stateFiring
	s.firedAt = minute
	s.fire(ctx, minute)
	s.state = stateCooldown
}

// fire rotates the scheduled target servers sequentially.
func (s *Scheduler) fire(ctx context.Context, minute string) {
	targets := s.cfg.SchedulerTargets()
	if len(targets) == 0 {
		s.log.Error().Str("minute", minute).Msg("Scheduled rotation fired but no servers are targeted")
		return
	}

	s.log.Info().
		Str("minute", minute).
		Int("servers", len(targets)).
		Msg("Scheduled rotation firing")

	rotated := s.runner.RotateBatch(ctx, targets, s.cfg.Scheduler.ServerDelayDuration())

	if rotated == len(targets) {
		s.log.Info().
			Str("minute", minute).
			Int("rotated", rotated).
			Msg("Scheduled rotation complete")
	} else {
		s.log.Error().
			Str("minute", minute).
			Int("rotated", rotated).
			Int("servers", len(targets)).
			Msg("Scheduled rotation finished with failures")
	}
}
