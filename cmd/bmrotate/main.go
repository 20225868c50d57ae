// main is the entry point of the bmrotate tool.
// It loads and validates the configuration, then either rotates
// blackmarket positions (all servers or one), lists server state,
// prints rotation history, or runs the scheduler loop.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/venomlabs/bmrotate/internal/config"
	"github.com/venomlabs/bmrotate/internal/game"
	"github.com/venomlabs/bmrotate/internal/history"
	"github.com/venomlabs/bmrotate/internal/logger"
	"github.com/venomlabs/bmrotate/internal/rotator"
	"github.com/venomlabs/bmrotate/internal/scheduler"
)

func main() {
	opts := config.ParseArgs()
	logger.Setup(opts.Logger)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		var report config.ValidationErrors
		if errors.As(err, &report) {
			fmt.Fprintln(os.Stderr, report.Error())
			os.Exit(1)
		}
		log.Fatal().Err(err).Str("config", opts.Config).Msg("Failed to load configuration")
	}

	if opts.List {
		listServers(cfg)
		return
	}

	// History journal
	var journal *history.Repository
	if cfg.Scheduler.HistoryDB != "" {
		journal, err = history.New(cfg.Scheduler.HistoryDB)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Scheduler.HistoryDB).Msg("Failed to open history database")
		}
		defer func() {
			if err := journal.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing history database")
			}
		}()
	}

	if opts.History > 0 {
		if journal == nil {
			log.Fatal().Msg("No history database configured, set scheduler_settings.history_db")
		}
		printHistory(journal, opts.History)
		return
	}

	runner := rotator.NewRunner(cfg, journal)

	// Graceful shutdown on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case opts.Scheduler:
		sched, err := scheduler.New(cfg, runner)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
		sched.Run(ctx)

	case opts.Server != "":
		if err := runner.RotateServer(ctx, opts.Server); err != nil {
			os.Exit(1)
		}

	default:
		servers := cfg.EnabledServers()
		if len(servers) == 0 {
			log.Fatal().Msg("No enabled servers in configuration")
		}
		rotated := runner.RotateBatch(ctx, servers, cfg.Scheduler.ServerDelayDuration())
		if rotated < len(servers) {
			os.Exit(1)
		}
	}
}

// listServers prints configured servers in configuration order, with a
// live A2S status line for servers that define a query address.
func listServers(cfg *config.Config) {
	fmt.Printf("Configured servers (%d):\n", len(cfg.ServerIDs))

	for _, id := range cfg.ServerIDs {
		srv := cfg.Servers[id]

		state := "enabled"
		if !srv.Enabled {
			state = "disabled"
		}
		fmt.Printf("  %-20s %-10s %s\n", id, state, srv.Name)

		if srv.QueryAddress == "" {
			continue
		}
		info, err := game.Query(srv.QueryAddress, game.DefaultTimeout)
		if err != nil {
			fmt.Printf("  %-20s %-10s offline (%v)\n", "", "", err)
			continue
		}
		fmt.Printf("  %-20s %-10s online: %s, map %s, players %d/%d\n",
			"", "", info.Name, info.Map, info.Players, info.MaxPlayers)
	}
}

// printHistory writes the most recent rotation records, newest first.
func printHistory(journal *history.Repository, limit int) {
	records, err := journal.Recent(limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read rotation history")
	}

	if len(records) == 0 {
		fmt.Println("No rotation history recorded yet")
		return
	}

	fmt.Printf("Last %d rotation(s):\n", len(records))
	for _, rec := range records {
		line := fmt.Sprintf("  %s  %-20s %-8s",
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			rec.ServerID, rec.Status)
		if rec.ToName != "" {
			line += fmt.Sprintf(" %s -> %s", rec.FromName, rec.ToName)
		}
		if rec.Detail != "" {
			line += "  (" + rec.Detail + ")"
		}
		fmt.Println(line)
	}
}
