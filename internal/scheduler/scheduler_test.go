package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/venomlabs/bmrotate/internal/catalog"
	"github.com/venomlabs/bmrotate/internal/config"
	"github.com/venomlabs/bmrotate/internal/mapfile"
	"github.com/venomlabs/bmrotate/internal/rotator"
)

func testPositions() []catalog.Position {
	return []catalog.Position{
		{Name: "Alpha", VendingClassname: "a", VehicleClassname: "b",
			VendingCoordinates: catalog.Coords{1000, 10, 1000},
			VehicleCoordinates: catalog.Coords{1010, 10, 1010}},
		{Name: "Bravo", VendingClassname: "a", VehicleClassname: "b",
			VendingCoordinates: catalog.Coords{2000, 20, 2000},
			VehicleCoordinates: catalog.Coords{2010, 20, 2010}},
	}
}

// testSetup builds a one-server config with live files at position 0.
func testSetup(t *testing.T) (*config.Config, *config.Server) {
	t.Helper()
	dir := t.TempDir()
	pos := testPositions()

	mapPath := filepath.Join(dir, "blackmarket.map")
	mapContent := mapfile.FormatLine("a", mapfile.VendingGroup, pos[0].VendingCoordinates, pos[0].VendingRotation) + "\n" +
		mapfile.FormatLine("b", mapfile.VehicleGroup, pos[0].VehicleCoordinates, pos[0].VehicleRotation) + "\n"
	if err := os.WriteFile(mapPath, []byte(mapContent), 0644); err != nil {
		t.Fatal(err)
	}

	zonePath := filepath.Join(dir, "Blackmarket.json")
	if err := os.WriteFile(zonePath, []byte(`{"Position": [0, 0, 0]}`), 0644); err != nil {
		t.Fatal(err)
	}

	srv := &config.Server{
		ID: "s1", Name: "Server 1", Enabled: true,
		MapFilePath: mapPath, TraderZoneFilePath: zonePath,
	}
	cfg := &config.Config{
		Servers:   map[string]*config.Server{"s1": srv},
		ServerIDs: []string{"s1"},
		Positions: pos,
		Scheduler: &config.SchedulerSettings{
			Enabled:          true,
			RotationTimes:    []string{"03:00"},
			RotateAllServers: true,
			CheckInterval:    1,
		},
	}
	return cfg, srv
}

func newTestScheduler(t *testing.T, cfg *config.Config) *Scheduler {
	t.Helper()
	s, err := New(cfg, rotator.NewRunner(cfg, nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.close)
	return s
}

func at(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		t.Fatal(err)
	}
	return parsed
}

func currentCoords(t *testing.T, srv *config.Server) catalog.Coords {
	t.Helper()
	coords, err := mapfile.ReadVendingCoords(srv.MapFilePath)
	if err != nil {
		t.Fatal(err)
	}
	return coords
}

func TestTickFiresOncePerMinute(t *testing.T) {
	cfg, srv := testSetup(t)
	s := newTestScheduler(t, cfg)
	ctx := context.Background()
	pos := testPositions()

	// Several polls inside the same scheduled minute: exactly one fire.
	s.tick(ctx, at(t, "2026-08-30 03:00:05"))
	if s.state != stateCooldown {
		t.Fatalf("state after fire = %d; want cooldown", s.state)
	}
	s.tick(ctx, at(t, "2026-08-30 03:00:35"))
	s.tick(ctx, at(t, "2026-08-30 03:00:55"))

	if got := currentCoords(t, srv); !got.Within(pos[1].VendingCoordinates, catalog.Tolerance) {
		t.Errorf("coords = %v; want rotated exactly once to %v", got, pos[1].VendingCoordinates)
	}
}

func TestTickIdleOutsideRotationTimes(t *testing.T) {
	cfg, srv := testSetup(t)
	s := newTestScheduler(t, cfg)
	pos := testPositions()

	s.tick(context.Background(), at(t, "2026-08-30 02:59:55"))
	s.tick(context.Background(), at(t, "2026-08-30 04:00:00"))

	if s.state != stateIdle {
		t.Errorf("state = %d; want idle", s.state)
	}
	if got := currentCoords(t, srv); !got.Within(pos[0].VendingCoordinates, catalog.Tolerance) {
		t.Errorf("coords = %v; want untouched", got)
	}
}

func TestTickCooldownClearsNextMinute(t *testing.T) {
	cfg, srv := testSetup(t)
	cfg.Scheduler.RotationTimes = []string{"03:00", "03:01"}
	s := newTestScheduler(t, cfg)
	ctx := context.Background()
	pos := testPositions()

	s.tick(ctx, at(t, "2026-08-30 03:00:10"))
	s.tick(ctx, at(t, "2026-08-30 03:00:40"))
	// Minute advanced: cooldown clears and the next configured time fires.
	s.tick(ctx, at(t, "2026-08-30 03:01:10"))

	// Two rotations on a two-position catalog: back at the start.
	if got := currentCoords(t, srv); !got.Within(pos[0].VendingCoordinates, catalog.Tolerance) {
		t.Errorf("coords = %v; want two full rotations back to %v", got, pos[0].VendingCoordinates)
	}
}

func TestTickSameTimeNextDayFiresAgain(t *testing.T) {
	cfg, srv := testSetup(t)
	s := newTestScheduler(t, cfg)
	ctx := context.Background()
	pos := testPositions()

	s.tick(ctx, at(t, "2026-08-30 03:00:10"))
	s.tick(ctx, at(t, "2026-08-30 12:00:00")) // cooldown cleared, idle skip
	s.tick(ctx, at(t, "2026-08-31 03:00:10"))

	if got := currentCoords(t, srv); !got.Within(pos[0].VendingCoordinates, catalog.Tolerance) {
		t.Errorf("coords = %v; want rotated twice", got)
	}
}

func TestRunDisabled(t *testing.T) {
	cfg, _ := testSetup(t)
	cfg.Scheduler.Enabled = false
	s := newTestScheduler(t, cfg)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return for a disabled scheduler")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg, _ := testSetup(t)
	s := newTestScheduler(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}

func TestSchedulerLogFileRecordsSkips(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(prev)

	cfg, _ := testSetup(t)
	logPath := filepath.Join(t.TempDir(), "scheduler.log")
	cfg.Scheduler.LogFile = logPath
	s := newTestScheduler(t, cfg)

	s.tick(context.Background(), at(t, "2026-08-30 02:30:00"))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("run log not written: %v", err)
	}
	if !strings.Contains(string(data), "skipping") {
		t.Errorf("run log misses the skip event:\n%s", data)
	}
}

func TestSchedulerLogFile(t *testing.T) {
	cfg, _ := testSetup(t)
	logPath := filepath.Join(t.TempDir(), "scheduler.log")
	cfg.Scheduler.LogFile = logPath
	s := newTestScheduler(t, cfg)

	s.tick(context.Background(), at(t, "2026-08-30 03:00:05"))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("run log not written: %v", err)
	}
	if len(data) == 0 {
		t.Error("run log is empty after a fire")
	}
}
