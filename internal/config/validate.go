package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ValidationErrors aggregates every violation found in a configuration
// file so operators can fix them all in one pass.
type ValidationErrors []string

func (e ValidationErrors) Error() string {
	var b strings.Builder
	b.WriteString("configuration validation failed:")
	for _, msg := range e {
		b.WriteString("\n  - ")
		b.WriteString(msg)
	}

	return b.String()
}

// validate checks the whole document and returns a ValidationErrors
// listing every problem, or nil when the configuration is usable.
func (c *Config) validate() error {
	var errs ValidationErrors
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.Servers == nil {
		fail("missing required top-level key: 'servers'")
	}
	if c.Positions == nil {
		fail("missing required top-level key: 'positions'")
	}
	if c.Scheduler == nil {
		fail("missing required top-level key: 'scheduler_settings'")
	}

	c.validateServers(fail)
	c.validatePositions(fail)
	c.validateScheduler(fail)

	if c.Global.EmbedColor != "" {
		if _, err := parseColor(c.Global.EmbedColor); err != nil {
			fail("global_settings: %v", err)
		}
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

func (c *Config) validateServers(fail func(string, ...any)) {
	if c.Servers == nil {
		return
	}
	if len(c.Servers) == 0 {
		fail("at least one server must be configured")
		return
	}

	enabled := 0
	for _, id := range c.ServerIDs {
		srv := c.Servers[id]
		if srv == nil {
			fail("server %q: configuration must be an object", id)
			continue
		}
		if !srv.Enabled {
			continue
		}
		enabled++

		// The invariant only binds enabled servers: disabled records may
		// stay half-configured while an operator works on them.
		if srv.Name == "" {
			fail("server %q: field 'name' must be a non-empty string", id)
		}
		checkServerFile(fail, id, "map_file_path", srv.MapFilePath)
		checkServerFile(fail, id, "trader_zone_file_path", srv.TraderZoneFilePath)
		checkWebhookURL(fail, id, srv.WebhookURL)
	}

	if enabled == 0 {
		log.Warn().Msg("No servers are enabled, rotation and scheduler will have nothing to do")
	}
}

func (c *Config) validatePositions(fail func(string, ...any)) {
	if c.Positions == nil {
		return
	}
	if len(c.Positions) < 2 {
		fail("at least two positions are required, rotation over %d is a no-op", len(c.Positions))
	}

	for i, pos := range c.Positions {
		if pos.Name == "" {
			fail("position %d: field 'name' must be a non-empty string", i)
		}
		if pos.VendingClassname == "" {
			fail("position %d (%s): field 'vending_classname' must be a non-empty string", i, pos.Name)
		}
		if pos.VehicleClassname == "" {
			fail("position %d (%s): field 'vehicle_classname' must be a non-empty string", i, pos.Name)
		}
		if pos.ImagePath != "" {
			if _, err := os.Stat(pos.ImagePath); err != nil {
				log.Warn().Str("position", pos.Name).Str("path", pos.ImagePath).
					Msg("Position image file not found")
			}
		}
	}
}

func (c *Config) validateScheduler(fail func(string, ...any)) {
	s := c.Scheduler
	if s == nil {
		return
	}

	seen := make(map[string]struct{}, len(s.RotationTimes))
	for i, value := range s.RotationTimes {
		if _, err := time.Parse("15:04", value); err != nil {
			fail("scheduler_settings: rotation_times[%d] %q is not a valid 24-hour time (HH:MM)", i, value)
			continue
		}
		if _, dup := seen[value]; dup {
			fail("scheduler_settings: rotation_times contains duplicate entry %q", value)
		}
		seen[value] = struct{}{}
	}

	if s.CheckInterval <= 0 {
		fail("scheduler_settings: check_interval_seconds must be greater than 0")
	}
	if s.ServerRotationDelay < 0 {
		fail("scheduler_settings: server_rotation_delay_seconds must not be negative")
	}

	if !s.RotateAllServers {
		if len(s.RotationServers) == 0 {
			fail("scheduler_settings: rotation_servers must not be empty when rotate_all_servers is false")
		}
		for _, id := range s.RotationServers {
			if _, ok := c.Servers[id]; !ok {
				fail("scheduler_settings: rotation_servers references unknown server %q", id)
			}
		}
	}
}

// checkServerFile requires the path to exist and be writable, since the
// rotation rewrites it in place.
func checkServerFile(fail func(string, ...any), id, field, path string) {
	if path == "" {
		fail("server %q: field '%s' must be a non-empty string", id, field)
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		fail("server %q: %s %q does not exist", id, field, path)
		return
	}
	if info.IsDir() {
		fail("server %q: %s %q is a directory", id, field, path)
		return
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		fail("server %q: %s %q is not writable", id, field, path)
		return
	}
	_ = f.Close()
}

// checkWebhookURL enforces the Discord webhook URL shape.
func checkWebhookURL(fail func(string, ...any), id, webhook string) {
	if webhook == "" {
		fail("server %q: field 'webhook_url' must be a non-empty string", id)
		return
	}

	u, err := url.Parse(webhook)
	if err != nil || u.Scheme == "" || u.Host == "" {
		fail("server %q: webhook_url %q is not a valid URL", id, webhook)
		return
	}
	if !strings.Contains(u.Path, "/api/webhooks/") {
		fail("server %q: webhook_url %q does not look like a webhook URL", id, webhook)
	}
}
