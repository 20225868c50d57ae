package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/venomlabs/bmrotate/internal/catalog"
)

// Defaults applied when global_settings omits them.
const (
	DefaultWebhookUsername = "Blackmarket Rotator"
	DefaultEmbedColor      = 0x00ff00
)

// Server is one configured game server instance.
type Server struct {
	// ID is the key the server is configured under, filled in at load.
	ID string `json:"-"`

	Name               string `json:"name"`
	Enabled            bool   `json:"enabled"`
	MapFilePath        string `json:"map_file_path"`
	TraderZoneFilePath string `json:"trader_zone_file_path"`
	WebhookURL         string `json:"webhook_url"`

	// QueryAddress is an optional "host:port" used to query the live
	// server via A2S for status listings.
	QueryAddress string `json:"query_address,omitempty"`
}

// GlobalSettings holds presentation defaults for notifications.
type GlobalSettings struct {
	WebhookUsername string `json:"webhook_username"`
	EmbedColor      string `json:"embed_color"`
}

// ColorValue parses the configured embed color ("0x00ff00" or
// "#00ff00"). Invalid or empty values fall back to the default; the
// validator reports invalid ones.
func (g GlobalSettings) ColorValue() int {
	v, err := parseColor(g.EmbedColor)
	if err != nil {
		return DefaultEmbedColor
	}

	return v
}

// Username returns the configured webhook username or the default.
func (g GlobalSettings) Username() string {
	if g.WebhookUsername == "" {
		return DefaultWebhookUsername
	}

	return g.WebhookUsername
}

// SchedulerSettings drives the automated rotation loop.
type SchedulerSettings struct {
	Enabled             bool     `json:"enabled"`
	RotationTimes       []string `json:"rotation_times"`
	RotateAllServers    bool     `json:"rotate_all_servers"`
	RotationServers     []string `json:"rotation_servers,omitempty"`
	ServerRotationDelay int      `json:"server_rotation_delay_seconds"`
	CheckInterval       int      `json:"check_interval_seconds"`
	LogFile             string   `json:"log_file"`
	HistoryDB           string   `json:"history_db,omitempty"`
}

// Config is the fully validated configuration document.
type Config struct {
	Servers   map[string]*Server `json:"servers"`
	Positions []catalog.Position `json:"positions"`
	Global    GlobalSettings     `json:"global_settings"`
	Scheduler *SchedulerSettings `json:"scheduler_settings"`

	// ServerIDs preserves the order servers appear in the file, which
	// defines rotation and notification order for batches.
	ServerIDs []string `json:"-"`
}

// Load reads, parses and validates the configuration file. All
// violations are collected and returned together as one report.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	ids, err := serverOrder(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ServerIDs = ids

	for id, srv := range cfg.Servers {
		// Null entries are reported by validation, not dereferenced.
		if srv == nil {
			continue
		}
		srv.ID = id
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// EnabledServers returns the enabled servers in configuration order.
func (c *Config) EnabledServers() []*Server {
	var servers []*Server
	for _, id := range c.ServerIDs {
		if srv := c.Servers[id]; srv != nil && srv.Enabled {
			servers = append(servers, srv)
		}
	}

	return servers
}

// SchedulerTargets returns the servers a scheduled fire rotates: every
// enabled server, or the configured subset filtered to enabled ones.
func (c *Config) SchedulerTargets() []*Server {
	if c.Scheduler == nil || c.Scheduler.RotateAllServers {
		return c.EnabledServers()
	}

	subset := make(map[string]struct{}, len(c.Scheduler.RotationServers))
	for _, id := range c.Scheduler.RotationServers {
		subset[id] = struct{}{}
	}

	var servers []*Server
	for _, srv := range c.EnabledServers() {
		if _, ok := subset[srv.ID]; ok {
			servers = append(servers, srv)
		}
	}

	return servers
}

// CheckIntervalDuration returns the scheduler poll interval.
func (s *SchedulerSettings) CheckIntervalDuration() time.Duration {
	return time.Duration(s.CheckInterval) * time.Second
}

// ServerDelayDuration returns the pause between servers in a batch.
func (s *SchedulerSettings) ServerDelayDuration() time.Duration {
	return time.Duration(s.ServerRotationDelay) * time.Second
}

// serverOrder extracts the key order of the "servers" object. Go maps
// drop it, but batch rotation must follow the configured order.
func serverOrder(data []byte) ([]string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}

	raw, ok := top["servers"]
	if !ok {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("'servers' must be an object")
	}

	var ids []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v in 'servers'", tok)
		}
		ids = append(ids, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}

	return ids, nil
}

// parseColor accepts "0xRRGGBB" or "#RRGGBB" hex notations.
func parseColor(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty color")
	}

	var hex string
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		hex = s[2:]
	case strings.HasPrefix(s, "#"):
		hex = s[1:]
	default:
		return 0, fmt.Errorf("color %q must start with '0x' or '#'", s)
	}

	v, err := strconv.ParseInt(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("color %q is not valid hex", s)
	}

	return int(v), nil
}
