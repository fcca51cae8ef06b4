// Package config provides TOML configuration loading for fieldsync.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration structure.
type Config struct {
	Discovery DiscoveryConfig `toml:"discovery"`
	Stream    StreamConfig    `toml:"stream"`
	Filter    FilterConfig    `toml:"filter"`
	Node      NodeConfig      `toml:"node"`
	Announce  AnnounceConfig  `toml:"announce"`
}

// DiscoveryConfig holds settings for the host discovery task.
type DiscoveryConfig struct {
	Port      int    `toml:"port"`
	GroupV4   string `toml:"group_v4"`
	GroupV6   string `toml:"group_v6"`
	Window    string `toml:"window"`
	Refresh   string `toml:"refresh"`
	EmitOnNew bool   `toml:"emit_on_new"`
}

// StreamConfig holds settings for per-host telemetry streams.
type StreamConfig struct {
	// Transport is "multicast" (source-specific multicast) or "websocket".
	Transport string `toml:"transport"`
	DataPort  int    `toml:"data_port"`
	VisPort   int    `toml:"vis_port"`
	GroupV4   string `toml:"group_v4"`
	GroupV6   string `toml:"group_v6"`
	Timeout   string `toml:"timeout"`
	Rejoin    string `toml:"rejoin"`
}

// FilterConfig holds jitter buffer tuning.
type FilterConfig struct {
	Enabled      bool   `toml:"enabled"`
	Retention    string `toml:"retention"`
	HealthPeriod string `toml:"health_period"`
	WarmUp       string `toml:"warm_up"`
	TargetBuffer string `toml:"target_buffer"`
}

// NodeConfig holds settings for the long-running watch node.
type NodeConfig struct {
	Host           string `toml:"host"`
	TickRate       int    `toml:"tick_rate"`
	DBPath         string `toml:"db_path"`
	RPCSocket      string `toml:"rpc_socket"`
	StaleThreshold string `toml:"stale_threshold"`
	LogLevel       string `toml:"log_level"`
}

// AnnounceConfig holds settings for the local test publisher.
type AnnounceConfig struct {
	// Hostname overrides the advertised hostname; empty uses the machine's.
	Hostname string `toml:"hostname"`
	Interval string `toml:"interval"`
	// Rate is the number of status packets per second.
	Rate int `toml:"rate"`
}

// ParseWindow parses the discovery collection window.
func (d *DiscoveryConfig) ParseWindow() (time.Duration, error) {
	return parseDuration(d.Window, 3*time.Second)
}

// ParseRefresh parses the interface refresh interval.
func (d *DiscoveryConfig) ParseRefresh() (time.Duration, error) {
	return parseDuration(d.Refresh, 3*time.Second)
}

// ParseTimeout parses the stream inactivity timeout.
func (s *StreamConfig) ParseTimeout() (time.Duration, error) {
	return parseDuration(s.Timeout, 1500*time.Millisecond)
}

// ParseRejoin parses the source-specific join retry interval.
func (s *StreamConfig) ParseRejoin() (time.Duration, error) {
	return parseDuration(s.Rejoin, 3*time.Second)
}

// ParseRetention parses the packet history retention window.
func (f *FilterConfig) ParseRetention() (time.Duration, error) {
	return parseDuration(f.Retention, time.Second)
}

// ParseHealthPeriod parses the buffer health tracking period.
func (f *FilterConfig) ParseHealthPeriod() (time.Duration, error) {
	return parseDuration(f.HealthPeriod, 10*time.Second)
}

// ParseWarmUp parses the delay before the first offset adaptation.
func (f *FilterConfig) ParseWarmUp() (time.Duration, error) {
	return parseDuration(f.WarmUp, time.Second)
}

// ParseTargetBuffer parses the target playback buffer.
func (f *FilterConfig) ParseTargetBuffer() (time.Duration, error) {
	return parseDuration(f.TargetBuffer, 10*time.Millisecond)
}

// ParseStaleThreshold parses the node stale threshold string to a time.Duration.
func (n *NodeConfig) ParseStaleThreshold() (time.Duration, error) {
	return parseDuration(n.StaleThreshold, 90*time.Second)
}

// ParseInterval parses the beacon interval.
func (a *AnnounceConfig) ParseInterval() (time.Duration, error) {
	return parseDuration(a.Interval, time.Second)
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// Load reads and parses a TOML config file, applying defaults for unset values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(cfg)
	cfg.Node.DBPath = ExpandPath(cfg.Node.DBPath)
	return cfg, nil
}

// Default returns a Config with every default applied. Booleans that default
// to true are set here so that an explicit false in the file wins.
func Default() *Config {
	cfg := &Config{}
	cfg.Filter.Enabled = true
	applyDefaults(cfg)
	return cfg
}

// ExpandPath expands tilde (~) to the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		return path
	}
	if path == "~" {
		return usr.HomeDir
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(usr.HomeDir, path[2:])
	}
	return path
}

func applyDefaults(cfg *Config) {

	// Discovery defaults
	if cfg.Discovery.Port == 0 {
		cfg.Discovery.Port = 11000
	}
	if cfg.Discovery.GroupV4 == "" {
		cfg.Discovery.GroupV4 = "239.1.1.1"
	}
	if cfg.Discovery.GroupV6 == "" {
		cfg.Discovery.GroupV6 = "ff15::45:5246:6f72:6365:1"
	}
	if cfg.Discovery.Window == "" {
		cfg.Discovery.Window = "3s"
	}
	if cfg.Discovery.Refresh == "" {
		cfg.Discovery.Refresh = "3s"
	}

	// Stream defaults
	if cfg.Stream.Transport == "" {
		cfg.Stream.Transport = "websocket"
	}
	if cfg.Stream.DataPort == 0 {
		cfg.Stream.DataPort = 11001
	}
	if cfg.Stream.VisPort == 0 {
		cfg.Stream.VisPort = 11002
	}
	if cfg.Stream.GroupV4 == "" {
		cfg.Stream.GroupV4 = "232.1.1.1"
	}
	if cfg.Stream.GroupV6 == "" {
		cfg.Stream.GroupV6 = "ff15::45:5246:6f72:6365"
	}
	if cfg.Stream.Timeout == "" {
		cfg.Stream.Timeout = "1500ms"
	}
	if cfg.Stream.Rejoin == "" {
		cfg.Stream.Rejoin = "3s"
	}

	// Filter defaults
	if cfg.Filter.Retention == "" {
		cfg.Filter.Retention = "1s"
	}
	if cfg.Filter.HealthPeriod == "" {
		cfg.Filter.HealthPeriod = "10s"
	}
	if cfg.Filter.WarmUp == "" {
		cfg.Filter.WarmUp = "1s"
	}
	if cfg.Filter.TargetBuffer == "" {
		cfg.Filter.TargetBuffer = "10ms"
	}

	// Node defaults
	if cfg.Node.TickRate == 0 {
		cfg.Node.TickRate = 60
	}
	if cfg.Node.DBPath == "" {
		cfg.Node.DBPath = "/var/lib/fieldsync/hosts.db"
	}
	if cfg.Node.RPCSocket == "" {
		cfg.Node.RPCSocket = "/run/fieldsync/node.sock"
	}
	if cfg.Node.StaleThreshold == "" {
		cfg.Node.StaleThreshold = "90s"
	}
	if cfg.Node.LogLevel == "" {
		cfg.Node.LogLevel = "info"
	}

	// Announce defaults
	if cfg.Announce.Interval == "" {
		cfg.Announce.Interval = "1s"
	}
	if cfg.Announce.Rate == 0 {
		cfg.Announce.Rate = 60
	}
}
