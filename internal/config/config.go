// Package config loads and validates raftbooking node configuration
// from a TOML-ish file, environment variables, and in-process defaults.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Environment variable names, checked in LoadFromEnv.
const (
	EnvNodeID    = "RAFTBOOKING_NODE_ID"
	EnvSelf      = "RAFTBOOKING_SELF"
	EnvPeers     = "RAFTBOOKING_PEERS"
	EnvStatePath = "RAFTBOOKING_STATE_PATH"
	EnvLogLevel  = "RAFTBOOKING_LOG_LEVEL"
	EnvLogJSON   = "RAFTBOOKING_LOG_JSON"
)

// Config holds a single node's startup configuration.
type Config struct {
	NodeID             string
	Self               string
	Peers              []string // "id=host:port" entries
	StatePath          string
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
	ApplyInterval      time.Duration
	LogLevel           string
	LogJSON            bool

	// ConfigFile records the path this config was loaded from, if any.
	ConfigFile string
}

// DefaultConfig returns the configuration a standalone single-node
// cluster boots with.
func DefaultConfig() *Config {
	return &Config{
		NodeID:             "node1",
		Self:               "localhost:7000",
		Peers:              nil,
		StatePath:          "raftbooking.state",
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
		ApplyInterval:      20 * time.Millisecond,
		LogLevel:           "info",
		LogJSON:            false,
	}
}

// Validate checks structural invariants the node depends on at startup.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("config: node_id must not be empty")
	}
	if c.Self == "" {
		return fmt.Errorf("config: self must not be empty")
	}
	if c.StatePath == "" {
		return fmt.Errorf("config: state_path must not be empty")
	}
	if c.ElectionTimeoutMin <= 0 || c.ElectionTimeoutMax <= 0 {
		return fmt.Errorf("config: election timeouts must be positive")
	}
	if c.ElectionTimeoutMax < 2*c.ElectionTimeoutMin {
		return fmt.Errorf("config: election_timeout_max must be at least 2x election_timeout_min")
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.ElectionTimeoutMin {
		return fmt.Errorf("config: heartbeat_interval must be positive and strictly less than election_timeout_min")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	return nil
}

// String renders a human-readable summary, used by diagnostic commands.
func (c *Config) String() string {
	return fmt.Sprintf("Config{NodeID: %s, Self: %s, Peers: %v, StatePath: %s, LogLevel: %s}",
		c.NodeID, c.Self, c.Peers, c.StatePath, c.LogLevel)
}

// ToTOML renders the config in the same key = "value" line format
// LoadFromFile parses.
func (c *Config) ToTOML() string {
	var b strings.Builder
	fmt.Fprintf(&b, "node_id = %q\n", c.NodeID)
	fmt.Fprintf(&b, "self = %q\n", c.Self)
	fmt.Fprintf(&b, "peers = %q\n", strings.Join(c.Peers, ","))
	fmt.Fprintf(&b, "state_path = %q\n", c.StatePath)
	fmt.Fprintf(&b, "election_timeout_min = %q\n", c.ElectionTimeoutMin.String())
	fmt.Fprintf(&b, "election_timeout_max = %q\n", c.ElectionTimeoutMax.String())
	fmt.Fprintf(&b, "heartbeat_interval = %q\n", c.HeartbeatInterval.String())
	fmt.Fprintf(&b, "apply_interval = %q\n", c.ApplyInterval.String())
	fmt.Fprintf(&b, "log_level = %q\n", c.LogLevel)
	fmt.Fprintf(&b, "log_json = %v\n", c.LogJSON)
	return b.String()
}

// SaveToFile writes the config to path, creating parent directories as
// needed.
func (c *Config) SaveToFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: create dir: %w", err)
		}
	}
	return os.WriteFile(path, []byte(c.ToTOML()), 0644)
}

// Manager owns a live Config and notifies subscribers on Reload.
type Manager struct {
	mu        sync.RWMutex
	cfg       *Config
	callbacks []func(*Config)
}

// NewManager returns a manager seeded with DefaultConfig.
func NewManager() *Manager {
	return &Manager{cfg: DefaultConfig()}
}

// Get returns the current config.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// LoadFromFile parses a key = "value" file over the current config and
// records the path for later Reload calls.
func (m *Manager) LoadFromFile(path string) error {
	cfg, err := parseFile(path, m.Get())
	if err != nil {
		return err
	}
	cfg.ConfigFile = path

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return nil
}

// LoadFromEnv overlays environment variables onto the current config.
func (m *Manager) LoadFromEnv() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := *m.cfg
	if v := os.Getenv(EnvNodeID); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv(EnvSelf); v != "" {
		cfg.Self = v
	}
	if v := os.Getenv(EnvPeers); v != "" {
		cfg.Peers = strings.Split(v, ",")
	}
	if v := os.Getenv(EnvStatePath); v != "" {
		cfg.StatePath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogJSON = b
		}
	}
	m.cfg = &cfg
}

// Reload re-reads the file the manager was last loaded from and
// notifies every registered callback.
func (m *Manager) Reload() error {
	m.mu.RLock()
	path := m.cfg.ConfigFile
	m.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("config: no file to reload from")
	}
	if err := m.LoadFromFile(path); err != nil {
		return err
	}

	m.mu.RLock()
	cfg := m.cfg
	callbacks := append([]func(*Config){}, m.callbacks...)
	m.mu.RUnlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
	return nil
}

// OnReload registers a callback invoked after every successful Reload.
func (m *Manager) OnReload(cb func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

var (
	globalOnce sync.Once
	globalMgr  *Manager
)

// Global returns the process-wide config manager singleton.
func Global() *Manager {
	globalOnce.Do(func() {
		globalMgr = NewManager()
	})
	return globalMgr
}

// parseFile parses key = "value" / key = value lines over a base config.
func parseFile(path string, base *Config) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := *base
	cfg.Peers = append([]string(nil), base.Peers...)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"`)

		switch key {
		case "node_id":
			cfg.NodeID = val
		case "self":
			cfg.Self = val
		case "peers":
			if val == "" {
				cfg.Peers = nil
			} else {
				cfg.Peers = strings.Split(val, ",")
			}
		case "state_path":
			cfg.StatePath = val
		case "election_timeout_min":
			if d, err := time.ParseDuration(val); err == nil {
				cfg.ElectionTimeoutMin = d
			}
		case "election_timeout_max":
			if d, err := time.ParseDuration(val); err == nil {
				cfg.ElectionTimeoutMax = d
			}
		case "heartbeat_interval":
			if d, err := time.ParseDuration(val); err == nil {
				cfg.HeartbeatInterval = d
			}
		case "apply_interval":
			if d, err := time.ParseDuration(val); err == nil {
				cfg.ApplyInterval = d
			}
		case "log_level":
			cfg.LogLevel = val
		case "log_json":
			if b, err := strconv.ParseBool(val); err == nil {
				cfg.LogJSON = b
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return &cfg, nil
}
