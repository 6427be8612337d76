package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.NodeID != "node1" {
		t.Errorf("expected default node_id 'node1', got %q", cfg.NodeID)
	}
	if cfg.StatePath != "raftbooking.state" {
		t.Errorf("expected default state_path 'raftbooking.state', got %q", cfg.StatePath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log_level 'info', got %q", cfg.LogLevel)
	}
	if cfg.LogJSON {
		t.Error("expected default log_json false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"empty node id", func(c *Config) { c.NodeID = "" }, true},
		{"empty self", func(c *Config) { c.Self = "" }, true},
		{"empty state path", func(c *Config) { c.StatePath = "" }, true},
		{"max not double min", func(c *Config) { c.ElectionTimeoutMax = c.ElectionTimeoutMin }, true},
		{"heartbeat too slow", func(c *Config) { c.HeartbeatInterval = c.ElectionTimeoutMin }, true},
		{"invalid log level", func(c *Config) { c.LogLevel = "invalid" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `# test config
node_id = "node2"
self = "localhost:7001"
peers = "node1=localhost:7000,node3=localhost:7002"
state_path = "/tmp/node2.state"
log_level = "debug"
log_json = true
`
	configPath := filepath.Join(tmpDir, "raftbooking.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	cfg := mgr.Get()

	if cfg.NodeID != "node2" {
		t.Errorf("expected node_id 'node2', got %q", cfg.NodeID)
	}
	if len(cfg.Peers) != 2 {
		t.Errorf("expected 2 peers, got %v", cfg.Peers)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug', got %q", cfg.LogLevel)
	}
	if !cfg.LogJSON {
		t.Error("expected log_json true")
	}
	if cfg.ConfigFile != configPath {
		t.Errorf("expected ConfigFile %q, got %q", configPath, cfg.ConfigFile)
	}
}

func TestLoadFromEnv(t *testing.T) {
	orig := map[string]string{
		EnvNodeID:   os.Getenv(EnvNodeID),
		EnvLogLevel: os.Getenv(EnvLogLevel),
		EnvLogJSON:  os.Getenv(EnvLogJSON),
	}
	defer func() {
		for k, v := range orig {
			os.Setenv(k, v)
		}
	}()

	os.Setenv(EnvNodeID, "node9")
	os.Setenv(EnvLogLevel, "debug")
	os.Setenv(EnvLogJSON, "true")

	mgr := NewManager()
	mgr.LoadFromEnv()
	cfg := mgr.Get()

	if cfg.NodeID != "node9" {
		t.Errorf("expected node_id 'node9' from env, got %q", cfg.NodeID)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug' from env, got %q", cfg.LogLevel)
	}
	if !cfg.LogJSON {
		t.Error("expected log_json true from env")
	}
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `node_id = "file-node"
self = "localhost:7000"
state_path = "test.state"
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "raftbooking.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	orig := os.Getenv(EnvNodeID)
	defer os.Setenv(EnvNodeID, orig)
	os.Setenv(EnvNodeID, "env-node")

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	mgr.LoadFromEnv()

	if got := mgr.Get().NodeID; got != "env-node" {
		t.Errorf("expected env override 'env-node', got %q", got)
	}
}

func TestSaveAndReload(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.NodeID = "saved-node"

	configPath := filepath.Join(tmpDir, "subdir", "raftbooking.conf")
	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("load saved config: %v", err)
	}
	if mgr.Get().NodeID != "saved-node" {
		t.Errorf("expected 'saved-node', got %q", mgr.Get().NodeID)
	}

	reloaded := false
	mgr.OnReload(func(c *Config) { reloaded = true })

	newContent := `node_id = "reloaded-node"
self = "localhost:7000"
state_path = "test.state"
log_level = "info"
`
	time.Sleep(time.Millisecond) // ensure distinguishable mtime on slow filesystems
	if err := os.WriteFile(configPath, []byte(newContent), 0644); err != nil {
		t.Fatalf("update config: %v", err)
	}
	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if mgr.Get().NodeID != "reloaded-node" {
		t.Errorf("expected 'reloaded-node' after reload, got %q", mgr.Get().NodeID)
	}
	if !reloaded {
		t.Error("reload callback was not invoked")
	}
}

func TestGlobalManager(t *testing.T) {
	if Global() != Global() {
		t.Error("Global() should return the same instance")
	}
}
