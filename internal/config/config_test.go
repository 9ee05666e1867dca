package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dmclient.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000

[client]
heartbeat_interval = "5s"

[database]
dsn = "postgres://u:p@localhost/dm"

[logging]
level = "debug"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Server.Address(); got != "127.0.0.1:9000" {
		t.Fatalf("address = %q", got)
	}
	if cfg.Client.HeartbeatInterval != 5*time.Second {
		t.Fatalf("heartbeat = %v", cfg.Client.HeartbeatInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.Client.GroupID != -9999 || cfg.Client.WriteTimeout != 10*time.Second {
		t.Fatalf("defaults lost: %+v", cfg.Client)
	}
	if cfg.Database.DSN == "" || cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Fatalf("unexpected %+v %+v", cfg.Database, cfg.Logging)
	}
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Client.HeartbeatInterval != 30*time.Second {
		t.Fatalf("heartbeat default = %v", cfg.Client.HeartbeatInterval)
	}
	if cfg.Server.Address() != "danmu.douyutv.com:12604" {
		t.Fatalf("server default = %s", cfg.Server.Address())
	}
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"bad port":      "[server]\nport = 70000\n",
		"zero interval": "[client]\nheartbeat_interval = \"0s\"\n",
		"syntax":        "[server\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("missing file: expected error")
	}
}
