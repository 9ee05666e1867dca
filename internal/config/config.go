package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Client    ClientConfig    `toml:"client"`
	Resolver  ResolverConfig  `toml:"resolver"`
	Database  DatabaseConfig  `toml:"database"`
	Scripting ScriptingConfig `toml:"scripting"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Relay     RelayConfig     `toml:"relay"`
	Replay    ReplayConfig    `toml:"replay"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ServerConfig is the danmaku endpoint the client dials.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type ClientConfig struct {
	GroupID           int           `toml:"group_id"`
	HeartbeatInterval time.Duration `toml:"heartbeat_interval"`
	DialTimeout       time.Duration `toml:"dial_timeout"`
	WriteTimeout      time.Duration `toml:"write_timeout"`
	MaxFrameSize      int           `toml:"max_frame_size"` // bytes, 0 = codec default
}

type ResolverConfig struct {
	Endpoint  string        `toml:"endpoint"` // room name is appended as the last path segment
	Timeout   time.Duration `toml:"timeout"`
	RoomsFile string        `toml:"rooms_file"` // optional static alias table
}

// DatabaseConfig enables the room-id cache. An empty DSN disables it.
type DatabaseConfig struct {
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

type ScriptingConfig struct {
	Dir string `toml:"dir"` // empty = built-in formatting
}

type MetricsConfig struct {
	BindAddress string `toml:"bind_address"` // empty = disabled
}

type RelayConfig struct {
	BindAddress string `toml:"bind_address"` // empty = disabled
	Path        string `toml:"path"`
}

type ReplayConfig struct {
	BindAddress string        `toml:"bind_address"`
	File        string        `toml:"file"`
	Interval    time.Duration `toml:"interval"` // delay between scripted frames
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // "json" or "console"
	File       string `toml:"file"`   // optional rotating log file
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the client cannot run with.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Client.HeartbeatInterval <= 0 {
		return fmt.Errorf("client.heartbeat_interval must be positive")
	}
	if c.Client.MaxFrameSize < 0 {
		return fmt.Errorf("client.max_frame_size must not be negative")
	}
	return nil
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "danmu.douyutv.com",
			Port: 12604,
		},
		Client: ClientConfig{
			GroupID:           -9999,
			HeartbeatInterval: 30 * time.Second,
			DialTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			MaxFrameSize:      1 << 20,
		},
		Resolver: ResolverConfig{
			Endpoint: "http://open.douyucdn.cn/api/RoomApi/room",
			Timeout:  10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Relay: RelayConfig{
			Path: "/ws",
		},
		Replay: ReplayConfig{
			BindAddress: "127.0.0.1:12604",
			Interval:    500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}
