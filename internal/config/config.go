package config

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Session SessionConfig
}

type ServerConfig struct {
	// Host is the listen address. Use 0.0.0.0 to expose the public form
	// endpoints beyond this machine.
	Host string
	Port int
	// PublicBaseURL prefixes the shareable link printed for each form.
	PublicBaseURL string
}

type StorageConfig struct {
	DataDir string
	Backend string
}

type LogConfig struct {
	Level string
}

type SessionConfig struct {
	// TTL is how long an idle fill session or draft is kept in memory.
	TTL time.Duration
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:          "127.0.0.1",
			Port:          4100,
			PublicBaseURL: "http://localhost:4100",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			Backend: "json",
		},
		Log: LogConfig{
			Level: "info",
		},
		Session: SessionConfig{
			TTL: 30 * time.Minute,
		},
	}
}

// Load reads configuration from the JSON config file at ConfigFilePath,
// then applies CHURCHDESK_* environment overrides.
func Load() (Config, error) {
	return loadWith(newFileBackend(ConfigFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("invalid config: storage.backend %q (want json or sqlite)", c.Storage.Backend)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("invalid config: storage.data_dir is empty")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("invalid config: session.ttl must be positive")
	}
	return nil
}

// SlogLevel maps log.level to a slog level; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ListenAddr is the host:port the server binds.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// FormLink returns the public URL that opens the given form.
func (c Config) FormLink(formID string) string {
	return strings.TrimRight(c.Server.PublicBaseURL, "/") + "/?id=" + formID
}
