package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/emojidash/internal/aggregate"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// MemoryCache keeps the session cache in process memory only.
const MemoryCache = ":memory:"

// Validation errors.
var (
	ErrInvalidPort        = errors.New("server.port must be between 1 and 65535")
	ErrInvalidUploadLimit = errors.New("server.max_upload_mb must be at least 1")
	ErrInvalidTopN        = fmt.Errorf("dashboard.default_top_n must be between %d and %d", aggregate.MinTopN, aggregate.MaxTopN)
	ErrInvalidTimezone    = errors.New("normalize.timezone is not a known location")
	ErrInvalidLogLevel    = errors.New("logging.level must be one of: debug, info, warn, error")
)

type Config struct {
	Server    Server    `yaml:"server"`
	Dashboard Dashboard `yaml:"dashboard"`
	Normalize Normalize `yaml:"normalize"`
	Cache     Cache     `yaml:"cache"`
	Logging   Logging   `yaml:"logging"`
}

type Server struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

type Dashboard struct {
	DefaultTopN int `yaml:"default_top_n"`
}

type Normalize struct {
	// Seed for synthesized columns; 0 seeds from the clock.
	Seed     uint64 `yaml:"seed"`
	Timezone string `yaml:"timezone"`
}

type Cache struct {
	Path string `yaml:"path"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for emojidash.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "emojidash")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/emojidash/config.yaml > ./config.yaml.
// With no file anywhere it returns "" and the built-in defaults apply.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", nil
}

// Load reads and parses a config YAML file. An empty path yields defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults, and validates it.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Server:    Server{Host: "127.0.0.1", Port: 8000, MaxUploadMB: 20},
		Dashboard: Dashboard{DefaultTopN: aggregate.DefaultTopN},
		Normalize: Normalize{Timezone: "Local"},
		Cache:     Cache{Path: MemoryCache},
		Logging:   Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}
	if c.Server.MaxUploadMB < 1 {
		return ErrInvalidUploadLimit
	}
	if n := c.Dashboard.DefaultTopN; n < aggregate.MinTopN || n > aggregate.MaxTopN {
		return ErrInvalidTopN
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, c.Normalize.Timezone)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}

// Location resolves normalize.timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Normalize.Timezone)
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MaxUploadBytes converts server.max_upload_mb.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
