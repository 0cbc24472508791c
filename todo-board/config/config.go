package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds the board client settings read from config.toml.
type Config struct {
	API   APIConfig   `toml:"api"`
	Board BoardConfig `toml:"board"`
	Log   LogConfig   `toml:"log"`
}

type APIConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
	// TokenEnv names an environment variable holding the token when Token is empty.
	TokenEnv string   `toml:"token_env"`
	Timeout  Duration `toml:"timeout"`
	Live     bool     `toml:"live"`
}

type BoardConfig struct {
	SamplePeriod       Duration `toml:"sample_period"`
	EdgeMargin         int      `toml:"edge_margin"`
	EdgeCooldown       Duration `toml:"edge_cooldown"`
	CarouselBreakpoint int      `toml:"carousel_breakpoint"`
	ToastDuration      Duration `toml:"toast_duration"`
}

type LogConfig struct {
	File  string `toml:"file"`
	Level string `toml:"level"`
}

// Duration decodes TOML strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		API: APIConfig{
			URL:      "http://localhost:8080",
			TokenEnv: "TODO_TOKEN",
			Timeout:  Duration{15 * time.Second},
			Live:     true,
		},
		Board: BoardConfig{
			SamplePeriod:       Duration{100 * time.Millisecond},
			EdgeMargin:         2,
			EdgeCooldown:       Duration{time.Second},
			CarouselBreakpoint: 100,
			ToastDuration:      Duration{4 * time.Second},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the per-user config location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "prism-todo", "config.toml")
}

// Load reads path over defaults. A missing or empty file yields defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.Validate()
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) > 0 {
		if err := toml.Unmarshal(content, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode toml: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if strings.TrimSpace(c.API.URL) == "" {
		return errors.New("api.url must be set")
	}
	if c.Board.SamplePeriod.Duration <= 0 {
		return errors.New("board.sample_period must be positive")
	}
	if c.Board.EdgeMargin < 1 {
		return errors.New("board.edge_margin must be at least 1")
	}
	if c.Board.EdgeCooldown.Duration <= 0 {
		return errors.New("board.edge_cooldown must be positive")
	}
	if c.Board.CarouselBreakpoint < 0 {
		return errors.New("board.carousel_breakpoint must not be negative")
	}
	return nil
}

// ResolveToken returns the configured token, falling back to TokenEnv.
func (c Config) ResolveToken() string {
	if c.API.Token != "" {
		return c.API.Token
	}
	if c.API.TokenEnv != "" {
		return os.Getenv(c.API.TokenEnv)
	}
	return ""
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
