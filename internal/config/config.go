// Package config loads engine settings from a TOML file, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	focus "github.com/vogtb/go-spreadsheet/focus"
)

type Config struct {
	Cycles       CyclesConfig `toml:"cycles"`
	Log          LogConfig    `toml:"log"`
	FormulaCache int          `toml:"formula_cache"`
}

type CyclesConfig struct {
	Enabled    bool    `toml:"enabled"`
	Iterations int     `toml:"iterations"`
	Tolerance  float64 `toml:"tolerance"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the settings used when nothing is configured
func Default() *Config {
	return &Config{
		Cycles: CyclesConfig{
			Enabled:    focus.DefaultCycleConfig.Enabled,
			Iterations: focus.DefaultCycleConfig.Iterations,
			Tolerance:  focus.DefaultCycleConfig.Tolerance,
		},
		Log:          LogConfig{Level: "info", Format: "text"},
		FormulaCache: focus.DefaultFormulaCacheSize,
	}
}

// Load reads path (skipped when empty or missing), then .env, then the
// FOCUS_* environment variables
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if raw := strings.TrimSpace(os.Getenv("FOCUS_CYCLES")); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("FOCUS_CYCLES: %w", err)
		}
		c.Cycles.Enabled = enabled
	}
	if raw := strings.TrimSpace(os.Getenv("FOCUS_ITERATIONS")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("FOCUS_ITERATIONS: %w", err)
		}
		c.Cycles.Iterations = n
	}
	if raw := strings.TrimSpace(os.Getenv("FOCUS_TOLERANCE")); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("FOCUS_TOLERANCE: %w", err)
		}
		c.Cycles.Tolerance = t
	}
	if raw := strings.TrimSpace(os.Getenv("FOCUS_FORMULA_CACHE")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("FOCUS_FORMULA_CACHE: %w", err)
		}
		c.FormulaCache = n
	}
	c.Log.Level = firstNonEmpty(strings.TrimSpace(os.Getenv("FOCUS_LOG_LEVEL")), c.Log.Level)
	c.Log.Format = firstNonEmpty(strings.TrimSpace(os.Getenv("FOCUS_LOG_FORMAT")), c.Log.Format)
	return nil
}

// EngineOptions turns the settings into engine options
func (c *Config) EngineOptions(logger *slog.Logger) []focus.EngineOption {
	return []focus.EngineOption{
		focus.WithCycles(focus.CycleConfig{
			Enabled:    c.Cycles.Enabled,
			Iterations: c.Cycles.Iterations,
			Tolerance:  c.Cycles.Tolerance,
		}),
		focus.WithFormulaCacheSize(c.FormulaCache),
		focus.WithLogger(logger),
	}
}

// NewLogger creates and configures a new slog.Logger instance. It does not
// set the global logger, allowing for isolated logger instances.
func NewLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
