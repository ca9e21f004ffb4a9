package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/fakeyudi/shlog/internal/history"
	"github.com/fakeyudi/shlog/internal/session"
)

// EnvPrefix prefixes every environment variable shlog reads.
const EnvPrefix = "SHLOG"

// Config holds all configurable shlog settings. Each field is also read
// from SHLOG_<NAME> (SHLOG_DATA_DIR, SHLOG_HISTCONTROL, ...).
type Config struct {
	DataDir     string   `json:"data_dir" split_words:"true"`
	HistorySize string   `json:"history_size" split_words:"true"` // e.g. "8128 commands"
	HistControl []string `json:"histcontrol"`                     // ignoredups, ignoreerr
	BufferSize  int      `json:"buffer_size" split_words:"true"`
	LogLevel    string   `json:"log_level" split_words:"true"`
	NoGC        bool     `json:"no_gc" split_words:"true"`
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		HistorySize: history.DefaultSize.String(),
		HistControl: []string{},
		BufferSize:  history.DefaultBufferSize,
		LogLevel:    "warn",
	}
}

// Path returns the location of the global config file,
// ~/.config/shlog/config.json.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "shlog", "config.json"), nil
}

// LoadGlobal reads ~/.config/shlog/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return loadFile(path)
}

// LoadEnv reads the SHLOG_* environment variables. Unset variables leave
// their fields empty.
func LoadEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, &ParseError{Path: "$" + EnvPrefix + "_*", Err: err}
	}
	return &cfg, nil
}

// Load returns defaults overlaid with the global file and then the
// environment.
func Load() (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Config{}, err
	}
	env, err := LoadEnv()
	if err != nil {
		return Config{}, err
	}
	return Merge(global, env), nil
}

// loadFile reads and parses a JSON config file at path, returning
// defaults when the file is absent.
func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			d := Defaults()
			return &d, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines the global file and environment configs, with the
// environment taking precedence. Missing keys fall back to global, then
// defaults.
func Merge(global, env *Config) Config {
	result := Defaults()
	for _, layer := range []*Config{global, env} {
		if layer == nil {
			continue
		}
		if layer.DataDir != "" {
			result.DataDir = layer.DataDir
		}
		if layer.HistorySize != "" {
			result.HistorySize = layer.HistorySize
		}
		if len(layer.HistControl) > 0 {
			result.HistControl = layer.HistControl
		}
		if layer.BufferSize > 0 {
			result.BufferSize = layer.BufferSize
		}
		if layer.LogLevel != "" {
			result.LogLevel = layer.LogLevel
		}
		if layer.NoGC {
			result.NoGC = true
		}
	}
	return result
}

// ResolveDataDir returns the configured data directory with a leading ~
// expanded, or the XDG default.
func (c Config) ResolveDataDir() (string, error) {
	if c.DataDir == "" {
		return session.DataDir()
	}
	if c.DataDir == "~" || strings.HasPrefix(c.DataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(c.DataDir, "~")), nil
	}
	return filepath.Abs(c.DataDir)
}

// Size parses HistorySize.
func (c Config) Size() (history.Size, error) {
	if c.HistorySize == "" {
		return history.DefaultSize, nil
	}
	return history.ParseSize(c.HistorySize)
}

// Level parses LogLevel.
func (c Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.WarnLevel, nil
	}
	return zerolog.ParseLevel(strings.ToLower(c.LogLevel))
}

// IgnoreDups reports whether histcontrol contains ignoredups.
func (c Config) IgnoreDups() bool { return c.hasControl("ignoredups") }

// IgnoreErr reports whether histcontrol contains ignoreerr.
func (c Config) IgnoreErr() bool { return c.hasControl("ignoreerr") }

func (c Config) hasControl(name string) bool {
	return slices.ContainsFunc(c.HistControl, func(s string) bool {
		return strings.EqualFold(strings.TrimSpace(s), name)
	})
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
