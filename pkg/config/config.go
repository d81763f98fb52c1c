// Package config handles loading and saving stepparity configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/stepparity/config.yaml
//   - Data:    ~/.local/share/stepparity/ (exported result databases)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/stepparity/pkg/layout"
	"github.com/vanderheijden86/stepparity/pkg/parity"
)

const appName = "stepparity"

// WorkerConfig holds settings for the parity worker.
type WorkerConfig struct {
	Buffer   int    `yaml:"buffer,omitempty"`    // Request queue size (default 16)
	LogLevel string `yaml:"log_level,omitempty"` // none, error, warn, info, debug
}

// ExportConfig controls result export.
type ExportConfig struct {
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// Config is the top-level configuration for stepparity.
type Config struct {
	GameType    string             `yaml:"game_type,omitempty"`
	Weights     map[string]float64 `yaml:"weights,omitempty"`      // Category name -> weight, overriding defaults
	Tuning      parity.Tuning      `yaml:"tuning"`                 // Cost model thresholds
	WeightsFile string             `yaml:"weights_file,omitempty"` // Watched file with weights and tuning
	Worker      WorkerConfig       `yaml:"worker,omitempty"`
	Export      ExportConfig       `yaml:"export,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		GameType: "dance-single",
		Weights:  make(map[string]float64),
		Tuning:   parity.DefaultTuning(),
		Worker: WorkerConfig{
			Buffer:   16,
			LogLevel: "warn",
		},
	}
}

// ConfigDir returns the XDG config directory for stepparity.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// DataDir returns the XDG data directory for stepparity.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", appName)
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path.
// Returns DefaultConfig if the file doesn't exist. Keys missing from the
// file keep their defaults.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Weights == nil {
		cfg.Weights = make(map[string]float64)
	}
	cfg.WeightsFile = expandHome(cfg.WeightsFile)
	cfg.Export.SQLitePath = expandHome(cfg.Export.SQLitePath)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Validate checks the game type, weights and thresholds.
func (c Config) Validate() error {
	if _, err := layout.ForGameType(c.GameType); err != nil {
		return err
	}
	if _, err := parity.WeightsFromMap(c.Weights); err != nil {
		return err
	}
	return ValidateTuning(c.Tuning)
}

// ParityWeights returns the default weights with the configured overrides.
func (c Config) ParityWeights() (parity.Weights, error) {
	return parity.WeightsFromMap(c.Weights)
}

// Layout returns the stage layout for the configured game type.
func (c Config) Layout() (*layout.Layout, error) {
	return layout.ForGameType(c.GameType)
}

// ExportPath returns the SQLite export path, defaulting to the data dir.
func (c Config) ExportPath() string {
	if c.Export.SQLitePath != "" {
		return c.Export.SQLitePath
	}
	dir := DataDir()
	if dir == "" {
		return "parity.db"
	}
	return filepath.Join(dir, "parity.db")
}

// ValidateTuning rejects thresholds the cost model cannot use.
func ValidateTuning(t parity.Tuning) error {
	positive := map[string]float64{
		"jack_cutoff":     t.JackCutoff,
		"slow_footswitch": t.SlowFootswitch,
		"min_elapsed":     t.MinElapsed,
	}
	for name, v := range positive {
		if !(v > 0) {
			return fmt.Errorf("tuning %s must be positive, got %v", name, v)
		}
	}
	if t.FootswitchIgnore < t.SlowFootswitch {
		return fmt.Errorf("tuning footswitch_ignore (%v) must not be below slow_footswitch (%v)", t.FootswitchIgnore, t.SlowFootswitch)
	}
	if t.TwistCos < -1 || t.TwistCos > 1 {
		return fmt.Errorf("tuning twist_cos must be in [-1,1], got %v", t.TwistCos)
	}
	if t.AmbiguityThreshold < 0 {
		return fmt.Errorf("tuning ambiguity_threshold must not be negative, got %v", t.AmbiguityThreshold)
	}
	return nil
}

// WeightsFile is the hot-reloadable file of weights and thresholds.
type WeightsFile struct {
	Weights map[string]float64 `yaml:"weights"`
	Tuning  parity.Tuning      `yaml:"tuning"`
}

// LoadWeightsFile reads a weights file. Missing tuning keys keep their
// defaults; missing weights keep the default weights.
func LoadWeightsFile(path string) (WeightsFile, error) {
	wf := WeightsFile{Tuning: parity.DefaultTuning()}
	data, err := os.ReadFile(path)
	if err != nil {
		return wf, fmt.Errorf("reading weights file: %w", err)
	}
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return wf, fmt.Errorf("parsing weights file: %w", err)
	}
	if _, err := parity.WeightsFromMap(wf.Weights); err != nil {
		return wf, fmt.Errorf("weights file %s: %w", path, err)
	}
	if err := ValidateTuning(wf.Tuning); err != nil {
		return wf, fmt.Errorf("weights file %s: %w", path, err)
	}
	return wf, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
