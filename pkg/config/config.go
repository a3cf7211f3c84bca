// Package config handles loading and saving seltree configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/seltree/config.yaml
//   - Data:    ~/.local/share/seltree/ (GIS database)
//   - State:   ~/.local/state/seltree/ (selection document, tree state)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const appName = "seltree"

// DataConfig locates the GIS database and the selection document.
type DataConfig struct {
	Database      string `yaml:"database,omitempty"`
	SelectionFile string `yaml:"selection_file,omitempty"`
}

// TreeConfig controls the selection-results tree.
type TreeConfig struct {
	// KeepTreeState keeps expansion and caches when the selection changes
	// or is cleared, and persists expanded nodes across runs.
	KeepTreeState bool `yaml:"keep_tree_state"`
	// EvaluateRelationships loads relationship classes together with their
	// related records in one query.
	EvaluateRelationships bool `yaml:"evaluate_relationships"`
}

// WatchConfig controls the selection document watcher.
type WatchConfig struct {
	Debounce  time.Duration `yaml:"debounce,omitempty"`
	ForcePoll bool          `yaml:"force_poll,omitempty"`
}

// LoaderConfig controls the background relation loader.
type LoaderConfig struct {
	LogLevel       string `yaml:"log_level,omitempty"` // none, error, warn, info, debug
	MaxConcurrency int    `yaml:"max_concurrency,omitempty"`
}

// UIConfig holds UI preference settings.
type UIConfig struct {
	ShowDetails bool `yaml:"show_details"`
}

// Config is the top-level configuration.
type Config struct {
	Data   DataConfig   `yaml:"data"`
	Tree   TreeConfig   `yaml:"tree"`
	Watch  WatchConfig  `yaml:"watch,omitempty"`
	Loader LoaderConfig `yaml:"loader,omitempty"`
	UI     UIConfig     `yaml:"ui"`
}

var logLevels = []string{"none", "error", "warn", "info", "debug"}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	cfg := Config{
		Watch:  WatchConfig{Debounce: 150 * time.Millisecond},
		Loader: LoaderConfig{LogLevel: "warn", MaxConcurrency: 4},
		UI:     UIConfig{ShowDetails: true},
	}
	if dir := DataDir(); dir != "" {
		cfg.Data.Database = filepath.Join(dir, "gis.db")
	}
	if dir := StateDir(); dir != "" {
		cfg.Data.SelectionFile = filepath.Join(dir, "selection.json")
	}
	return cfg
}

func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(append(append([]string{home}, fallback...), appName)...)
}

// ConfigDir returns the XDG config directory.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the XDG data directory.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// StateDir returns the XDG state directory.
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", ".local", "state")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// TreeStatePath returns the file persisting expanded tree nodes.
func TreeStatePath() string {
	dir := StateDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "tree-state.json")
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

// LoadFrom reads config from a specific path. Missing keys keep their
// defaults; a missing file returns DefaultConfig.
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
	cfg.Data.Database = expandHome(cfg.Data.Database)
	cfg.Data.SelectionFile = expandHome(cfg.Data.SelectionFile)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Loader.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("loader.max_concurrency must not be negative, got %d", c.Loader.MaxConcurrency))
	}
	if lvl := strings.ToLower(strings.TrimSpace(c.Loader.LogLevel)); lvl != "" && !slices.Contains(logLevels, lvl) {
		errs = append(errs, fmt.Errorf("loader.log_level %q is not one of %s", c.Loader.LogLevel, strings.Join(logLevels, ", ")))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce))
	}
	return errors.Join(errs...)
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
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
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
