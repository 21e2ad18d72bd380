package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"vostore/internal/logging"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "~/.vostore/config.toml"

type Config struct {
	Storage    StorageConfig    `toml:"storage"`
	Partitions PartitionsConfig `toml:"partitions"`
	Export     ExportConfig     `toml:"export"`
	Logging    LoggingConfig    `toml:"logging"`
}

type StorageConfig struct {
	Path            string   `toml:"path"`
	OpenTimeout     Duration `toml:"open_timeout"`
	NoSync          bool     `toml:"no_sync"`
	InitialMmapSize int      `toml:"initial_mmap_size"`
}

type PartitionsConfig struct {
	Count int `toml:"count"`
}

type ExportConfig struct {
	ChunkSize int `toml:"chunk_size"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a string ("5s", "250ms") in TOML.
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
	return []byte(d.String()), nil
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:        "~/.vostore/status.db",
			OpenTimeout: Duration{time.Second},
		},
		Partitions: PartitionsConfig{
			Count: 64,
		},
		Export: ExportConfig{
			ChunkSize: 512,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a TOML config file over the defaults.
// If path is empty, DefaultPath is used when it exists.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = expandHome(DefaultPath)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parsing config: unknown keys %s", strings.Join(keys, ", "))
	}

	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Storage.Path) == "" {
		errs = append(errs, errors.New("storage.path: must not be empty"))
	}
	if c.Storage.OpenTimeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("storage.open_timeout: must not be negative, got %s", c.Storage.OpenTimeout))
	}
	if c.Storage.InitialMmapSize < 0 {
		errs = append(errs, fmt.Errorf("storage.initial_mmap_size: must not be negative, got %d", c.Storage.InitialMmapSize))
	}
	if c.Partitions.Count < 1 || c.Partitions.Count > math.MaxUint16 {
		errs = append(errs, fmt.Errorf("partitions.count: must be between 1 and %d, got %d", math.MaxUint16, c.Partitions.Count))
	}
	if c.Export.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("export.chunk_size: must be positive, got %d", c.Export.ChunkSize))
	}
	if err := validateLogLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: must be text or json, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func validateLogLevel(level string) error {
	if !logging.ValidLevel(level) {
		return fmt.Errorf("unknown level %q", level)
	}
	return nil
}

// ExpandHome resolves a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	return expandHome(path)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
