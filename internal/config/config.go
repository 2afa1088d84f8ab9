// ABOUTME: Host configuration loaded from TOML files over built-in defaults
// ABOUTME: Files are read with koanf; command-line flags are applied by the caller
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/harperreed/seqplay/internal/version"
)

const appName = "seqplay"

// Config holds host configuration
type Config struct {
	Name          string `koanf:"name"`
	Port          int    `koanf:"port"`
	MDNS          bool   `koanf:"mdns"`
	TUI           bool   `koanf:"tui"`
	Debug         bool   `koanf:"debug"`
	LogFile       string `koanf:"log_file"`
	StartPlayID   int64  `koanf:"start_play_id"`
	ExitOnRelease bool   `koanf:"exit_on_release"`

	// ProgressMs is the progress event interval in milliseconds
	ProgressMs int `koanf:"progress_ms"`

	Output  OutputConfig  `koanf:"output"`
	Raw     RawConfig     `koanf:"raw"`
	Journal JournalConfig `koanf:"journal"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// OutputConfig selects and shapes the audio device
type OutputConfig struct {
	Device     string `koanf:"device"` // "oto" or "null"
	SampleRate int    `koanf:"sample_rate"`
	Channels   int    `koanf:"channels"`
	Volume     int    `koanf:"volume"`
	Mode       string `koanf:"mode"` // initial output mode
}

// RawConfig describes payloads that carry no container header
type RawConfig struct {
	SampleRate int `koanf:"sample_rate"`
	Channels   int `koanf:"channels"`
	BitDepth   int `koanf:"bit_depth"`
}

// JournalConfig controls the SQLite event journal
type JournalConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Path     string `koanf:"path"` // empty means the XDG data dir
	Progress bool   `koanf:"progress"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Name:       version.Product,
		Port:       8928,
		MDNS:       true,
		TUI:        true,
		ProgressMs: 300,
		Output: OutputConfig{
			Device:     "oto",
			SampleRate: 48000,
			Channels:   2,
			Volume:     100,
			Mode:       "speaker",
		},
		Raw: RawConfig{
			SampleRate: 16000,
			Channels:   1,
			BitDepth:   16,
		},
		Journal: JournalConfig{Enabled: true},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads the given files over the defaults; later files win. With no
// paths, DefaultPaths is used. Missing files are skipped.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		paths = DefaultPaths()
	}

	k := koanf.New(".")
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.LogFile = expandPath(cfg.LogFile)
	cfg.Journal.Path = expandPath(cfg.Journal.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPaths lists config files in increasing priority
func DefaultPaths() []string {
	return []string{
		filepath.Join(xdg.ConfigHome, appName, "config.toml"),
		appName + ".toml",
	}
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	switch c.Output.Device {
	case "oto", "null":
	default:
		return fmt.Errorf("unknown output device %q (want oto or null)", c.Output.Device)
	}
	if c.Output.SampleRate <= 0 || c.Output.Channels <= 0 {
		return fmt.Errorf("output format must be positive: %d Hz, %d channels", c.Output.SampleRate, c.Output.Channels)
	}
	if c.Output.Volume < 0 || c.Output.Volume > 100 {
		return fmt.Errorf("volume out of range: %d", c.Output.Volume)
	}
	switch c.Raw.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("unsupported raw bit depth: %d", c.Raw.BitDepth)
	}
	if c.Raw.SampleRate <= 0 || c.Raw.Channels <= 0 {
		return fmt.Errorf("raw format must be positive: %d Hz, %d channels", c.Raw.SampleRate, c.Raw.Channels)
	}
	if c.ProgressMs <= 0 {
		return fmt.Errorf("progress_ms must be positive: %d", c.ProgressMs)
	}
	return nil
}

// ProgressInterval returns ProgressMs as a duration
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressMs) * time.Millisecond
}

// LogPath returns the log file, defaulting to the XDG state dir
func (c *Config) LogPath() (string, error) {
	if c.LogFile != "" {
		return c.LogFile, nil
	}
	return xdg.StateFile(filepath.Join(appName, appName+".log"))
}

// JournalPath returns the journal database, defaulting to the XDG data dir
func (c *Config) JournalPath() (string, error) {
	if c.Journal.Path != "" {
		return c.Journal.Path, nil
	}
	return xdg.DataFile(filepath.Join(appName, "journal.db"))
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
