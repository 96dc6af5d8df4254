package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the configuration is looked up when no path is given
const DefaultPath = "config/config.yaml"

type Config struct {
	Registry Registry `yaml:"registry"`
	Install  Install  `yaml:"install"`
	Launcher Launcher `yaml:"launcher"`
	Storage  Storage  `yaml:"storage"`
	Log      Log      `yaml:"log"`
}

type Registry struct {
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`
	Loader    string `yaml:"loader"`
	RPS       int    `yaml:"rps"` // 0 disables client-side pacing
	Burst     int    `yaml:"burst"`
}

type Install struct {
	Workers   int    `yaml:"workers"`
	Strategy  string `yaml:"strategy"` // roundrobin or queue
	ServerDir string `yaml:"server_dir"`
	Manifest  string `yaml:"manifest"`
}

type Launcher struct {
	MinecraftDir string `yaml:"minecraft_dir"` // empty means the platform default
	InstallerURL string `yaml:"installer_url"`
	Java         string `yaml:"java"`
	JavaArgs     string `yaml:"java_args"`
}

type Storage struct {
	Path string `yaml:"path"`
}

type Log struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Filename   string `yaml:"filename"`    // log file path
	MaxSize    int    `yaml:"max_size"`    // megabytes
	MaxBackups int    `yaml:"max_backups"` // number of backups
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`    // compress rotated files
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Registry: Registry{
			BaseURL:   "https://api.modrinth.com/v2",
			UserAgent: "KingRainbow44/modpack-installer",
			Loader:    "fabric",
			RPS:       5,
			Burst:     5,
		},
		Install: Install{
			Workers:   5,
			Strategy:  "roundrobin",
			ServerDir: ".",
			Manifest:  "modpack.json",
		},
		Launcher: Launcher{
			InstallerURL: "https://maven.fabricmc.net/net/fabricmc/fabric-installer/0.11.2/fabric-installer-0.11.2.jar",
			Java:         "java",
			JavaArgs:     "-Xmx4G -XX:+UnlockExperimentalVMOptions -XX:+UseG1GC -XX:G1NewSizePercent=20 -XX:G1ReservePercent=20 -XX:MaxGCPauseMillis=50 -XX:G1HeapRegionSize=32M",
		},
		Storage: Storage{
			Path: "data",
		},
		Log: Log{
			Level:      "info",
			Filename:   "data/logs/installer.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}

// Load loads the configuration from the default config file
func Load() (*Config, error) {
	return LoadFromFile(DefaultPath)
}

// LoadFromFile loads the configuration from the specified file.
// A missing file yields the defaults; values in the file override them.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	if c.Registry.BaseURL == "" {
		return errors.New("registry.base_url must not be empty")
	}
	if c.Install.Workers < 1 {
		return fmt.Errorf("install.workers must be positive, got %d", c.Install.Workers)
	}
	switch c.Install.Strategy {
	case "roundrobin", "queue":
	default:
		return fmt.Errorf("install.strategy must be roundrobin or queue, got %q", c.Install.Strategy)
	}
	if c.Registry.RPS < 0 || c.Registry.Burst < 0 {
		return errors.New("registry.rps and registry.burst must not be negative")
	}
	return nil
}

// EnsureDirs creates necessary directories if they don't exist
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.Storage.Path,
		filepath.Join(c.Storage.Path, "manifests"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
