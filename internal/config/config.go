package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config contains the program configuration.
type Config struct {
	LibraryRoot     string `yaml:"library_root"`
	LogLevel        string `yaml:"log_level"`
	ScanConcurrency int    `yaml:"scan_concurrency"`
	WatchDebounceMS int    `yaml:"watch_debounce_ms"`
	ThumbnailEdge   int    `yaml:"thumbnail_edge"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		LogLevel:        "INFO",
		ScanConcurrency: runtime.GOMAXPROCS(0),
		WatchDebounceMS: 10_000,
		ThumbnailEdge:   200,
	}
}

// LoadConfigFile loads configuration from a YAML file.
// If path is empty, standard locations are searched. Returns defaults if no
// file is found.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg.LibraryRoot = ExpandHome(cfg.LibraryRoot)
	if cfg.ScanConcurrency <= 0 {
		cfg.ScanConcurrency = runtime.GOMAXPROCS(0)
	}
	if cfg.WatchDebounceMS <= 0 {
		cfg.WatchDebounceMS = DefaultConfig().WatchDebounceMS
	}
	if cfg.ThumbnailEdge <= 0 {
		cfg.ThumbnailEdge = DefaultConfig().ThumbnailEdge
	}

	return cfg, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// FindConfigFile searches for a config file in standard locations.
func FindConfigFile() string {
	home := homeDir()
	locations := []string{
		"./cadenza.yaml",
		"./cadenza.yml",
		filepath.Join(home, ".config", "cadenza", "config.yaml"),
		filepath.Join(home, ".config", "cadenza", "config.yml"),
	}

	for _, path := range locations {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}

	return ""
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
