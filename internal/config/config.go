// Package config assembles the zolltools configuration from defaults, an
// optional YAML file and ZOLLTOOLS_* environment variables. Command-line
// flags are applied on top by package cli.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Jython1415/zolltools/pkg/humanfmt"
	"github.com/Jython1415/zolltools/pkg/membudget"
)

// Environment variables read by ApplyEnv.
const (
	EnvTargetSize   = "ZOLLTOOLS_TARGET_SIZE"
	EnvDir          = "ZOLLTOOLS_DIR"
	EnvMemoryBudget = "ZOLLTOOLS_MEMORY_BUDGET"
	EnvMaxWorkers   = "ZOLLTOOLS_MAX_WORKERS"
)

// DefaultTargetSize is the default in-memory chunk target (1e8 bytes).
const DefaultTargetSize int64 = 100_000_000

// Config is the resolved configuration.
type Config struct {
	TargetInMemorySizeBytes int64
	DirectoryPath           string
	MaxWorkers              int
	// MemoryBudget is empty (no budget), "auto" (half of RAM) or a size.
	MemoryBudget string
	Debug        bool
	Human        bool
	MetricsFile  string
	MappingFile  string
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		TargetInMemorySizeBytes: DefaultTargetSize,
		DirectoryPath:           ".",
	}
}

// file is the YAML shape. Sizes are strings so they can carry suffixes.
type file struct {
	TargetSize   string `yaml:"target_size"`
	Dir          string `yaml:"dir"`
	MaxWorkers   *int   `yaml:"max_workers"`
	MemoryBudget string `yaml:"memory_budget"`
	Debug        *bool  `yaml:"debug"`
	Human        *bool  `yaml:"human"`
	MetricsFile  string `yaml:"metrics_file"`
	MappingFile  string `yaml:"mapping_file"`
}

// Load returns the defaults overlaid with the YAML file at path (skipped
// when path is empty) and then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg. ${VAR} references in
// the file are replaced by environment values before parsing.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(data))), &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if f.TargetSize != "" {
		n, err := ParseTarget(f.TargetSize)
		if err != nil {
			return fmt.Errorf("config file %s: target_size: %w", path, err)
		}
		cfg.TargetInMemorySizeBytes = n
	}
	if f.Dir != "" {
		cfg.DirectoryPath = f.Dir
	}
	if f.MaxWorkers != nil {
		cfg.MaxWorkers = *f.MaxWorkers
	}
	if f.MemoryBudget != "" {
		cfg.MemoryBudget = f.MemoryBudget
	}
	if f.Debug != nil {
		cfg.Debug = *f.Debug
	}
	if f.Human != nil {
		cfg.Human = *f.Human
	}
	if f.MetricsFile != "" {
		cfg.MetricsFile = f.MetricsFile
	}
	if f.MappingFile != "" {
		cfg.MappingFile = f.MappingFile
	}
	return nil
}

// ApplyEnv overlays the ZOLLTOOLS_* variables found through getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv(EnvTargetSize); v != "" {
		n, err := ParseTarget(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTargetSize, err)
		}
		cfg.TargetInMemorySizeBytes = n
	}
	if v := getenv(EnvDir); v != "" {
		cfg.DirectoryPath = v
	}
	if v := getenv(EnvMemoryBudget); v != "" {
		cfg.MemoryBudget = v
	}
	if v := getenv(EnvMaxWorkers); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxWorkers, err)
		}
		cfg.MaxWorkers = n
	}
	return nil
}

// ParseTarget parses a chunk target such as "1e8" or "256MiB".
func ParseTarget(s string) (int64, error) {
	n, err := humanfmt.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("target size must be positive, got %q", s)
	}
	return n, nil
}

// Validate checks values that cannot be checked while parsing.
func (c Config) Validate() error {
	if c.TargetInMemorySizeBytes <= 0 {
		return fmt.Errorf("target size must be positive, got %d", c.TargetInMemorySizeBytes)
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("max workers must not be negative, got %d", c.MaxWorkers)
	}
	if c.DirectoryPath == "" {
		return fmt.Errorf("directory path is empty")
	}
	return nil
}

// Budget builds the configured memory budget, or nil when none is set.
func (c Config) Budget() (*membudget.Budget, error) {
	if strings.TrimSpace(c.MemoryBudget) == "" {
		return nil, nil
	}
	return membudget.Parse(c.MemoryBudget)
}

func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			return content
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			return content
		}
		end += start
		content = content[:start] + os.Getenv(content[start+2:end]) + content[end+1:]
	}
}
