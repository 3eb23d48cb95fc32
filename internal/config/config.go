// Package config loads scancoord settings from layered YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"scancoord/internal/safefile"
)

const (
	DirName  = ".scancoord"
	FileName = "config.yaml"

	DefaultDebounce = time.Second
	DefaultLogLevel = "info"
)

// EngineConfig describes one external scanner. An empty Parser defaults to
// the engine name.
type EngineConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	Parser  string   `yaml:"parser,omitempty"`
	Timeout string   `yaml:"timeout,omitempty"`
	Stdin   bool     `yaml:"stdin,omitempty"`
	Env     []string `yaml:"env,omitempty"`
}

// Config mirrors the CLI flag names. Zero values mean "not set".
type Config struct {
	Debounce      string         `yaml:"debounce,omitempty"`
	Workers       *int           `yaml:"workers,omitempty"`
	EngineWorkers *int           `yaml:"engine_workers,omitempty"`
	LogLevel      string         `yaml:"log_level,omitempty"`
	Debug         *bool          `yaml:"debug,omitempty"`
	LedgerDir     string         `yaml:"ledger_dir,omitempty"`
	Engines       []EngineConfig `yaml:"engines,omitempty"`
}

// Resolved is a Config with defaults applied and durations parsed.
type Resolved struct {
	Debounce      time.Duration
	Workers       int
	EngineWorkers int
	LogLevel      string
	Debug         bool
	LedgerDir     string
	Engines       []ResolvedEngine
}

type ResolvedEngine struct {
	EngineConfig
	TimeoutDuration time.Duration
}

// Load reads config from layered sources:
//  1. ~/.scancoord/config.yaml (global)
//  2. <root>/.scancoord/config.yaml (workspace-local, takes precedence)
//
// Missing files are silently ignored. Returns zero Config if neither exists.
func Load(root string) (Config, error) {
	home, _ := os.UserHomeDir()
	var globalPath, localPath string
	if home != "" {
		globalPath = filepath.Join(home, DirName, FileName)
	}
	if root == "" {
		root, _ = os.Getwd()
	}
	if root != "" {
		localPath = filepath.Join(root, DirName, FileName)
	}

	var merged Config

	if globalPath != "" {
		global, err := loadFile(globalPath)
		if err != nil {
			return Config{}, fmt.Errorf("load global config %s: %w", globalPath, err)
		}
		merged = merge(merged, global)
	}

	if localPath != "" && localPath != globalPath {
		local, err := loadFile(localPath)
		if err != nil {
			return Config{}, fmt.Errorf("load local config %s: %w", localPath, err)
		}
		merged = merge(merged, local)
	}

	return merged, nil
}

func loadFile(path string) (Config, error) {
	data, err := safefile.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return Config{}, nil
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// merge applies overrides from b onto a. Non-zero fields in b win; a
// non-empty engine list replaces the previous one as a whole.
func merge(a, b Config) Config {
	if b.Debounce != "" {
		a.Debounce = b.Debounce
	}
	if b.Workers != nil {
		a.Workers = b.Workers
	}
	if b.EngineWorkers != nil {
		a.EngineWorkers = b.EngineWorkers
	}
	if b.LogLevel != "" {
		a.LogLevel = b.LogLevel
	}
	if b.Debug != nil {
		a.Debug = b.Debug
	}
	if b.LedgerDir != "" {
		a.LedgerDir = b.LedgerDir
	}
	if len(b.Engines) > 0 {
		a.Engines = b.Engines
	}
	return a
}

// Resolve applies defaults and validates values. A relative ledger dir is
// taken relative to root.
func (c Config) Resolve(root string) (Resolved, error) {
	r := Resolved{
		Debounce:  DefaultDebounce,
		Workers:   runtime.NumCPU(),
		LogLevel:  DefaultLogLevel,
		LedgerDir: DirName,
	}
	var errs []error

	if c.Debounce != "" {
		d, err := time.ParseDuration(c.Debounce)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("debounce: %w", err))
		case d <= 0:
			errs = append(errs, fmt.Errorf("debounce must be positive, got %s", c.Debounce))
		default:
			r.Debounce = d
		}
	}
	if c.Workers != nil {
		if *c.Workers < 1 {
			errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", *c.Workers))
		} else {
			r.Workers = *c.Workers
		}
	}
	if c.EngineWorkers != nil {
		if *c.EngineWorkers < 0 {
			errs = append(errs, fmt.Errorf("engine_workers must be >= 0, got %d", *c.EngineWorkers))
		} else {
			r.EngineWorkers = *c.EngineWorkers
		}
	}
	if c.LogLevel != "" {
		r.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	}
	if c.Debug != nil {
		r.Debug = *c.Debug
	}
	if c.LedgerDir != "" {
		r.LedgerDir = c.LedgerDir
	}
	if !filepath.IsAbs(r.LedgerDir) && root != "" {
		r.LedgerDir = filepath.Join(root, r.LedgerDir)
	}

	for i, e := range c.Engines {
		re := ResolvedEngine{EngineConfig: e}
		if strings.TrimSpace(e.Command) == "" {
			errs = append(errs, fmt.Errorf("engines[%d] (%s): command is required", i, e.Name))
		}
		if e.Timeout != "" {
			d, err := time.ParseDuration(e.Timeout)
			if err != nil {
				errs = append(errs, fmt.Errorf("engines[%d] (%s) timeout: %w", i, e.Name, err))
			}
			re.TimeoutDuration = d
		}
		r.Engines = append(r.Engines, re)
	}

	if len(errs) > 0 {
		return Resolved{}, errors.Join(errs...)
	}
	return r, nil
}
