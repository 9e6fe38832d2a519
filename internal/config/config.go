// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the optional rerun configuration file.
//
// Every field has a default, so a missing file is not an error. Command-line
// flags override file values; that merge happens in the CLI layer.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/tombee/rerun/internal/log"
	rerunerrors "github.com/tombee/rerun/pkg/errors"
)

// LocalFile is the per-directory configuration file name.
const LocalFile = ".rerun.yaml"

// Config is the rerun configuration.
type Config struct {
	// Root is the directory tree watched for changes.
	Root string `yaml:"root,omitempty"`

	// QuietPeriod is how long the tree must stay unchanged before a restart.
	QuietPeriod time.Duration `yaml:"quiet_period,omitempty"`

	// GracePeriod is how long a target gets to exit after hang-up before it is killed.
	GracePeriod time.Duration `yaml:"grace_period,omitempty"`

	// Include limits triggering changes to paths matching these globs.
	Include []string `yaml:"include,omitempty"`

	// Exclude adds globs on top of the built-in editor and VCS exclusions.
	Exclude []string `yaml:"exclude,omitempty"`

	// MaxDepth bounds how deep below Root directories are watched.
	MaxDepth int `yaml:"max_depth,omitempty"`

	// MaxRestartsPerMinute bounds the restart rate. Zero means unlimited.
	MaxRestartsPerMinute int `yaml:"max_restarts_per_minute,omitempty"`

	// MetricsAddr, when set, serves prometheus metrics on this address.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	// PIDFile, when set, receives the driver's PID for the lifetime of the run.
	PIDFile string `yaml:"pid_file,omitempty"`

	Log LogConfig `yaml:"log,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level,omitempty"`

	// Format sets the output format (auto, json, text).
	Format string `yaml:"format,omitempty"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Root:        ".",
		QuietPeriod: 100 * time.Millisecond,
		GracePeriod: 2 * time.Second,
		MaxDepth:    16,
		Log: LogConfig{
			Level:  "warn",
			Format: string(log.FormatAuto),
		},
	}
}

// Load reads configuration from the YAML file at path, fills unset fields
// with defaults, applies environment overrides and validates the result.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, &rerunerrors.ConfigError{
				Path:   path,
				Reason: "failed to load",
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, &rerunerrors.ConfigError{
			Path:   path,
			Reason: "invalid configuration",
			Cause:  err,
		}
	}

	return cfg, nil
}

// Find returns the configuration file to load. An explicit path must exist.
// Otherwise LocalFile in the working directory is tried, then the user
// config file. An empty result means no file was found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		path, err := expandHome(explicit)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); err != nil {
			return "", &rerunerrors.ConfigError{
				Path:   explicit,
				Reason: "config file not found",
				Cause:  err,
			}
		}
		return path, nil
	}

	candidates := []string{LocalFile}
	if user, err := ConfigPath(); err == nil {
		candidates = append(candidates, user)
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", rerunerrors.Wrapf(err, "failed to stat %s", candidate)
		}
	}

	return "", nil
}

// applyDefaults fills in zero values so minimal files work.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Root == "" {
		c.Root = defaults.Root
	}
	if c.QuietPeriod == 0 {
		c.QuietPeriod = defaults.QuietPeriod
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = defaults.GracePeriod
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = defaults.MaxDepth
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

func (c *Config) loadFromFile(path string) error {
	path, err := expandHome(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rerunerrors.Wrap(err, "failed to read config file")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		// An empty file decodes to EOF and leaves the defaults in place.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return rerunerrors.Wrap(err, "failed to parse YAML")
	}

	return nil
}

// loadFromEnv applies RERUN_* overrides. Log settings are read by the log
// package itself.
func (c *Config) loadFromEnv() error {
	if val := os.Getenv("RERUN_QUIET_PERIOD"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return envError("RERUN_QUIET_PERIOD", err)
		}
		c.QuietPeriod = d
	}
	if val := os.Getenv("RERUN_GRACE_PERIOD"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return envError("RERUN_GRACE_PERIOD", err)
		}
		c.GracePeriod = d
	}
	if val := os.Getenv("RERUN_MAX_RESTARTS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return envError("RERUN_MAX_RESTARTS", err)
		}
		c.MaxRestartsPerMinute = n
	}
	if val := os.Getenv("RERUN_METRICS_ADDR"); val != "" {
		c.MetricsAddr = val
	}
	if val := os.Getenv("RERUN_PID_FILE"); val != "" {
		c.PIDFile = val
	}
	return nil
}

func envError(name string, err error) error {
	return &rerunerrors.ConfigError{
		Key:    name,
		Reason: "invalid environment override",
		Cause:  err,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Root == "" {
		return &rerunerrors.ValidationError{Field: "root", Message: "must not be empty"}
	}
	if c.QuietPeriod < 0 {
		return &rerunerrors.ValidationError{
			Field:   "quiet_period",
			Message: fmt.Sprintf("must not be negative, got %v", c.QuietPeriod),
		}
	}
	if c.GracePeriod <= 0 {
		return &rerunerrors.ValidationError{
			Field:   "grace_period",
			Message: fmt.Sprintf("must be positive, got %v", c.GracePeriod),
			Hint:    "Use a duration such as 2s or 500ms",
		}
	}
	if c.MaxDepth < 0 {
		return &rerunerrors.ValidationError{
			Field:   "max_depth",
			Message: fmt.Sprintf("must not be negative, got %d", c.MaxDepth),
		}
	}
	if c.MaxRestartsPerMinute < 0 {
		return &rerunerrors.ValidationError{
			Field:   "max_restarts_per_minute",
			Message: fmt.Sprintf("must not be negative, got %d", c.MaxRestartsPerMinute),
			Hint:    "Use 0 to disable the limit",
		}
	}
	for _, field := range []struct {
		name     string
		patterns []string
	}{{"include", c.Include}, {"exclude", c.Exclude}} {
		for _, pattern := range field.patterns {
			if !doublestar.ValidatePattern(pattern) {
				return &rerunerrors.ValidationError{
					Field:   field.name,
					Message: fmt.Sprintf("invalid glob pattern %q", pattern),
					Hint:    "Patterns use doublestar syntax, e.g. **/*.go",
				}
			}
		}
	}
	if !log.ValidLevel(c.Log.Level) {
		return &rerunerrors.ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("must be one of [trace, debug, info, warn, error], got %q", c.Log.Level),
		}
	}
	if !log.ValidFormat(c.Log.Format) {
		return &rerunerrors.ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("must be one of [auto, json, text], got %q", c.Log.Format),
		}
	}
	return nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", rerunerrors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, path[2:]), nil
}
