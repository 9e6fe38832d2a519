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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	rerunerrors "github.com/tombee/rerun/pkg/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Root != "." {
		t.Errorf("expected root '.', got %q", cfg.Root)
	}
	if cfg.QuietPeriod != 100*time.Millisecond {
		t.Errorf("expected quiet period 100ms, got %v", cfg.QuietPeriod)
	}
	if cfg.GracePeriod != 2*time.Second {
		t.Errorf("expected grace period 2s, got %v", cfg.GracePeriod)
	}
	if cfg.MaxDepth != 16 {
		t.Errorf("expected max depth 16, got %d", cfg.MaxDepth)
	}
	if cfg.MaxRestartsPerMinute != 0 {
		t.Errorf("expected no restart limit, got %d", cfg.MaxRestartsPerMinute)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected log level 'warn', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "auto" {
		t.Errorf("expected log format 'auto', got %q", cfg.Log.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		field   string
	}{
		{
			name:   "valid default config",
			modify: func(c *Config) {},
		},
		{
			name:    "empty root",
			modify:  func(c *Config) { c.Root = "" },
			wantErr: true,
			field:   "root",
		},
		{
			name:    "negative quiet period",
			modify:  func(c *Config) { c.QuietPeriod = -time.Second },
			wantErr: true,
			field:   "quiet_period",
		},
		{
			name:   "zero quiet period",
			modify: func(c *Config) { c.QuietPeriod = 0 },
		},
		{
			name:    "zero grace period",
			modify:  func(c *Config) { c.GracePeriod = 0 },
			wantErr: true,
			field:   "grace_period",
		},
		{
			name:    "negative max depth",
			modify:  func(c *Config) { c.MaxDepth = -1 },
			wantErr: true,
			field:   "max_depth",
		},
		{
			name:    "negative restart limit",
			modify:  func(c *Config) { c.MaxRestartsPerMinute = -5 },
			wantErr: true,
			field:   "max_restarts_per_minute",
		},
		{
			name:    "invalid include pattern",
			modify:  func(c *Config) { c.Include = []string{"[abc"} },
			wantErr: true,
			field:   "include",
		},
		{
			name:    "invalid exclude pattern",
			modify:  func(c *Config) { c.Exclude = []string{"**/*.go", "{a,b"} },
			wantErr: true,
			field:   "exclude",
		},
		{
			name:   "valid patterns",
			modify: func(c *Config) { c.Include = []string{"**/*.go"}; c.Exclude = []string{"vendor/**"} },
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: true,
			field:   "log.level",
		},
		{
			name:   "trace log level",
			modify: func(c *Config) { c.Log.Level = "trace" },
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
			field:   "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if !tt.wantErr {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}

			var verr *rerunerrors.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GracePeriod != Default().GracePeriod {
		t.Errorf("expected default grace period, got %v", cfg.GracePeriod)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
root: ./src
quiet_period: 250ms
grace_period: 5s
include:
  - "**/*.go"
exclude:
  - "testdata/**"
max_depth: 4
max_restarts_per_minute: 30
metrics_addr: 127.0.0.1:9464
pid_file: /tmp/rerun.pid
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Root != "./src" {
		t.Errorf("expected root ./src, got %q", cfg.Root)
	}
	if cfg.QuietPeriod != 250*time.Millisecond {
		t.Errorf("expected quiet period 250ms, got %v", cfg.QuietPeriod)
	}
	if cfg.GracePeriod != 5*time.Second {
		t.Errorf("expected grace period 5s, got %v", cfg.GracePeriod)
	}
	if len(cfg.Include) != 1 || cfg.Include[0] != "**/*.go" {
		t.Errorf("unexpected include patterns %v", cfg.Include)
	}
	if len(cfg.Exclude) != 1 || cfg.Exclude[0] != "testdata/**" {
		t.Errorf("unexpected exclude patterns %v", cfg.Exclude)
	}
	if cfg.MaxDepth != 4 {
		t.Errorf("expected max depth 4, got %d", cfg.MaxDepth)
	}
	if cfg.MaxRestartsPerMinute != 30 {
		t.Errorf("expected restart limit 30, got %d", cfg.MaxRestartsPerMinute)
	}
	if cfg.MetricsAddr != "127.0.0.1:9464" {
		t.Errorf("unexpected metrics addr %q", cfg.MetricsAddr)
	}
	if cfg.PIDFile != "/tmp/rerun.pid" {
		t.Errorf("unexpected pid file %q", cfg.PIDFile)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
}

func TestLoadMinimalFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "grace_period: 1s\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GracePeriod != time.Second {
		t.Errorf("expected grace period 1s, got %v", cfg.GracePeriod)
	}
	if cfg.QuietPeriod != 100*time.Millisecond {
		t.Errorf("expected default quiet period, got %v", cfg.QuietPeriod)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected default log level, got %q", cfg.Log.Level)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Root != "." {
		t.Errorf("expected default root, got %q", cfg.Root)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "quiet_period: 1s\nmetrics_addr: :9000\n")
	t.Setenv("RERUN_QUIET_PERIOD", "20ms")
	t.Setenv("RERUN_METRICS_ADDR", ":9100")
	t.Setenv("RERUN_MAX_RESTARTS", "12")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.QuietPeriod != 20*time.Millisecond {
		t.Errorf("expected env quiet period, got %v", cfg.QuietPeriod)
	}
	if cfg.MetricsAddr != ":9100" {
		t.Errorf("expected env metrics addr, got %q", cfg.MetricsAddr)
	}
	if cfg.MaxRestartsPerMinute != 12 {
		t.Errorf("expected env restart limit, got %d", cfg.MaxRestartsPerMinute)
	}
}

func TestLoadInvalidEnvOverride(t *testing.T) {
	t.Setenv("RERUN_GRACE_PERIOD", "soon")

	_, err := Load("")
	var cerr *rerunerrors.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cerr.Key != "RERUN_GRACE_PERIOD" {
		t.Errorf("expected key RERUN_GRACE_PERIOD, got %q", cerr.Key)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var cerr *rerunerrors.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped not-exist error, got %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{"malformed", "root: [unclosed\n", "failed to parse YAML"},
		{"unknown key", "roots: ./src\n", "failed to parse YAML"},
		{"bad duration", "grace_period: forever\n", "failed to parse YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)

			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("expected error containing %q, got %q", tt.errText, err.Error())
			}
			if !strings.Contains(err.Error(), path) {
				t.Errorf("expected error to name %s, got %q", path, err.Error())
			}
		})
	}
}

func TestLoadValidationFailure(t *testing.T) {
	path := writeConfig(t, "log:\n  format: xml\n")

	_, err := Load(path)
	var verr *rerunerrors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected wrapped ValidationError, got %v", err)
	}
	if verr.Field != "log.format" {
		t.Errorf("expected field log.format, got %q", verr.Field)
	}
}

func TestFind(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		path := writeConfig(t, "")
		got, err := Find(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != path {
			t.Errorf("expected %s, got %s", path, got)
		}
	})

	t.Run("explicit path missing", func(t *testing.T) {
		_, err := Find(filepath.Join(t.TempDir(), "nope.yaml"))
		var cerr *rerunerrors.ConfigError
		if !errors.As(err, &cerr) {
			t.Fatalf("expected ConfigError, got %v", err)
		}
	})

	t.Run("local file wins over user file", func(t *testing.T) {
		xdg := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", xdg)
		writeUserConfig(t, xdg)

		work := t.TempDir()
		chdir(t, work)
		if err := os.WriteFile(LocalFile, []byte("root: .\n"), 0644); err != nil {
			t.Fatal(err)
		}

		got, err := Find("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != LocalFile {
			t.Errorf("expected %s, got %s", LocalFile, got)
		}
	})

	t.Run("user file", func(t *testing.T) {
		xdg := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", xdg)
		want := writeUserConfig(t, xdg)
		chdir(t, t.TempDir())

		got, err := Find("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		chdir(t, t.TempDir())

		got, err := Find("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "" {
			t.Errorf("expected no file, got %s", got)
		}
	})
}

func TestConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	got, err := ConfigPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/xdg/rerun/config.yaml" {
		t.Errorf("unexpected path %s", got)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rerun.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeUserConfig(t *testing.T, xdg string) string {
	t.Helper()
	dir := filepath.Join(xdg, "rerun")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("grace_period: 3s\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir on newer toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PWD", dir)
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			panic(err)
		}
	})
}
