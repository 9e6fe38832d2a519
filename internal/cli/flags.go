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

package cli

import (
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/tombee/rerun/internal/config"
	"github.com/tombee/rerun/internal/log"
)

// flags holds the root command's flag values.
type flags struct {
	dir         string
	quietPeriod time.Duration
	grace       time.Duration
	include     []string
	exclude     []string
	maxDepth    int
	maxRestarts int
	metricsAddr string
	pidFile     string
	configPath  string
	logLevel    string
	logFormat   string
	verbose     bool
	silent      bool
}

func (f *flags) register(fs *pflag.FlagSet) {
	defaults := config.Default()

	fs.StringVarP(&f.dir, "dir", "d", defaults.Root, "Directory to watch for changes")
	fs.DurationVarP(&f.quietPeriod, "quiet-period", "q", defaults.QuietPeriod, "How long the tree must be still before restarting")
	fs.DurationVarP(&f.grace, "grace", "g", defaults.GracePeriod, "How long the command gets to exit after hang-up before it is killed")
	// StringArray keeps brace patterns such as *.{go,mod} in one piece
	fs.StringArrayVarP(&f.include, "include", "i", nil, "Only restart for paths matching this glob (repeatable)")
	fs.StringArrayVarP(&f.exclude, "exclude", "e", nil, "Ignore paths matching this glob (repeatable)")
	fs.IntVar(&f.maxDepth, "max-depth", defaults.MaxDepth, "Maximum directory depth to watch")
	fs.IntVar(&f.maxRestarts, "max-restarts", 0, "Maximum restarts per minute (0 for unlimited)")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")
	fs.StringVar(&f.pidFile, "pid-file", "", "Write the rerun PID to this file")
	fs.StringVar(&f.configPath, "config", "", "Path to config file (default: .rerun.yaml or ~/.config/rerun/config.yaml)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format (auto, json, text)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Enable debug logging")
	fs.BoolVarP(&f.silent, "silent", "s", false, "Suppress status lines and warnings")

	fs.SetInterspersed(false)
}

// resolve loads the configuration file and applies the environment and the
// flags that were set explicitly, in that order.
func (f *flags) resolve(fs *pflag.FlagSet) (*config.Config, error) {
	path, err := config.Find(f.configPath)
	if err != nil {
		return nil, NewConfigError("", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, NewConfigError("", err)
	}

	env := log.FromEnv()
	if os.Getenv(log.EnvDebug) != "" || os.Getenv(log.EnvLevel) != "" || os.Getenv(log.EnvLogLevel) != "" {
		cfg.Log.Level = env.Level
	}
	if os.Getenv(log.EnvFormat) != "" {
		cfg.Log.Format = string(env.Format)
	}

	if fs.Changed("dir") {
		cfg.Root = f.dir
	}
	if fs.Changed("quiet-period") {
		cfg.QuietPeriod = f.quietPeriod
	}
	if fs.Changed("grace") {
		cfg.GracePeriod = f.grace
	}
	if fs.Changed("include") {
		cfg.Include = f.include
	}
	if fs.Changed("exclude") {
		cfg.Exclude = f.exclude
	}
	if fs.Changed("max-depth") {
		cfg.MaxDepth = f.maxDepth
	}
	if fs.Changed("max-restarts") {
		cfg.MaxRestartsPerMinute = f.maxRestarts
	}
	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if fs.Changed("pid-file") {
		cfg.PIDFile = f.pidFile
	}

	switch {
	case fs.Changed("log-level"):
		cfg.Log.Level = f.logLevel
	case f.verbose:
		cfg.Log.Level = "debug"
	case f.silent:
		cfg.Log.Level = "error"
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, NewConfigError("invalid settings", err)
	}
	return cfg, nil
}
