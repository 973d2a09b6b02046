// Copyright 2026 Google Inc. All rights reserved.
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
	"fmt"
	"log/slog"
	"strings"
)

// Config is the tracecmd-stats configuration.  Field tags use
// mapstructure for viper unmarshalling.
type Config struct {
	Engine  string        `mapstructure:"engine"`
	Replay  ReplayConfig  `mapstructure:"replay"`
	Top     TopConfig     `mapstructure:"top"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ReplayConfig configures the fixture-backed engine.
type ReplayConfig struct {
	// Root is where relative fixture paths are resolved.
	Root string `mapstructure:"root"`
}

// TopConfig holds the defaults of the top command.
type TopConfig struct {
	Limit  int    `mapstructure:"limit"`
	Prefix string `mapstructure:"prefix"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// MetricsConfig enables the Prometheus scrape endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Engines that can be selected with the engine key.
const (
	EngineNative = "native"
	EngineReplay = "replay"
)

var (
	ErrInvalidEngine   = errors.New("engine must be native or replay")
	ErrInvalidTopLimit = errors.New("top.limit must be positive")
	ErrInvalidLogLevel = errors.New("log.level must be debug, info, warn or error")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineNative, EngineReplay:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEngine, c.Engine)
	}

	if c.Top.Limit <= 0 {
		return ErrInvalidTopLimit
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, l.Level)
	}
}
