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

package controller

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/addonhost/internal/config"
	"github.com/tombee/addonhost/internal/log"
)

// RunOptions configures host execution.
type RunOptions struct {
	Version   string
	Commit    string
	BuildDate string

	// ConfigPath is an explicit config file. Empty means discovery.
	ConfigPath string

	// Config overrides
	Addr      string
	AddonsDir string
	Watch     *bool

	// LogLevel overrides both the config file and the environment.
	LogLevel string
}

// Run loads configuration, starts the host and blocks until a signal or a
// fatal error. An operation id collision at startup is returned as is so
// the caller can exit non-zero.
func Run(opts RunOptions) error {
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(config.Discover(opts.ConfigPath))
	if err != nil {
		logger.Error("Failed to load config", log.Error(err))
		return fmt.Errorf("failed to load config: %w", err)
	}

	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	if opts.AddonsDir != "" {
		cfg.Addons.Dir = opts.AddonsDir
	}
	if opts.Watch != nil {
		cfg.Addons.Watch.Enabled = *opts.Watch
	}

	var hostLogger *slog.Logger
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
		logCfg := log.FromEnv()
		logCfg.Merge(opts.LogLevel, cfg.Log.Format, cfg.Log.AddSource)
		hostLogger = log.New(logCfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := New(ctx, cfg, Options{
		Version:   opts.Version,
		Commit:    opts.Commit,
		BuildDate: opts.BuildDate,
		Logger:    hostLogger,
	})
	if err != nil {
		logger.Error("Failed to create host", log.Error(err))
		return fmt.Errorf("failed to create host: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "\nReceived signal, shutting down...")
		if err := c.Shutdown(context.Background()); err != nil {
			logger.Error("Error during shutdown", log.Error(err))
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		_ = c.Shutdown(context.Background())
		if err != nil {
			logger.Error("Host error", log.Error(err))
			return err
		}
		return nil
	}
}
