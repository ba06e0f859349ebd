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

// Package scan implements "addonhost scan", a dry run of module discovery.
package scan

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/addonhost/internal/commands/shared"
	"github.com/tombee/addonhost/internal/config"
	"github.com/tombee/addonhost/internal/expression"
	"github.com/tombee/addonhost/internal/jq"
	"github.com/tombee/addonhost/internal/log"
	"github.com/tombee/addonhost/internal/manifest"
	"github.com/tombee/addonhost/internal/plugin"
	"github.com/tombee/addonhost/internal/scanner"
	"github.com/tombee/addonhost/sdk"
)

// Unit is one scanned candidate.
type Unit struct {
	scanner.Candidate
	Module      string `json:"module"`
	Version     string `json:"version,omitempty"`
	Installable bool   `json:"installable"`
	Routes      int    `json:"routes"`
	Error       string `json:"error,omitempty"`
}

// Result is the JSON output of the scan command.
type Result struct {
	shared.JSONResponse
	Root    string            `json:"root"`
	Units   []Unit            `json:"units"`
	Skipped []scanner.Skipped `json:"skipped"`
}

// NewCommand creates the scan command
func NewCommand() *cobra.Command {
	var addonsDir string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the code units that would be loaded",
		Long: `Scan walks the addon directory exactly as the server does at startup and
reports each candidate unit with the manifest governing it and the number
of routes it exports. Nothing is served.

Units that fail to load or violate their manifest are listed with the
error and make the command exit non-zero.`,
		Example: `  addonhost scan
  addonhost scan --addons-dir ./addons --json`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Discover(shared.GetConfigPath()))
			if err != nil {
				return shared.NewExitError("failed to load configuration", err)
			}
			if addonsDir != "" {
				cfg.Addons.Dir = addonsDir
			}
			return runScan(cmd.OutOrStdout(), cfg, nil)
		},
	}

	cmd.Flags().StringVar(&addonsDir, "addons-dir", "", "Addon directory to scan (overrides config)")
	_ = cmd.MarkFlagDirname("addons-dir")

	return cmd
}

// runScan scans cfg.Addons.Dir. A nil loader means plugin.Default.
func runScan(out io.Writer, cfg *config.Config, loader plugin.Loader) error {
	logger := slog.New(slog.DiscardHandler)
	if shared.GetVerbose() {
		logger = log.New(&log.Config{Level: "debug", Format: log.FormatText, Output: os.Stderr})
	}
	if loader == nil {
		loader = plugin.Default(expression.New(), jq.NewExecutor(jq.DefaultTimeout, jq.DefaultMaxInputSize))
	}

	sc, err := scanner.New(cfg.Addons.Dir, scanner.Options{
		ExcludeDirs:     cfg.Addons.ExcludeDirs,
		ExcludePatterns: cfg.Addons.ExcludePatterns,
		Extensions:      loader.Extensions(),
	}, logger)
	if err != nil {
		return shared.NewExitError("invalid addon configuration", err)
	}
	manifests, err := manifest.NewLoader(logger)
	if err != nil {
		return err
	}

	report, err := sc.ScanReport()
	if err != nil {
		return shared.NewExitError("scan failed", err)
	}

	units := make([]Unit, 0, len(report.Candidates))
	var firstErr error
	for _, c := range report.Candidates {
		u := inspect(c, manifests, loader)
		if u.Error != "" && firstErr == nil {
			firstErr = fmt.Errorf("%s: %s", c.TechnicalName, u.Error)
		}
		units = append(units, u)
	}

	if shared.GetJSON() {
		err := shared.EmitJSON(out, Result{
			JSONResponse: shared.NewJSONResponse("scan", firstErr == nil),
			Root:         report.Root,
			Units:        units,
			Skipped:      report.Skipped,
		})
		if err != nil {
			return err
		}
	} else {
		printReport(out, report, units)
	}

	if firstErr != nil {
		return &shared.ExitError{Code: shared.ExitFailed, Message: "some units failed", Cause: firstErr}
	}
	return nil
}

func inspect(c scanner.Candidate, manifests *manifest.Loader, loader plugin.Loader) Unit {
	u := Unit{Candidate: c}
	m, err := manifests.Load(c.TechnicalName, c.Dir)
	if err != nil {
		u.Error = err.Error()
		return u
	}
	u.Module = m.Name
	u.Version = m.Version
	u.Installable = m.Installable

	unit, err := loader.Load(c.Path)
	if err != nil {
		u.Error = err.Error()
		return u
	}
	u.Routes = countRoutes(unit)
	return u
}

func countRoutes(u *sdk.Unit) int {
	if u == nil || u.Router == nil {
		return 0
	}
	return len(u.Router.Routes)
}

func printReport(out io.Writer, report *scanner.Report, units []Unit) {
	fmt.Fprintln(out, shared.RenderHeader(report.Root, len(units)))
	for _, u := range units {
		fmt.Fprintln(out, shared.RenderModule(u.TechnicalName, u.Path))
		switch {
		case u.Error != "":
			fmt.Fprintf(out, "    %s\n", shared.RenderError(u.Error))
		case !u.Installable:
			fmt.Fprintf(out, "    %s\n", shared.RenderWarn("not installable, would be skipped"))
		default:
			version := u.Version
			if version == "" {
				version = "no manifest"
			}
			fmt.Fprintf(out, "    %s\n", shared.Muted.Render(fmt.Sprintf("%s, %d routes", version, u.Routes)))
		}
	}
	if shared.GetVerbose() {
		for _, s := range report.Skipped {
			fmt.Fprintf(out, "  %s\n", shared.Muted.Render(fmt.Sprintf("skipped %s (%s)", s.Path, s.Reason)))
		}
	}
}
