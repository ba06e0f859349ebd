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

// Package serve implements "addonhost serve".
package serve

import (
	"github.com/spf13/cobra"

	"github.com/tombee/addonhost/internal/commands/completion"
	"github.com/tombee/addonhost/internal/commands/shared"
	"github.com/tombee/addonhost/internal/controller"
)

// runHost is replaced in tests.
var runHost = controller.Run

// NewCommand creates the serve command
func NewCommand() *cobra.Command {
	var (
		addr      string
		addonsDir string
		watch     bool
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Discover addon modules and serve their routes",
		Long: `Serve scans the addon directory, registers every installable module's
routes next to the built-in lifecycle API and serves them until SIGINT
or SIGTERM.

Two routes sharing an operation id abort startup with exit code 4.`,
		Example: `  # Serve ./addons on the default address
  addonhost serve

  # Serve another tree with hot reload
  addonhost serve --addons-dir /srv/addons --watch

  # Listen on a Unix socket
  addonhost serve --addr unix:///run/addonhost.sock`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			version, commit, buildDate := shared.GetVersion()
			opts := controller.RunOptions{
				Version:    version,
				Commit:     commit,
				BuildDate:  buildDate,
				ConfigPath: shared.GetConfigPath(),
				Addr:       addr,
				AddonsDir:  addonsDir,
				LogLevel:   logLevel,
			}
			if cmd.Flags().Changed("watch") {
				opts.Watch = &watch
			}
			if shared.GetVerbose() && logLevel == "" {
				opts.LogLevel = "debug"
			}

			if err := runHost(opts); err != nil {
				return shared.NewExitError("host stopped", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, host:port or unix:///path (overrides config)")
	cmd.Flags().StringVar(&addonsDir, "addons-dir", "", "Addon directory to serve (overrides config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload modules when files under the addon directory change")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")

	_ = cmd.MarkFlagDirname("addons-dir")
	_ = cmd.RegisterFlagCompletionFunc("log-level", completion.CompleteLogLevels)

	return cmd
}
