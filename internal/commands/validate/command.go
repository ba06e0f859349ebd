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

// Package validate implements "addonhost validate".
package validate

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tombee/addonhost/internal/commands/completion"
	"github.com/tombee/addonhost/internal/commands/shared"
	"github.com/tombee/addonhost/internal/manifest"
	hosterrors "github.com/tombee/addonhost/pkg/errors"
)

// Result is the JSON output of the validate command.
type Result struct {
	shared.JSONResponse
	Path     string             `json:"path"`
	Manifest *manifest.Manifest `json:"manifest,omitempty"`
	Errors   []shared.JSONError `json:"errors,omitempty"`
}

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate an addon manifest file",
		Long: `Validate checks that a manifest file is well-formed YAML, matches the
manifest schema and, for installable modules, carries a version in the
x.y or x.y.z format. Nothing is loaded or served.`,
		Example: `  # Validate one module's manifest
  addonhost validate addons/billing/__manifest__.yaml

  # Machine-readable output
  addonhost validate addons/billing/__manifest__.yaml --json`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteManifestFiles,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args[0])
		},
	}

	return cmd
}

func runValidate(out io.Writer, path string) error {
	loader, err := manifest.NewLoader(slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}

	m, err := loader.ValidateFile(path)
	if shared.GetJSON() {
		res := Result{JSONResponse: shared.NewJSONResponse("validate", err == nil), Path: path, Manifest: m}
		if err != nil {
			res.Errors = []shared.JSONError{jsonError(err)}
		}
		if emitErr := shared.EmitJSON(out, res); emitErr != nil {
			return emitErr
		}
		if err != nil {
			// already reported on stdout
			return &shared.ExitError{Code: shared.ExitCodeFor(err), Message: "validation failed"}
		}
		return nil
	}

	if err != nil {
		fmt.Fprintln(out, shared.RenderError(path))
		return shared.NewExitError("manifest is invalid", err)
	}

	fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%s is valid", path)))
	fmt.Fprintf(out, "  module:       %s\n", m.Name)
	fmt.Fprintf(out, "  version:      %s\n", m.Version)
	fmt.Fprintf(out, "  installable:  %t\n", m.Installable)
	fmt.Fprintf(out, "  license:      %s\n", m.License)
	fmt.Fprintf(out, "  dependencies: %d\n", len(m.Dependencies))
	fmt.Fprintf(out, "  routes:       %d\n", len(m.Routes))
	return nil
}

func jsonError(err error) shared.JSONError {
	je := shared.JSONError{Code: hosterrors.TypeOf(err), Message: err.Error()}
	if je.Code == "" {
		je.Code = "error"
	}
	if je.Code == hosterrors.TypeManifest {
		je.Suggestion = "check the manifest against the documented fields; version must look like 1.0 or 1.0.0"
	}
	return je
}
