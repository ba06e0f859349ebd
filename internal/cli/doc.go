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

/*
Package cli provides the root command for addonhost's CLI.

This package creates the main Cobra command and handles global concerns like
version information, persistent flags and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	addonhost
	├── serve         Discover modules and serve their routes
	├── scan          List the units a serve would load
	├── validate      Validate a manifest file
	├── completion    Generate shell completion scripts
	└── version       Show version

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	// ... add commands ...
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

	--verbose, -v    Enable verbose output
	--json           Output in JSON format
	--config         Path to config file

# Exit Codes

  - 0: Success
  - 1: General error
  - 2: Invalid manifest
  - 3: Invalid configuration
  - 4: Operation id collision
*/
package cli
