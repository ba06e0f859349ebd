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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	hosterrors "github.com/tombee/addonhost/pkg/errors"
)

// Exit codes for addonhost commands
const (
	ExitSuccess         = 0
	ExitFailed          = 1
	ExitInvalidManifest = 2
	ExitConfigError     = 3
	ExitCollision       = 4
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExitError wraps cause with the exit code matching its error type.
func NewExitError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitCodeFor(cause),
		Message: msg,
		Cause:   cause,
	}
}

// ExitCodeFor maps the host error taxonomy onto exit codes.
func ExitCodeFor(err error) int {
	switch hosterrors.TypeOf(err) {
	case "":
		if err == nil {
			return ExitSuccess
		}
		return ExitFailed
	case hosterrors.TypeManifest:
		return ExitInvalidManifest
	case hosterrors.TypeConfig:
		return ExitConfigError
	case hosterrors.TypeCollision:
		return ExitCollision
	default:
		return ExitFailed
	}
}

// HandleExitError prints err and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	os.Exit(PrintError(os.Stderr, err))
}

// PrintError writes err and any suggestion to w and returns the exit code.
func PrintError(w io.Writer, err error) int {
	code := ExitCodeFor(err)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
	}

	fmt.Fprintln(w, "Error:", err.Error())

	var ve *hosterrors.ValidationError
	if errors.As(err, &ve) && ve.Suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", ve.Suggestion)
	}
	return code
}
