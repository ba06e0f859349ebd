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

// Package scanner walks an addon tree and yields candidate code units.
package scanner

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/addonhost/internal/log"
	hosterrors "github.com/tombee/addonhost/pkg/errors"
)

// DefaultExcludeDirs are pruned when Options.ExcludeDirs is nil.
var DefaultExcludeDirs = []string{"tests", "config"}

// Candidate is one loadable unit found by a scan.
type Candidate struct {
	// Path is the unit file.
	Path string `json:"path"`

	// Dir is the directory containing the unit.
	Dir string `json:"dir"`

	// TechnicalName is the dotted relative path without extension.
	TechnicalName string `json:"technical_name"`
}

// Skip reasons reported by ScanReport.
const (
	ReasonExcludedDir = "excluded directory"
	ReasonHiddenDir   = "hidden directory"
	ReasonPattern     = "matches exclude pattern"
	ReasonReserved    = "reserved file name"
	ReasonExtension   = "not a unit extension"
	ReasonDuplicate   = "duplicate technical name"
)

// Skipped is a path the scan did not yield, with the reason.
type Skipped struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Report is the full outcome of a scan.
type Report struct {
	Root       string      `json:"root"`
	Candidates []Candidate `json:"candidates"`
	Skipped    []Skipped   `json:"skipped"`
}

// Options configures a Scanner.
type Options struct {
	// ExcludeDirs are directory names pruned at any depth. Nil means
	// DefaultExcludeDirs.
	ExcludeDirs []string

	// ExcludePatterns are doublestar globs matched against paths relative
	// to the root, using forward slashes.
	ExcludePatterns []string

	// Extensions are the unit file extensions, including the dot.
	Extensions []string
}

// Scanner discovers candidate units under a root directory.
type Scanner struct {
	root   string
	opts   Options
	logger *slog.Logger
}

// New creates a Scanner rooted at root.
func New(root string, opts Options, logger *slog.Logger) (*Scanner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve addons directory %s: %w", root, err)
	}
	for _, pattern := range opts.ExcludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, &hosterrors.ValidationError{
				Field:   "exclude_patterns",
				Message: fmt.Sprintf("invalid glob %q", pattern),
			}
		}
	}
	if opts.ExcludeDirs == nil {
		opts.ExcludeDirs = DefaultExcludeDirs
	}
	if len(opts.Extensions) == 0 {
		return nil, &hosterrors.ValidationError{Field: "extensions", Message: "at least one unit extension is required"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		root:   abs,
		opts:   opts,
		logger: log.WithComponent(logger, "scanner"),
	}, nil
}

// Root returns the absolute addon root.
func (s *Scanner) Root() string {
	return s.root
}

// Scan walks the tree in lexical order and returns the candidates.
func (s *Scanner) Scan() ([]Candidate, error) {
	report, err := s.ScanReport()
	if err != nil {
		return nil, err
	}
	return report.Candidates, nil
}

// ScanReport walks the tree and reports candidates and skipped paths.
// Excluded directories are pruned and never descended into.
func (s *Scanner) ScanReport() (*Report, error) {
	info, err := os.Stat(s.root)
	if err != nil || !info.IsDir() {
		return nil, &hosterrors.NotFoundError{Resource: "addons directory", ID: s.root}
	}

	report := &Report{Root: s.root, Candidates: []Candidate{}, Skipped: []Skipped{}}
	seen := make(map[string]string)

	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("cannot read path, skipping", slog.String(log.PathKey, path), log.Error(err))
			if d != nil && d.IsDir() && path != s.root {
				return fs.SkipDir
			}
			return nil
		}
		if path == s.root {
			return nil
		}

		if d.IsDir() {
			if reason := s.excludeDir(path); reason != "" {
				s.logger.Info("skipped directory",
					slog.String(log.PathKey, path),
					slog.String("reason", reason))
				report.Skipped = append(report.Skipped, Skipped{Path: path, Reason: reason})
				return fs.SkipDir
			}
			return nil
		}

		if reason := s.excludeFile(path); reason != "" {
			log.Trace(s.logger, "skipped file",
				slog.String(log.PathKey, path),
				slog.String("reason", reason))
			if reason != ReasonExtension {
				report.Skipped = append(report.Skipped, Skipped{Path: path, Reason: reason})
			}
			return nil
		}

		name, err := TechnicalName(s.root, path)
		if err != nil {
			return err
		}
		if first, dup := seen[name]; dup {
			s.logger.Warn("duplicate technical name, skipping",
				slog.String(log.ModuleKey, name),
				slog.String(log.PathKey, path),
				slog.String("first", first))
			report.Skipped = append(report.Skipped, Skipped{Path: path, Reason: ReasonDuplicate})
			return nil
		}
		seen[name] = path

		report.Candidates = append(report.Candidates, Candidate{
			Path:          path,
			Dir:           filepath.Dir(path),
			TechnicalName: name,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.root, err)
	}
	return report, nil
}

// Find rescans the tree and returns the candidate with the given
// technical name.
func (s *Scanner) Find(technicalName string) (Candidate, error) {
	candidates, err := s.Scan()
	if err != nil {
		return Candidate{}, err
	}
	for _, c := range candidates {
		if c.TechnicalName == technicalName {
			return c, nil
		}
	}
	return Candidate{}, &hosterrors.NotFoundError{Resource: "module", ID: technicalName}
}

// IsCandidate reports whether path would be yielded by a scan, ignoring
// technical name duplicates. It checks every ancestor directory between
// the root and path against the directory exclusions.
func (s *Scanner) IsCandidate(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	dir := filepath.Dir(abs)
	for dir != s.root {
		if s.excludeDir(dir) != "" {
			return false
		}
		dir = filepath.Dir(dir)
	}
	return s.excludeFile(abs) == ""
}

// SkipDir reports whether a scan would prune the directory at path.
func (s *Scanner) SkipDir(path string) bool {
	return path != s.root && s.excludeDir(path) != ""
}

func (s *Scanner) excludeDir(path string) string {
	name := filepath.Base(path)
	if slices.Contains(s.opts.ExcludeDirs, name) {
		return ReasonExcludedDir
	}
	if strings.HasPrefix(name, ".") {
		return ReasonHiddenDir
	}
	if s.matchesPattern(path) {
		return ReasonPattern
	}
	return ""
}

func (s *Scanner) excludeFile(path string) string {
	name := filepath.Base(path)
	if !slices.Contains(s.opts.Extensions, filepath.Ext(name)) {
		return ReasonExtension
	}
	if strings.HasPrefix(name, "__") {
		return ReasonReserved
	}
	if s.matchesPattern(path) {
		return ReasonPattern
	}
	return ""
}

func (s *Scanner) matchesPattern(path string) bool {
	if len(s.opts.ExcludePatterns) == 0 {
		return false
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range s.opts.ExcludePatterns {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// TechnicalName derives a unit's dotted name from its path relative to
// root: separators become dots and the extension is dropped.
//
//	TechnicalName("/srv/addons", "/srv/addons/billing/routes/api.yaml") == "billing.routes.api"
func TechnicalName(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", path, err)
	}
	if rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %s is outside %s", path, root)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "."), nil
}
