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

package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/tombee/addonhost/internal/log"
	hosterrors "github.com/tombee/addonhost/pkg/errors"
	"github.com/tombee/addonhost/sdk"
)

//go:embed manifest.schema.json
var schemaJSON []byte

const schemaID = "manifest.schema.json"

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaID, doc); err != nil {
		return nil, fmt.Errorf("failed to add manifest schema: %w", err)
	}
	return compiler.Compile(schemaID)
})

// document is the manifest file as written. Version is taken from the YAML
// source text instead, so an unquoted 1.10 is not read back as 1.1.
type document struct {
	Description  *string          `json:"description"`
	License      *string          `json:"license"`
	Installable  *bool            `json:"installable"`
	Dependencies []sdk.Dependency `json:"dependencies"`
	Routes       []struct {
		Path    string   `json:"path"`
		Name    string   `json:"name"`
		Methods []string `json:"methods"`
	} `json:"routes"`
}

// Loader resolves and validates module manifests.
type Loader struct {
	logger *slog.Logger
	schema *jsonschema.Schema
}

// NewLoader creates a Loader. It fails only if the embedded schema does not
// compile.
func NewLoader(logger *slog.Logger) (*Loader, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger: log.WithComponent(logger, "manifest"),
		schema: schema,
	}, nil
}

// FindFile returns the manifest file directly inside dir, or "".
func FindFile(dir string) string {
	for _, name := range FileNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate
		}
	}
	return ""
}

// FindRoot walks from dir towards the filesystem root and returns the first
// directory holding a manifest, along with that manifest's path. Both are
// empty when no ancestor has one.
func FindRoot(dir string) (root, file string) {
	path, err := filepath.Abs(dir)
	if err != nil {
		return "", ""
	}
	for {
		if f := FindFile(path); f != "" {
			return path, f
		}
		parent := filepath.Dir(path)
		if parent == path {
			return "", ""
		}
		path = parent
	}
}

// Load resolves the manifest governing dir for the unit named module.
//
// A missing manifest, or one that cannot be read or parsed as YAML, yields
// Empty with no error. A parsed manifest that fails validation on an
// installable module yields a *errors.ManifestError.
func (l *Loader) Load(module, dir string) (*Manifest, error) {
	root, file := FindRoot(dir)
	if file == "" {
		l.logger.Debug("no manifest file found",
			slog.String(log.ModuleKey, module),
			slog.String(log.PathKey, dir),
			slog.Any("names", FileNames))
		return Empty(), nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		l.logger.Error("failed to read manifest file",
			slog.String(log.ModuleKey, module),
			slog.String(log.PathKey, file),
			log.Error(err))
		return Empty(), nil
	}

	p, err := parseYAML(data)
	if err != nil {
		l.logger.Error("failed to parse manifest file",
			slog.String(log.ModuleKey, module),
			slog.String(log.PathKey, file),
			log.Error(err))
		return Empty(), nil
	}

	return l.build(module, root, file, p)
}

// ValidateFile strictly validates a single manifest file. Unlike Load, read
// and syntax errors are reported.
func (l *Loader) ValidateFile(path string) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	root := filepath.Dir(abs)
	module := filepath.Base(root)

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, &hosterrors.ManifestError{Module: module, Path: abs, Reason: "cannot read file", Cause: err}
	}
	p, err := parseYAML(data)
	if err != nil {
		return nil, &hosterrors.ManifestError{Module: module, Path: abs, Reason: "invalid YAML", Cause: err}
	}
	return l.build(module, root, abs, p)
}

type parsed struct {
	raw any

	// version is the version scalar's source text, nil when absent.
	version *string
	// versionTag is the YAML tag of the version value, e.g. !!str or !!map.
	versionTag string
}

func parseYAML(data []byte) (*parsed, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	p := &parsed{raw: map[string]any{}}
	if len(node.Content) == 0 {
		// empty file
		return p, nil
	}
	doc := node.Content[0]
	if err := doc.Decode(&p.raw); err != nil {
		return nil, err
	}
	if doc.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(doc.Content); i += 2 {
			if doc.Content[i].Value != "version" {
				continue
			}
			v := doc.Content[i+1]
			p.versionTag = v.ShortTag()
			if v.Kind == yaml.ScalarNode && p.versionTag != "!!null" {
				text := v.Value
				p.version = &text
			}
		}
	}
	return p, nil
}

func (l *Loader) build(module, root, file string, p *parsed) (*Manifest, error) {
	invalid := func(reason string, cause error) error {
		return &hosterrors.ManifestError{Module: module, Path: file, Reason: reason, Cause: cause}
	}

	encoded, err := json.Marshal(p.raw)
	if err != nil {
		return nil, invalid("manifest must be a mapping with string keys", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return nil, invalid("manifest is not valid data", err)
	}
	if err := l.schema.Validate(inst); err != nil {
		return nil, invalid("schema validation failed", err)
	}

	var doc document
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return nil, invalid("cannot decode manifest", err)
	}

	m := &Manifest{
		Name:         filepath.Base(root),
		Installable:  true,
		Dependencies: doc.Dependencies,
		Root:         root,
		File:         file,
		AddonsPath:   filepath.Dir(root),
	}
	if doc.Installable != nil {
		m.Installable = *doc.Installable
	}
	if doc.Description != nil {
		m.Description = *doc.Description
	}
	if doc.License != nil {
		m.License = *doc.License
	}

	if strings.TrimSpace(m.Description) == "" {
		m.Description = l.readme(module, root)
	}

	if m.License == "" {
		m.License = DefaultLicense
		l.logger.Warn("missing license in manifest, defaulting",
			slog.String(log.ModuleKey, module),
			slog.String("license", DefaultLicense))
	}

	var version string
	verr := fmt.Errorf("missing version")
	if p.version != nil {
		version = *p.version
		verr = ValidateVersion(version)
	} else if p.versionTag != "" && p.versionTag != "!!null" {
		verr = fmt.Errorf("version must be a scalar, got %s", p.versionTag)
	}
	if err := verr; err != nil {
		if m.Installable {
			return nil, invalid("", err)
		}
		l.logger.Debug("ignoring version of non-installable module",
			slog.String(log.ModuleKey, module),
			log.Error(err))
	}
	m.Version = version

	for _, r := range doc.Routes {
		methods, err := sdk.NewMethodSet(r.Methods...)
		if err != nil {
			return nil, invalid(fmt.Sprintf("route %s", r.Path), err)
		}
		m.Routes = append(m.Routes, RouteDescriptor{Path: r.Path, Name: r.Name, Methods: methods})
	}
	if m.Routes == nil {
		m.Routes = []RouteDescriptor{}
	}
	m.declared = len(m.Routes)
	if m.Dependencies == nil {
		m.Dependencies = []sdk.Dependency{}
	}

	return m, nil
}

func (l *Loader) readme(module, root string) string {
	for _, name := range ReadmeNames {
		path := filepath.Join(root, name)
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Error("failed to read README file",
				slog.String(log.ModuleKey, module),
				slog.String(log.PathKey, path),
				log.Error(err))
			return ""
		}
		return string(data)
	}
	return ""
}
