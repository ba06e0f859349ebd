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

package filewatcher

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Event operations.
const (
	OpCreated  = "created"
	OpModified = "modified"
	OpDeleted  = "deleted"
	OpRenamed  = "renamed"
)

// Event is one filesystem change under the addon tree.
type Event struct {
	// Path is the absolute path of the changed file or directory
	Path string `json:"path"`

	// Name is the base name
	Name string `json:"name"`

	// Dir is the directory containing the file
	Dir string `json:"dir"`

	// Ext is the file extension including the dot
	Ext string `json:"ext"`

	// Op is one of created, modified, deleted or renamed
	Op string `json:"op"`

	IsDir bool `json:"is_dir"`
}

// NewEvent creates an event for path.
func NewEvent(path, op string, isDir bool) *Event {
	return &Event{
		Path:  path,
		Name:  filepath.Base(path),
		Dir:   filepath.Dir(path),
		Ext:   filepath.Ext(path),
		Op:    op,
		IsDir: isDir,
	}
}

// Gone reports whether the path no longer exists at its old location.
func (e *Event) Gone() bool {
	return e.Op == OpDeleted || e.Op == OpRenamed
}

// opFor maps an fsnotify operation to an event op. Chmod alone is ignored.
// fsnotify may combine bits; removal wins over creation, creation over writes.
func opFor(op fsnotify.Op) (string, bool) {
	switch {
	case op.Has(fsnotify.Remove):
		return OpDeleted, true
	case op.Has(fsnotify.Rename):
		return OpRenamed, true
	case op.Has(fsnotify.Create):
		return OpCreated, true
	case op.Has(fsnotify.Write):
		return OpModified, true
	default:
		return "", false
	}
}
