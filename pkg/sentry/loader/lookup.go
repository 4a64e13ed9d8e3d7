// Copyright 2026 The gVisor Authors.
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

package loader

import (
	"io/fs"
	"sort"
	"strings"
)

// FileLookup resolves a program name to the complete contents of its image.
type FileLookup interface {
	// Open returns the image named path, or false if there is none.
	Open(path string) ([]byte, bool)
}

// AppTable is a FileLookup over images held in memory.
type AppTable map[string][]byte

// Open implements FileLookup.Open.
func (t AppTable) Open(path string) ([]byte, bool) {
	b, ok := t[path]
	return b, ok
}

// Names returns the names in t in sorted order.
func (t AppTable) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DirLookup is a FileLookup over the files of a directory tree. Paths are
// relative to the root of FS; a leading slash is ignored.
type DirLookup struct {
	FS fs.FS
}

// Open implements FileLookup.Open.
func (d DirLookup) Open(path string) ([]byte, bool) {
	name := strings.TrimPrefix(path, "/")
	if !fs.ValidPath(name) {
		return nil, false
	}
	b, err := fs.ReadFile(d.FS, name)
	if err != nil {
		return nil, false
	}
	return b, true
}
