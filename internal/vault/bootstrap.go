// Copyright 2025 Google LLC
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

package vault

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/dhaase/cryptofs/internal/pathmap"
	"github.com/dhaase/cryptofs/internal/vaulterr"
)

var errNotEmpty = errors.New("vault root must be an empty directory")

// bootstrapLayout creates the skeleton of a fresh vault under abs: the
// top-level content (d/) and long-name sidecar (m/) directories, and the
// root directory's own content shard (the one rooted at RootDirID).
func bootstrapLayout(abs string, paths *pathmap.PathMapper) error {
	for _, dir := range []string{"d", "m"} {
		if err := os.MkdirAll(filepath.Join(abs, dir), 0o700); err != nil {
			return vaulterr.New(vaulterr.TransientIO, "vault.bootstrapLayout", err)
		}
	}

	rootContentDir := paths.CiphertextContentDir(pathmap.RootDirID)
	if err := os.MkdirAll(rootContentDir, 0o700); err != nil {
		return vaulterr.New(vaulterr.TransientIO, "vault.bootstrapLayout", err)
	}

	return nil
}
