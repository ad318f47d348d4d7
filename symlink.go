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

package cryptofs

import (
	"context"
	"os"

	"github.com/dhaase/cryptofs/internal/openfile"
	"github.com/dhaase/cryptofs/internal/pathmap"
)

// Symlink creates a symbolic link at clearLinkPath whose target is the
// literal string target (not resolved or validated against this vault or
// any other filesystem; spec non-goal: symlink target encryption across
// vaults). The parent directory must already exist.
func (fs *Filesystem) Symlink(target, clearLinkPath string) error {
	_, entryPath, err := fs.resolveNewEntry(clearLinkPath, pathmap.Symlink)
	if err != nil {
		return translate("Filesystem.Symlink", err)
	}

	of, err := openfile.Create(entryPath, fs.vault.Cryptor(), fs.vault.Clock)
	if err != nil {
		return translate("Filesystem.Symlink", err)
	}

	ctx := context.Background()
	if _, err := of.WriteAt([]byte(target), 0); err != nil {
		of.Close(ctx)
		os.Remove(entryPath)
		return translate("Filesystem.Symlink", err)
	}
	if err := of.Close(ctx); err != nil {
		os.Remove(entryPath)
		return translate("Filesystem.Symlink", err)
	}
	return nil
}

// Readlink returns the literal target string a symlink at clearLinkPath
// was created with.
func (fs *Filesystem) Readlink(clearLinkPath string) (string, error) {
	_, entryPath, kind, err := fs.resolveExistingEntry(clearLinkPath)
	if err != nil {
		return "", translate("Filesystem.Readlink", err)
	}
	if kind != pathmap.Symlink {
		return "", translate("Filesystem.Readlink", ErrNotDirectory)
	}

	of, err := openfile.Open(entryPath, fs.vault.Cryptor(), fs.vault.Clock)
	if err != nil {
		return "", translate("Filesystem.Readlink", err)
	}
	defer of.Close(context.Background())

	buf := make([]byte, of.Size())
	if _, err := of.ReadAt(buf, 0); err != nil {
		return "", translate("Filesystem.Readlink", err)
	}
	return string(buf), nil
}
