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

// Package cryptofs is the public API of the encrypting virtual
// filesystem: a caller opens a Filesystem with a passphrase, then
// manipulates cleartext paths exactly as if the vault were a plain
// directory tree. Everything below this package — path translation,
// chunked AEAD file I/O, open-file coordination — is an implementation
// detail the caller never sees directly.
package cryptofs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dhaase/cryptofs/internal/chunkio"
	"github.com/dhaase/cryptofs/internal/pathmap"
	"github.com/dhaase/cryptofs/internal/vault"
)

// Filesystem is a single open vault. It is safe for concurrent use.
type Filesystem struct {
	vault *vault.Vault
}

// Initialize lays out a brand new, empty vault at rootPath and opens it.
func Initialize(rootPath, passphrase string, pepper []byte) (*Filesystem, error) {
	v, err := vault.Initialize(rootPath, passphrase, pepper)
	if err != nil {
		return nil, translate("cryptofs.Initialize", err)
	}
	return &Filesystem{vault: v}, nil
}

// Open opens an existing vault at rootPath. A wrong passphrase (or
// pepper) yields an error matching ErrInvalidPassphrase.
func Open(rootPath, passphrase string, pepper []byte) (*Filesystem, error) {
	v, err := vault.Open(rootPath, passphrase, pepper)
	if err != nil {
		return nil, translate("cryptofs.Open", err)
	}
	return &Filesystem{vault: v}, nil
}

// Close zeroes the vault's master key material. It does not invalidate
// Files or AttrViews obtained from this Filesystem, and calls made on
// them or on the Filesystem afterwards are not rejected.
func (fs *Filesystem) Close(ctx context.Context) error {
	return translate("Filesystem.Close", fs.vault.Close(ctx))
}

// RootPath returns the absolute host path this vault is rooted at.
func (fs *Filesystem) RootPath() string {
	return fs.vault.RootPath()
}

// FileInfo describes one entry of a directory listing or a Stat call.
type FileInfo struct {
	Name    string
	Type    pathmap.CiphertextFileType
	Size    int64
	ModTime time.Time
}

// IsDir reports whether this entry is a directory.
func (fi FileInfo) IsDir() bool { return fi.Type == pathmap.Directory }

func splitCleartextPath(clearPath string) []string {
	clean := path.Clean("/" + clearPath)
	if clean == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(clean, "/"), "/")
}

// resolveDir walks every component of clearDirPath, which must name an
// existing directory, returning its directory id and the ciphertext
// content directory its children live under.
func (fs *Filesystem) resolveDir(clearDirPath string) (dirID string, contentDir string, err error) {
	dirID = pathmap.RootDirID
	contentDir = fs.vault.Paths.CiphertextContentDir(dirID)

	for _, component := range splitCleartextPath(clearDirPath) {
		pointerPath, ft, err2 := fs.vault.Paths.ResolveEntry(dirID, component)
		if err2 != nil {
			return "", "", err2
		}
		if ft != pathmap.Directory {
			return "", "", ErrNotDirectory
		}

		dirID, err2 = fs.vault.Paths.DirIDOf(pointerPath)
		if err2 != nil {
			return "", "", err2
		}
		contentDir = fs.vault.Paths.CiphertextContentDir(dirID)
	}

	return dirID, contentDir, nil
}

// resolveExistingEntry splits clearPath into the directory id of its
// parent (which must already exist) and the ciphertext path and kind of
// whatever entry currently sits at the final component, regardless of
// kind.
func (fs *Filesystem) resolveExistingEntry(clearPath string) (parentDirID, entryPath string, kind pathmap.CiphertextFileType, err error) {
	components := splitCleartextPath(clearPath)
	if len(components) == 0 {
		return "", "", 0, ErrInvalidRootOperation
	}

	parentDirID, _, err = fs.resolveDir(path.Join(components[:len(components)-1]...))
	if err != nil {
		return "", "", 0, err
	}

	entryPath, kind, err = fs.vault.Paths.ResolveEntry(parentDirID, components[len(components)-1])
	if err != nil {
		return "", "", 0, err
	}
	return parentDirID, entryPath, kind, nil
}

// resolveNewEntry splits clearPath into the directory id of its parent
// (which must already exist) and the ciphertext path a new entry of the
// given kind would occupy there. It fails with ErrExists if any entry,
// regardless of kind, already sits at that cleartext name.
func (fs *Filesystem) resolveNewEntry(clearPath string, kind pathmap.CiphertextFileType) (parentDirID, entryPath string, err error) {
	components := splitCleartextPath(clearPath)
	if len(components) == 0 {
		return "", "", ErrInvalidRootOperation
	}

	parentDirID, _, err = fs.resolveDir(path.Join(components[:len(components)-1]...))
	if err != nil {
		return "", "", err
	}

	name := components[len(components)-1]
	if _, _, err := fs.vault.Paths.ResolveEntry(parentDirID, name); err == nil {
		return "", "", ErrExists
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", "", err
	}

	entryPath, err = fs.vault.Paths.EntryPath(parentDirID, name, kind)
	if err != nil {
		return "", "", err
	}
	return parentDirID, entryPath, nil
}

// ErrInvalidRootOperation is returned when an operation that requires a
// parent directory (Create, Mkdir, Remove, Rename, Symlink) is attempted
// directly against the vault root, which has none.
var ErrInvalidRootOperation = fmt.Errorf("root has no parent directory: %w", ErrNotDirectory)

func statEntry(name string, kind pathmap.CiphertextFileType, entryPath string) (FileInfo, error) {
	info, err := os.Lstat(entryPath)
	if err != nil {
		return FileInfo{}, err
	}

	fi := FileInfo{Name: name, Type: kind, ModTime: info.ModTime()}
	if kind == pathmap.RegularFile {
		fi.Size = chunkio.SizeFromCiphertextLength(info.Size())
	}
	return fi, nil
}

// Stat reports the type, size, and modification time of clearPath.
func (fs *Filesystem) Stat(clearPath string) (FileInfo, error) {
	if len(splitCleartextPath(clearPath)) == 0 {
		contentDir := fs.vault.Paths.CiphertextContentDir(pathmap.RootDirID)
		info, err := os.Lstat(contentDir)
		if err != nil {
			return FileInfo{}, translate("Filesystem.Stat", err)
		}
		return FileInfo{Name: "/", Type: pathmap.Directory, ModTime: info.ModTime()}, nil
	}

	_, entryPath, kind, err := fs.resolveExistingEntry(clearPath)
	if err != nil {
		return FileInfo{}, translate("Filesystem.Stat", err)
	}

	fi, err := statEntry(path.Base(clearPath), kind, entryPath)
	if err != nil {
		return FileInfo{}, translate("Filesystem.Stat", err)
	}
	return fi, nil
}

// ReadDir lists the entries of the directory at clearDirPath.
func (fs *Filesystem) ReadDir(clearDirPath string) ([]FileInfo, error) {
	dirID, contentDir, err := fs.resolveDir(clearDirPath)
	if err != nil {
		return nil, translate("Filesystem.ReadDir", err)
	}

	hostEntries, err := os.ReadDir(contentDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, translate("Filesystem.ReadDir", err)
	}

	result := make([]FileInfo, 0, len(hostEntries))
	for _, e := range hostEntries {
		cleartext, kind, err := fs.vault.Paths.DecryptName(dirID, e.Name())
		if err != nil {
			return nil, translate("Filesystem.ReadDir", err)
		}
		entryPath := path.Join(contentDir, e.Name())
		fi, err := statEntry(cleartext, kind, entryPath)
		if err != nil {
			return nil, translate("Filesystem.ReadDir", err)
		}
		result = append(result, fi)
	}
	return result, nil
}

// Mkdir creates a new, empty directory at clearPath. The parent directory
// must already exist. A directory is a flat pointer file, named with a
// type prefix ahead of its encrypted name (spec §3, §4.1, §4.3, §6),
// whose content is the UUID of its own freshly created content shard.
func (fs *Filesystem) Mkdir(clearPath string) error {
	_, entryPath, err := fs.resolveNewEntry(clearPath, pathmap.Directory)
	if err != nil {
		return translate("Filesystem.Mkdir", err)
	}

	newDirID, err := fs.vault.DirIDs.Create(entryPath)
	if err != nil {
		return translate("Filesystem.Mkdir", err)
	}

	contentDir := fs.vault.Paths.CiphertextContentDir(newDirID)
	if err := os.MkdirAll(contentDir, 0o700); err != nil {
		fs.vault.Paths.InvalidatePathMapping(entryPath)
		os.Remove(entryPath)
		return translate("Filesystem.Mkdir", err)
	}
	return nil
}

// Remove deletes the file, empty directory, or symlink at clearPath.
// Removing a non-empty directory fails. Every kind is a flat file on
// disk, so only a directory's separate content shard needs an extra
// emptiness check and its own cleanup.
func (fs *Filesystem) Remove(clearPath string) error {
	_, entryPath, kind, err := fs.resolveExistingEntry(clearPath)
	if err != nil {
		return translate("Filesystem.Remove", err)
	}

	if kind == pathmap.Directory {
		dirID, err := fs.vault.Paths.DirIDOf(entryPath)
		if err != nil {
			return translate("Filesystem.Remove", err)
		}
		contentDir := fs.vault.Paths.CiphertextContentDir(dirID)
		entries, err := os.ReadDir(contentDir)
		if err != nil && !os.IsNotExist(err) {
			return translate("Filesystem.Remove", err)
		}
		if len(entries) > 0 {
			return translate("Filesystem.Remove", errNotEmptyDir)
		}
		if err := os.RemoveAll(contentDir); err != nil {
			return translate("Filesystem.Remove", err)
		}
		fs.vault.Paths.InvalidatePathMapping(entryPath)
	}

	if err := os.Remove(entryPath); err != nil {
		return translate("Filesystem.Remove", err)
	}
	return nil
}

// Rename moves the entry at oldClearPath to newClearPath, which must not
// already exist. Renaming a directory touches only its pointer file: the
// directory's own content shard, and everything under it, is untouched
// (spec I1/"directory rename cheapness").
func (fs *Filesystem) Rename(oldClearPath, newClearPath string) error {
	_, oldEntryPath, kind, err := fs.resolveExistingEntry(oldClearPath)
	if err != nil {
		return translate("Filesystem.Rename", err)
	}

	_, newEntryPath, err := fs.resolveNewEntry(newClearPath, kind)
	if err != nil {
		return translate("Filesystem.Rename", err)
	}

	if err := os.Rename(oldEntryPath, newEntryPath); err != nil {
		return translate("Filesystem.Rename", err)
	}

	if kind == pathmap.Directory {
		fs.vault.Paths.InvalidatePathMapping(oldEntryPath)
	}
	return nil
}
