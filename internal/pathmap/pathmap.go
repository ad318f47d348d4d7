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

// Package pathmap translates cleartext vault paths into the ciphertext
// paths backing them on the underlying filesystem, and back. It is the
// one place in the tree that knows the on-disk vault layout: content
// shards under d/<shard>/<rest>/ keyed by directory id, long-name
// sidecars under m/, and the "0"/"1S" name prefixes that tell a
// directory or symlink pointer file apart from a regular file.
package pathmap

import (
	"crypto/sha1"
	"encoding/base32"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhaase/cryptofs/internal/cryptor"
	"github.com/dhaase/cryptofs/internal/vaulterr"
)

// shardEncoding is the base32 alphabet used both for sharding d/ content
// directories and for the ciphertext names cryptor produces: no padding,
// since a SHA-1 digest (20 bytes) base32-encodes to exactly 32 characters
// with none needed.
var shardEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// CiphertextFileType identifies what a ciphertext directory entry actually
// represents. A directory or symlink is a flat pointer file whose stored
// name carries a type prefix (directoryPrefix or symlinkPrefix) ahead of
// its encrypted cleartext name; a regular file carries no prefix at all.
// Base32 ciphertext names are drawn only from A-Z and 2-7, so a stored
// name can never start with "0" or "1" unless this package put it there,
// making the prefix unambiguous without any separate marker lookup.
type CiphertextFileType int

const (
	RegularFile CiphertextFileType = iota
	Directory
	Symlink
)

func (t CiphertextFileType) String() string {
	switch t {
	case RegularFile:
		return "file"
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	default:
		return "unknown"
	}
}

const (
	contentShardDir = "d"
	directoryPrefix = "0"
	symlinkPrefix   = "1S"
)

// prefixFor returns the stored-name prefix for kind, encrypted names for
// RegularFile carry no prefix at all.
func prefixFor(kind CiphertextFileType) string {
	switch kind {
	case Directory:
		return directoryPrefix
	case Symlink:
		return symlinkPrefix
	default:
		return ""
	}
}

// resolutionOrder is the precedence spec §4.3 mandates when more than one
// candidate ciphertext entry exists for the same cleartext name: a
// directory pointer wins over a symlink pointer, which wins over a
// regular file.
var resolutionOrder = [...]CiphertextFileType{Directory, Symlink, RegularFile}

// PathMapper resolves cleartext path components to their ciphertext
// location. Every method that needs a parent's identity takes that
// parent's directory id rather than its cleartext or ciphertext path,
// since the directory id is what's stable across renames (spec I2) and
// what both sharding and filename encryption are keyed on.
type PathMapper struct {
	vaultRoot string
	cryptor   cryptor.Cryptor
	dirIDs    *DirectoryIDProvider
	longNames *LongFileNameCodec
}

// New returns a PathMapper rooted at vaultRoot, encrypting and decrypting
// names with c and tracking directory ids and long-name sidecars under
// vaultRoot.
func New(vaultRoot string, c cryptor.Cryptor, dirIDs *DirectoryIDProvider) *PathMapper {
	return &PathMapper{
		vaultRoot: vaultRoot,
		cryptor:   c,
		dirIDs:    dirIDs,
		longNames: NewLongFileNameCodec(vaultRoot),
	}
}

// CiphertextContentDir returns the ciphertext directory in which dirID's
// children live: d/<first two chars of base32(SHA-1(dirID))>/<next 28
// chars> (spec I1, §4.3, §6).
func (m *PathMapper) CiphertextContentDir(dirID string) string {
	digest := sha1.Sum([]byte(dirID))
	shard := shardEncoding.EncodeToString(digest[:])
	return filepath.Join(m.vaultRoot, contentShardDir, shard[:2], shard[2:30])
}

// EntryPath returns the ciphertext path a cleartext child named
// cleartextName, of the given kind, would occupy inside the directory
// identified by parentDirID — whether or not anything is there yet. Use
// this to compute where to create a new entry; use ResolveEntry to find
// an entry that already exists without assuming its kind.
func (m *PathMapper) EntryPath(parentDirID, cleartextName string, kind CiphertextFileType) (string, error) {
	stored, err := m.EncryptName(parentDirID, cleartextName, kind)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.CiphertextContentDir(parentDirID), stored), nil
}

// ResolveEntry finds whichever ciphertext entry currently exists for
// cleartextName inside parentDirID, trying each kind in the precedence
// order a directory, then a symlink, then a regular file (spec §4.3). It
// returns vaulterr.TransientIO wrapping os.ErrNotExist if none exist.
func (m *PathMapper) ResolveEntry(parentDirID, cleartextName string) (string, CiphertextFileType, error) {
	for _, kind := range resolutionOrder {
		candidate, err := m.EntryPath(parentDirID, cleartextName, kind)
		if err != nil {
			return "", 0, err
		}
		if _, err := os.Lstat(candidate); err == nil {
			return candidate, kind, nil
		} else if !os.IsNotExist(err) {
			return "", 0, vaulterr.New(vaulterr.TransientIO, "PathMapper.ResolveEntry", err)
		}
	}
	return "", 0, vaulterr.New(vaulterr.TransientIO, "PathMapper.ResolveEntry", os.ErrNotExist)
}

// EncryptName returns the on-disk name for cleartextName inside the
// directory identified by parentDirID, given the kind of entry it names,
// writing a long-name sidecar first if the prefixed encrypted name
// doesn't fit on disk directly.
func (m *PathMapper) EncryptName(parentDirID, cleartextName string, kind CiphertextFileType) (string, error) {
	ciphertextName, err := m.cryptor.EncryptFilename(cleartextName, parentDirID)
	if err != nil {
		return "", err
	}
	return m.longNames.Encode(prefixFor(kind) + ciphertextName)
}

// DecryptName reverses EncryptName: storedName is whatever currently sits
// on disk (possibly a long-name digest), parentDirID is the directory id
// it was encrypted under. It also reports the kind carried by storedName's
// prefix.
func (m *PathMapper) DecryptName(parentDirID, storedName string) (string, CiphertextFileType, error) {
	prefixed, err := m.longNames.Decode(storedName)
	if err != nil {
		return "", 0, err
	}

	kind := RegularFile
	rest := prefixed
	switch {
	case strings.HasPrefix(prefixed, symlinkPrefix):
		kind = Symlink
		rest = prefixed[len(symlinkPrefix):]
	case strings.HasPrefix(prefixed, directoryPrefix):
		kind = Directory
		rest = prefixed[len(directoryPrefix):]
	}

	cleartext, err := m.cryptor.DecryptFilename(rest, parentDirID)
	if err != nil {
		return "", 0, err
	}
	return cleartext, kind, nil
}

// DirIDOf returns the directory id that a directory pointer file (as
// returned by EntryPath/ResolveEntry for a Directory entry) contributes
// to sharding its own children.
func (m *PathMapper) DirIDOf(pointerPath string) (string, error) {
	return m.dirIDs.Load(pointerPath)
}

// InvalidatePathMapping drops any cached directory-id state for
// pointerPath. Callers invoke this after structural changes (rename,
// delete, create) so subsequent lookups re-read from disk.
func (m *PathMapper) InvalidatePathMapping(pointerPath string) {
	m.dirIDs.Invalidate(pointerPath)
}
