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

// Package vault orchestrates the pieces that make up an open encrypted
// filesystem: it derives or loads the master key, wires together the
// Cryptor, PathMapper, and OpenFile registry that everything above it
// depends on, and owns the vault's lifecycle (Initialize, Open, Close).
package vault

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/dhaase/cryptofs/internal/clock"
	"github.com/dhaase/cryptofs/internal/cryptor"
	"github.com/dhaase/cryptofs/internal/masterkey"
	"github.com/dhaase/cryptofs/internal/openfile"
	"github.com/dhaase/cryptofs/internal/pathmap"
	"github.com/dhaase/cryptofs/internal/vaulterr"
)

// Vault is a single open encrypted filesystem rooted at a directory on the
// underlying storage. It is safe for concurrent use: all mutable state it
// owns directly (the master key aside) is itself already safe for
// concurrent use.
type Vault struct {
	mu sync.Mutex

	rootPath   string
	masterKeys cryptor.Keys
	cryptor    cryptor.Cryptor

	DirIDs    *pathmap.DirectoryIDProvider
	Paths     *pathmap.PathMapper
	OpenFiles *openfile.Registry
	Clock     clock.Clock

	closed bool
}

// RootPath returns the absolute path this vault is rooted at.
func (v *Vault) RootPath() string {
	return v.rootPath
}

// Cryptor returns the vault's Cryptor, for callers (the public cryptofs
// package) that need to encrypt or decrypt symlink targets directly.
func (v *Vault) Cryptor() cryptor.Cryptor {
	return v.cryptor
}

// Initialize lays out a brand new vault at rootPath, which must be an
// existing empty directory, deriving a fresh master key from passphrase
// and pepper and persisting it as DefaultFilename.
func Initialize(rootPath, passphrase string, pepper []byte) (*Vault, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, vaulterr.New(vaulterr.InvalidArgument, "vault.Initialize", err)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, vaulterr.New(vaulterr.TransientIO, "vault.Initialize", err)
	}
	if len(entries) != 0 {
		return nil, vaulterr.New(vaulterr.InvalidArgument, "vault.Initialize", errNotEmpty)
	}

	keys, keyFile, err := masterkey.Create(passphrase, pepper)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(filepath.Join(abs, masterkey.DefaultFilename), keyFile, 0o600); err != nil {
		return nil, vaulterr.New(vaulterr.TransientIO, "vault.Initialize", err)
	}

	v := newVault(abs, keys)

	if err := bootstrapLayout(abs, v.Paths); err != nil {
		return nil, err
	}

	acquireRoot(abs)
	return v, nil
}

// Open loads an existing vault at rootPath, deriving the master key from
// passphrase and pepper and failing with masterkey.ErrInvalidPassphrase if
// they don't match what was used at Initialize time.
func Open(rootPath, passphrase string, pepper []byte) (*Vault, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, vaulterr.New(vaulterr.InvalidArgument, "vault.Open", err)
	}

	keys, err := masterkey.LoadFile(filepath.Join(abs, masterkey.DefaultFilename), passphrase, pepper)
	if err != nil {
		return nil, err
	}

	v := newVault(abs, keys)

	if _, err := os.Stat(v.Paths.CiphertextContentDir(pathmap.RootDirID)); err != nil {
		return nil, vaulterr.New(vaulterr.CorruptFormat, "vault.Open", err)
	}

	acquireRoot(abs)
	return v, nil
}

func newVault(abs string, keys cryptor.Keys) *Vault {
	c := cryptor.New(keys)
	dirIDs := pathmap.NewDirectoryIDProvider()

	return &Vault{
		rootPath:   abs,
		masterKeys: keys,
		cryptor:    c,
		DirIDs:     dirIDs,
		Paths:      pathmap.New(abs, c, dirIDs),
		OpenFiles:  openfile.NewRegistry(),
		Clock:      clock.RealClock{},
	}
}

// Close flushes nothing itself (callers are expected to have already
// released every OpenFile they acquired) and zeroes the in-memory master
// key. Calling it more than once is a no-op.
func (v *Vault) Close(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true

	v.masterKeys.Zero()
	releaseRoot(v.rootPath)
	return nil
}
