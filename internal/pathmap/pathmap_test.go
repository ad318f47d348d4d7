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

package pathmap

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhaase/cryptofs/internal/cryptor"
)

func testCryptor(t *testing.T) cryptor.Cryptor {
	t.Helper()
	var keys cryptor.Keys
	_, err := rand.Read(keys.EncKey[:])
	require.NoError(t, err)
	_, err = rand.Read(keys.MacKey[:])
	require.NoError(t, err)
	return cryptor.New(keys)
}

func TestEncryptDecryptNameRoundTrip(t *testing.T) {
	root := t.TempDir()
	m := New(root, testCryptor(t), NewDirectoryIDProvider())

	stored, err := m.EncryptName(RootDirID, "hello.txt", RegularFile)
	require.NoError(t, err)

	got, kind, err := m.DecryptName(RootDirID, stored)
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", got)
	assert.Equal(t, RegularFile, kind)
}

func TestEncryptDecryptNamePreservesKindPrefix(t *testing.T) {
	root := t.TempDir()
	m := New(root, testCryptor(t), NewDirectoryIDProvider())

	for _, kind := range []CiphertextFileType{RegularFile, Directory, Symlink} {
		stored, err := m.EncryptName(RootDirID, "subdir", kind)
		require.NoError(t, err)

		got, gotKind, err := m.DecryptName(RootDirID, stored)
		require.NoError(t, err)
		assert.Equal(t, "subdir", got)
		assert.Equal(t, kind, gotKind)
	}
}

func TestEncryptNameLongNameUsesSidecar(t *testing.T) {
	root := t.TempDir()
	m := New(root, testCryptor(t), NewDirectoryIDProvider())

	longName := strings.Repeat("a very long file name segment ", 20) + ".txt"
	stored, err := m.EncryptName(RootDirID, longName, RegularFile)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(stored), shortNameThreshold)
	assert.True(t, strings.HasSuffix(stored, longNameSuffix))

	got, kind, err := m.DecryptName(RootDirID, stored)
	require.NoError(t, err)
	assert.Equal(t, longName, got)
	assert.Equal(t, RegularFile, kind)
}

func TestCiphertextContentDirIsStableForSameDirID(t *testing.T) {
	root := t.TempDir()
	m := New(root, testCryptor(t), NewDirectoryIDProvider())

	a := m.CiphertextContentDir("some-dir-id")
	b := m.CiphertextContentDir("some-dir-id")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, filepath.Join(root, "d")))
}

func TestResolveEntryPrecedenceAndKind(t *testing.T) {
	root := t.TempDir()
	m := New(root, testCryptor(t), NewDirectoryIDProvider())
	require.NoError(t, os.MkdirAll(m.CiphertextContentDir(RootDirID), 0o700))

	dirEntry, err := m.EntryPath(RootDirID, "thing", Directory)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dirEntry, []byte("child-dir-id"), 0o600))

	resolved, kind, err := m.ResolveEntry(RootDirID, "thing")
	require.NoError(t, err)
	assert.Equal(t, Directory, kind)
	assert.Equal(t, dirEntry, resolved)

	// A directory pointer takes precedence over a symlink or regular file
	// sharing the same cleartext name (spec §4.3).
	symlinkEntry, err := m.EntryPath(RootDirID, "thing", Symlink)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(symlinkEntry, []byte("/some/target"), 0o600))

	resolved, kind, err = m.ResolveEntry(RootDirID, "thing")
	require.NoError(t, err)
	assert.Equal(t, Directory, kind)
	assert.Equal(t, dirEntry, resolved)
}

func TestResolveEntryNotFound(t *testing.T) {
	root := t.TempDir()
	m := New(root, testCryptor(t), NewDirectoryIDProvider())
	require.NoError(t, os.MkdirAll(m.CiphertextContentDir(RootDirID), 0o700))

	_, _, err := m.ResolveEntry(RootDirID, "missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDirIDProviderCreateThenLoad(t *testing.T) {
	root := t.TempDir()
	pointerPath := filepath.Join(root, "pointer")
	p := NewDirectoryIDProvider()

	id, err := p.Create(pointerPath)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// A fresh provider (no warm cache) must still read the same id back
	// from disk.
	fresh := NewDirectoryIDProvider()
	got, err := fresh.Load(pointerPath)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestDirIDProviderInvalidate(t *testing.T) {
	root := t.TempDir()
	pointerPath := filepath.Join(root, "pointer")
	p := NewDirectoryIDProvider()

	id, err := p.Create(pointerPath)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(pointerPath, []byte("replaced"), 0o600))
	p.Invalidate(pointerPath)

	got, err := p.Load(pointerPath)
	require.NoError(t, err)
	assert.Equal(t, "replaced", got)
	assert.NotEqual(t, id, got)
}

func TestBoundedCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newBoundedCache(2)
	c.insert("a", "1")
	c.insert("b", "2")
	_, _ = c.lookUp("a") // touch a, making b the LRU entry
	c.insert("c", "3")   // evicts b

	_, ok := c.lookUp("b")
	assert.False(t, ok)

	v, ok := c.lookUp("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}
