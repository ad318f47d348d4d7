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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhaase/cryptofs/internal/masterkey"
	"github.com/dhaase/cryptofs/internal/pathmap"
)

func TestInitializeThenOpenRoundTrip(t *testing.T) {
	root := t.TempDir()

	v, err := Initialize(root, "correct horse battery staple", []byte("pepper"))
	require.NoError(t, err)
	require.NoError(t, v.Close(context.Background()))

	assert.FileExists(t, filepath.Join(root, masterkey.DefaultFilename))
	assert.DirExists(t, filepath.Join(root, "d"))
	assert.DirExists(t, filepath.Join(root, "m"))
	assert.DirExists(t, v.Paths.CiphertextContentDir(pathmap.RootDirID))

	reopened, err := Open(root, "correct horse battery staple", []byte("pepper"))
	require.NoError(t, err)
	defer reopened.Close(context.Background())
}

func TestOpenWithWrongPassphraseFails(t *testing.T) {
	root := t.TempDir()

	v, err := Initialize(root, "correct horse battery staple", nil)
	require.NoError(t, err)
	require.NoError(t, v.Close(context.Background()))

	_, err = Open(root, "not the passphrase", nil)
	assert.ErrorIs(t, err, masterkey.ErrInvalidPassphrase)
}

func TestInitializeRejectsNonEmptyDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o600))

	_, err := Initialize(root, "passphrase", nil)
	assert.Error(t, err)
}

func TestOpenRootCountTracksLiveVaults(t *testing.T) {
	root := t.TempDir()
	v, err := Initialize(root, "passphrase", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, OpenRootCount(v.RootPath()))

	second, err := Open(root, "passphrase", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, OpenRootCount(v.RootPath()))

	require.NoError(t, second.Close(context.Background()))
	assert.Equal(t, 1, OpenRootCount(v.RootPath()))

	require.NoError(t, v.Close(context.Background()))
	assert.Equal(t, 0, OpenRootCount(v.RootPath()))
}
