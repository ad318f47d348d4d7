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

package openfile

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhaase/cryptofs/internal/clock"
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

func TestCreateThenOpenRoundTrip(t *testing.T) {
	c := testCryptor(t)
	path := filepath.Join(t.TempDir(), "content.c9r")

	of, err := Create(path, c, clock.RealClock{})
	require.NoError(t, err)

	_, err = of.WriteAt([]byte("hello vault"), 0)
	require.NoError(t, err)
	require.NoError(t, of.Close(context.Background()))

	reopened, err := Open(path, c, clock.RealClock{})
	require.NoError(t, err)
	defer reopened.Close(context.Background())

	assert.Equal(t, int64(11), reopened.Size())
	buf := make([]byte, 11)
	_, err = reopened.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello vault", string(buf))
}

func TestMethodsFailAfterClose(t *testing.T) {
	c := testCryptor(t)
	path := filepath.Join(t.TempDir(), "content.c9r")

	of, err := Create(path, c, clock.RealClock{})
	require.NoError(t, err)
	require.NoError(t, of.Close(context.Background()))
	require.NoError(t, of.Close(context.Background())) // idempotent

	_, err = of.WriteAt([]byte("x"), 0)
	assert.Error(t, err)
}

func TestRegistryAcquireSharesSingleOpenFile(t *testing.T) {
	c := testCryptor(t)
	path := filepath.Join(t.TempDir(), "content.c9r")

	of, err := Create(path, c, clock.RealClock{})
	require.NoError(t, err)
	require.NoError(t, of.Close(context.Background()))

	r := NewRegistry()
	opens := 0
	opener := func() (*OpenFile, error) {
		opens++
		return Open(path, c, clock.RealClock{})
	}

	a, err := r.Acquire(path, opener)
	require.NoError(t, err)
	b, err := r.Acquire(path, opener)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryClosesOnLastRelease(t *testing.T) {
	c := testCryptor(t)
	path := filepath.Join(t.TempDir(), "content.c9r")

	of, err := Create(path, c, clock.RealClock{})
	require.NoError(t, err)
	require.NoError(t, of.Close(context.Background()))

	r := NewRegistry()
	opener := func() (*OpenFile, error) { return Open(path, c, clock.RealClock{}) }

	_, err = r.Acquire(path, opener)
	require.NoError(t, err)
	_, err = r.Acquire(path, opener)
	require.NoError(t, err)

	require.NoError(t, r.Release(path))
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Release(path))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryReleaseOfUnheldPathPanics(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() {
		_ = r.Release("/never/acquired")
	})
}
