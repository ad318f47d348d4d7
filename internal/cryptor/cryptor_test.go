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

package cryptor

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys(t *testing.T) Keys {
	t.Helper()
	var k Keys
	_, err := rand.Read(k.EncKey[:])
	require.NoError(t, err)
	_, err = rand.Read(k.MacKey[:])
	require.NoError(t, err)
	return k
}

func TestFilenameRoundTrip(t *testing.T) {
	c := New(testKeys(t))

	cases := []string{"", "a", "short.txt", "a somewhat longer file name with spaces.docx", "unicode-éèê.txt"}
	for _, name := range cases {
		ct, err := c.EncryptFilename(name, "dir-a")
		require.NoError(t, err)

		pt, err := c.DecryptFilename(ct, "dir-a")
		require.NoError(t, err)
		assert.Equal(t, name, pt)
	}
}

func TestFilenameDeterministic(t *testing.T) {
	c := New(testKeys(t))

	a, err := c.EncryptFilename("foo.txt", "dir-1")
	require.NoError(t, err)
	b, err := c.EncryptFilename("foo.txt", "dir-1")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestFilenameDistinctAcrossDirectories(t *testing.T) {
	c := New(testKeys(t))

	a, err := c.EncryptFilename("foo.txt", "dir-1")
	require.NoError(t, err)
	b, err := c.EncryptFilename("foo.txt", "dir-2")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	// And decrypting under the wrong directory id must fail rather than
	// silently return the wrong cleartext.
	_, err = c.DecryptFilename(a, "dir-2")
	assert.Error(t, err)
}

func TestHeaderRoundTrip(t *testing.T) {
	c := New(testKeys(t))

	content, err := c.NewContentKeys()
	require.NoError(t, err)

	header, err := c.EncryptHeader(content)
	require.NoError(t, err)
	assert.Len(t, header, HeaderLen)

	gotContent, _, err := c.DecryptHeader(header)
	require.NoError(t, err)
	assert.Equal(t, content.EncKey, gotContent.EncKey)
	assert.Equal(t, content.MacKey, gotContent.MacKey)
}

func TestHeaderDetectsCorruption(t *testing.T) {
	c := New(testKeys(t))
	content, err := c.NewContentKeys()
	require.NoError(t, err)
	header, err := c.EncryptHeader(content)
	require.NoError(t, err)

	corrupt := append([]byte(nil), header...)
	corrupt[50] ^= 0xFF

	_, _, err = c.DecryptHeader(corrupt)
	assert.Error(t, err)
}

func TestChunkRoundTrip(t *testing.T) {
	c := New(testKeys(t))
	content, err := c.NewContentKeys()
	require.NoError(t, err)
	_, headerNonce, err := roundTripHeader(t, c, content)
	require.NoError(t, err)

	plaintext := bytes.Repeat([]byte("x"), 100)
	ct, err := c.EncryptChunk(content, headerNonce, 0, plaintext)
	require.NoError(t, err)
	assert.Len(t, ct, len(plaintext)+nonceLen+macLen)

	pt, err := c.DecryptChunk(content, headerNonce, 0, ct)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

func TestChunkIndexIsAuthenticated(t *testing.T) {
	c := New(testKeys(t))
	content, err := c.NewContentKeys()
	require.NoError(t, err)
	_, headerNonce, err := roundTripHeader(t, c, content)
	require.NoError(t, err)

	ct, err := c.EncryptChunk(content, headerNonce, 5, []byte("hello"))
	require.NoError(t, err)

	// Replaying the same ciphertext bytes at a different chunk index must
	// fail: the MAC covers the index (spec I4).
	_, err = c.DecryptChunk(content, headerNonce, 6, ct)
	assert.Error(t, err)
}

func TestEmptyChunkRoundTrip(t *testing.T) {
	c := New(testKeys(t))
	content, err := c.NewContentKeys()
	require.NoError(t, err)
	_, headerNonce, err := roundTripHeader(t, c, content)
	require.NoError(t, err)

	ct, err := c.EncryptChunk(content, headerNonce, 0, nil)
	require.NoError(t, err)
	assert.Len(t, ct, nonceLen+macLen)

	pt, err := c.DecryptChunk(content, headerNonce, 0, ct)
	require.NoError(t, err)
	assert.Empty(t, pt)
}

func roundTripHeader(t *testing.T, c Cryptor, content Keys) (Keys, [16]byte, error) {
	t.Helper()
	header, err := c.EncryptHeader(content)
	require.NoError(t, err)
	return c.DecryptHeader(header)
}
