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

package chunkio

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhaase/cryptofs/internal/clock"
	"github.com/dhaase/cryptofs/internal/cryptor"
)

func newTestChunkIO(t *testing.T) (*ChunkIO, *os.File) {
	t.Helper()

	var master cryptor.Keys
	_, err := rand.Read(master.EncKey[:])
	require.NoError(t, err)
	_, err = rand.Read(master.MacKey[:])
	require.NoError(t, err)
	c := cryptor.New(master)

	content, err := c.NewContentKeys()
	require.NoError(t, err)

	header, err := c.EncryptHeader(content)
	require.NoError(t, err)
	gotContent, headerNonce, err := c.DecryptHeader(header)
	require.NoError(t, err)

	f, err := os.CreateTemp(t.TempDir(), "chunkio-*.c9r")
	require.NoError(t, err)
	_, err = f.Write(header)
	require.NoError(t, err)

	return New(f, c, gotContent, headerNonce, clock.RealClock{}, 0), f
}

func TestWriteReadRoundTripWithinOneChunk(t *testing.T) {
	io1, _ := newTestChunkIO(t)

	n, err := io1.WriteAt([]byte("hello, world"), 0)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, int64(12), io1.Size())

	buf := make([]byte, 12)
	n, err = io1.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, "hello, world", string(buf))
}

func TestWriteSpansMultipleChunksAndSurvivesFlushReload(t *testing.T) {
	cio, f := newTestChunkIO(t)

	data := bytes.Repeat([]byte("abcdefgh"), (cryptor.ChunkSize*2+500)/8+1)
	data = data[:cryptor.ChunkSize*2+500]

	_, err := cio.WriteAt(data, 0)
	require.NoError(t, err)
	require.NoError(t, cio.Flush(context.Background()))

	// Re-open a fresh ChunkIO over the same underlying file to ensure the
	// flushed bytes, not the in-memory cache, are what's being read.
	reopened, err := os.OpenFile(f.Name(), os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer reopened.Close()

	stat, err := reopened.Stat()
	require.NoError(t, err)
	size := SizeFromCiphertextLength(stat.Size())
	assert.Equal(t, int64(len(data)), size)

	master := cio.contentKeys
	fresh := New(reopened, cio.cryptor, master, cio.headerNonce, clock.RealClock{}, size)

	buf := make([]byte, len(data))
	n, err := fresh.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf)
}

func TestPartialOverwriteWithinChunk(t *testing.T) {
	cio, _ := newTestChunkIO(t)

	_, err := cio.WriteAt([]byte("0123456789"), 0)
	require.NoError(t, err)
	_, err = cio.WriteAt([]byte("XY"), 3)
	require.NoError(t, err)

	buf := make([]byte, 10)
	_, err = cio.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "012XY56789", string(buf))
}

func TestTruncateShrinksAndExtends(t *testing.T) {
	cio, _ := newTestChunkIO(t)

	_, err := cio.WriteAt([]byte("0123456789"), 0)
	require.NoError(t, err)

	require.NoError(t, cio.Truncate(4))
	assert.Equal(t, int64(4), cio.Size())

	buf := make([]byte, 4)
	_, err = cio.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(buf))

	require.NoError(t, cio.Truncate(8))
	assert.Equal(t, int64(8), cio.Size())

	buf = make([]byte, 8)
	_, err = cio.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "0123\x00\x00\x00\x00", string(buf))
}

func TestReadAtEOF(t *testing.T) {
	cio, _ := newTestChunkIO(t)
	_, err := cio.WriteAt([]byte("abc"), 0)
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = cio.ReadAt(buf, 3)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFlushWithNoDirtyChunksIsNoOp(t *testing.T) {
	cio, _ := newTestChunkIO(t)
	require.NoError(t, cio.Flush(context.Background()))
	assert.Equal(t, int64(0), cio.Size())
}

func TestCacheEvictsCleanChunksUnderMemoryPressure(t *testing.T) {
	cio, _ := newTestChunkIO(t)

	data := bytes.Repeat([]byte("z"), cryptor.ChunkSize*(defaultCacheCapacity+3))
	_, err := cio.WriteAt(data, 0)
	require.NoError(t, err)
	require.NoError(t, cio.Flush(context.Background()))

	// Reading every chunk back should force evictions of clean chunks along
	// the way without losing correctness.
	buf := make([]byte, len(data))
	n, err := cio.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf)
}

func TestWriteAtCreatesZeroFilledHoleAcrossChunkBoundary(t *testing.T) {
	cio, _ := newTestChunkIO(t)

	_, err := cio.WriteAt([]byte("start"), 0)
	require.NoError(t, err)

	holeEnd := int64(cryptor.ChunkSize) + 100
	_, err = cio.WriteAt([]byte("tail"), holeEnd)
	require.NoError(t, err)
	assert.Equal(t, holeEnd+4, cio.Size())

	buf := make([]byte, holeEnd+4)
	_, err = cio.ReadAt(buf, 0)
	require.NoError(t, err)

	assert.Equal(t, "start", string(buf[:5]))
	assert.Equal(t, "tail", string(buf[holeEnd:holeEnd+4]))
	for _, b := range buf[5:holeEnd] {
		assert.Zero(t, b)
	}

	require.NoError(t, cio.Flush(context.Background()))
}

func TestSizeFromCiphertextLength(t *testing.T) {
	assert.Equal(t, int64(0), SizeFromCiphertextLength(cryptor.HeaderLen))
	assert.Equal(t, int64(10), SizeFromCiphertextLength(cryptor.HeaderLen+10+cryptor.ChunkOverhead))
	assert.Equal(t, int64(cryptor.ChunkSize), SizeFromCiphertextLength(cryptor.HeaderLen+cryptor.ChunkSize+cryptor.ChunkOverhead))
}

func TestSizeFromCiphertextLengthClampsTruncatedFinalChunk(t *testing.T) {
	// A final chunk shorter than the AEAD overhead can't imply any
	// cleartext bytes at all; it must report 0, never go negative.
	assert.Equal(t, int64(0), SizeFromCiphertextLength(cryptor.HeaderLen+10))
	assert.Equal(t, int64(0), SizeFromCiphertextLength(cryptor.HeaderLen+cryptor.ChunkOverhead))
}

func TestCacheWritesThroughDirtyEntryWhenAllCachedEntriesAreDirty(t *testing.T) {
	cio, f := newTestChunkIO(t)

	// Dirty every slot in the cache without flushing, forcing reserve()
	// to evict a dirty LRU entry via write-through instead of growing
	// past capacity.
	data := bytes.Repeat([]byte("q"), cryptor.ChunkSize*(defaultCacheCapacity+2))
	_, err := cio.WriteAt(data, 0)
	require.NoError(t, err)

	assert.LessOrEqual(t, cio.cache.len(), defaultCacheCapacity)

	stat, err := f.Stat()
	require.NoError(t, err)
	assert.Greater(t, stat.Size(), int64(cryptor.HeaderLen))

	require.NoError(t, cio.Flush(context.Background()))

	buf := make([]byte, len(data))
	n, err := cio.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf)
}

func TestModTimeAdvancesDeterministicallyWithSimulatedClock(t *testing.T) {
	var master cryptor.Keys
	_, err := rand.Read(master.EncKey[:])
	require.NoError(t, err)
	_, err = rand.Read(master.MacKey[:])
	require.NoError(t, err)
	c := cryptor.New(master)

	content, err := c.NewContentKeys()
	require.NoError(t, err)
	header, err := c.EncryptHeader(content)
	require.NoError(t, err)
	gotContent, headerNonce, err := c.DecryptHeader(header)
	require.NoError(t, err)

	f, err := os.CreateTemp(t.TempDir(), "chunkio-*.c9r")
	require.NoError(t, err)
	_, err = f.Write(header)
	require.NoError(t, err)

	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	sc := clock.NewSimulatedClock(start)
	cio := New(f, c, gotContent, headerNonce, sc, 0)

	assert.True(t, cio.ModTime().IsZero())

	_, err = cio.WriteAt([]byte("a"), 0)
	require.NoError(t, err)
	assert.Equal(t, start, cio.ModTime())

	sc.AdvanceTime(5 * time.Minute)
	_, err = cio.WriteAt([]byte("b"), 1)
	require.NoError(t, err)
	assert.Equal(t, start.Add(5*time.Minute), cio.ModTime())
}

func TestFlushSucceedsWithChunksDirtiedOutOfIndexOrder(t *testing.T) {
	cio, _ := newTestChunkIO(t)

	// Write the later chunk first so cache order puts it ahead of the
	// earlier one; Flush must still succeed with both chunks dirty and
	// leave the earlier chunk's content readable.
	_, err := cio.WriteAt([]byte("second"), int64(cryptor.ChunkSize))
	require.NoError(t, err)
	_, err = cio.WriteAt([]byte("first"), 0)
	require.NoError(t, err)

	dirty := cio.cache.dirtyEntries()
	require.Len(t, dirty, 2)

	require.NoError(t, cio.Flush(context.Background()))

	buf := make([]byte, 6)
	_, err = cio.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "first\x00", string(buf))
}
