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

// Package chunkio provides random-access cleartext reads and writes over
// an encrypted vault content file, buffering modified chunks in memory
// until Flush (or Close) commits them. It plays the same role here that
// gcsproxy's MutableObject plays for a remote object: a local, mutable
// view over content that is expensive or awkward to rewrite byte-by-byte
// in place.
package chunkio

import (
	"context"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dhaase/cryptofs/internal/clock"
	"github.com/dhaase/cryptofs/internal/cryptor"
	"github.com/dhaase/cryptofs/internal/logger"
	"github.com/dhaase/cryptofs/internal/vaulterr"
)

const ciphertextChunkStride = cryptor.ChunkSize + cryptor.ChunkOverhead

// ChunkIO is a random-access cleartext view over a single vault content
// file's chunk stream. It is not safe for concurrent use; callers holding
// an OpenFile serialize access the same way MutableObject's callers do.
type ChunkIO struct {
	mu sync.Mutex

	ciphertext  *os.File
	cryptor     cryptor.Cryptor
	contentKeys cryptor.Keys
	headerNonce [16]byte
	clock       clock.Clock

	cache *chunkCache

	// size is the current cleartext length of the content. It is
	// authoritative: WriteAt and Truncate update it directly rather than
	// re-deriving it from the ciphertext file, since dirty chunks not yet
	// flushed make the ciphertext file's length stale.
	size int64

	// mtime is nil until the first modifying call, mirroring
	// MutableObject's convention of falling back to a caller-supplied
	// creation time until then.
	mtime *time.Time
}

// New returns a ChunkIO over an already-open ciphertext file, whose header
// has already been written/read and decoded into contentKeys/headerNonce.
// initialSize is the cleartext size computed from the ciphertext file's
// current length (see SizeFromCiphertextLength).
func New(ciphertextFile *os.File, c cryptor.Cryptor, contentKeys cryptor.Keys, headerNonce [16]byte, clk clock.Clock, initialSize int64) *ChunkIO {
	return &ChunkIO{
		ciphertext:  ciphertextFile,
		cryptor:     c,
		contentKeys: contentKeys,
		headerNonce: headerNonce,
		clock:       clk,
		cache:       newChunkCache(defaultCacheCapacity),
		size:        initialSize,
	}
}

// SizeFromCiphertextLength computes the cleartext size implied by the
// length in bytes of an on-disk vault content file, without decrypting
// anything. This is deliberately lenient: a truncated or corrupt final
// chunk still yields a size (spec open question on lazy size vs. strict
// read), while actually reading that chunk's bytes will fail MAC
// verification as usual. A final chunk too short to even hold its AEAD
// overhead can't imply a non-negative cleartext length; that case is
// logged and the size is reported as if that final chunk were absent,
// rather than as a negative size.
func SizeFromCiphertextLength(ciphertextLen int64) int64 {
	if ciphertextLen <= cryptor.HeaderLen {
		return 0
	}
	body := ciphertextLen - cryptor.HeaderLen
	fullChunks := body / ciphertextChunkStride
	rem := body % ciphertextChunkStride

	size := fullChunks * cryptor.ChunkSize
	if rem > 0 {
		if rem <= cryptor.ChunkOverhead {
			logger.Warnf("chunkio: truncated final chunk (%d bytes, need > %d); reporting size as if absent", rem, cryptor.ChunkOverhead)
			return size
		}
		size += rem - cryptor.ChunkOverhead
	}
	return size
}

// Size returns the current cleartext length, reflecting any buffered but
// unflushed writes.
func (c *ChunkIO) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// ModTime returns the time of the last modifying call, or zero if there
// has not been one yet.
func (c *ChunkIO) ModTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mtime == nil {
		return time.Time{}
	}
	return *c.mtime
}

// ReadAt decrypts and copies min(len(buf), Size()-offset) bytes starting
// at cleartext offset into buf, returning io.EOF whenever fewer than
// len(buf) bytes were read, in the same style as os.File.ReadAt.
func (c *ChunkIO) ReadAt(buf []byte, offset int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if offset >= c.size {
		return 0, io.EOF
	}

	total := 0
	for total < len(buf) && offset+int64(total) < c.size {
		pos := offset + int64(total)
		index := uint64(pos / cryptor.ChunkSize)
		within := int(pos % cryptor.ChunkSize)

		entry, err := c.load(index)
		if err != nil {
			return total, err
		}

		n := copy(buf[total:], entry.plaintext[within:])
		total += n
	}

	var err error
	if total < len(buf) {
		err = io.EOF
	}
	return total, err
}

// WriteAt encrypts and buffers buf at cleartext offset, extending the
// content (zero-filling any gap) if offset+len(buf) exceeds the current
// size. Like os.File.WriteAt, it always attempts to write the whole
// buffer.
func (c *ChunkIO) WriteAt(buf []byte, offset int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if offset > c.size {
		if err := c.fillGap(c.size, offset); err != nil {
			return 0, err
		}
	}

	total := 0
	for total < len(buf) {
		pos := offset + int64(total)
		index := uint64(pos / cryptor.ChunkSize)
		within := int(pos % cryptor.ChunkSize)

		entry, err := c.loadForWrite(index)
		if err != nil {
			return total, err
		}

		need := within + (len(buf) - total)
		if need > cryptor.ChunkSize {
			need = cryptor.ChunkSize
		}
		if need > len(entry.plaintext) {
			grown := make([]byte, need)
			copy(grown, entry.plaintext)
			entry.plaintext = grown
		}

		n := copy(entry.plaintext[within:need], buf[total:])
		entry.dirty = true
		c.cache.put(entry)
		total += n
	}

	end := offset + int64(total)
	if end > c.size {
		c.size = end
	}
	c.touch()

	return total, nil
}

// Truncate changes the cleartext size to n, dropping any cached chunks
// entirely beyond the new size and shrinking the boundary chunk in place,
// or zero-filling the content up to n when n exceeds the current size.
func (c *ChunkIO) Truncate(n int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n < c.size {
		boundaryIndex := uint64(n / cryptor.ChunkSize)
		within := int(n % cryptor.ChunkSize)

		if within > 0 {
			entry, err := c.loadForWrite(boundaryIndex)
			if err != nil {
				return err
			}
			entry.plaintext = entry.plaintext[:within]
			entry.dirty = true
			c.cache.put(entry)
			boundaryIndex++
		}

		for idx := boundaryIndex; idx*cryptor.ChunkSize < uint64(c.size)+cryptor.ChunkSize; idx++ {
			c.cache.delete(idx)
		}
	} else if n > c.size {
		if err := c.fillGap(c.size, n); err != nil {
			return err
		}
		entry, err := c.loadForWrite(uint64((n - 1) / cryptor.ChunkSize))
		if err != nil {
			return err
		}
		if need := int((n-1)%cryptor.ChunkSize) + 1; need > len(entry.plaintext) {
			grown := make([]byte, need)
			copy(grown, entry.plaintext)
			entry.plaintext = grown
			entry.dirty = true
			c.cache.put(entry)
		}
	}

	c.size = n
	c.touch()
	return nil
}

// Flush encrypts and writes every dirty chunk to the underlying
// ciphertext file in ascending index order, then truncates that file to
// match the current cleartext size. Writing in index order keeps the
// on-disk file's growth monotonic chunk by chunk, matching how a single
// sequential writer would have produced it.
func (c *ChunkIO) Flush(_ context.Context) error {
	c.mu.Lock()
	dirty := c.cache.dirtyEntries()
	size := c.size
	c.mu.Unlock()

	sort.Slice(dirty, func(i, j int) bool { return dirty[i].index < dirty[j].index })

	for _, entry := range dirty {
		if err := c.flushEntry(entry); err != nil {
			return err
		}
		c.mu.Lock()
		entry.dirty = false
		c.mu.Unlock()
	}

	return c.truncateCiphertext(size)
}

func (c *ChunkIO) flushEntry(entry *chunkEntry) error {
	ciphertext, err := c.cryptor.EncryptChunk(c.contentKeys, c.headerNonce, entry.index, entry.plaintext)
	if err != nil {
		return vaulterr.New(vaulterr.CryptoFailure, "ChunkIO.Flush", err)
	}

	offset := cryptor.HeaderLen + int64(entry.index)*ciphertextChunkStride
	if _, err := c.ciphertext.WriteAt(ciphertext, int64(offset)); err != nil {
		return vaulterr.New(vaulterr.TransientIO, "ChunkIO.Flush", err)
	}
	return nil
}

func (c *ChunkIO) truncateCiphertext(cleartextSize int64) error {
	fullChunks := cleartextSize / cryptor.ChunkSize
	rem := cleartextSize % cryptor.ChunkSize

	ciphertextLen := cryptor.HeaderLen + fullChunks*ciphertextChunkStride
	if rem > 0 {
		ciphertextLen += rem + cryptor.ChunkOverhead
	}

	if err := c.ciphertext.Truncate(ciphertextLen); err != nil {
		return vaulterr.New(vaulterr.TransientIO, "ChunkIO.Flush", err)
	}
	return nil
}

// load returns the decrypted chunk at index for reading, pulling it from
// the ciphertext file and decrypting it if it isn't already cached.
func (c *ChunkIO) load(index uint64) (*chunkEntry, error) {
	if entry, ok := c.cache.get(index); ok {
		return entry, nil
	}

	chunkLen := cryptor.ChunkSize
	if remaining := c.size - int64(index)*cryptor.ChunkSize; remaining < int64(chunkLen) {
		chunkLen = int(remaining)
	}
	ciphertext := make([]byte, chunkLen+cryptor.ChunkOverhead)

	offset := cryptor.HeaderLen + int64(index)*ciphertextChunkStride
	if _, err := c.ciphertext.ReadAt(ciphertext, offset); err != nil && err != io.EOF {
		return nil, vaulterr.New(vaulterr.TransientIO, "ChunkIO.load", err)
	}

	plaintext, err := c.cryptor.DecryptChunk(c.contentKeys, c.headerNonce, index, ciphertext)
	if err != nil {
		return nil, vaulterr.New(vaulterr.CryptoFailure, "ChunkIO.load", err)
	}

	entry := &chunkEntry{index: index, plaintext: plaintext}
	if err := c.reserve(); err != nil {
		return nil, err
	}
	c.cache.put(entry)
	return entry, nil
}

// fillGap zero-fills every chunk that lies entirely between the old
// content end (from) and the start of a new out-of-range write (to),
// marking them dirty so a subsequent Flush persists the hole as real
// zero bytes rather than leaving it implied by a short ciphertext file.
// The chunk actually containing `to` is left for the caller's own
// grow-on-write logic; the chunk containing `from` needs no help either,
// since it's already the right length until a write extends it.
func (c *ChunkIO) fillGap(from, to int64) error {
	fromIndex := uint64(from / cryptor.ChunkSize)
	toIndex := uint64(to / cryptor.ChunkSize)
	if fromIndex == toIndex {
		return nil
	}

	for index := fromIndex; index < toIndex; index++ {
		entry, err := c.loadForWrite(index)
		if err != nil {
			return err
		}
		if len(entry.plaintext) < cryptor.ChunkSize {
			grown := make([]byte, cryptor.ChunkSize)
			copy(grown, entry.plaintext)
			entry.plaintext = grown
			entry.dirty = true
			c.cache.put(entry)
		}
	}
	return nil
}

// loadForWrite is like load but tolerates an index entirely past the
// current end of content, returning a fresh empty chunk instead of trying
// to read one that was never written.
func (c *ChunkIO) loadForWrite(index uint64) (*chunkEntry, error) {
	if entry, ok := c.cache.get(index); ok {
		return entry, nil
	}
	if int64(index)*cryptor.ChunkSize >= c.size {
		entry := &chunkEntry{index: index, plaintext: nil}
		if err := c.reserve(); err != nil {
			return nil, err
		}
		c.cache.put(entry)
		return entry, nil
	}
	return c.load(index)
}

// reserve makes room for one more cache entry, evicting the
// least-recently-used clean entry if the cache is at capacity. If every
// cached entry is dirty, reserve forces a write-through of the
// least-recently-used entry via ChunkIO before evicting it, rather than
// letting the cache grow without bound.
func (c *ChunkIO) reserve() error {
	if c.cache.len() < c.cache.capacity {
		return nil
	}
	if victim := c.cache.evictableClean(); victim != nil {
		c.cache.delete(victim.index)
		return nil
	}

	victim := c.cache.lru()
	if victim == nil {
		return nil
	}
	if err := c.flushEntry(victim); err != nil {
		return err
	}
	victim.dirty = false
	c.cache.delete(victim.index)
	return nil
}

func (c *ChunkIO) touch() {
	now := c.clock.Now()
	c.mtime = &now
}
