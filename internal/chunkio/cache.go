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

import "container/list"

// defaultCacheCapacity bounds how many chunks a ChunkIO keeps decrypted in
// memory at once. It is deliberately small: chunks are 32 KiB each, dirty
// ones pin memory until a flush, and most access patterns (sequential
// read/write, small random edits) only ever need the current and
// previous chunk warm.
const defaultCacheCapacity = 5

type chunkEntry struct {
	index     uint64
	plaintext []byte
	dirty     bool
}

// chunkCache is a bounded LRU cache of decrypted chunks. It never silently
// drops a dirty entry: a clean entry is evicted outright, but evicting a
// dirty entry always means writing it through to the ciphertext file
// first (see ChunkIO.reserve) so a cache that is entirely dirty still
// stays within its capacity instead of growing unbounded.
//
// Not safe for concurrent use; ChunkIO serializes access with its own
// lock.
type chunkCache struct {
	capacity int
	order    *list.List
	entries  map[uint64]*list.Element
}

func newChunkCache(capacity int) *chunkCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &chunkCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[uint64]*list.Element, capacity),
	}
}

func (c *chunkCache) get(index uint64) (*chunkEntry, bool) {
	el, ok := c.entries[index]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*chunkEntry), true
}

func (c *chunkCache) put(entry *chunkEntry) {
	if el, ok := c.entries[entry.index]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(entry)
	c.entries[entry.index] = el
}

func (c *chunkCache) delete(index uint64) {
	el, ok := c.entries[index]
	if !ok {
		return
	}
	c.order.Remove(el)
	delete(c.entries, index)
}

// dirtyEntries returns every dirty entry currently cached, in no
// particular order.
func (c *chunkCache) dirtyEntries() []*chunkEntry {
	var out []*chunkEntry
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*chunkEntry)
		if e.dirty {
			out = append(out, e)
		}
	}
	return out
}

// evictableClean returns the least-recently-used clean entry, or nil if
// every cached entry is dirty (in which case the caller must flush before
// it can make room).
func (c *chunkCache) evictableClean() *chunkEntry {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*chunkEntry)
		if !e.dirty {
			return e
		}
	}
	return nil
}

// lru returns the least-recently-used entry regardless of dirty state, or
// nil if the cache is empty. Used to pick a write-through victim when
// every entry is dirty.
func (c *chunkCache) lru() *chunkEntry {
	if el := c.order.Back(); el != nil {
		return el.Value.(*chunkEntry)
	}
	return nil
}

func (c *chunkCache) len() int {
	return c.order.Len()
}
