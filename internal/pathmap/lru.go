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

import "container/list"

// boundedCache is a fixed-capacity least-recently-used cache of string keys
// to string values, used by DirectoryIDProvider to bound how many directory-id
// lookups are kept in memory. Not safe for concurrent use by itself;
// callers serialize access with their own lock, the same way the rest of
// this package does.
type boundedCache struct {
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type cacheEntry struct {
	key   string
	value string
}

func newBoundedCache(capacity int) *boundedCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &boundedCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// lookUp returns the cached value and true, or "" and false on a miss.
// A hit moves the entry to the front (most recently used).
func (c *boundedCache) lookUp(key string) (string, bool) {
	el, ok := c.items[key]
	if !ok {
		return "", false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

// insert adds or updates key, evicting the least-recently-used entry if the
// cache is over capacity.
func (c *boundedCache) insert(key, value string) {
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).value = value
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{key: key, value: value})
	c.items[key] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// erase removes key from the cache, if present.
func (c *boundedCache) erase(key string) {
	el, ok := c.items[key]
	if !ok {
		return
	}
	c.ll.Remove(el)
	delete(c.items, key)
}
