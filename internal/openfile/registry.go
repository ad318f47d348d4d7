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
	"fmt"
	"sync"
)

// registryEntry is the per-path slot a Registry hands out. mu serializes
// only the open()/close() I/O for this one path; it is never held while
// the registry's own map lock is held, and no other path's entry is ever
// blocked behind it.
type registryEntry struct {
	mu    sync.Mutex
	count uint64
	of    *OpenFile
}

// Registry guarantees there is at most one OpenFile, and one underlying
// *os.File, per ciphertext path at a time: concurrent Opens of the same
// path share the same OpenFile and are reference-counted, so the file is
// only actually closed once the last caller releases it.
//
// mu is a map-bucket-style lock: it is held only long enough to find,
// create, or remove a path's entry and to adjust its refcount, never
// across the entry's own open/close I/O (spec §5, "no lock is held across
// an I/O boundary longer than the single... operation it serializes").
// Two callers acquiring or releasing different paths never block each
// other; two callers on the same path serialize on that path's own
// registryEntry.mu, exactly as long as that path's open or close call
// takes.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Acquire returns the OpenFile for ciphertextPath, calling open to create
// it if no caller currently holds it open. Every successful call to
// Acquire must be matched by exactly one call to Release.
func (r *Registry) Acquire(ciphertextPath string, open func() (*OpenFile, error)) (*OpenFile, error) {
	r.mu.Lock()
	e, ok := r.entries[ciphertextPath]
	if !ok {
		e = &registryEntry{}
		r.entries[ciphertextPath] = e
	}
	e.count++
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.of != nil {
		return e.of, nil
	}

	of, err := open()
	if err != nil {
		r.release(ciphertextPath, e)
		return nil, err
	}
	e.of = of
	return of, nil
}

// Release drops one reference to ciphertextPath, closing the underlying
// OpenFile once the reference count reaches zero. Releasing a path that
// isn't currently held is a programmer error and panics, the same as
// over-releasing a lookup count does in fs/inode.
func (r *Registry) Release(ciphertextPath string) error {
	r.mu.Lock()
	e, ok := r.entries[ciphertextPath]
	if !ok {
		r.mu.Unlock()
		panic(fmt.Sprintf("Release called for path not held open: %s", ciphertextPath))
	}
	last := r.releaseLocked(ciphertextPath, e)
	r.mu.Unlock()

	if !last {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.of.Close(context.Background())
}

// release undoes one failed Acquire's speculative refcount bump, deleting
// the entry under r.mu if nothing else is still claiming it.
func (r *Registry) release(ciphertextPath string, e *registryEntry) {
	r.mu.Lock()
	r.releaseLocked(ciphertextPath, e)
	r.mu.Unlock()
}

// releaseLocked decrements e's refcount and, if it reaches zero, removes
// it from the map. r.mu must already be held. It panics if e is already
// at zero, the same over-release guard the old lookupCount enforced.
func (r *Registry) releaseLocked(ciphertextPath string, e *registryEntry) bool {
	if e.count == 0 {
		panic(fmt.Sprintf("Release called for path not held open: %s", ciphertextPath))
	}
	e.count--
	if e.count == 0 {
		delete(r.entries, ciphertextPath)
		return true
	}
	return false
}

// Len reports how many distinct ciphertext paths are currently open. It
// exists for tests and diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
