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
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/dhaase/cryptofs/internal/vaulterr"
)

// RootDirID is the directory id of the vault root. It is the empty string
// by convention, which is what every vault's "d/" shard for the root
// resolves from.
const RootDirID = ""

const dirIDCacheCapacity = 5000

// DirectoryIDProvider resolves and allocates the directory ids that anchor
// each ciphertext content shard under d/. Every cleartext directory other
// than the vault root owns one, minted the first time the directory is
// created and stable for its lifetime: renaming or moving the directory's
// flat pointer file does not change its id, which is what lets PathMapper
// re-derive a stable ciphertext location even after a cleartext rename
// (spec I2).
//
// It is safe for concurrent use.
type DirectoryIDProvider struct {
	mu    sync.Mutex
	cache *boundedCache
}

// NewDirectoryIDProvider returns a provider with a bounded in-memory cache,
// avoiding repeated disk reads for directories visited often in a given
// session.
func NewDirectoryIDProvider() *DirectoryIDProvider {
	return &DirectoryIDProvider{cache: newBoundedCache(dirIDCacheCapacity)}
}

// Load returns the directory id recorded as the literal UTF-8 content of
// pointerPath (a directory's own flat pointer file), reading through the
// cache.
func (p *DirectoryIDProvider) Load(pointerPath string) (string, error) {
	p.mu.Lock()
	if id, ok := p.cache.lookUp(pointerPath); ok {
		p.mu.Unlock()
		return id, nil
	}
	p.mu.Unlock()

	data, err := os.ReadFile(pointerPath)
	if err != nil {
		return "", vaulterr.New(vaulterr.TransientIO, "DirectoryIDProvider.Load", err)
	}
	id := string(data)

	p.mu.Lock()
	p.cache.insert(pointerPath, id)
	p.mu.Unlock()

	return id, nil
}

// Create mints a fresh random directory id and writes it as the literal
// content of pointerPath, caching it.
func (p *DirectoryIDProvider) Create(pointerPath string) (string, error) {
	id := uuid.NewString()

	if err := os.WriteFile(pointerPath, []byte(id), 0o600); err != nil {
		return "", vaulterr.New(vaulterr.TransientIO, "DirectoryIDProvider.Create", err)
	}

	p.mu.Lock()
	p.cache.insert(pointerPath, id)
	p.mu.Unlock()

	return id, nil
}

// Invalidate drops any cached directory id for pointerPath, forcing the
// next Load to go to disk. Callers invoke this after a move or delete
// changes what's on disk at that path.
func (p *DirectoryIDProvider) Invalidate(pointerPath string) {
	p.mu.Lock()
	p.cache.erase(pointerPath)
	p.mu.Unlock()
}
