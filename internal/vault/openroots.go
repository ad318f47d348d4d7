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

import "sync"

// openRoots tracks, process-wide, how many live *Vault instances are
// currently open on each root path. Nothing in this package refuses a
// second Open of the same root (the OS filesystem is already ours to
// corrupt if we're careless about that), but OpenRootCount lets callers
// such as the CLI warn about it instead of silently racing two vault
// instances against one directory-id cache each.
var openRoots = struct {
	mu     sync.Mutex
	counts map[string]int
}{counts: make(map[string]int)}

func acquireRoot(abs string) {
	openRoots.mu.Lock()
	defer openRoots.mu.Unlock()
	openRoots.counts[abs]++
}

func releaseRoot(abs string) {
	openRoots.mu.Lock()
	defer openRoots.mu.Unlock()
	openRoots.counts[abs]--
	if openRoots.counts[abs] <= 0 {
		delete(openRoots.counts, abs)
	}
}

// OpenRootCount returns how many *Vault instances in this process
// currently have abs open.
func OpenRootCount(abs string) int {
	openRoots.mu.Lock()
	defer openRoots.mu.Unlock()
	return openRoots.counts[abs]
}
