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
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// deriveContentMacKey expands a file's 32-byte content key into its
// companion MAC key. The header payload has room for only one 32-byte key
// (spec §3: "a per-file content key and a sentinel", 40 bytes total), so
// the MAC key used to authenticate that file's chunks is not stored at all
// — it is re-derived deterministically every time the header is decrypted.
func deriveContentMacKey(contentEncKey [32]byte) [32]byte {
	var out [32]byte
	r := hkdf.New(sha256.New, contentEncKey[:], nil, []byte("cryptofs-content-mac"))
	if _, err := io.ReadFull(r, out[:]); err != nil {
		// hkdf.New with a fixed-size sha256 extractor over a 32-byte input
		// can't run out of entropy for a single 32-byte Expand; a failure
		// here would mean the standard library's hash implementation is
		// broken.
		panic("cryptor: hkdf expand failed: " + err.Error())
	}
	return out
}
