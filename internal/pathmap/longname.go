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
	"crypto/sha1"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhaase/cryptofs/internal/vaulterr"
)

// shortNameThreshold is the longest prefixed ciphertext name this codec
// will store directly on disk (spec §4.2, §6). Most filesystems cap
// individual path components well above this, but base32-encoded SIV
// ciphertext names grow faster than their cleartext counterparts (spec I6
// note), so names near a filesystem's actual limit still need a fallback.
const shortNameThreshold = 222

// longNameSuffix marks a stored name as a long-name sidecar digest rather
// than an inline ciphertext name, letting Decode/Forget disambiguate by
// suffix instead of by length.
const longNameSuffix = ".lng"

// longNameDir is the vault-relative directory holding sidecar files that
// map a shortened on-disk name back to the full ciphertext name.
const longNameDir = "m"

// LongFileNameCodec stores ciphertext names that are too long for the
// underlying filesystem in a sidecar file under longNameDir, keyed by the
// base32-encoded SHA-1 digest of the full name, and substitutes that
// digest (with longNameSuffix appended) as the name actually written to
// disk.
type LongFileNameCodec struct {
	vaultRoot string
}

// NewLongFileNameCodec returns a codec rooted at vaultRoot.
func NewLongFileNameCodec(vaultRoot string) *LongFileNameCodec {
	return &LongFileNameCodec{vaultRoot: vaultRoot}
}

// Encode returns the name that should actually be written to disk for
// ciphertextName, writing a sidecar file first if shortening is needed.
func (c *LongFileNameCodec) Encode(ciphertextName string) (string, error) {
	if len(ciphertextName) <= shortNameThreshold {
		return ciphertextName, nil
	}

	digest := sha1.Sum([]byte(ciphertextName))
	digestName := shardEncoding.EncodeToString(digest[:]) + longNameSuffix

	sidecar := c.sidecarPath(digestName)
	if err := os.MkdirAll(filepath.Dir(sidecar), 0o700); err != nil {
		return "", vaulterr.New(vaulterr.TransientIO, "LongFileNameCodec.Encode", err)
	}
	if err := os.WriteFile(sidecar, []byte(ciphertextName), 0o600); err != nil {
		return "", vaulterr.New(vaulterr.TransientIO, "LongFileNameCodec.Encode", err)
	}

	return digestName, nil
}

// Decode returns the full ciphertext name for storedName, resolving it
// through the sidecar file if storedName carries longNameSuffix. A
// storedName without that suffix is returned unchanged: it was never
// shortened in the first place.
func (c *LongFileNameCodec) Decode(storedName string) (string, error) {
	if !strings.HasSuffix(storedName, longNameSuffix) {
		return storedName, nil
	}

	data, err := os.ReadFile(c.sidecarPath(storedName))
	if errors.Is(err, os.ErrNotExist) {
		return storedName, nil
	}
	if err != nil {
		return "", vaulterr.New(vaulterr.TransientIO, "LongFileNameCodec.Decode", err)
	}

	return string(data), nil
}

// Forget removes the sidecar file backing a shortened name, if one exists.
// Nothing in this module calls it: removing or renaming a shortened entry
// leaves its sidecar on disk.
func (c *LongFileNameCodec) Forget(storedName string) error {
	if !strings.HasSuffix(storedName, longNameSuffix) {
		return nil
	}

	err := os.Remove(c.sidecarPath(storedName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return vaulterr.New(vaulterr.TransientIO, "LongFileNameCodec.Forget", err)
	}
	return nil
}

func (c *LongFileNameCodec) sidecarPath(digestName string) string {
	digest := strings.TrimSuffix(digestName, longNameSuffix)
	return filepath.Join(c.vaultRoot, longNameDir, digest[0:2], digest[2:4], digestName)
}
