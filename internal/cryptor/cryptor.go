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

// Package cryptor implements the Cryptor contract described in §6 of the
// specification: filename encryption, per-file header encrypt/decrypt, and
// per-chunk AEAD framing. Every byte layout here (header size, chunk
// overhead, MAC coverage) is dictated by the spec, not chosen freely; see
// SPEC_FULL.md §6 and DESIGN.md for the rationale behind the specific
// primitives used to realize that layout.
//
// A Cryptor performs no I/O. Filename encryption is deterministic: the
// same keys and inputs always produce the same outputs. Header and chunk
// encryption and NewContentKeys draw fresh random nonces and keys.
package cryptor

import (
	"crypto/rand"
	"fmt"

	"github.com/dhaase/cryptofs/internal/vaulterr"
)

const (
	// HeaderLen is the on-disk size of a FileHeader: 16-byte nonce + 40-byte
	// encrypted payload + 32-byte HMAC.
	HeaderLen = 88

	// ChunkSize is the maximum number of cleartext bytes per chunk.
	ChunkSize = 32768

	// ChunkOverhead is the per-chunk ciphertext overhead: 16-byte nonce +
	// 32-byte HMAC.
	ChunkOverhead = 48

	contentKeyLen = 32
	sentinelLen   = 8
	headerPayload = contentKeyLen + sentinelLen // 40

	nonceLen = 16
	macLen   = 32
)

// sentinel is written into every header payload and checked on decrypt so
// that a header decrypted with the wrong content key (or corrupted) is
// detected immediately rather than silently accepted.
var sentinel = [sentinelLen]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Keys holds the symmetric key pair used throughout the vault: one AES-256
// key for encryption, one for message authentication. The vault's master
// key is a Keys value; each file's header carries its own Keys value (the
// "content key"), generated fresh per file.
type Keys struct {
	EncKey [32]byte
	MacKey [32]byte
}

// Zero overwrites the key material in place. Callers holding a master key
// must call this on vault close.
func (k *Keys) Zero() {
	for i := range k.EncKey {
		k.EncKey[i] = 0
	}
	for i := range k.MacKey {
		k.MacKey[i] = 0
	}
}

// Cryptor is the pure cryptographic contract the rest of the core depends
// on. A single Cryptor is constructed from the vault's master key and
// shared by every component that needs to touch ciphertext.
type Cryptor interface {
	// EncryptFilename returns the ciphertext (base32, unpadded) name for
	// cleartext under the directory identified by dirID. Deterministic:
	// same inputs always yield the same output (spec I6 / testable
	// property "Filename determinism").
	EncryptFilename(cleartext string, dirID string) (string, error)

	// DecryptFilename reverses EncryptFilename.
	DecryptFilename(ciphertext string, dirID string) (string, error)

	// NewContentKeys generates a fresh random per-file content key pair,
	// used when a new file's header is created.
	NewContentKeys() (Keys, error)

	// EncryptHeader produces the 88-byte on-disk header for the given
	// per-file content keys.
	EncryptHeader(content Keys) ([]byte, error)

	// DecryptHeader parses and authenticates an 88-byte on-disk header,
	// returning the per-file content keys and the header nonce (needed as
	// MAC input for every chunk in the file).
	DecryptHeader(header []byte) (content Keys, headerNonce [16]byte, err error)

	// EncryptChunk encrypts one chunk of plaintext (up to ChunkSize bytes)
	// belonging to the file whose header nonce is headerNonce, at ordinal
	// position index.
	EncryptChunk(content Keys, headerNonce [16]byte, index uint64, plaintext []byte) ([]byte, error)

	// DecryptChunk reverses EncryptChunk and authenticates the chunk.
	DecryptChunk(content Keys, headerNonce [16]byte, index uint64, ciphertext []byte) ([]byte, error)
}

type cryptor struct {
	master Keys
}

// New returns a Cryptor backed by the given vault master key.
func New(master Keys) Cryptor {
	return &cryptor{master: master}
}

// NewContentKeys generates a fresh random 32-byte content key (the only key
// that fits in the 40-byte header payload alongside the sentinel) and
// derives its companion MAC key via HKDF, exactly as DecryptHeader does
// when reading a header back.
func (c *cryptor) NewContentKeys() (Keys, error) {
	var k Keys
	if _, err := rand.Read(k.EncKey[:]); err != nil {
		return Keys{}, vaulterr.New(vaulterr.CryptoFailure, "NewContentKeys", err)
	}
	k.MacKey = deriveContentMacKey(k.EncKey)
	return k, nil
}

func randomNonce() ([nonceLen]byte, error) {
	var n [nonceLen]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("rand.Read: %w", err)
	}
	return n, nil
}
