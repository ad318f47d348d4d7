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
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/base32"

	"github.com/dhaase/cryptofs/internal/vaulterr"
)

// filenameEncoding is the base32 alphabet used for ciphertext names: no
// padding, since '=' is awkward in a filename and the length is already
// recoverable from the SIV+ciphertext length.
var filenameEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncryptFilename implements the AES-SIV-style construction described in
// SPEC_FULL.md §6: a synthetic IV is derived deterministically from the
// directory UUID (associated data) and the cleartext name via S2V, then
// used both as the authentication tag and as the CTR IV (after masking two
// bits per RFC 5297 §2.6 so the two encryptions can never collide on an
// overflowing counter). The result is deterministic (spec I6) and
// length-preserving modulo the fixed 16-byte SIV prefix and base32
// expansion.
func (c *cryptor) EncryptFilename(cleartext string, dirID string) (string, error) {
	macBlock, err := aes.NewCipher(c.master.MacKey[:])
	if err != nil {
		return "", vaulterr.New(vaulterr.CryptoFailure, "EncryptFilename", err)
	}
	encBlock, err := aes.NewCipher(c.master.EncKey[:])
	if err != nil {
		return "", vaulterr.New(vaulterr.CryptoFailure, "EncryptFilename", err)
	}

	plaintext := []byte(cleartext)
	v := s2v(macBlock, []byte(dirID), plaintext)
	q := sivCounter(v)

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(encBlock, q[:]).XORKeyStream(ciphertext, plaintext)

	out := make([]byte, 0, 16+len(ciphertext))
	out = append(out, v[:]...)
	out = append(out, ciphertext...)

	return filenameEncoding.EncodeToString(out), nil
}

// DecryptFilename reverses EncryptFilename, re-deriving the SIV from the
// recovered plaintext and the claimed directory id, and rejecting the
// result unless it matches the SIV actually stored in the ciphertext (this
// is what makes moving a file into a different directory without
// re-encrypting its name detectable: spec I6).
func (c *cryptor) DecryptFilename(ciphertext string, dirID string) (string, error) {
	raw, err := filenameEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", vaulterr.New(vaulterr.CorruptFormat, "DecryptFilename", err)
	}
	if len(raw) < 16 {
		return "", vaulterr.New(vaulterr.CorruptFormat, "DecryptFilename", errFilenameTooShort)
	}

	var v [16]byte
	copy(v[:], raw[:16])
	body := raw[16:]

	macBlock, err := aes.NewCipher(c.master.MacKey[:])
	if err != nil {
		return "", vaulterr.New(vaulterr.CryptoFailure, "DecryptFilename", err)
	}
	encBlock, err := aes.NewCipher(c.master.EncKey[:])
	if err != nil {
		return "", vaulterr.New(vaulterr.CryptoFailure, "DecryptFilename", err)
	}

	q := sivCounter(v)
	plaintext := make([]byte, len(body))
	cipher.NewCTR(encBlock, q[:]).XORKeyStream(plaintext, body)

	want := s2v(macBlock, []byte(dirID), plaintext)
	if subtle.ConstantTimeCompare(want[:], v[:]) != 1 {
		return "", vaulterr.New(vaulterr.CryptoFailure, "DecryptFilename", errFilenameTamper)
	}

	return string(plaintext), nil
}

// sivCounter derives the CTR IV from a synthetic IV per RFC 5297 §2.6,
// clearing the top bit of the third and fourth 32-bit words so the CTR
// counter embedded in the IV can never carry into bits that matter for
// this mode's security argument.
func sivCounter(v [16]byte) [16]byte {
	q := v
	q[8] &= 0x7f
	q[12] &= 0x7f
	return q
}
