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

package masterkey

import (
	"crypto/aes"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

// defaultIV is the RFC 3394 §2.2.3.1 default initial value for AES key
// wrap, used as the integrity check value: a wrong key-encryption-key
// produces a decoy A block that will not match this constant.
var defaultIV = [8]byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

var errUnwrapIntegrity = errors.New("key unwrap integrity check failed (wrong passphrase or corrupt key file)")

// wrapKey implements RFC 3394 AES Key Wrap: plaintext must be a multiple of
// 8 bytes and at least 16 bytes. The output is 8 bytes longer than the
// input.
func wrapKey(kek, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(plaintext) / 8
	r := make([][8]byte, n)
	for i := 0; i < n; i++ {
		copy(r[i][:], plaintext[i*8:i*8+8])
	}

	a := defaultIV

	buf := make([]byte, 16)
	for j := 0; j <= 5; j++ {
		for i := 0; i < n; i++ {
			copy(buf[:8], a[:])
			copy(buf[8:], r[i][:])
			block.Encrypt(buf, buf)

			var t [8]byte
			binary.BigEndian.PutUint64(t[:], uint64(n*j+i+1))
			for k := 0; k < 8; k++ {
				a[k] = buf[k] ^ t[k]
			}
			copy(r[i][:], buf[8:])
		}
	}

	out := make([]byte, 8+len(plaintext))
	copy(out[:8], a[:])
	for i := 0; i < n; i++ {
		copy(out[8+i*8:8+i*8+8], r[i][:])
	}
	return out, nil
}

// unwrapKey reverses wrapKey, returning errUnwrapIntegrity if kek is wrong
// or wrapped is corrupt.
func unwrapKey(kek, wrapped []byte) ([]byte, error) {
	if len(wrapped) < 16 || len(wrapped)%8 != 0 {
		return nil, errUnwrapIntegrity
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(wrapped)/8 - 1
	var a [8]byte
	copy(a[:], wrapped[:8])

	r := make([][8]byte, n)
	for i := 0; i < n; i++ {
		copy(r[i][:], wrapped[8+i*8:8+i*8+8])
	}

	buf := make([]byte, 16)
	for j := 5; j >= 0; j-- {
		for i := n - 1; i >= 0; i-- {
			var t [8]byte
			binary.BigEndian.PutUint64(t[:], uint64(n*j+i+1))
			var aXorT [8]byte
			for k := 0; k < 8; k++ {
				aXorT[k] = a[k] ^ t[k]
			}
			copy(buf[:8], aXorT[:])
			copy(buf[8:], r[i][:])
			block.Decrypt(buf, buf)

			copy(a[:], buf[:8])
			copy(r[i][:], buf[8:])
		}
	}

	if subtle.ConstantTimeCompare(a[:], defaultIV[:]) != 1 {
		return nil, errUnwrapIntegrity
	}

	out := make([]byte, n*8)
	for i := 0; i < n; i++ {
		copy(out[i*8:i*8+8], r[i][:])
	}
	return out, nil
}
