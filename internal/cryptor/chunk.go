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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"

	"github.com/dhaase/cryptofs/internal/vaulterr"
)

// EncryptChunk frames one chunk as:
//
//	nonce(16) || aes-ctr(plaintext, iv=nonce) || hmac(32)
//
// with the MAC computed per spec I4 over
// headerNonce || be_u64(index) || chunkNonce || ciphertext.
func (c *cryptor) EncryptChunk(content Keys, headerNonce [16]byte, index uint64, plaintext []byte) ([]byte, error) {
	nonce, err := randomNonce()
	if err != nil {
		return nil, vaulterr.New(vaulterr.CryptoFailure, "EncryptChunk", err)
	}

	block, err := aes.NewCipher(content.EncKey[:])
	if err != nil {
		return nil, vaulterr.New(vaulterr.CryptoFailure, "EncryptChunk", err)
	}
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(block, nonce[:]).XORKeyStream(ciphertext, plaintext)

	mac := chunkMAC(content.MacKey[:], headerNonce[:], index, nonce[:], ciphertext)

	out := make([]byte, 0, nonceLen+len(ciphertext)+macLen)
	out = append(out, nonce[:]...)
	out = append(out, ciphertext...)
	out = append(out, mac...)
	return out, nil
}

// DecryptChunk reverses EncryptChunk, authenticating before decrypting.
func (c *cryptor) DecryptChunk(content Keys, headerNonce [16]byte, index uint64, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < nonceLen+macLen {
		return nil, vaulterr.New(vaulterr.CorruptFormat, "DecryptChunk", errChunkTooShort)
	}

	nonce := ciphertext[:nonceLen]
	body := ciphertext[nonceLen : len(ciphertext)-macLen]
	gotMAC := ciphertext[len(ciphertext)-macLen:]

	wantMAC := chunkMAC(content.MacKey[:], headerNonce[:], index, nonce, body)
	if !hmac.Equal(gotMAC, wantMAC) {
		return nil, vaulterr.New(vaulterr.CryptoFailure, "DecryptChunk", errChunkMAC)
	}

	block, err := aes.NewCipher(content.EncKey[:])
	if err != nil {
		return nil, vaulterr.New(vaulterr.CryptoFailure, "DecryptChunk", err)
	}
	plaintext := make([]byte, len(body))
	cipher.NewCTR(block, nonce).XORKeyStream(plaintext, body)

	return plaintext, nil
}

func chunkMAC(macKey, headerNonce []byte, index uint64, chunkNonce, ciphertext []byte) []byte {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)

	h := hmac.New(sha256.New, macKey)
	h.Write(headerNonce)
	h.Write(idx[:])
	h.Write(chunkNonce)
	h.Write(ciphertext)
	return h.Sum(nil)
}
