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
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"

	"github.com/dhaase/cryptofs/internal/vaulterr"
)

// EncryptHeader lays out the 88-byte header:
//
//	nonce(16) || aes-ctr(contentKey(32) || sentinel(8)) || hmac(32)
func (c *cryptor) EncryptHeader(content Keys) ([]byte, error) {
	nonce, err := randomNonce()
	if err != nil {
		return nil, vaulterr.New(vaulterr.CryptoFailure, "EncryptHeader", err)
	}

	var payload [headerPayload]byte
	copy(payload[:contentKeyLen], content.EncKey[:])
	copy(payload[contentKeyLen:], sentinel[:])

	block, err := aes.NewCipher(c.master.EncKey[:])
	if err != nil {
		return nil, vaulterr.New(vaulterr.CryptoFailure, "EncryptHeader", err)
	}
	ciphertext := make([]byte, headerPayload)
	cipher.NewCTR(block, nonce[:]).XORKeyStream(ciphertext, payload[:])

	mac := headerMAC(c.master.MacKey[:], nonce[:], ciphertext)

	out := make([]byte, 0, HeaderLen)
	out = append(out, nonce[:]...)
	out = append(out, ciphertext...)
	out = append(out, mac...)
	return out, nil
}

// DecryptHeader reverses EncryptHeader, authenticating before decrypting.
//
// Only the first 32 bytes of content.EncKey survive the header payload
// today (the "content key" of spec §3); MacKey for chunk authentication is
// derived separately via deriveContentMacKey so a single 32-byte secret in
// the header is enough to authenticate and encrypt a file's chunks.
func (c *cryptor) DecryptHeader(header []byte) (Keys, [16]byte, error) {
	var zero [16]byte
	if len(header) != HeaderLen {
		return Keys{}, zero, vaulterr.New(vaulterr.CorruptFormat, "DecryptHeader", errHeaderLength(len(header)))
	}

	nonce := header[:nonceLen]
	ciphertext := header[nonceLen : nonceLen+headerPayload]
	gotMAC := header[nonceLen+headerPayload:]

	wantMAC := headerMAC(c.master.MacKey[:], nonce, ciphertext)
	if !hmac.Equal(gotMAC, wantMAC) {
		return Keys{}, zero, vaulterr.New(vaulterr.CryptoFailure, "DecryptHeader", errHeaderMAC)
	}

	block, err := aes.NewCipher(c.master.EncKey[:])
	if err != nil {
		return Keys{}, zero, vaulterr.New(vaulterr.CryptoFailure, "DecryptHeader", err)
	}
	payload := make([]byte, headerPayload)
	cipher.NewCTR(block, nonce).XORKeyStream(payload, ciphertext)

	if !bytes.Equal(payload[contentKeyLen:], sentinel[:]) {
		return Keys{}, zero, vaulterr.New(vaulterr.CryptoFailure, "DecryptHeader", errHeaderSentinel)
	}

	var content Keys
	copy(content.EncKey[:], payload[:contentKeyLen])
	content.MacKey = deriveContentMacKey(content.EncKey)

	var headerNonce [16]byte
	copy(headerNonce[:], nonce)
	return content, headerNonce, nil
}

func headerMAC(macKey, nonce, ciphertext []byte) []byte {
	h := hmac.New(sha256.New, macKey)
	h.Write(nonce)
	h.Write(ciphertext)
	return h.Sum(nil)
}
