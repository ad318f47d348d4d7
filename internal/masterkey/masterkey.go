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

// Package masterkey implements passphrase-based derivation of a vault's
// master key and the on-disk masterkey.cryptomator JSON format described
// in SPEC_FULL.md §6. The specification names this as an external
// collaborator whose contract the core consumes; this package is that
// collaborator, kept behind its own boundary so it can be swapped (for a
// different KDF, or a hardware-backed key store) without touching
// internal/vault or anything downstream of it.
package masterkey

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/scrypt"

	"github.com/dhaase/cryptofs/internal/cryptor"
	"github.com/dhaase/cryptofs/internal/vaulterr"
)

const (
	// FormatVersion is the only on-disk masterkey format this package
	// writes or reads. Any other value is ErrUnsupportedVersion.
	FormatVersion = 8

	// DefaultFilename is the recognized default value of the core's
	// "masterkey filename" configuration field (spec §6).
	DefaultFilename = "masterkey.cryptomator"

	saltLen            = 16
	defaultScryptN     = 1 << 15
	defaultScryptR     = 8
	scryptP            = 1
	scryptKeyLen       = 32
)

// fileFormat mirrors the JSON fields enumerated in spec §6. encoding/json
// marshals []byte fields as base64 automatically, which is exactly the
// wire format the spec calls out ("ciphertext of enc key" etc. as JSON
// string fields).
type fileFormat struct {
	Version          int    `json:"version"`
	ScryptSalt       []byte `json:"scryptSalt"`
	ScryptCostParam  int    `json:"scryptCostParam"`
	ScryptBlockSize  int    `json:"scryptBlockSize"`
	PrimaryMasterKey []byte `json:"primaryMasterKey"`
	HmacMasterKey    []byte `json:"hmacMasterKey"`
	VersionMac       []byte `json:"versionMac"`
}

// ErrInvalidPassphrase is returned by Load when the supplied passphrase (and
// pepper) do not match the key file.
var ErrInvalidPassphrase = vaulterr.New(vaulterr.CryptoFailure, "masterkey.Load", fmt.Errorf("invalid passphrase"))

// ErrUnsupportedVersion is returned by Load when the on-disk format version
// is not one this package understands.
var ErrUnsupportedVersion = vaulterr.New(vaulterr.CorruptFormat, "masterkey.Load", fmt.Errorf("unsupported masterkey format version"))

// Create derives a fresh random master key from passphrase+pepper and
// returns both the key and the serialized JSON bytes to persist at
// <vaultRoot>/<masterkeyFilename>.
func Create(passphrase string, pepper []byte) (cryptor.Keys, []byte, error) {
	var keys cryptor.Keys
	if _, err := rand.Read(keys.EncKey[:]); err != nil {
		return cryptor.Keys{}, nil, vaulterr.New(vaulterr.CryptoFailure, "masterkey.Create", err)
	}
	if _, err := rand.Read(keys.MacKey[:]); err != nil {
		return cryptor.Keys{}, nil, vaulterr.New(vaulterr.CryptoFailure, "masterkey.Create", err)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return cryptor.Keys{}, nil, vaulterr.New(vaulterr.CryptoFailure, "masterkey.Create", err)
	}

	kek, err := deriveKEK(passphrase, pepper, salt, defaultScryptN, defaultScryptR)
	if err != nil {
		return cryptor.Keys{}, nil, err
	}

	wrappedEnc, err := wrapKey(kek, keys.EncKey[:])
	if err != nil {
		return cryptor.Keys{}, nil, vaulterr.New(vaulterr.CryptoFailure, "masterkey.Create", err)
	}
	wrappedMac, err := wrapKey(kek, keys.MacKey[:])
	if err != nil {
		return cryptor.Keys{}, nil, vaulterr.New(vaulterr.CryptoFailure, "masterkey.Create", err)
	}

	ff := fileFormat{
		Version:          FormatVersion,
		ScryptSalt:       salt,
		ScryptCostParam:  defaultScryptN,
		ScryptBlockSize:  defaultScryptR,
		PrimaryMasterKey: wrappedEnc,
		HmacMasterKey:    wrappedMac,
		VersionMac:       versionMAC(keys.MacKey[:], FormatVersion),
	}

	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return cryptor.Keys{}, nil, vaulterr.New(vaulterr.CorruptFormat, "masterkey.Create", err)
	}

	return keys, data, nil
}

// Load parses the on-disk JSON format and derives the master key from
// passphrase+pepper, returning ErrInvalidPassphrase if they don't match and
// ErrUnsupportedVersion if the format version is unrecognized.
func Load(data []byte, passphrase string, pepper []byte) (cryptor.Keys, error) {
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return cryptor.Keys{}, vaulterr.New(vaulterr.CorruptFormat, "masterkey.Load", err)
	}

	if ff.Version != FormatVersion {
		return cryptor.Keys{}, ErrUnsupportedVersion
	}

	kek, err := deriveKEK(passphrase, pepper, ff.ScryptSalt, ff.ScryptCostParam, ff.ScryptBlockSize)
	if err != nil {
		return cryptor.Keys{}, err
	}

	rawEnc, err := unwrapKey(kek, ff.PrimaryMasterKey)
	if err != nil {
		return cryptor.Keys{}, ErrInvalidPassphrase
	}
	rawMac, err := unwrapKey(kek, ff.HmacMasterKey)
	if err != nil {
		return cryptor.Keys{}, ErrInvalidPassphrase
	}

	var keys cryptor.Keys
	copy(keys.EncKey[:], rawEnc)
	copy(keys.MacKey[:], rawMac)

	if !hmac.Equal(versionMAC(keys.MacKey[:], ff.Version), ff.VersionMac) {
		return cryptor.Keys{}, ErrInvalidPassphrase
	}

	return keys, nil
}

// LoadFile reads and parses the masterkey file at path.
func LoadFile(path, passphrase string, pepper []byte) (cryptor.Keys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cryptor.Keys{}, vaulterr.New(vaulterr.TransientIO, "masterkey.LoadFile", err)
	}
	return Load(data, passphrase, pepper)
}

func deriveKEK(passphrase string, pepper, salt []byte, n, r int) ([]byte, error) {
	password := append([]byte(passphrase), pepper...)
	kek, err := scrypt.Key(password, salt, n, r, scryptP, scryptKeyLen)
	if err != nil {
		return nil, vaulterr.New(vaulterr.CryptoFailure, "masterkey.deriveKEK", err)
	}
	return kek, nil
}

func versionMAC(macKey []byte, version int) []byte {
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], uint32(version))
	h := hmac.New(sha256.New, macKey)
	h.Write(v[:])
	return h.Sum(nil)
}
