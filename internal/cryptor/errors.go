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
	"errors"
	"fmt"
)

var (
	errHeaderMAC      = errors.New("header MAC mismatch")
	errHeaderSentinel = errors.New("header sentinel mismatch")
	errChunkMAC       = errors.New("chunk MAC mismatch")
	errChunkTooShort  = errors.New("chunk ciphertext shorter than nonce+mac")
	errFilenameTooShort = errors.New("ciphertext filename shorter than SIV")
	errFilenameTamper   = errors.New("filename SIV mismatch (wrong directory or tampered name)")
)

func errHeaderLength(n int) error {
	return fmt.Errorf("header must be %d bytes, got %d", HeaderLen, n)
}
