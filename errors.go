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

package cryptofs

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dhaase/cryptofs/internal/masterkey"
	"github.com/dhaase/cryptofs/internal/vaulterr"
)

// The observable errors named in §6: every error this package returns
// satisfies errors.Is against exactly one of these, except io.EOF from
// reads and the error Remove returns for a non-empty directory.
var (
	ErrMissing            = errors.New("path does not exist")
	ErrNotDirectory       = errors.New("path is not a directory")
	ErrExists             = errors.New("path already exists")
	ErrInvalidPassphrase  = errors.New("invalid passphrase")
	ErrUnsupportedVersion = errors.New("unsupported vault format version")
	ErrNeedsMigration     = errors.New("vault needs migration")
	ErrIO                 = errors.New("I/O error")
	ErrClosed             = errors.New("filesystem is closed")
)

// observable sentinels this package itself raises directly, ahead of any
// internal package returning an error.
var errNotEmptyDir = errors.New("directory is not empty")

// translate maps the internal vaulterr/masterkey taxonomy onto the
// observable errors a caller of this package sees, preserving the
// underlying cause via %w so errors.Unwrap still reaches it. io.EOF and
// errors this package already raised directly (errNotEmptyDir, one of the
// Err* sentinels above) pass through unchanged.
func translate(op string, err error) error {
	if err == nil || err == io.EOF {
		return err
	}

	for _, sentinel := range []error{
		ErrMissing, ErrNotDirectory, ErrExists, ErrInvalidPassphrase,
		ErrUnsupportedVersion, ErrNeedsMigration, ErrIO, ErrClosed, errNotEmptyDir,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	// errors.Is on a *vaulterr.Error matches by Kind alone, so the two
	// masterkey sentinels are found by identity instead; otherwise every
	// CryptoFailure or CorruptFormat error would map onto them.
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch e {
		case masterkey.ErrInvalidPassphrase:
			return fmt.Errorf("%s: %w", op, ErrInvalidPassphrase)
		case masterkey.ErrUnsupportedVersion:
			return fmt.Errorf("%s: %w", op, ErrUnsupportedVersion)
		}
	}

	// A not-exist cause can arrive either bare (from os.Lstat/os.ReadDir
	// calls made directly in this package) or wrapped inside a
	// *vaulterr.Error (from PathMapper/DirectoryIDProvider, which wrap
	// every I/O error as TransientIO regardless of cause) — check before
	// the vaulterr switch below so it isn't mapped to the generic ErrIO.
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, ErrMissing)
	}

	var ve *vaulterr.Error
	if errors.As(err, &ve) {
		switch ve.Kind {
		case vaulterr.StateError:
			return fmt.Errorf("%s: %w", op, ErrClosed)
		default:
			return fmt.Errorf("%s: %w: %v", op, ErrIO, err)
		}
	}

	return fmt.Errorf("%s: %w: %v", op, ErrIO, err)
}
