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
	"time"

	"github.com/dhaase/cryptofs/internal/pathmap"
)

// AttrView is a lazily-resolving handle onto one cleartext path's
// attributes. It can be obtained before the path exists: every method
// re-resolves the path against the vault at call time rather than
// caching anything beyond what PathMapper itself caches, so a view
// obtained early reflects later creates, writes, and deletes (spec §8
// scenario 6, "attribute laziness").
type AttrView struct {
	fs   *Filesystem
	path string
}

// AttrView returns a lazy attribute handle for clearPath. clearPath need
// not exist yet.
func (fs *Filesystem) AttrView(clearPath string) *AttrView {
	return &AttrView{fs: fs, path: clearPath}
}

// Path returns the cleartext path this view was opened against.
func (v *AttrView) Path() string {
	return v.path
}

func (v *AttrView) stat() (FileInfo, error) {
	return v.fs.Stat(v.path)
}

// IsMissing reports whether the backing path is currently absent (or one
// of its parents is not a directory).
func (v *AttrView) IsMissing() bool {
	_, err := v.stat()
	return errors.Is(err, ErrMissing) || errors.Is(err, ErrNotDirectory)
}

// Size returns the current cleartext size of the backing path, or
// ErrMissing if it doesn't currently exist.
func (v *AttrView) Size() (int64, error) {
	fi, err := v.stat()
	if err != nil {
		return 0, err
	}
	return fi.Size, nil
}

// ModTime returns the current modification time of the backing path, or
// ErrMissing if it doesn't currently exist.
func (v *AttrView) ModTime() (time.Time, error) {
	fi, err := v.stat()
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime, nil
}

// Type returns the current ciphertext file type of the backing path, or
// ErrMissing if it doesn't currently exist.
func (v *AttrView) Type() (pathmap.CiphertextFileType, error) {
	fi, err := v.stat()
	if err != nil {
		return 0, err
	}
	return fi.Type, nil
}
