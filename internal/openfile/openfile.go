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

// Package openfile tracks the set of vault content files currently open
// for random access, making sure exactly one ChunkIO (and one underlying
// *os.File) backs each ciphertext path no matter how many cleartext
// handles are open on it, the same role fs/inode's lookup counts play for
// gcsfuse's inodes.
package openfile

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dhaase/cryptofs/internal/chunkio"
	"github.com/dhaase/cryptofs/internal/clock"
	"github.com/dhaase/cryptofs/internal/cryptor"
	"github.com/dhaase/cryptofs/internal/vaulterr"
)

// State is where an OpenFile sits in its lifecycle. External callers only
// ever observe StateOpen; the other two states exist to catch use after
// the registry has started tearing a file down.
type State int

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

// OpenFile is a single open ciphertext content file plus the cleartext
// view (ChunkIO) over it. Its methods serialize on an internal mutex, so
// every holder the registry hands it to may call them concurrently.
type OpenFile struct {
	mu    sync.Mutex
	state State

	ciphertextPath string
	file           *os.File
	chunks         *chunkio.ChunkIO
}

// Open decrypts the header of the ciphertext file at path (which must
// already exist) and returns an OpenFile backed by it.
func Open(path string, c cryptor.Cryptor, clk clock.Clock) (*OpenFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, vaulterr.New(vaulterr.TransientIO, "openfile.Open", err)
	}

	header := make([]byte, cryptor.HeaderLen)
	if _, err := f.ReadAt(header, 0); err != nil {
		f.Close()
		return nil, vaulterr.New(vaulterr.CorruptFormat, "openfile.Open", err)
	}

	contentKeys, headerNonce, err := c.DecryptHeader(header)
	if err != nil {
		f.Close()
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, vaulterr.New(vaulterr.TransientIO, "openfile.Open", err)
	}
	size := chunkio.SizeFromCiphertextLength(stat.Size())

	chunks := chunkio.New(f, c, contentKeys, headerNonce, clk, size)

	return &OpenFile{
		ciphertextPath: path,
		file:           f,
		chunks:         chunks,
	}, nil
}

// Create writes a fresh header to a new ciphertext file at path and
// returns an OpenFile over it, initially empty.
func Create(path string, c cryptor.Cryptor, clk clock.Clock) (*OpenFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, vaulterr.New(vaulterr.TransientIO, "openfile.Create", err)
	}

	contentKeys, err := c.NewContentKeys()
	if err != nil {
		f.Close()
		return nil, err
	}
	header, err := c.EncryptHeader(contentKeys)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.WriteAt(header, 0); err != nil {
		f.Close()
		return nil, vaulterr.New(vaulterr.TransientIO, "openfile.Create", err)
	}

	_, headerNonce, err := c.DecryptHeader(header)
	if err != nil {
		f.Close()
		return nil, err
	}

	chunks := chunkio.New(f, c, contentKeys, headerNonce, clk, 0)

	return &OpenFile{
		ciphertextPath: path,
		file:           f,
		chunks:         chunks,
	}, nil
}

// Path returns the ciphertext path this OpenFile is backed by.
func (of *OpenFile) Path() string {
	return of.ciphertextPath
}

// ReadAt decrypts cleartext content, as chunkio.ChunkIO.ReadAt.
func (of *OpenFile) ReadAt(buf []byte, offset int64) (int, error) {
	of.mu.Lock()
	defer of.mu.Unlock()
	if of.state != StateOpen {
		return 0, vaulterr.New(vaulterr.StateError, "OpenFile.ReadAt", errClosed)
	}
	return of.chunks.ReadAt(buf, offset)
}

// WriteAt buffers cleartext content, as chunkio.ChunkIO.WriteAt.
func (of *OpenFile) WriteAt(buf []byte, offset int64) (int, error) {
	of.mu.Lock()
	defer of.mu.Unlock()
	if of.state != StateOpen {
		return 0, vaulterr.New(vaulterr.StateError, "OpenFile.WriteAt", errClosed)
	}
	return of.chunks.WriteAt(buf, offset)
}

// Truncate resizes the cleartext content, as chunkio.ChunkIO.Truncate.
func (of *OpenFile) Truncate(n int64) error {
	of.mu.Lock()
	defer of.mu.Unlock()
	if of.state != StateOpen {
		return vaulterr.New(vaulterr.StateError, "OpenFile.Truncate", errClosed)
	}
	return of.chunks.Truncate(n)
}

// Size returns the current cleartext size.
func (of *OpenFile) Size() int64 {
	of.mu.Lock()
	defer of.mu.Unlock()
	return of.chunks.Size()
}

// Flush persists any buffered writes to the ciphertext file without
// closing it.
func (of *OpenFile) Flush(ctx context.Context) error {
	of.mu.Lock()
	defer of.mu.Unlock()
	if of.state == StateClosed {
		return vaulterr.New(vaulterr.StateError, "OpenFile.Flush", errClosed)
	}
	return of.chunks.Flush(ctx)
}

// Close flushes buffered writes, closes the underlying ciphertext file and,
// if the content was modified, sets that file's modification time to the
// time of the last modifying call. Calling it more than once is a no-op after the first call
// succeeds.
func (of *OpenFile) Close(ctx context.Context) error {
	of.mu.Lock()
	defer of.mu.Unlock()

	if of.state == StateClosed {
		return nil
	}
	of.state = StateClosing

	flushErr := of.chunks.Flush(ctx)
	closeErr := of.file.Close()
	of.state = StateClosed

	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return vaulterr.New(vaulterr.TransientIO, "OpenFile.Close", closeErr)
	}
	if mt := of.chunks.ModTime(); !mt.IsZero() {
		if err := os.Chtimes(of.ciphertextPath, mt, mt); err != nil {
			return vaulterr.New(vaulterr.TransientIO, "OpenFile.Close", err)
		}
	}
	return nil
}

var errClosed = fmt.Errorf("open file is closing or already closed")
