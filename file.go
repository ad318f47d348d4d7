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
	"context"
	"io"
	"os"
	"sync"

	"github.com/dhaase/cryptofs/internal/openfile"
	"github.com/dhaase/cryptofs/internal/pathmap"
)

// File is a single cleartext channel onto a vault file. Multiple Files
// may be open on the same cleartext path at once; they share the one
// OpenFile the registry keeps for that path (spec I3) and each track
// their own read/write cursor independently, like separate file
// descriptors onto the same inode.
type File struct {
	fs         *Filesystem
	entryPath  string
	of         *openfile.OpenFile

	mu     sync.Mutex
	offset int64
	closed bool
}

// Create creates a new, empty regular file at clearPath, which must not
// already exist. The parent directory must already exist.
func (fs *Filesystem) Create(clearPath string) (*File, error) {
	_, entryPath, err := fs.resolveNewEntry(clearPath, pathmap.RegularFile)
	if err != nil {
		return nil, translate("Filesystem.Create", err)
	}

	of, err := fs.vault.OpenFiles.Acquire(entryPath, func() (*openfile.OpenFile, error) {
		return openfile.Create(entryPath, fs.vault.Cryptor(), fs.vault.Clock)
	})
	if err != nil {
		return nil, translate("Filesystem.Create", err)
	}

	return &File{fs: fs, entryPath: entryPath, of: of}, nil
}

// Open opens the existing regular file at clearPath for reading and
// writing.
func (fs *Filesystem) Open(clearPath string) (*File, error) {
	_, entryPath, kind, err := fs.resolveExistingEntry(clearPath)
	if err != nil {
		return nil, translate("Filesystem.Open", err)
	}
	if kind != pathmap.RegularFile {
		return nil, translate("Filesystem.Open", ErrNotDirectory)
	}

	of, err := fs.vault.OpenFiles.Acquire(entryPath, func() (*openfile.OpenFile, error) {
		return openfile.Open(entryPath, fs.vault.Cryptor(), fs.vault.Clock)
	})
	if err != nil {
		return nil, translate("Filesystem.Open", err)
	}

	return &File{fs: fs, entryPath: entryPath, of: of}, nil
}

// ReadAt reads len(buf) bytes starting at cleartext offset off, as
// io.ReaderAt.
func (f *File) ReadAt(buf []byte, off int64) (int, error) {
	n, err := f.of.ReadAt(buf, off)
	return n, translate("File.ReadAt", err)
}

// WriteAt writes buf at cleartext offset off, as io.WriterAt.
func (f *File) WriteAt(buf []byte, off int64) (int, error) {
	n, err := f.of.WriteAt(buf, off)
	return n, translate("File.WriteAt", err)
}

// Read reads from the file's current cursor, advancing it, as io.Reader.
func (f *File) Read(buf []byte) (int, error) {
	f.mu.Lock()
	off := f.offset
	f.mu.Unlock()

	n, err := f.of.ReadAt(buf, off)
	f.mu.Lock()
	f.offset = off + int64(n)
	f.mu.Unlock()

	if err == nil && n < len(buf) {
		err = io.EOF
	}
	return n, translate("File.Read", err)
}

// Write writes to the file's current cursor, advancing it, as io.Writer.
func (f *File) Write(buf []byte) (int, error) {
	f.mu.Lock()
	off := f.offset
	f.mu.Unlock()

	n, err := f.of.WriteAt(buf, off)
	f.mu.Lock()
	f.offset = off + int64(n)
	f.mu.Unlock()

	return n, translate("File.Write", err)
}

// Seek repositions the cursor, as io.Seeker.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		f.offset = f.of.Size() + offset
	default:
		return 0, translate("File.Seek", os.ErrInvalid)
	}
	return f.offset, nil
}

// Size returns the file's current cleartext length.
func (f *File) Size() int64 {
	return f.of.Size()
}

// Truncate resizes the file to n cleartext bytes.
func (f *File) Truncate(n int64) error {
	return translate("File.Truncate", f.of.Truncate(n))
}

// Flush persists any buffered writes without closing the file.
func (f *File) Flush(ctx context.Context) error {
	return translate("File.Flush", f.of.Flush(ctx))
}

// Close releases this File's reference to the underlying OpenFile,
// flushing and closing it once every other reference has also been
// released. Calling Close more than once is a no-op.
func (f *File) Close(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	return translate("File.Close", f.fs.vault.OpenFiles.Release(f.entryPath))
}
