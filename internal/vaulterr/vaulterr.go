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

// Package vaulterr defines the typed error taxonomy of the core, per the
// error handling table of the specification: CryptoFailure, CorruptFormat,
// TransientIO, InvalidArgument, StateError and Concurrent. Every error the
// core returns across a package boundary wraps one of these kinds so that
// callers can triage with errors.Is / errors.As without caring which
// component produced it.
package vaulterr

import (
	"errors"
	"fmt"
)

// Kind classifies the failure per the spec's error handling table.
type Kind int

const (
	// CryptoFailure covers AEAD tag mismatches, header MAC mismatches, and
	// unknown crypto format versions. Never auto-repaired.
	CryptoFailure Kind = iota
	// CorruptFormat covers a bad ciphertext size, a missing long-name
	// sidecar, or a malformed directory-id file.
	CorruptFormat
	// TransientIO covers an error surfaced unchanged from the underlying
	// filesystem.
	TransientIO
	// InvalidArgument covers a bad path or bad open flags, rejected at the
	// entry point.
	InvalidArgument
	// StateError covers an operation attempted on a closed vault or a
	// closed channel.
	StateError
	// Concurrent covers a lost race in a registry insert; the caller is
	// expected to retry once against the winning entry.
	Concurrent
)

func (k Kind) String() string {
	switch k {
	case CryptoFailure:
		return "crypto-failure"
	case CorruptFormat:
		return "corrupt-format"
	case TransientIO:
		return "transient-io"
	case InvalidArgument:
		return "invalid-argument"
	case StateError:
		return "state-error"
	case Concurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// Error is a typed, wrappable error carrying one of the Kind values above.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, allowing
// errors.Is(err, vaulterr.New(vaulterr.CryptoFailure, "", nil)) style checks
// as well as sentinel comparisons against the package-level Is helper below.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a vaulterr.Error of the given kind, anywhere in
// its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
