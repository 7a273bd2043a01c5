/*
 * Copyright 2026 The Anchorchain Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package errkind declares the error kinds the core distinguishes per the
// propagation policy: codec, validation, store, transport and worker
// failures are logged and the offending message or block is dropped; the
// one exception is a store failure while writing the tip, which the
// multiverse treats as fatal. Callers use errors.As against a kind rather
// than matching error strings.
package errkind

import "fmt"

// Kind identifies which of the five error families an error belongs to.
type Kind string

// The five error kinds.
const (
	Codec      Kind = "codec"
	Validation Kind = "validation"
	Store      Kind = "store"
	Transport  Kind = "transport"
	Worker     Kind = "worker"
)

// Error wraps an underlying cause with a Kind, without discarding it:
// errors.Unwrap still reaches the original error.
type Error struct {
	kind Kind
	op   string
	err  error
}

// New builds a kinded error.
func New(kind Kind, op string, err error) *Error {
	return &Error{kind: kind, op: op, err: err}
}

// Kind returns the error kind.
func (e *Error) Kind() Kind { return e.kind }

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.kind, e.op)
	}
	return fmt.Sprintf("%s: %s: %s", e.kind, e.op, e.err)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.err }

// CodecError wraps err as a malformed-frame/unknown-tag/truncated-block error.
func CodecError(op string, err error) *Error { return New(Codec, op, err) }

// ValidationError wraps err as a multiverse acceptance-rule failure.
func ValidationError(op string, err error) *Error { return New(Validation, op, err) }

// StoreError wraps err as a KV read/write failure.
func StoreError(op string, err error) *Error { return New(Store, op, err) }

// TransportError wraps err as a dial failure or mid-frame disconnect.
func TransportError(op string, err error) *Error { return New(Transport, op, err) }

// WorkerError wraps err as a fork failure, missed heartbeat, or bad exit.
func WorkerError(op string, err error) *Error { return New(Worker, op, err) }
