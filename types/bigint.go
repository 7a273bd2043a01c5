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

// Package types holds the wire and storage data model of §3: the
// composite block, its child headers, peers, and work sessions. Structs are
// plain and msgpack-friendly (package codec drives serialization), grounded
// on CovenantSQL's types package style of small structs with a handful of
// accessor methods rather than a fluent builder. CovenantSQL's own types
// package modeled a signed SQL-query block chain (headers, acks, merkle
// query roots); that model doesn't survive a core with no SQL transactions,
// so this package's contents are new while the package itself — one flat
// directory of small struct files plus accessors — keeps CovenantSQL's
// shape.
package types

import (
	"math/big"
)

// BigInt wraps math/big.Int with the BinaryMarshaler/BinaryUnmarshaler pair
// the msgpack codec needs to serialize arbitrary-precision integers
// deterministically. Grounded on CovenantSQL's pow/cpuminer.Uint256, which
// gives its own fixed-width integer a Bytes()/FromBytes() pair for the same
// reason; difficulty, distance and total_distance are unbounded per
// §3, so a fixed-width type doesn't fit and math/big is the only
// correct primitive — there is no corpus library for arbitrary-precision
// arithmetic beyond the standard library.
type BigInt struct {
	V *big.Int
}

// NewBigInt wraps an int64 as a BigInt.
func NewBigInt(v int64) BigInt {
	return BigInt{V: big.NewInt(v)}
}

// ZeroBigInt returns a zero-valued BigInt, never nil internally.
func ZeroBigInt() BigInt {
	return BigInt{V: new(big.Int)}
}

func (b BigInt) ensure() *big.Int {
	if b.V == nil {
		return new(big.Int)
	}
	return b.V
}

// Cmp compares b to other, nil-safe.
func (b BigInt) Cmp(other BigInt) int {
	return b.ensure().Cmp(other.ensure())
}

// Add returns b + other as a new BigInt.
func (b BigInt) Add(other BigInt) BigInt {
	return BigInt{V: new(big.Int).Add(b.ensure(), other.ensure())}
}

// Sign returns -1, 0 or 1.
func (b BigInt) Sign() int { return b.ensure().Sign() }

// String renders the decimal form.
func (b BigInt) String() string { return b.ensure().String() }

// MarshalBinary implements encoding.BinaryMarshaler so the msgpack codec
// serializes BigInt as its big-endian magnitude with an explicit sign byte,
// rather than falling back to field-by-field reflection over *big.Int's
// private fields.
func (b BigInt) MarshalBinary() ([]byte, error) {
	v := b.ensure()
	mag := v.Bytes()
	out := make([]byte, 1+len(mag))
	if v.Sign() < 0 {
		out[0] = 1
	}
	copy(out[1:], mag)
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (b *BigInt) UnmarshalBinary(data []byte) error {
	v := new(big.Int)
	if len(data) > 0 {
		v.SetBytes(data[1:])
		if data[0] == 1 {
			v.Neg(v)
		}
	}
	b.V = v
	return nil
}
