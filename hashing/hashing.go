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

// Package hashing provides the content-digest and base58-identity primitives
// used throughout the core: block hashes, miner keys, and peer ids. It is
// grounded on CovenantSQL's crypto/hash package (double-SHA256, a
// fixed-size array type with Short()/String() helpers) generalized to a
// hex-string Hash usable as a msgpack-friendly map key, on
// btcsuite/btcutil/base58 for identities — the same library CovenantSQL
// already depends on for its btcd/btcutil-backed address handling — and on
// satori/go.uuid, already in CovenantSQL's go.mod, for the 128-bit random
// payloads §3 names for worker msg_ids.
package hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcutil/base58"
	uuid "github.com/satori/go.uuid"
)

// Size is the byte length of a digest.
const Size = 32

// Hash is the hex encoding of a 32-byte digest, used as the composite
// block's content identity (§3's `hash` and `previous_hash`
// fields).
type Hash string

// DoubleSHA256 returns the hex-encoded double SHA-256 digest of data,
// matching CovenantSQL's crypto/hash.DoubleHashH convention.
func DoubleSHA256(data []byte) Hash {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return Hash(hex.EncodeToString(second[:]))
}

// Short returns the first n hex characters of the hash, for log lines.
func (h Hash) Short(n int) string {
	if n >= len(h) {
		return string(h)
	}
	return string(h)[:n]
}

// IsZero reports whether h is the empty hash (no parent, e.g. genesis).
func (h Hash) IsZero() bool { return h == "" }

// NewIdentity returns a fresh base58-encoded random 256-bit identity, used
// both for peer ids and for the node's miner key.
func NewIdentity() (string, error) {
	buf := make([]byte, Size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base58.Encode(buf), nil
}

// Random128 returns a 128-bit random payload, the value §3 names
// "random_128_bit" for a worker's msg_id. A UUID v4's 16 raw bytes carry
// this directly — it's the random payload, not the UUID's canonical string
// form, that msg_id wants, so version/variant bits are never stripped or
// treated specially here.
func Random128() ([]byte, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	return id.Bytes(), nil
}

// Random256Hex returns a 256-bit random value hex-encoded, used for the
// work session id (§3: "session_id (random 256-bit)").
func Random256Hex() (string, error) {
	buf := make([]byte, Size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
