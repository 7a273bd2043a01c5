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

// Package store implements the persistence facade (C1 in §2): a
// namespaced KV with get/put/del/getBulk, soft-fail reads, and typed
// deserialization for block records. It is grounded on CovenantSQL's
// kayak/wal/leveldb_wal.go — the same syndtr/goleveldb-backed storage, the
// same errors.Wrap-everything discipline — generalized from a write-ahead
// log's index/header/data keys to the flat key namespace of §6.
package store

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/anchorchain/multiversed/codec"
	"github.com/anchorchain/multiversed/errkind"
	"github.com/anchorchain/multiversed/log"
	"github.com/anchorchain/multiversed/types"
)

// Well-known keys (§6).
const (
	KeyLatest = "bc.block.latest"
	KeyParent = "bc.block.parent"
	KeyQuorum = "bc.dht.quorum"
	KeySync   = "synclock"
)

// BlockKey returns the "bc.block.{height}" key for a persisted historical
// block.
func BlockKey(height uint64) string { return fmt.Sprintf("bc.block.%d", height) }

// PendingKey returns the "pending.bc.block.{height}" key for a candidate
// awaiting confirmation.
func PendingKey(height uint64) string { return fmt.Sprintf("pending.bc.block.%d", height) }

// ChildHeaderKey returns the "{chain}.block.{height}" key a rover persists
// a child header under.
func ChildHeaderKey(chain string, height uint64) string { return fmt.Sprintf("%s.block.%d", chain, height) }

// Store is the namespaced KV facade. All reads/writes funnel through here;
// callers never touch *leveldb.DB directly (the "guarded global KV access"
// redesign note of §9).
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if absent) a leveldb instance at dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, errkind.StoreError("open", errors.Wrap(err, "open leveldb failed"))
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get reads a raw value. When softFail is true, a missing key or read error
// yields (nil, false, nil) instead of an error — the soft-fail policy of
// §7 ("read returns None when softFail is set").
func (s *Store) Get(key string, softFail bool) ([]byte, bool, error) {
	v, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if softFail {
			return nil, false, nil
		}
		if err == leveldb.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, errkind.StoreError("get "+key, err)
	}
	return v, true, nil
}

// Put writes a raw value.
func (s *Store) Put(key string, value []byte) error {
	if err := s.db.Put([]byte(key), value, nil); err != nil {
		return errkind.StoreError("put "+key, err)
	}
	return nil
}

// Delete removes a key.
func (s *Store) Delete(key string) error {
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return errkind.StoreError("delete "+key, err)
	}
	return nil
}

// GetBulk reads many keys at once. Missing keys are simply absent from the
// result map — callers (e.g. the protocol engine's range-serving handlers)
// treat a shorter map as "fewer blocks available", not an error
// (§4.2: "Keys missing yield a shorter list; no error is returned").
func (s *Store) GetBulk(keys []string, softFail bool) map[string][]byte {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, ok, err := s.Get(k, softFail)
		if err != nil {
			log.WithError(err).WithField("key", k).Warn("getBulk read failed")
			continue
		}
		if ok {
			out[k] = v
		}
	}
	return out
}

// GetBlock reads and decodes a typed block record, soft-failing on a
// missing key or decode error.
func (s *Store) GetBlock(key string, softFail bool) (*types.Block, bool, error) {
	raw, ok, err := s.Get(key, softFail)
	if err != nil || !ok {
		return nil, ok, err
	}
	b, derr := codec.DecodeBlock(raw)
	if derr != nil {
		if softFail {
			return nil, false, nil
		}
		return nil, false, derr
	}
	return b, true, nil
}

// PutBlock encodes and writes a typed block record.
func (s *Store) PutBlock(key string, b *types.Block) error {
	raw, err := codec.EncodeBlock(b)
	if err != nil {
		return err
	}
	return s.Put(key, raw)
}

// GetLatest reads bc.block.latest, soft-failing.
func (s *Store) GetLatest() (*types.Block, bool, error) { return s.GetBlock(KeyLatest, true) }

// PutLatest writes bc.block.latest. A write failure here is fatal per
// §7 ("StoreError on the tip write is fatal"); this method
// deliberately does not soft-fail — callers decide how to escalate.
func (s *Store) PutLatest(b *types.Block) error { return s.PutBlock(KeyLatest, b) }

// GetParent reads bc.block.parent, soft-failing (§4.1's hotswap
// rule explicitly soft-fails this read).
func (s *Store) GetParent() (*types.Block, bool, error) { return s.GetBlock(KeyParent, true) }

// PutParent writes bc.block.parent.
func (s *Store) PutParent(b *types.Block) error { return s.PutBlock(KeyParent, b) }

// GetByHeight reads bc.block.{height}.
func (s *Store) GetByHeight(height uint64) (*types.Block, bool, error) {
	return s.GetBlock(BlockKey(height), true)
}

// PutByHeight writes bc.block.{height}.
func (s *Store) PutByHeight(height uint64, b *types.Block) error {
	return s.PutBlock(BlockKey(height), b)
}

// GetPending reads pending.bc.block.{height}.
func (s *Store) GetPending(height uint64) (*types.Block, bool, error) {
	return s.GetBlock(PendingKey(height), true)
}

// PutPending writes pending.bc.block.{height}.
func (s *Store) PutPending(height uint64, b *types.Block) error {
	return s.PutBlock(PendingKey(height), b)
}

// HasChildHeader reports whether {chain}.block.{height} is persisted
// (§4.1's ValidateRoveredBlocks).
func (s *Store) HasChildHeader(chain string, height uint64) (bool, error) {
	_, ok, err := s.Get(ChildHeaderKey(chain, height), true)
	return ok, err
}

// GetQuorum reads the string-encoded quorum integer bc.dht.quorum.
func (s *Store) GetQuorum() (int, bool, error) {
	raw, ok, err := s.Get(KeyQuorum, true)
	if err != nil || !ok {
		return 0, ok, err
	}
	var n int
	if _, serr := fmt.Sscanf(string(raw), "%d", &n); serr != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// PutQuorum writes bc.dht.quorum as a decimal string.
func (s *Store) PutQuorum(n int) error {
	return s.Put(KeyQuorum, []byte(fmt.Sprintf("%d", n)))
}

// GetSyncLock reads the synclock record. Height==1 means unlocked per
// §6.
func (s *Store) GetSyncLock() (*types.Block, bool, error) { return s.GetBlock(KeySync, true) }

// PutSyncLock writes the synclock record.
func (s *Store) PutSyncLock(b *types.Block) error { return s.PutBlock(KeySync, b) }
