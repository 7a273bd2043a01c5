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

// Package pool implements C7 of §2: a block pool that buffers
// candidate blocks arriving while a resync is in flight and releases them
// in ascending-height order once sync completes, instead of feeding them
// to the Multiverse out of order. Grounded on CovenantSQL's
// blockproducer/txpool.go — a map keyed by identity with an ordered
// per-key append — generalized from per-account transaction queues to a
// height-keyed block buffer with a single release-in-order drain.
package pool

import (
	"sort"
	"sync"

	"github.com/anchorchain/multiversed/types"
)

// Pool buffers blocks during an active resync. It holds at most one
// candidate per height; a later arrival at the same height replaces the
// earlier one, matching the Multiverse's own "newest claim wins" posture
// at a given height.
type Pool struct {
	mu      sync.Mutex
	syncing bool
	buffer  map[uint64]*types.Block
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{buffer: make(map[uint64]*types.Block)}
}

// BeginSync marks the pool as buffering; blocks added while buffering is
// active are held rather than released immediately.
func (p *Pool) BeginSync() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncing = true
}

// Buffering reports whether the pool is currently holding candidates.
func (p *Pool) Buffering() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.syncing
}

// Add buffers b whether or not a sync is active; callers do not check
// Buffering() first. Dropping a block silently would be worse than holding
// one that arrived outside a sync.
func (p *Pool) Add(b *types.Block) {
	if b == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer[b.Height] = b
}

// EndSync stops buffering and returns every buffered block sorted by
// ascending height — the order a caller should feed them to
// Multiverse.AddNextBlock so each extends the previous one. The pool is
// empty again once this returns.
func (p *Pool) EndSync() []*types.Block {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncing = false
	out := make([]*types.Block, 0, len(p.buffer))
	for _, b := range p.buffer {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height < out[j].Height })
	p.buffer = make(map[uint64]*types.Block)
	return out
}

// Len reports the number of buffered candidates.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}
