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

// Package multiverse implements C4 of §2 and §4.1: the in-memory
// best-chain window and the accept/reject/resync decisions that keep it in
// sync with the rest of the overlay. It is grounded on CovenantSQL's
// blockproducer/chain.go and blockproducer/branch.go (an in-memory
// block-index window backed by persistent storage, with an explicit
// acceptance state machine) generalized from the SQL chain's irreversible
// block-producer consensus to the weighted-distance, resync-capable
// acceptance algorithm §4.1 describes.
package multiverse

import (
	"sync"
	"time"

	"github.com/anchorchain/multiversed/config"
	"github.com/anchorchain/multiversed/log"
	"github.com/anchorchain/multiversed/metrics"
	"github.com/anchorchain/multiversed/store"
	"github.com/anchorchain/multiversed/types"
	"github.com/anchorchain/multiversed/validator"
)

// nowFunc is overridden in tests to make timestamp-gated rules
// deterministic.
var nowFunc = time.Now

// Multiverse is the best-chain window plus its acceptance logic.
type Multiverse struct {
	mu        sync.Mutex
	window    []*types.Block
	store     *store.Store
	validator *validator.Validator
	metrics   *metrics.Metrics
}

// New returns an empty Multiverse backed by s.
func New(s *store.Store, v *validator.Validator, m *metrics.Metrics) *Multiverse {
	if m == nil {
		m = metrics.Noop()
	}
	return &Multiverse{store: s, validator: v, metrics: m}
}

// GetHighest returns the window's first block, or nil.
func (mv *Multiverse) GetHighest() *types.Block {
	mv.mu.Lock()
	defer mv.mu.Unlock()
	if len(mv.window) == 0 {
		return nil
	}
	return mv.window[0]
}

// GetParentHighest returns the window's block at index 1, or nil.
func (mv *Multiverse) GetParentHighest() *types.Block {
	mv.mu.Lock()
	defer mv.mu.Unlock()
	if len(mv.window) < 2 {
		return nil
	}
	return mv.window[1]
}

// GetLowest returns the window's last block, or nil.
func (mv *Multiverse) GetLowest() *types.Block {
	mv.mu.Lock()
	defer mv.mu.Unlock()
	if len(mv.window) == 0 {
		return nil
	}
	return mv.window[len(mv.window)-1]
}

// HasBlock does a linear scan by hash (§4.1: "linear scan by
// hash" — the window is at most W=7 long, so this is deliberately not
// indexed).
func (mv *Multiverse) HasBlock(b *types.Block) bool {
	if b == nil {
		return false
	}
	mv.mu.Lock()
	defer mv.mu.Unlock()
	for _, w := range mv.window {
		if w.Hash == b.Hash {
			return true
		}
	}
	return false
}

// pushFrontLocked must be called with mv.mu held.
func (mv *Multiverse) pushFrontLocked(b *types.Block) {
	mv.window = append([]*types.Block{b}, mv.window...)
	if len(mv.window) > config.WindowSize {
		mv.window = mv.window[:config.WindowSize]
	}
}

// commitExtend persists b as the new tip, moving the previous tip to the
// parent slot — the durability rule of §3: "durable once
// put('bc.block.latest') succeeds". The tip write is fatal per §7: a
// caller that reports b as accepted while bc.block.latest never actually
// hit disk would permanently diverge memory from storage, so a failure
// here is returned rather than logged and swallowed.
func (mv *Multiverse) commitExtend(oldTip, b *types.Block) error {
	if oldTip != nil {
		if err := mv.store.PutParent(oldTip); err != nil {
			log.WithError(err).Warn("persist parent failed")
		}
	}
	if err := mv.store.PutLatest(b); err != nil {
		return err
	}
	if err := mv.store.PutByHeight(b.Height, b); err != nil {
		log.WithError(err).Warn("persist block by height failed")
	}
	return nil
}

// commitReplace persists b as the new tip without touching the parent slot
// — used by hotswap and same-height fork resolution, where the parent
// relationship is unchanged. See commitExtend on why the tip write is
// fatal rather than logged.
func (mv *Multiverse) commitReplace(b *types.Block) error {
	if err := mv.store.PutLatest(b); err != nil {
		return err
	}
	if err := mv.store.PutByHeight(b.Height, b); err != nil {
		log.WithError(err).Warn("persist block by height failed")
	}
	return nil
}

// mustCommitExtend calls commitExtend and escalates a tip-write failure to
// the process-fatal exit path rather than reporting acceptance on a block
// that never made it to disk.
func (mv *Multiverse) mustCommitExtend(oldTip, b *types.Block) {
	if err := mv.commitExtend(oldTip, b); err != nil {
		log.WithError(err).Fatal("persist latest tip failed")
	}
}

// mustCommitReplace is the commitReplace counterpart of mustCommitExtend.
func (mv *Multiverse) mustCommitReplace(b *types.Block) {
	if err := mv.commitReplace(b); err != nil {
		log.WithError(err).Fatal("persist latest tip failed")
	}
}

func (mv *Multiverse) accept() {
	mv.metrics.BlocksAccepted.Inc()
}

func (mv *Multiverse) reject() {
	mv.metrics.BlocksRejected.Inc()
}
