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

package multiverse

import (
	"github.com/anchorchain/multiversed/config"
	"github.com/anchorchain/multiversed/types"
	"github.com/anchorchain/multiversed/validator"
)

// genesisSyncLock is the unlocked marker: Height==1 per §6.
func genesisSyncLock(now int64) *types.Block {
	b := types.NewBlock()
	b.Height = 1
	b.Timestamp = now
	return b
}

// AddResyncRequest implements the ordered, first-match-wins resync-decision
// rules of §4.1. strict disables the window-bootstrap shortcut (the
// rule that grants a resync purely because the local window hasn't grown
// past one block yet), requiring one of the distance/persistence-based
// rules to fire instead — the signature names a strict parameter without
// specifying its effect; see DESIGN.md for this choice.
func (mv *Multiverse) AddResyncRequest(b *types.Block, strict bool) bool {
	if b == nil {
		return false
	}
	now := nowFunc().Unix()

	mv.mu.Lock()
	lock, lockOK, _ := mv.store.GetSyncLock()
	if lockOK && lock != nil && lock.Height != 1 {
		if lock.Timestamp+config.SyncLockFreshness >= now {
			mv.mu.Unlock()
			return false
		}
		// Stale lock: reset to the unlocked marker before evaluating.
		_ = mv.store.PutSyncLock(genesisSyncLock(now))
	}

	var h *types.Block
	if len(mv.window) > 0 {
		h = mv.window[0]
	}
	windowLen := len(mv.window)
	mv.mu.Unlock()

	grant := func() bool {
		mv.mu.Lock()
		_ = mv.store.PutSyncLock(b)
		mv.mu.Unlock()
		mv.metrics.ResyncsTriggered.Inc()
		return true
	}

	// isValidBlockCached(H) has no separate cache layer in this source;
	// validator.IsValidBlock is the same pure check add_next_block itself
	// relies on, so it stands in directly.
	if h != nil && !validator.IsValidBlock(h) && validator.IsValidBlock(b) {
		return grant()
	}

	if h == nil {
		return grant()
	}
	if h.Height == 1 && b.Height > 1 {
		return grant()
	}
	if b.Hash == h.Hash {
		return false
	}
	if b.Height > 100000 {
		skew := b.Timestamp - now
		if skew < 0 {
			skew = -skew
		}
		if skew > 15 {
			return false
		}
	}
	if h.Timestamp+32 < now && b.TotalDistance.Cmp(h.TotalDistance) > 0 {
		return grant()
	}
	if !strict && windowLen < 2 &&
		b.TotalDistance.Cmp(h.TotalDistance) > 0 &&
		validator.ChildrenHeightSum(b) > validator.ChildrenHeightSum(h) &&
		mv.ValidateRoveredBlocks(b) {
		return grant()
	}
	if b.TotalDistance.Cmp(h.TotalDistance) < 0 {
		return false
	}
	if validator.ChildrenHeightSum(b) <= validator.ChildrenHeightSum(h) {
		if mv.ValidateRoveredBlocks(b) && !mv.ValidateRoveredBlocks(h) {
			return grant()
		}
		return false
	}
	return false
}
