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

// AddBestBlock implements the direct fork-resolution path of
// §4.1: replace the current tip with b only when b legitimately extends
// the *parent* of the current tip with strictly greater total distance.
// It is called directly by callers resolving a same-height fork and is
// also the delegate target of add_next_block's steps 13 and 14.
func (mv *Multiverse) AddBestBlock(b *types.Block) bool {
	if b == nil {
		mv.reject()
		return false
	}
	mv.mu.Lock()
	defer mv.mu.Unlock()
	return mv.addBestBlockLocked(b)
}

func (mv *Multiverse) addBestBlockLocked(b *types.Block) bool {
	if len(mv.window) == 0 {
		mv.window = []*types.Block{b}
		mv.mustCommitExtend(nil, b)
		mv.accept()
		return true
	}
	h := mv.window[0]
	var parent *types.Block
	if len(mv.window) >= 2 {
		parent = mv.window[1]
	}
	if parent == nil || parent.Hash != b.PreviousHash {
		mv.reject()
		return false
	}
	if b.TotalDistance.Cmp(h.TotalDistance) <= 0 {
		mv.reject()
		return false
	}
	mv.window[0] = b
	mv.mustCommitReplace(b)
	mv.accept()
	return true
}

// AddNextBlock implements the twelve-step gate of §4.1. It is
// serialized: at most one invocation runs at a time, per the concurrency
// model in §5.
func (mv *Multiverse) AddNextBlock(b *types.Block, strict bool) bool {
	if b == nil {
		mv.reject()
		return false
	}
	mv.mu.Lock()
	defer mv.mu.Unlock()

	// Step 2: empty window accepts unconditionally.
	if len(mv.window) == 0 {
		mv.window = []*types.Block{b}
		mv.mustCommitExtend(nil, b)
		mv.accept()
		return true
	}

	h := mv.window[0]

	// Step 3: no persisted tip (shouldn't normally happen once the window
	// is non-empty, but the persistence read is soft-fail per
	// §4.1 so it is checked independently of the in-memory window).
	persistedH, ok, _ := mv.store.GetLatest()
	if !ok || persistedH == nil {
		mv.pushFrontLocked(b)
		mv.mustCommitExtend(h, b)
		mv.accept()
		return true
	}

	// Step 4: hotswap. A soft-fail read of the persisted parent block; if
	// it disagrees with h's previous_hash but legitimately out-weighs h,
	// replace h in place without shifting the window.
	if p, pok, _ := mv.store.GetParent(); pok && p != nil {
		if p.Hash != h.PreviousHash &&
			p.Height == b.Height-1 &&
			h.Height == b.Height &&
			validator.ValidateSequenceDifficulty(p, b) &&
			b.TotalDistance.Cmp(h.TotalDistance) > 0 &&
			b.Timestamp+config.HotswapTimestampToleranceSeconds >= h.Timestamp {
			mv.window[0] = b
			mv.mustCommitReplace(b)
			mv.accept()
			return true
		}
	}

	// Step 5: a block at height 1 can never be "next" (genesis already
	// occupies that slot once the window is non-empty).
	if b.Height == 1 {
		mv.reject()
		return false
	}

	// Step 6: must be exactly one higher than the current tip.
	if b.Height-1 != h.Height {
		mv.reject()
		return false
	}

	bSum := validator.ChildrenHeightSum(b)
	hSum := validator.ChildrenHeightSum(h)

	// Step 7: b must not have harvested less child-chain progress than h.
	if bSum < hSum {
		mv.reject()
		return false
	}

	// Step 8: on a tie, prefer the block whose newest child header is
	// itself newer.
	if bSum == hSum {
		bNewest := validator.GetNewestHeader(b)
		hNewest := validator.GetNewestHeader(h)
		if bNewest != nil && hNewest != nil && bNewest.Timestamp < hNewest.Timestamp {
			mv.reject()
			return false
		}
	}

	// Step 9: refuse to jump too far ahead of the local tip.
	if b.Height > h.Height+config.TooFarAheadHeightDelta {
		mv.reject()
		return false
	}

	// Step 10: assorted hard rejects — duplicate, weaker, or shorter.
	if b.Hash == h.Hash || b.TotalDistance.Cmp(h.TotalDistance) < 0 || b.Height < h.Height {
		mv.reject()
		return false
	}

	// Step 11: a block with no rovered headers at all carries no chain
	// progress and is rejected outright.
	if b.BlockchainHeadersCount == 0 {
		mv.reject()
		return false
	}

	// Step 12: timestamp gates — b must not precede h by more than the
	// window's clock-skew allowance, and must not lag more than
	// BlockTimestampFutureSkew seconds behind now.
	if b.Timestamp+3 <= h.Timestamp {
		mv.reject()
		return false
	}
	if b.Timestamp+config.BlockTimestampFutureSkew < nowFunc().Unix() {
		mv.reject()
		return false
	}

	// Step 13: if b does not directly extend h by hash, this is a fork at
	// the next height — delegate to add_best_block.
	if b.PreviousHash != h.Hash {
		return mv.addBestBlockLocked(b)
	}

	// Step 14: an inline sequence check on [b, h]; whether failure here
	// actually rejects is the configurable strictness knob of §9
	// (the equivalent call here is commented "always fails here").
	if b.Height > 2 && strict {
		if err := validator.ValidateBlockSequence([]*types.Block{b, h}); err != nil {
			return mv.addBestBlockLocked(b)
		}
	}

	// Step 15: accept, extending the window and persisting.
	mv.pushFrontLocked(b)
	mv.mustCommitExtend(h, b)
	mv.accept()
	return true
}

// ValidateBlockSequenceInline checks that a downloaded range of blocks
// (highest-first) links by hash internally and that its tail links back
// to a block this node has already persisted at the boundary height —
// the "inline" variant of validator.ValidateBlockSequence used once a
// range has actually been fetched from a peer (§4.2).
func (mv *Multiverse) ValidateBlockSequenceInline(blocks []*types.Block) error {
	if err := validator.ValidateBlockSequence(blocks); err != nil {
		return err
	}
	if len(blocks) == 0 {
		return nil
	}
	tail := blocks[len(blocks)-1]
	if tail.Height <= 1 {
		return nil
	}
	boundary, ok, err := mv.store.GetByHeight(tail.Height - 1)
	if err != nil {
		return err
	}
	if !ok || boundary == nil {
		return nil
	}
	if boundary.Hash != tail.PreviousHash {
		return validator.ValidateBlockSequence([]*types.Block{tail, boundary})
	}
	return nil
}

// ValidateRoveredBlocks delegates to the validator package, supplying
// this Multiverse's store.
func (mv *Multiverse) ValidateRoveredBlocks(b *types.Block) bool {
	return validator.ValidateRoveredBlocks(mv.store, b)
}
