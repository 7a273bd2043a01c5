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

// Package validator implements the pure validation functions of C3 in
// §4.1's component table: IsValidBlock, ValidateSequenceDifficulty,
// ValidateBlockSequence, ValidateRoveredSequences, GetNewestHeader and
// ChildrenHeightSum. None of these ever panic; all failures are reported
// through a bool or an error, per §4.1's failure semantics ("never
// panic; return false/Err and the block is silently rejected"). Grounded on
// CovenantSQL's validator-shaped pure functions in blockproducer/block.go
// (sanity checks with no side effects, called from the chain's acceptance
// path) generalized to composite blocks and child headers.
package validator

import (
	"sort"

	"github.com/anchorchain/multiversed/errkind"
	"github.com/anchorchain/multiversed/store"
	"github.com/anchorchain/multiversed/types"
)

// Validator holds the configurable strictness knob left underspecified
// for ValidateBlockSequence by §9. It holds no store reader;
// ValidateRoveredBlocks takes its store as an argument.
type Validator struct {
	strict bool
}

// New returns a Validator recording strict, which callers take from
// config.ValidateSequenceStrict (default false: the equivalent call is
// commented "always fails here" and §9 leaves its strictness ambiguous).
// The Multiverse's step-14 check does not read it; that check obeys the
// strict argument passed to AddNextBlock, which the engine takes from the
// same config field.
func New(strict bool) *Validator { return &Validator{strict: strict} }

// Strict reports the configured strictness.
func (v *Validator) Strict() bool { return v.strict }

// IsValidBlock performs the basic well-formedness checks every composite
// block must satisfy before it is eligible for any acceptance rule:
// positive height, non-empty hash, a previous hash unless this is genesis,
// and a headers count that matches the actual header map.
func IsValidBlock(b *types.Block) bool {
	if b == nil {
		return false
	}
	if b.Height == 0 {
		return false
	}
	if b.Hash == "" {
		return false
	}
	if b.Height > 1 && b.PreviousHash == "" {
		return false
	}
	if b.TotalDistance.Sign() < 0 || b.Distance.Sign() < 0 || b.Difficulty.Sign() < 0 {
		return false
	}
	actual := 0
	for _, hs := range b.BlockchainHeaders {
		actual += len(hs)
	}
	return actual == b.BlockchainHeadersCount
}

// ValidateSequenceDifficulty checks that next legitimately extends prev's
// difficulty/total_distance bookkeeping: total_distance_i =
// total_distance_{i-1} + distance_i (§3), and next's distance is
// non-negative.
func ValidateSequenceDifficulty(prev, next *types.Block) bool {
	if prev == nil || next == nil {
		return false
	}
	if next.Distance.Sign() < 0 {
		return false
	}
	want := prev.TotalDistance.Add(next.Distance)
	return want.Cmp(next.TotalDistance) == 0
}

// ValidateBlockSequence checks that blocks, given highest-first (index 0 is
// the newest, matching the Multiverse window's order), link by hash:
// blocks[i].PreviousHash == blocks[i+1].Hash for every adjacent pair, and
// heights strictly decrease. Used both by the Multiverse's inline range
// check and, per the configurable strictness knob, at step 14 of
// add_next_block.
func ValidateBlockSequence(blocks []*types.Block) error {
	for i := 0; i+1 < len(blocks); i++ {
		cur, next := blocks[i], blocks[i+1]
		if cur == nil || next == nil {
			return errkind.ValidationError("validate block sequence", errNilBlock)
		}
		if cur.PreviousHash != next.Hash {
			return errkind.ValidationError("validate block sequence", errBrokenLink)
		}
		if cur.Height <= next.Height {
			return errkind.ValidationError("validate block sequence", errNonDecreasingHeight)
		}
	}
	return nil
}

// ValidateRoveredSequences checks that, for every child chain named in b,
// every header has a hash and no two headers share a height (duplicates
// indicate corruption or a malicious peer). Headers are sorted by height
// before the check, so the order they arrive in is not checked.
func ValidateRoveredSequences(b *types.Block) bool {
	if b == nil {
		return false
	}
	for _, headers := range b.BlockchainHeaders {
		if len(headers) == 0 {
			continue
		}
		sorted := make([]types.ChildHeader, len(headers))
		copy(sorted, headers)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Height < sorted[j].Height })
		for i := range sorted {
			if sorted[i].Hash == "" {
				return false
			}
			if i > 0 && sorted[i].Height <= sorted[i-1].Height {
				return false
			}
		}
	}
	return true
}

// ValidateRoveredBlocks checks that every child header named by b exists in
// the KV under {chain}.block.{height} (§4.1). This is the one
// validator function that touches storage, hence it takes a *store.Store
// rather than living purely in-memory; it still never panics.
func ValidateRoveredBlocks(s *store.Store, b *types.Block) bool {
	if b == nil {
		return false
	}
	for chain, headers := range b.BlockchainHeaders {
		for _, h := range headers {
			ok, err := s.HasChildHeader(chain, h.Height)
			if err != nil || !ok {
				return false
			}
		}
	}
	return true
}

// GetNewestHeader returns the child header with the latest timestamp
// across every chain referenced by b, or nil if b has none.
func GetNewestHeader(b *types.Block) *types.ChildHeader {
	if b == nil {
		return nil
	}
	var newest *types.ChildHeader
	for _, headers := range b.BlockchainHeaders {
		for i := range headers {
			h := headers[i]
			if newest == nil || h.Timestamp > newest.Timestamp {
				newest = &h
			}
		}
	}
	return newest
}

// ChildrenHeightSum sums, over every child chain referenced by b, the
// maximum child header height on that chain (glossary: "sum over child
// chains of the max child header height referenced by the block").
func ChildrenHeightSum(b *types.Block) uint64 {
	if b == nil {
		return 0
	}
	var sum uint64
	for _, headers := range b.BlockchainHeaders {
		var max uint64
		for _, h := range headers {
			if h.Height > max {
				max = h.Height
			}
		}
		sum += max
	}
	return sum
}
