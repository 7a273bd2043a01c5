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
	"io/ioutil"
	"os"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/anchorchain/multiversed/metrics"
	"github.com/anchorchain/multiversed/store"
	"github.com/anchorchain/multiversed/types"
	"github.com/anchorchain/multiversed/validator"
)

func newTestMultiverse(t *testing.T) (*Multiverse, func()) {
	dir, err := ioutil.TempDir("", "multiverse-test")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	s, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	mv := New(s, validator.New(false), metrics.Noop())
	return mv, func() {
		s.Close()
		os.RemoveAll(dir)
	}
}

func testBlock(height uint64, hash, prev string, totalDistance int64, ts int64) *types.Block {
	b := types.NewBlock()
	b.Height = height
	b.Hash = hash
	b.PreviousHash = prev
	b.TotalDistance = types.NewBigInt(totalDistance)
	b.Distance = types.NewBigInt(1)
	b.Timestamp = ts
	b.AddHeaders("btc", types.ChildHeader{Blockchain: "btc", Height: height, Hash: "h" + hash, Timestamp: ts})
	return b
}

func withFixedNow(t *testing.T, unix int64) func() {
	old := nowFunc
	nowFunc = func() time.Time { return time.Unix(unix, 0) }
	return func() { nowFunc = old }
}

// S1: accept-next. A block that directly extends the tip by hash, height
// and weight is accepted and becomes the new highest.
func TestAddNextBlockAcceptsDirectExtension(t *testing.T) {
	mv, cleanup := newTestMultiverse(t)
	defer cleanup()
	restore := withFixedNow(t, 1000)
	defer restore()

	genesis := testBlock(1, "g", "", 1, 980)
	genesisAccepted := mv.AddNextBlock(genesis, false)

	next := testBlock(2, "n2", "g", 2, 990)
	nextAccepted := mv.AddNextBlock(next, false)

	Convey("a direct extension of the tip is accepted and becomes highest", t, func() {
		So(genesisAccepted, ShouldBeTrue)
		So(nextAccepted, ShouldBeTrue)
		So(mv.GetHighest(), ShouldNotBeNil)
		So(mv.GetHighest().Hash, ShouldEqual, "n2")
		So(mv.GetParentHighest(), ShouldNotBeNil)
		So(mv.GetParentHighest().Hash, ShouldEqual, "g")
	})
}

// S2: reject-stale. A block at or below the tip's height/weight is
// rejected outright.
func TestAddNextBlockRejectsStale(t *testing.T) {
	mv, cleanup := newTestMultiverse(t)
	defer cleanup()
	restore := withFixedNow(t, 1000)
	defer restore()

	genesis := testBlock(1, "g", "", 1, 980)
	mv.AddNextBlock(genesis, false)
	next := testBlock(2, "n2", "g", 2, 990)
	mv.AddNextBlock(next, false)

	stale := testBlock(2, "n2", "g", 2, 990)
	staleAccepted := mv.AddNextBlock(stale, false)

	weaker := testBlock(3, "n3weak", "n2", 1, 995)
	weakerAccepted := mv.AddNextBlock(weaker, false)

	Convey("a stale or lower-weight successor is rejected", t, func() {
		So(staleAccepted, ShouldBeFalse)
		So(weakerAccepted, ShouldBeFalse)
	})
}

// S3: hotswap. When a soft-fail read of the persisted parent disagrees
// with the tip's previous_hash — for example because an out-of-band
// protocol write updated it — and a new block claiming that parent
// out-weighs the tip at the same height, the tip is swapped in place.
func TestAddNextBlockHotswap(t *testing.T) {
	mv, cleanup := newTestMultiverse(t)
	defer cleanup()
	restore := withFixedNow(t, 1000)
	defer restore()

	parent := testBlock(1, "p", "", 1, 980)
	mv.AddNextBlock(parent, false)

	tip := testBlock(2, "t1", "p", 2, 990)
	mv.AddNextBlock(tip, false)

	// Simulate an out-of-band write that diverges from the tip's claimed
	// parent.
	fakeParent := testBlock(1, "p2", "", 3, 980)
	if err := mv.store.PutParent(fakeParent); err != nil {
		t.Fatalf("PutParent: %v", err)
	}

	rival := testBlock(2, "t2", "p2", 4, 995)
	rivalAccepted := mv.AddNextBlock(rival, false)

	Convey("a heavier same-height rival claiming a diverged parent hotswaps the tip", t, func() {
		So(rivalAccepted, ShouldBeTrue)
		So(mv.GetHighest(), ShouldNotBeNil)
		So(mv.GetHighest().Hash, ShouldEqual, "t2")
	})
}

// S4: too-far-ahead. A block more than TooFarAheadHeightDelta beyond the
// local tip is rejected by AddNextBlock.
func TestAddNextBlockRejectsTooFarAhead(t *testing.T) {
	mv, cleanup := newTestMultiverse(t)
	defer cleanup()
	restore := withFixedNow(t, 1000)
	defer restore()

	genesis := testBlock(1, "g", "", 1, 900)
	mv.AddNextBlock(genesis, false)

	farAhead := testBlock(10, "far", "g", 20, 950)
	accepted := mv.AddNextBlock(farAhead, false)

	Convey("a block too far beyond the tip is rejected outright", t, func() {
		So(accepted, ShouldBeFalse)
	})
}

func TestAddResyncRequestGrantsOnEmptyWindow(t *testing.T) {
	mv, cleanup := newTestMultiverse(t)
	defer cleanup()
	restore := withFixedNow(t, 1000)
	defer restore()

	candidate := testBlock(50, "c50", "c49", 100, 999)
	granted := mv.AddResyncRequest(candidate, false)

	Convey("a resync request against an empty window is granted", t, func() {
		So(granted, ShouldBeTrue)
	})
}

func TestAddResyncRequestRejectsLockedWithinFreshness(t *testing.T) {
	mv, cleanup := newTestMultiverse(t)
	defer cleanup()
	restore := withFixedNow(t, 1000)
	defer restore()

	genesis := testBlock(1, "g", "", 1, 980)
	mv.AddNextBlock(genesis, false)
	next := testBlock(2, "n2", "g", 2, 990)
	mv.AddNextBlock(next, false)

	// Advance the clock well past the tip's timestamp so the stale-tip
	// resync rule (tip older than 32s) can fire.
	nowFunc = func() time.Time { return time.Unix(1050, 0) }

	first := testBlock(60, "c60", "c59", 500, 1040)
	firstGranted := mv.AddResyncRequest(first, false)

	second := testBlock(61, "c61", "c60", 600, 1040)
	secondGranted := mv.AddResyncRequest(second, false)

	Convey("only the first resync within the freshness window is granted", t, func() {
		So(firstGranted, ShouldBeTrue)
		So(secondGranted, ShouldBeFalse)
	})
}

func TestHasBlockScansWindow(t *testing.T) {
	mv, cleanup := newTestMultiverse(t)
	defer cleanup()
	restore := withFixedNow(t, 1000)
	defer restore()

	genesis := testBlock(1, "g", "", 1, 900)
	mv.AddNextBlock(genesis, false)

	Convey("HasBlock finds a window member and rejects an unrelated block", t, func() {
		So(mv.HasBlock(genesis), ShouldBeTrue)
		So(mv.HasBlock(testBlock(99, "missing", "g", 1, 900)), ShouldBeFalse)
	})
}
