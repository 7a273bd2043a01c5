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

package engine

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/anchorchain/multiversed/config"
	"github.com/anchorchain/multiversed/engine/bus"
	"github.com/anchorchain/multiversed/p2p"
	"github.com/anchorchain/multiversed/types"
)

func newTestEngine(t *testing.T) (*Engine, func()) {
	dir, err := ioutil.TempDir("", "engine-test")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	cfg := &config.Config{DataDir: dir, MaxWorkers: 1, QuorumSize: 1}
	e, err := New(cfg, "/bin/true")
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("New: %v", err)
	}
	go e.Bus.Run()
	return e, func() {
		e.Bus.Stop()
		e.Store.Close()
		os.RemoveAll(dir)
	}
}

func testBlock(height uint64, hash, prev string) *types.Block {
	b := types.NewBlock()
	b.Hash = hash
	b.PreviousHash = prev
	b.Height = height
	b.Timestamp = time.Now().Unix()
	b.TotalDistance = types.NewBigInt(int64(height) * 10)
	b.Distance = types.NewBigInt(10)
	b.AddHeaders("eth", types.ChildHeader{Blockchain: "eth", Height: height})
	return b
}

func TestHandlePutBlockAcceptsGenesisIntoEmptyWindow(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()

	announced := make(chan types.EventPayload, 1)
	e.Bus.Subscribe(bus.AnnounceNewBlock, func(ev types.EventPayload) { announced <- ev })

	genesis := testBlock(1, "g", "")
	e.handlePutBlock(types.EventPayload{Data: genesis, ConnectionID: "c1"})

	var ev types.EventPayload
	select {
	case ev = <-announced:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for announcement")
	}

	Convey("a genesis block put into an empty window is accepted and announced", t, func() {
		So(e.Multiverse.GetHighest(), ShouldNotBeNil)
		So(e.Multiverse.GetHighest().Hash, ShouldEqual, "g")
		announcedBlock, ok := ev.Data.(*types.Block)
		So(ok, ShouldBeTrue)
		So(announcedBlock.Hash, ShouldEqual, "g")
	})
}

func TestHandlePutBlockTooFarAheadTriggersRangeRequest(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()

	genesis := testBlock(1, "g", "")
	e.handlePutBlock(types.EventPayload{Data: genesis})

	requested := make(chan types.EventPayload, 1)
	e.Bus.Subscribe(bus.GetBlockList, func(ev types.EventPayload) { requested <- ev })

	farAhead := testBlock(20, "far", "whatever")
	e.handlePutBlock(types.EventPayload{Data: farAhead, ConnectionID: "c1"})

	var ev types.EventPayload
	select {
	case ev = <-requested:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a range request after a too-far-ahead block")
	}

	Convey("a block too far ahead of the tip triggers a range request to its origin", t, func() {
		req, ok := ev.Data.(p2p.RangeRequest)
		So(ok, ShouldBeTrue)
		So(req.High, ShouldEqual, uint64(20))
		So(ev.ConnectionID, ShouldEqual, "c1")
	})
}

func TestHandlePutBlockListAppliesAscendingAfterSync(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()

	genesis := testBlock(1, "g", "")
	e.handlePutBlock(types.EventPayload{Data: genesis})

	e.BlockPool.BeginSync()
	e.handlePutBlockList(types.EventPayload{Data: []*types.Block{
		testBlock(3, "h3", "h2"),
		testBlock(2, "h2", "g"),
	}})

	Convey("a buffered block list is applied in ascending height order", t, func() {
		got := e.Multiverse.GetHighest()
		So(got, ShouldNotBeNil)
		So(got.Hash, ShouldEqual, "h3")
	})
}

func TestHandleQSendToUnknownConnectionIsANoop(t *testing.T) {
	e, cleanup := newTestEngine(t)
	defer cleanup()

	Convey("qsend to an unregistered connection logs and drops rather than panicking", t, func() {
		So(func() {
			e.handleQSend(types.EventPayload{Data: []byte("frame"), ConnectionID: "missing"})
		}, ShouldNotPanic)
	})
}
