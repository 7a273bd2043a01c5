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

package p2p

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/anchorchain/multiversed/codec"
	"github.com/anchorchain/multiversed/config"
	"github.com/anchorchain/multiversed/engine/bus"
	"github.com/anchorchain/multiversed/peer"
	"github.com/anchorchain/multiversed/store"
	"github.com/anchorchain/multiversed/types"
)

func newTestProtocol(t *testing.T) (*Protocol, *store.Store, func()) {
	dir, err := ioutil.TempDir("", "p2p-test")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	s, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	cfg := &config.Config{QuorumSize: 1}
	mgr := peer.NewManager(cfg, s, peer.NewBook(nil), nil)
	b := bus.New(8)
	go b.Run()
	p := New(s, b, mgr, nil)
	return p, s, func() {
		b.Stop()
		s.Close()
		os.RemoveAll(dir)
	}
}

func testBlock(height uint64, hash, prev string) *types.Block {
	b := types.NewBlock()
	b.Hash = hash
	b.PreviousHash = prev
	b.Height = height
	b.Timestamp = 1000
	b.TotalDistance = types.NewBigInt(int64(height) * 10)
	b.Distance = types.NewBigInt(10)
	b.AddHeaders("eth", types.ChildHeader{Blockchain: "eth", Height: height})
	return b
}

func TestReadHighestRespondsWithPersistedLatest(t *testing.T) {
	p, s, cleanup := newTestProtocol(t)
	defer cleanup()

	latest := testBlock(5, "h5", "h4")
	if err := s.PutLatest(latest); err != nil {
		t.Fatalf("PutLatest: %v", err)
	}

	connID := "c1"
	p.conns[connID] = &connState{peer: &types.Peer{ID: "peer-1"}}

	var sent []byte
	cs := p.conns[connID]
	cs.send = func(b []byte) error { sent = b; return nil }

	handleErr := p.handleReadHighest(cs)
	tag, fields, decodeErr := codec.DecodeFrame(sent)
	got, blockErr := codec.DecodeBlock(fields[0])

	Convey("readHighest replies with the persisted latest block", t, func() {
		So(handleErr, ShouldBeNil)
		So(decodeErr, ShouldBeNil)
		So(tag, ShouldEqual, codec.TagWriteHighest)
		So(blockErr, ShouldBeNil)
		So(got.Hash, ShouldEqual, "h5")
	})
}

func TestReadRangeServesPersistedSubsetOnly(t *testing.T) {
	p, s, cleanup := newTestProtocol(t)
	defer cleanup()

	if err := s.PutByHeight(5, testBlock(5, "h5", "h4")); err != nil {
		t.Fatalf("PutByHeight 5: %v", err)
	}
	if err := s.PutByHeight(7, testBlock(7, "h7", "h6")); err != nil {
		t.Fatalf("PutByHeight 7: %v", err)
	}

	connID := "c1"
	p.conns[connID] = &connState{peer: &types.Peer{ID: "peer-1"}}
	cs := p.conns[connID]
	var sent []byte
	cs.send = func(b []byte) error { sent = b; return nil }

	handleErr := p.handleReadRange(cs, [][]byte{[]byte("5"), []byte("8")}, codec.TagWriteBlockList)
	tag, fields, decodeErr := codec.DecodeFrame(sent)
	var payload []byte
	if len(fields) > 0 {
		payload = fields[0]
	}
	blocks, listErr := codec.DecodeBlockList(payload)

	Convey("readRange serves only blocks actually persisted inside the requested range", t, func() {
		So(handleErr, ShouldBeNil)
		So(decodeErr, ShouldBeNil)
		So(tag, ShouldEqual, codec.TagWriteBlockList)
		So(listErr, ShouldBeNil)
		So(blocks, ShouldHaveLength, 2)
		for _, b := range blocks {
			So(b.Height, ShouldBeGreaterThanOrEqualTo, uint64(5))
			So(b.Height, ShouldBeLessThanOrEqualTo, uint64(8))
		}
	})
}

func TestReadRangeClampsLowBelowTwo(t *testing.T) {
	p, s, cleanup := newTestProtocol(t)
	defer cleanup()

	if err := s.PutByHeight(2, testBlock(2, "h2", "h1")); err != nil {
		t.Fatalf("PutByHeight: %v", err)
	}

	connID := "c1"
	p.conns[connID] = &connState{peer: &types.Peer{ID: "peer-1"}}
	cs := p.conns[connID]
	var sent []byte
	cs.send = func(b []byte) error { sent = b; return nil }

	// low=0 must be clamped to 2, not fetch a nonexistent height-0/1 key.
	handleErr := p.handleReadRange(cs, [][]byte{[]byte("0"), []byte("2")}, codec.TagWriteBlockList)
	_, fields, decodeErr := codec.DecodeFrame(sent)
	blocks, listErr := codec.DecodeBlockList(fields[0])

	Convey("a low bound below 2 is clamped rather than probing a nonexistent key", t, func() {
		So(handleErr, ShouldBeNil)
		So(decodeErr, ShouldBeNil)
		So(listErr, ShouldBeNil)
		So(blocks, ShouldHaveLength, 1)
		So(blocks[0].Height, ShouldEqual, uint64(2))
	})
}

func TestWriteBlockListPublishesSortedDescending(t *testing.T) {
	p, _, cleanup := newTestProtocol(t)
	defer cleanup()

	received := make(chan types.EventPayload, 1)
	p.bus.Subscribe(bus.PutBlockList, func(ev types.EventPayload) { received <- ev })

	payload, err := codec.EncodeBlockList([]*types.Block{
		testBlock(3, "h3", "h2"),
		testBlock(5, "h5", "h4"),
		testBlock(4, "h4", "h3"),
	})
	if err != nil {
		t.Fatalf("EncodeBlockList: %v", err)
	}

	handleErr := p.handleWriteList([][]byte{payload}, types.EventPayload{ConnectionID: "c1"}, bus.PutBlockList)

	var ev types.EventPayload
	select {
	case ev = <-received:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for putBlockList event")
	}
	blocks, ok := ev.Data.([]*types.Block)

	Convey("a written block list is published sorted height-descending", t, func() {
		So(handleErr, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(blocks, ShouldHaveLength, 3)
		So(blocks[0].Height, ShouldEqual, uint64(5))
		So(blocks[1].Height, ShouldEqual, uint64(4))
		So(blocks[2].Height, ShouldEqual, uint64(3))
	})
}

func TestWriteHighestPushesLocalTipWhenFarAhead(t *testing.T) {
	p, s, cleanup := newTestProtocol(t)
	defer cleanup()

	local := testBlock(10, "h10", "h9")
	if err := s.PutLatest(local); err != nil {
		t.Fatalf("PutLatest: %v", err)
	}

	received := make(chan types.EventPayload, 1)
	p.bus.Subscribe(bus.PutBlock, func(ev types.EventPayload) { received <- ev })

	connID := "c1"
	p.conns[connID] = &connState{peer: &types.Peer{ID: "peer-1"}}
	cs := p.conns[connID]
	var sent []byte
	cs.send = func(b []byte) error { sent = b; return nil }

	peerTip := testBlock(4, "p4", "p3")
	enc, err := codec.EncodeBlock(peerTip)
	if err != nil {
		t.Fatalf("EncodeBlock: %v", err)
	}

	handleErr := p.handleWriteHighest(cs, [][]byte{enc}, types.EventPayload{ConnectionID: connID})

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for putBlock event")
	}

	tag, fields, decodeErr := codec.DecodeFrame(sent)
	var got *types.Block
	var blockErr error
	if decodeErr == nil && len(fields) > 0 {
		got, blockErr = codec.DecodeBlock(fields[0])
	}

	Convey("a peer tip far behind the local one triggers a push of the local tip", t, func() {
		So(handleErr, ShouldBeNil)
		So(sent, ShouldNotBeNil)
		So(decodeErr, ShouldBeNil)
		So(tag, ShouldEqual, codec.TagWriteHighest)
		So(blockErr, ShouldBeNil)
		So(got.Hash, ShouldEqual, "h10")
	})
}
