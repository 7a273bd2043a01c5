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

package peer

import (
	"io/ioutil"
	"os"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/anchorchain/multiversed/config"
	"github.com/anchorchain/multiversed/store"
	"github.com/anchorchain/multiversed/types"
)

func newTestStore(t *testing.T) (*store.Store, func()) {
	dir, err := ioutil.TempDir("", "peer-test")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	s, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return s, func() {
		s.Close()
		os.RemoveAll(dir)
	}
}

type bannedIDs map[string]struct{}

func (b bannedIDs) IsBanned(id string) bool {
	_, ok := b[id]
	return ok
}

func TestBookDiscoverConnectDisconnect(t *testing.T) {
	Convey("Given a fresh book and a discovered peer", t, func() {
		b := NewBook(nil)
		p := &types.Peer{ID: "peer-1", Multiaddr: "/ip4/127.0.0.1/tcp/4000"}
		b.Discover(p)

		Convey("the peer surfaces from NextDiscovered", func() {
			got := b.NextDiscovered()
			So(got, ShouldNotBeNil)
			So(got.ID, ShouldEqual, "peer-1")
		})

		Convey("connecting then disconnecting the peer updates membership", func() {
			b.Connect(p)
			So(b.IsConnected("peer-1"), ShouldBeTrue)
			So(b.ConnectedCount(), ShouldEqual, 1)

			b.Disconnect("peer-1")
			So(b.IsConnected("peer-1"), ShouldBeFalse)
		})
	})
}

func TestBookBanDropsFromAllSets(t *testing.T) {
	Convey("Given a connected peer that gets banned", t, func() {
		b := NewBook(nil)
		p := &types.Peer{ID: "bad-peer"}
		b.Discover(p)
		b.Connect(p)

		b.Ban("bad-peer")

		Convey("the peer is disconnected and gone from discovery", func() {
			So(b.IsConnected("bad-peer"), ShouldBeFalse)
			So(b.NextDiscovered(), ShouldBeNil)
		})
	})

	Convey("Given a ban policy consulted at discover time", t, func() {
		b2 := NewBook(bannedIDs{"bad-peer": {}})
		b2.Discover(&types.Peer{ID: "bad-peer"})

		Convey("a banned id is refused re-admission", func() {
			So(b2.NextDiscovered(), ShouldBeNil)
		})
	})
}

func TestManagerFirstPeerSetsQuorum(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	cfg := &config.Config{QuorumSize: 3}
	book := NewBook(nil)
	mgr := NewManager(cfg, s, book, nil)

	mgr.OnConnect(&types.Peer{ID: "p1"})
	quorum, ok, err := s.GetQuorum()

	Convey("the first connected peer sets the persisted quorum to 1", t, func() {
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(quorum, ShouldEqual, 1)
	})
}

func TestManagerStopsDiscoveryAtQuorumAndRestartsOnLoss(t *testing.T) {
	Convey("Given a manager with quorum size 2", t, func() {
		s, cleanup := newTestStore(t)
		defer cleanup()

		cfg := &config.Config{QuorumSize: 2}
		book := NewBook(nil)
		mgr := NewManager(cfg, s, book, nil)

		mgr.OnConnect(&types.Peer{ID: "p1"})

		Convey("discovery continues below quorum", func() {
			So(mgr.Discovering(), ShouldBeTrue)
		})

		mgr.OnConnect(&types.Peer{ID: "p2"})

		Convey("discovery stops once quorum is reached, and restarts on loss", func() {
			So(mgr.Discovering(), ShouldBeFalse)

			mgr.OnDisconnect("p1")
			So(mgr.Discovering(), ShouldBeTrue)
		})
	})
}

func TestManagerLowHealthNetForcesQuorumUnconditionally(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	cfg := &config.Config{QuorumSize: 1, LowHealthNet: true}
	book := NewBook(nil)
	mgr := NewManager(cfg, s, book, nil)

	if err := s.PutQuorum(3); err != nil {
		t.Fatalf("PutQuorum: %v", err)
	}

	mgr.OnConnect(&types.Peer{ID: "p1"})
	quorum, ok, err := s.GetQuorum()

	Convey("low-health-net forces the quorum to 1 regardless of a prior persisted value", t, func() {
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(quorum, ShouldEqual, 1)
	})
}
