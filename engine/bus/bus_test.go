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

package bus

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/anchorchain/multiversed/types"
)

func TestPublishDispatchesToSubscriber(t *testing.T) {
	b := New(4)
	go b.Run()
	defer b.Stop()

	got := make(chan types.EventPayload, 1)
	b.Subscribe(PutBlock, func(p types.EventPayload) { got <- p })

	b.Publish(PutBlock, types.EventPayload{RemoteHost: "10.0.0.1", ConnectionID: "c1"})

	var payload types.EventPayload
	select {
	case payload = <-got:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for handler")
	}

	Convey("the dispatched payload matches what was published", t, func() {
		So(payload.RemoteHost, ShouldEqual, "10.0.0.1")
		So(payload.ConnectionID, ShouldEqual, "c1")
	})
}

func TestPublishOnlyReachesItsOwnTopic(t *testing.T) {
	b := New(4)
	go b.Run()
	defer b.Stop()

	putBlockCalls := make(chan struct{}, 1)
	putListCalls := make(chan struct{}, 1)
	b.Subscribe(PutBlock, func(types.EventPayload) { putBlockCalls <- struct{}{} })
	b.Subscribe(PutBlockList, func(types.EventPayload) { putListCalls <- struct{}{} })

	b.Publish(PutBlockList, types.EventPayload{})

	var listFired, blockFired bool
	select {
	case <-putListCalls:
		listFired = true
	case <-time.After(time.Second):
	}
	select {
	case <-putBlockCalls:
		blockFired = true
	case <-time.After(50 * time.Millisecond):
	}

	Convey("a publish only reaches subscribers of its own topic", t, func() {
		So(listFired, ShouldBeTrue)
		So(blockFired, ShouldBeFalse)
	})
}

func TestMultipleSubscribersAllRun(t *testing.T) {
	b := New(4)
	go b.Run()
	defer b.Stop()

	n := 3
	done := make(chan int, n)
	for i := 0; i < n; i++ {
		id := i
		b.Subscribe(AnnounceNewBlock, func(types.EventPayload) { done <- id })
	}

	b.Publish(AnnounceNewBlock, types.EventPayload{})

	seen := map[int]bool{}
	for i := 0; i < n; i++ {
		select {
		case id := <-done:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for subscriber %d", i)
		}
	}

	Convey("every subscriber on a topic runs for one publish", t, func() {
		So(seen, ShouldHaveLength, n)
	})
}

func TestStringNamesMatchWireTopics(t *testing.T) {
	Convey("Topic.String returns the wire name for each known topic", t, func() {
		cases := map[Topic]string{
			PutBlock:         "putBlock",
			PutBlockList:     "putBlockList",
			PutMultiverse:    "putMultiverse",
			AnnounceNewBlock: "announceNewBlock",
			QSend:            "qsend",
			GetBlockList:     "getBlockList",
			GetMultiverse:    "getMultiverse",
		}
		for topic, want := range cases {
			So(topic.String(), ShouldEqual, want)
		}
	})
}
