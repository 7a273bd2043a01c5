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

package overlay

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDialAcceptRoundTrip(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	serverErr := make(chan error, 1)
	serverMsg := make(chan []byte, 1)
	go func() {
		stream, err := ln.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer stream.Close()
		buf := make([]byte, 5)
		if _, err := stream.Read(buf); err != nil {
			serverErr <- err
			return
		}
		serverMsg <- buf
		serverErr <- nil
	}()

	client, err := Dial(ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var serveErr error
	select {
	case serveErr = <-serverErr:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for server side")
	}
	got := <-serverMsg

	Convey("a client write over a dialed stream reaches the accepted stream unchanged", t, func() {
		So(serveErr, ShouldBeNil)
		So(string(got), ShouldEqual, "hello")
	})
}

func TestDialToClosedListenerFails(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, dialErr := Dial(addr, 500*time.Millisecond)

	Convey("dialing a closed listener fails", t, func() {
		So(dialErr, ShouldNotBeNil)
	})
}
