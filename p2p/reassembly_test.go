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
	"bytes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/anchorchain/multiversed/config"
)

func TestReassemblerPassesThroughNonFragmentChunks(t *testing.T) {
	Convey("a chunk shorter than the fragment size terminates the message immediately", t, func() {
		r := &Reassembler{}
		msg, ok := r.Feed([]byte("0008R01"))
		So(ok, ShouldBeTrue)
		So(string(msg), ShouldEqual, "0008R01")
	})
}

func TestReassemblerConcatenatesFragmentChunks(t *testing.T) {
	Convey("Given two full-size fragments followed by a short tail", t, func() {
		r := &Reassembler{}
		frag := bytes.Repeat([]byte{0xAB}, config.FragmentChunkSize)
		tail := []byte("tail")

		_, firstOK := r.Feed(frag)
		_, secondOK := r.Feed(frag)
		msg, tailOK := r.Feed(tail)

		Convey("neither full-size fragment terminates the message, only the tail does", func() {
			So(firstOK, ShouldBeFalse)
			So(secondOK, ShouldBeFalse)
			So(tailOK, ShouldBeTrue)

			want := append(append([]byte{}, frag...), append(frag, tail...)...)
			So(msg, ShouldResemble, want)
		})
	})
}

func TestReassemblerStartsFreshAfterTermination(t *testing.T) {
	Convey("Given a reassembler that has already terminated one message", t, func() {
		r := &Reassembler{}
		_, firstOK := r.Feed([]byte("first"))

		Convey("the next message starts clean", func() {
			So(firstOK, ShouldBeTrue)
			msg, ok := r.Feed([]byte("second"))
			So(ok, ShouldBeTrue)
			So(string(msg), ShouldEqual, "second")
		})
	})
}
