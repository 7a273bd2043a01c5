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

package pool

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/anchorchain/multiversed/types"
)

func block(height uint64, hash string) *types.Block {
	b := types.NewBlock()
	b.Height = height
	b.Hash = hash
	return b
}

func TestEndSyncReleasesInAscendingHeightOrder(t *testing.T) {
	Convey("Given a pool buffering three out-of-order blocks", t, func() {
		p := New()
		p.BeginSync()
		So(p.Buffering(), ShouldBeTrue)

		p.Add(block(5, "b5"))
		p.Add(block(3, "b3"))
		p.Add(block(4, "b4"))

		Convey("EndSync releases them in ascending height order and drains the pool", func() {
			released := p.EndSync()
			So(released, ShouldHaveLength, 3)
			for i, want := range []uint64{3, 4, 5} {
				So(released[i].Height, ShouldEqual, want)
			}
			So(p.Buffering(), ShouldBeFalse)
			So(p.Len(), ShouldEqual, 0)
		})
	})
}

func TestAddReplacesSameHeightCandidate(t *testing.T) {
	Convey("Given two candidates added at the same height", t, func() {
		p := New()
		p.BeginSync()
		p.Add(block(5, "first"))
		p.Add(block(5, "second"))

		Convey("the later candidate wins", func() {
			released := p.EndSync()
			So(released, ShouldHaveLength, 1)
			So(released[0].Hash, ShouldEqual, "second")
		})
	})
}
