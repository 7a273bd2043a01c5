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
	"strconv"

	"github.com/anchorchain/multiversed/codec"
	"github.com/anchorchain/multiversed/types"
)

// RangeRequest is the shape the engine publishes on the GetBlockList and
// GetMultiverse bus topics: "ask this peer for heights [Low, High]".
// Selective is not consulted: the topic the request is published on
// decides whether a 0009R01 or a full 0006R01 frame is sent.
type RangeRequest struct {
	Low, High uint64
	Selective bool
}

// RequestHighest builds a bare 0008R01 frame.
func RequestHighest() []byte { return codec.EncodeFrame(codec.TagReadHighest) }

// RequestRange builds a 0006R01 full-sync range request.
func RequestRange(low, high uint64) []byte {
	return codec.EncodeFrame(codec.TagReadBlockRange, uintField(low), uintField(high))
}

// RequestMultiverse builds a 0009R01 selective-sync range request.
func RequestMultiverse(low, high uint64) []byte {
	return codec.EncodeFrame(codec.TagReadMultiverse, uintField(low), uintField(high))
}

// AnnounceBlock builds a 0008W01 frame carrying b, used to broadcast a
// freshly accepted block to peers.
func AnnounceBlock(b *types.Block) ([]byte, error) {
	enc, err := codec.EncodeBlock(b)
	if err != nil {
		return nil, err
	}
	return codec.EncodeFrame(codec.TagWriteHighest, enc), nil
}

func uintField(n uint64) []byte { return []byte(strconv.FormatUint(n, 10)) }
