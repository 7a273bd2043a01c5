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

package types

// ChildHeader is the five-field record a rover harvests from an external
// child chain (§3). Its contents beyond these fields are opaque to
// the core.
type ChildHeader struct {
	Blockchain string
	Height     uint64
	Hash       string
	MerkleRoot string
	Timestamp  int64
}

// Block is the composite block, the only on-chain unit (§3).
type Block struct {
	Hash                   string
	PreviousHash           string
	Height                 uint64
	Timestamp              int64
	Difficulty             BigInt
	TotalDistance          BigInt
	Distance               BigInt
	BlockchainHeaders      map[string][]ChildHeader
	BlockchainHeadersCount int
	MinerKey               string
}

// NewBlock returns a Block with its headers map initialized. Callers should
// use AddHeaders rather than writing BlockchainHeaders directly, to keep
// BlockchainHeadersCount correct.
func NewBlock() *Block {
	return &Block{BlockchainHeaders: make(map[string][]ChildHeader)}
}

// AddHeaders appends headers for a child chain and refreshes the cached
// count (§3: "blockchain_headers_count — cached count").
func (b *Block) AddHeaders(chain string, headers ...ChildHeader) {
	if b.BlockchainHeaders == nil {
		b.BlockchainHeaders = make(map[string][]ChildHeader)
	}
	b.BlockchainHeaders[chain] = append(b.BlockchainHeaders[chain], headers...)
	b.recount()
}

func (b *Block) recount() {
	n := 0
	for _, hs := range b.BlockchainHeaders {
		n += len(hs)
	}
	b.BlockchainHeadersCount = n
}

// Clone returns a deep copy sufficient for the window's internal bookkeeping
// — the header slices and map are copied so a caller mutating its own block
// can never reach into the multiverse's stored copy.
func (b *Block) Clone() *Block {
	if b == nil {
		return nil
	}
	c := *b
	c.BlockchainHeaders = make(map[string][]ChildHeader, len(b.BlockchainHeaders))
	for k, v := range b.BlockchainHeaders {
		cp := make([]ChildHeader, len(v))
		copy(cp, v)
		c.BlockchainHeaders[k] = cp
	}
	return &c
}
