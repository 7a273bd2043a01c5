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

// Package codec implements the deterministic binary serialization of
// composite blocks (C2 in §2) and the tag-framed wire protocol of
// §4.2/§6. Block encoding is grounded on CovenantSQL's utils/msgpack.go
// (a shared ugorji/go codec.MsgpackHandle wrapping bytes.Buffer); frame
// encoding is new, since no corpus example frames a length-prefixed,
// ASCII-tagged protocol the way §4.2 requires.
package codec

import (
	"bytes"

	"github.com/ugorji/go/codec"

	"github.com/anchorchain/multiversed/errkind"
	"github.com/anchorchain/multiversed/types"
)

// Canonical sorts map keys on encode — Block.BlockchainHeaders is a Go map,
// and without it msgpack's encode order would follow Go's randomized map
// iteration instead of producing the same bytes for the same block.
var msgpackHandle = &codec.MsgpackHandle{
	WriteExt: true,
}

func init() {
	msgpackHandle.Canonical = true
	msgpackHandle.RawToString = true
}

// EncodeMsgPack writes an encoded object to a new bytes buffer.
func EncodeMsgPack(in interface{}) (*bytes.Buffer, error) {
	buf := bytes.NewBuffer(nil)
	enc := codec.NewEncoder(buf, msgpackHandle)
	err := enc.Encode(in)
	return buf, err
}

// DecodeMsgPack reverses EncodeMsgPack.
func DecodeMsgPack(buf []byte, out interface{}) error {
	r := bytes.NewReader(buf)
	dec := codec.NewDecoder(r, msgpackHandle)
	return dec.Decode(out)
}

// EncodeBlock serializes a composite block deterministically.
func EncodeBlock(b *types.Block) ([]byte, error) {
	buf, err := EncodeMsgPack(b)
	if err != nil {
		return nil, errkind.CodecError("encode block", err)
	}
	return buf.Bytes(), nil
}

// DecodeBlock deserializes a composite block, returning a CodecError on any
// malformed or truncated input (§7).
func DecodeBlock(data []byte) (*types.Block, error) {
	b := types.NewBlock()
	if err := DecodeMsgPack(data, b); err != nil {
		return nil, errkind.CodecError("decode block", err)
	}
	return b, nil
}
