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

package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/anchorchain/multiversed/errkind"
	"github.com/anchorchain/multiversed/types"
)

// Tag is the 7-ASCII-byte wire message tag of §4.2.
type Tag string

// The eight tags of §4.2's table. Decoding any other value is a
// CodecError — "compile-time-checked tag enumeration with exhaustive
// decode; unknown tag is a CodecError, not a silent drop" per §9.
const (
	TagIntro            Tag = "0000R01"
	TagListServices     Tag = "0005R01"
	TagReadBlockRange   Tag = "0006R01"
	TagWriteBlockList   Tag = "0007W01"
	TagReadHighest      Tag = "0008R01"
	TagWriteHighest     Tag = "0008W01"
	TagReadMultiverse   Tag = "0009R01"
	TagWriteMultiverse  Tag = "0010W01"
)

// tagLen is the fixed byte length of a tag (§4.2: "7 ASCII bytes").
const tagLen = 7

// Separator is the three-byte field/tag delimiter (§3/§4.2).
const Separator = "[*]"

var knownTags = map[Tag]bool{
	TagIntro:           true,
	TagListServices:    true,
	TagReadBlockRange:  true,
	TagWriteBlockList:  true,
	TagReadHighest:     true,
	TagWriteHighest:    true,
	TagReadMultiverse:  true,
	TagWriteMultiverse: true,
}

// IsKnown reports whether tag is one of the eight protocol tags.
func IsKnown(tag Tag) bool { return knownTags[tag] }

// EncodeFrame builds `tag [*] field1 [*] field2 ...`. A frame with no
// fields is just the bare tag (used by 0005R01 and 0008R01, which carry no
// payload).
func EncodeFrame(tag Tag, fields ...[]byte) []byte {
	out := []byte(tag)
	for _, f := range fields {
		out = append(out, []byte(Separator)...)
		out = append(out, f...)
	}
	return out
}

// DecodeFrame splits a complete buffer into its tag and payload fields.
// Returns a CodecError for a truncated tag or an unknown tag.
func DecodeFrame(buf []byte) (Tag, [][]byte, error) {
	if len(buf) < tagLen {
		return "", nil, errkind.CodecError("decode frame", fmt.Errorf("truncated tag: got %d bytes", len(buf)))
	}
	tag := Tag(buf[:tagLen])
	if !IsKnown(tag) {
		return "", nil, errkind.CodecError("decode frame", fmt.Errorf("unknown tag %q", tag))
	}
	rest := buf[tagLen:]
	if len(rest) == 0 {
		return tag, nil, nil
	}
	sep := []byte(Separator)
	if len(rest) < len(sep) || string(rest[:len(sep)]) != Separator {
		return "", nil, errkind.CodecError("decode frame", fmt.Errorf("missing separator after tag"))
	}
	rest = rest[len(sep):]
	fields := splitOn(rest, sep)
	return tag, fields, nil
}

func splitOn(buf, sep []byte) [][]byte {
	var fields [][]byte
	for {
		idx := indexOf(buf, sep)
		if idx < 0 {
			fields = append(fields, buf)
			return fields
		}
		fields = append(fields, buf[:idx])
		buf = buf[idx+len(sep):]
	}
}

func indexOf(buf, sep []byte) int {
	n := len(sep)
	for i := 0; i+n <= len(buf); i++ {
		match := true
		for j := 0; j < n; j++ {
			if buf[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// EncodeBlockList serializes a list of blocks as a single payload field,
// each block individually length-framed with a 4-byte big-endian prefix so
// that a serialized block containing the literal separator byte sequence
// can never be mistaken for a field boundary (§4.2's note on
// separator-safety). This two-line length-prefix primitive is the one place
// the codec reaches for encoding/binary directly rather than a corpus
// library — no example in the pack sub-frames a list of blobs inside one
// msgpack-encoded field, and the mechanism is too small to warrant a
// dependency.
func EncodeBlockList(blocks []*types.Block) ([]byte, error) {
	var out []byte
	for _, b := range blocks {
		enc, err := EncodeBlock(b)
		if err != nil {
			return nil, err
		}
		var lenPrefix [4]byte
		binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(enc)))
		out = append(out, lenPrefix[:]...)
		out = append(out, enc...)
	}
	return out, nil
}

// DecodeBlockList reverses EncodeBlockList.
func DecodeBlockList(data []byte) ([]*types.Block, error) {
	var blocks []*types.Block
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, errkind.CodecError("decode block list", fmt.Errorf("truncated length prefix"))
		}
		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint32(len(data)) < n {
			return nil, errkind.CodecError("decode block list", fmt.Errorf("truncated block: want %d have %d", n, len(data)))
		}
		b, err := DecodeBlock(data[:n])
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
		data = data[n:]
	}
	return blocks, nil
}
