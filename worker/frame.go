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

// Package worker implements C8 of §4.3: a supervisor that forks N
// OS-process miners and exchanges typed, length-prefixed msgpack frames
// with them over stdin/stdout. It is grounded on CovenantSQL's
// pow/cpuminer package for the mining-loop shape and on rpc/mux/client.go
// for the "frame, send, demultiplex replies by id" discipline — generalized
// from an in-process goroutine pool and a stream-multiplexed RPC session to
// cross-process pipes, since §5 requires worker isolation strong
// enough that "no shared mutable memory crosses the process boundary".
package worker

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/anchorchain/multiversed/codec"
	"github.com/anchorchain/multiversed/errkind"
	"github.com/anchorchain/multiversed/types"
)

// WriteFrame writes a 4-byte big-endian length prefix followed by msg's
// msgpack encoding — the same sub-framing scheme package codec uses for
// block lists, reused here because stdin/stdout pipes have no separator
// convention of their own to lean on.
func WriteFrame(w io.Writer, msg *types.WorkerMessage) error {
	buf, err := codec.EncodeMsgPack(msg)
	if err != nil {
		return errkind.WorkerError("encode frame", err)
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return errkind.WorkerError("write frame length", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errkind.WorkerError("write frame body", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed msgpack frame from r.
func ReadFrame(r *bufio.Reader) (*types.WorkerMessage, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, err // io.EOF propagates to the caller as process exit
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errkind.WorkerError("read frame body", err)
	}
	var msg types.WorkerMessage
	if err := codec.DecodeMsgPack(body, &msg); err != nil {
		return nil, errkind.WorkerError("decode frame", err)
	}
	return &msg, nil
}
