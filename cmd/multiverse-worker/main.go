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

// Command multiverse-worker is the mining subprocess C8's pool forks and
// supervises. It speaks the length-prefixed msgpack frame protocol of
// package worker over stdin/stdout: it echoes heartbeats, grinds a nonce
// search against the difficulty target of each work order it is assigned,
// and reports a solution or honors an abort. Defining the composite
// block's actual proof-of-work puzzle is out of scope (§1); the
// nonce search here exists to exercise the worker protocol end to end,
// grounded on CovenantSQL's pow/cpuminer.CalculateBlockNonce loop shape and
// its Stop-channel interruption pattern.
package main

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/anchorchain/multiversed/config"
	"github.com/anchorchain/multiversed/hashing"
	"github.com/anchorchain/multiversed/log"
	"github.com/anchorchain/multiversed/types"
	"github.com/anchorchain/multiversed/worker"
)

// maxHash is the largest possible 256-bit digest, the ceiling a work
// order's difficulty divides down into a target.
var maxHash = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func main() {
	reader := bufio.NewReader(os.Stdin)

	var writeMu sync.Mutex
	send := func(msg *types.WorkerMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return worker.WriteFrame(os.Stdout, msg)
	}

	go heartbeatLoop(send)

	var abortMu sync.Mutex
	var abort chan struct{}

	for {
		msg, err := worker.ReadFrame(reader)
		if err != nil {
			return
		}
		switch msg.Type {
		case types.MsgHeartbeat:
			if err := send(&types.WorkerMessage{Type: types.MsgHeartbeat, MsgID: msg.MsgID}); err != nil {
				log.WithError(err).Warn("heartbeat ack failed")
			}
		case types.MsgWork:
			abortMu.Lock()
			if abort != nil {
				close(abort)
			}
			abort = make(chan struct{})
			stop := abort
			abortMu.Unlock()
			go mine(msg.MsgID, msg.Work, stop, send)
		case types.MsgAbort:
			abortMu.Lock()
			if abort != nil {
				close(abort)
				abort = nil
			}
			abortMu.Unlock()
			if err := send(&types.WorkerMessage{Type: types.MsgHeartbeat, MsgID: msg.MsgID}); err != nil {
				log.WithError(err).Warn("abort ack failed")
			}
		default:
			log.WithField("type", msg.Type.String()).Warn("unexpected message from pool")
		}
	}
}

// heartbeatLoop sends an unsolicited heartbeat every
// config.WorkerHeartbeatInterval, so a worker mid-grind still keeps the
// pool's health check satisfied.
func heartbeatLoop(send func(*types.WorkerMessage) error) {
	ticker := time.NewTicker(config.WorkerHeartbeatInterval * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		id, err := hashing.Random128()
		if err != nil {
			continue
		}
		_ = send(&types.WorkerMessage{Type: types.MsgHeartbeat, MsgID: fmt.Sprintf("%x", id)})
	}
}

// mine grinds a nonce search for order, reporting a solution on send or
// returning early if stop closes first.
func mine(msgID string, order *types.WorkOrder, stop <-chan struct{}, send func(*types.WorkerMessage) error) {
	if order == nil || order.PreviousBlock == nil {
		return
	}
	target := difficultyTarget(order.Difficulty)
	start := time.Now()
	var nonce, iterations uint64
	for {
		select {
		case <-stop:
			return
		default:
		}
		raw, digestHex := nonceDigest(order, nonce)
		iterations++
		if satisfiesTarget(raw, target) {
			block := buildBlock(order, digestHex)
			_ = send(&types.WorkerMessage{
				Type:  types.MsgSolution,
				MsgID: msgID,
				Solution: &types.Solution{
					Block:      block,
					Iterations: iterations,
					TimeDiff:   time.Since(start).Nanoseconds(),
				},
			})
			return
		}
		nonce++
	}
}

// difficultyTarget maps a work order's difficulty to the ceiling a mined
// digest must fall under: higher difficulty divides maxHash into a smaller
// target, mirroring the inverse relationship CovenantSQL's miner expresses
// against a fixed-width compact difficulty instead of an arbitrary-precision
// one.
func difficultyTarget(d types.BigInt) *big.Int {
	if d.Sign() <= 0 {
		return new(big.Int).Set(maxHash)
	}
	return new(big.Int).Div(maxHash, d.V)
}

// nonceDigest returns both the raw digest bytes (for the numeric comparison
// against target) and its hex form (the composite block's hash field).
func nonceDigest(order *types.WorkOrder, nonce uint64) ([]byte, string) {
	buf := make([]byte, 0, len(order.PreviousBlock.Hash)+len(order.MinerKey)+8)
	buf = append(buf, []byte(order.PreviousBlock.Hash)...)
	buf = append(buf, []byte(order.MinerKey)...)
	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], nonce)
	buf = append(buf, nb[:]...)

	h := hashing.DoubleSHA256(buf)
	raw, err := hex.DecodeString(string(h))
	if err != nil {
		return nil, string(h)
	}
	return raw, string(h)
}

func satisfiesTarget(digest []byte, target *big.Int) bool {
	if digest == nil {
		return false
	}
	return new(big.Int).SetBytes(digest).Cmp(target) <= 0
}

// buildBlock assembles the solved composite block from the work order: the
// per-block work delta (§3's "distance") is taken as the order's
// own difficulty, keeping total_distance_i = total_distance_{i-1} +
// distance_i intact for validator.ValidateSequenceDifficulty.
func buildBlock(order *types.WorkOrder, hash string) *types.Block {
	prev := order.PreviousBlock
	b := types.NewBlock()
	b.Hash = hash
	b.PreviousHash = prev.Hash
	b.Height = prev.Height + 1
	b.Timestamp = time.Now().Unix()
	b.Difficulty = order.Difficulty
	b.Distance = order.Difficulty
	b.TotalDistance = prev.TotalDistance.Add(order.Difficulty)
	b.MinerKey = order.MinerKey
	for chain, headers := range order.Headers {
		b.AddHeaders(chain, headers...)
	}
	return b
}
