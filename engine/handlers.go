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

package engine

import (
	"sort"

	"github.com/anchorchain/multiversed/engine/bus"
	"github.com/anchorchain/multiversed/log"
	"github.com/anchorchain/multiversed/p2p"
	"github.com/anchorchain/multiversed/types"
)

// subscribe wires every bus topic named in §6 to the handler that
// realizes its side of the data flow described in §2: inbound frames feed
// the Multiverse; acceptance re-enters the protocol engine as an
// announcement; resync decisions turn into outbound range requests.
func (e *Engine) subscribe() {
	e.Bus.Subscribe(bus.PutBlock, e.handlePutBlock)
	e.Bus.Subscribe(bus.PutBlockList, e.handlePutBlockList)
	e.Bus.Subscribe(bus.PutMultiverse, e.handlePutMultiverse)
	e.Bus.Subscribe(bus.AnnounceNewBlock, e.handleAnnounceNewBlock)
	e.Bus.Subscribe(bus.QSend, e.handleQSend)
	e.Bus.Subscribe(bus.GetBlockList, e.handleGetRange(false))
	e.Bus.Subscribe(bus.GetMultiverse, e.handleGetRange(true))
}

// handlePutBlock is the putBlock handler §4.2 names for 0008W01:
// "the engine calls Multiverse.add_next_block". A rejection is itself
// evaluated as a resync candidate; a granted resync issues a range request
// back to whichever connection the block arrived on.
func (e *Engine) handlePutBlock(ev types.EventPayload) {
	b, ok := ev.Data.(*types.Block)
	if !ok || b == nil {
		return
	}

	if e.Multiverse.AddNextBlock(b, e.cfg.ValidateSequenceStrict) {
		e.Bus.Publish(bus.AnnounceNewBlock, types.EventPayload{Data: b, ConnectionID: ev.ConnectionID})
		return
	}

	if !e.Multiverse.AddResyncRequest(b, e.cfg.ValidateSequenceStrict) {
		return
	}
	low := uint64(1)
	if lowest := e.Multiverse.GetLowest(); lowest != nil && lowest.Height > 1 {
		low = lowest.Height
	}
	e.BlockPool.BeginSync()
	e.Bus.Publish(bus.GetBlockList, types.EventPayload{
		Data:         p2p.RangeRequest{Low: low, High: b.Height},
		ConnectionID: ev.ConnectionID,
	})
}

// handlePutBlockList is the putBlockList handler for 0007W01 (full-sync
// range replies): buffer through the block pool (C7) so resync can't
// interleave a half-received range with fresh gossip, then release and
// apply once the sync window closes.
func (e *Engine) handlePutBlockList(ev types.EventPayload) {
	blocks, ok := ev.Data.([]*types.Block)
	if !ok {
		return
	}
	for _, b := range blocks {
		e.BlockPool.Add(b)
	}
	e.applyReleased(e.BlockPool.EndSync())
}

// handlePutMultiverse is the putMultiverse handler for 0010W01 (selective
// sync replies): these are small, targeted answers to a specific gap, so
// they apply directly without the block pool's buffering.
func (e *Engine) handlePutMultiverse(ev types.EventPayload) {
	blocks, ok := ev.Data.([]*types.Block)
	if !ok {
		return
	}
	sorted := append([]*types.Block(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Height < sorted[j].Height })
	e.applyReleased(sorted)
}

func (e *Engine) applyReleased(blocks []*types.Block) {
	if len(blocks) == 0 {
		return
	}
	if err := e.Multiverse.ValidateBlockSequenceInline(reversed(blocks)); err != nil {
		log.WithError(err).Warn("discarding a resynced range that fails sequence validation")
		return
	}
	for _, b := range blocks {
		e.Multiverse.AddNextBlock(b, e.cfg.ValidateSequenceStrict)
	}
}

func reversed(blocks []*types.Block) []*types.Block {
	out := make([]*types.Block, len(blocks))
	for i, b := range blocks {
		out[len(blocks)-1-i] = b
	}
	return out
}

// handleAnnounceNewBlock broadcasts a freshly accepted block to every
// connected peer except, when known, the one it arrived from, and retargets
// the worker pool at the new tip so mining never idles on a stale
// candidate.
func (e *Engine) handleAnnounceNewBlock(ev types.EventPayload) {
	b, ok := ev.Data.(*types.Block)
	if !ok || b == nil {
		return
	}
	e.assignWork()
	frame, err := p2p.AnnounceBlock(b)
	if err != nil {
		log.WithError(err).Warn("failed to encode announcement")
		return
	}
	e.broadcast(frame, ev.ConnectionID)
}

// handleQSend lets any component hand the engine a pre-built frame to
// deliver: a fixed ConnectionID targets one peer, an empty one broadcasts.
func (e *Engine) handleQSend(ev types.EventPayload) {
	frame, ok := ev.Data.([]byte)
	if !ok {
		return
	}
	if ev.ConnectionID == "" {
		e.broadcast(frame, "")
		return
	}
	if err := e.sendTo(ev.ConnectionID, frame); err != nil {
		log.WithError(err).WithField("conn", ev.ConnectionID).Debug("qsend delivery failed")
	}
}

// handleGetRange returns a handler for GetBlockList/GetMultiverse: turn a
// RangeRequest into the matching outbound wire request and send it.
func (e *Engine) handleGetRange(selective bool) bus.Handler {
	return func(ev types.EventPayload) {
		req, ok := ev.Data.(p2p.RangeRequest)
		if !ok {
			return
		}
		var frame []byte
		if selective {
			frame = p2p.RequestMultiverse(req.Low, req.High)
		} else {
			frame = p2p.RequestRange(req.Low, req.High)
		}
		if ev.ConnectionID == "" {
			e.broadcast(frame, "")
			return
		}
		if err := e.sendTo(ev.ConnectionID, frame); err != nil {
			log.WithError(err).WithField("conn", ev.ConnectionID).Debug("range request delivery failed")
		}
	}
}

// onSolution is the worker pool's SolutionHandler: a locally mined block
// is evaluated exactly like one received over the wire, then announced.
func (e *Engine) onSolution(pid int, sol *types.Solution) {
	if sol == nil || sol.Block == nil {
		return
	}
	e.handlePutBlock(types.EventPayload{Data: sol.Block})
}
