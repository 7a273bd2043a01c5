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

// Package p2p is the protocol engine (C6 in §2): it frames and
// parses the wire protocol of §4.2 and routes decoded messages to the
// Multiverse by way of the internal event bus, and serves range/tip
// requests straight out of the persistence facade. It never touches the
// transport itself — callers feed it inbound bytes and give it a SendFunc
// for replies — matching overlay's role as a non-owning collaborator per
// §9's cyclic-reference redesign note.
package p2p

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/anchorchain/multiversed/codec"
	"github.com/anchorchain/multiversed/engine/bus"
	"github.com/anchorchain/multiversed/errkind"
	"github.com/anchorchain/multiversed/log"
	"github.com/anchorchain/multiversed/metrics"
	"github.com/anchorchain/multiversed/peer"
	"github.com/anchorchain/multiversed/store"
	"github.com/anchorchain/multiversed/types"
)

// SendFunc writes one complete, already-framed message to a connection.
// Fragmentation on the way out is the transport's concern, not this
// package's.
type SendFunc func([]byte) error

// pushAheadDelta is "if local tip is ≥ 3 ahead, push it" from
// §4.2's connection lifecycle.
const pushAheadDelta = 3

type connState struct {
	peer         *types.Peer
	buf          Reassembler
	send         SendFunc
	introChecked bool
}

// Protocol is the protocol engine. It holds non-owning references to the
// collaborators the engine (C9) constructs and owns.
type Protocol struct {
	store   *store.Store
	bus     *bus.Bus
	peers   *peer.Manager
	metrics *metrics.Metrics

	mu    sync.Mutex
	conns map[string]*connState
}

// New returns a Protocol engine wired to its collaborators.
func New(s *store.Store, b *bus.Bus, peers *peer.Manager, m *metrics.Metrics) *Protocol {
	if m == nil {
		m = metrics.Noop()
	}
	return &Protocol{store: s, bus: b, peers: peers, metrics: m, conns: make(map[string]*connState)}
}

// OnConnect registers a new connection, updates peer/quorum bookkeeping via
// the peer manager, and requests the peer's current header so the
// "push tip if ≥3 ahead" rule can be evaluated once it replies.
func (p *Protocol) OnConnect(connID string, pr *types.Peer, send SendFunc) error {
	p.peers.OnConnect(pr)

	p.mu.Lock()
	p.conns[connID] = &connState{peer: pr, send: send}
	p.mu.Unlock()

	return send(codec.EncodeFrame(codec.TagReadHighest))
}

// OnDisconnect tears down connection bookkeeping and restarts discovery if
// the peer manager reports quorum lost.
func (p *Protocol) OnDisconnect(connID, peerID string) {
	p.peers.OnDisconnect(peerID)
	p.mu.Lock()
	delete(p.conns, connID)
	p.mu.Unlock()
}

// OnDiscovered records a peer learned through gossip as a dial candidate.
func (p *Protocol) OnDiscovered(pr *types.Peer) {
	p.peers.OnDiscovered(pr)
}

// Feed hands the protocol engine raw bytes read off connID's stream. A
// chunk completes at most one message (the reassembler yields at most one
// per call; callers loop Feed over however the transport delivers chunks).
func (p *Protocol) Feed(connID string, chunk []byte) error {
	p.mu.Lock()
	cs, ok := p.conns[connID]
	p.mu.Unlock()
	if !ok {
		return errkind.TransportError("feed", fmt.Errorf("unknown connection %q", connID))
	}

	msg, complete := cs.buf.Feed(chunk)
	if !complete {
		return nil
	}
	return p.handle(connID, cs, msg)
}

func (p *Protocol) handle(connID string, cs *connState, raw []byte) error {
	tag, fields, err := codec.DecodeFrame(raw)
	if err != nil {
		log.WithError(err).WithField("conn", connID).Warn("dropping malformed frame")
		return nil
	}

	meta := types.EventPayload{ConnectionID: connID}
	if cs.peer != nil {
		meta.RemoteHost, meta.RemotePort = splitMultiaddr(cs.peer.Multiaddr)
	}

	switch tag {
	case codec.TagReadHighest:
		return p.handleReadHighest(cs)
	case codec.TagReadBlockRange:
		return p.handleReadRange(cs, fields, codec.TagWriteBlockList)
	case codec.TagReadMultiverse:
		return p.handleReadRange(cs, fields, codec.TagWriteMultiverse)
	case codec.TagWriteBlockList:
		return p.handleWriteList(fields, meta, bus.PutBlockList)
	case codec.TagWriteMultiverse:
		return p.handleWriteList(fields, meta, bus.PutMultiverse)
	case codec.TagWriteHighest:
		return p.handleWriteHighest(cs, fields, meta)
	case codec.TagIntro, codec.TagListServices:
		// Neither tag names a handler in §4.2's routing table; an
		// intro only matters for the peer metadata already captured at
		// OnConnect, and service listing has no local behavior to drive.
		return nil
	default:
		log.WithField("tag", string(tag)).Warn("unhandled known tag")
		return nil
	}
}

// handleReadHighest answers 0008R01 with bc.block.latest.
func (p *Protocol) handleReadHighest(cs *connState) error {
	b, ok, err := p.store.GetLatest()
	if err != nil || !ok {
		return nil
	}
	enc, err := codec.EncodeBlock(b)
	if err != nil {
		return err
	}
	return cs.send(codec.EncodeFrame(codec.TagWriteHighest, enc))
}

// handleReadRange answers 0006R01/0009R01: build bc.block.{n} for n in
// [max(2, low), high], bulk-fetch, and reply with replyTag carrying
// whatever subset is persisted.
func (p *Protocol) handleReadRange(cs *connState, fields [][]byte, replyTag codec.Tag) error {
	if len(fields) < 2 {
		return errkind.CodecError("read range", fmt.Errorf("want 2 fields, got %d", len(fields)))
	}
	low, err := strconv.ParseUint(string(fields[0]), 10, 64)
	if err != nil {
		return errkind.CodecError("read range low", err)
	}
	high, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return errkind.CodecError("read range high", err)
	}
	if low < 2 {
		low = 2
	}
	if high < low {
		return cs.send(codec.EncodeFrame(replyTag, nil))
	}

	keys := make([]string, 0, high-low+1)
	for h := low; h <= high; h++ {
		keys = append(keys, store.BlockKey(h))
	}
	raw := p.store.GetBulk(keys, true)

	blocks := make([]*types.Block, 0, len(raw))
	for h := low; h <= high; h++ {
		k := store.BlockKey(h)
		data, ok := raw[k]
		if !ok {
			continue
		}
		b, derr := codec.DecodeBlock(data)
		if derr != nil {
			log.WithError(derr).WithField("key", k).Warn("skipping corrupt persisted block")
			continue
		}
		blocks = append(blocks, b)
	}

	payload, err := codec.EncodeBlockList(blocks)
	if err != nil {
		return err
	}
	return cs.send(codec.EncodeFrame(replyTag, payload))
}

// handleWriteList answers 0007W01/0010W01: decode the block list, sort
// height-descending, and publish it to the engine.
func (p *Protocol) handleWriteList(fields [][]byte, meta types.EventPayload, topic bus.Topic) error {
	// DecodeFrame splits on every separator, including any that occur inside
	// a serialized block; rejoin the fields so the list's own length framing
	// decides where each block ends.
	var payload []byte
	for i, f := range fields {
		if i > 0 {
			payload = append(payload, codec.Separator...)
		}
		payload = append(payload, f...)
	}
	blocks, err := codec.DecodeBlockList(payload)
	if err != nil {
		log.WithError(err).Warn("dropping malformed block list")
		return nil
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Height > blocks[j].Height })
	meta.Data = blocks
	p.bus.Publish(topic, meta)
	return nil
}

// handleWriteHighest answers 0008W01: publish putBlock, and — on the first
// such reply after connecting — compare heights to decide whether the
// local tip needs pushing to the peer (§4.2's "push tip if ≥3
// ahead" rule).
func (p *Protocol) handleWriteHighest(cs *connState, fields [][]byte, meta types.EventPayload) error {
	if len(fields) == 0 {
		return errkind.CodecError("write highest", fmt.Errorf("missing block field"))
	}
	b, err := codec.DecodeBlock(fields[0])
	if err != nil {
		log.WithError(err).Warn("dropping malformed announced block")
		return nil
	}
	meta.Data = b
	p.bus.Publish(bus.PutBlock, meta)

	p.mu.Lock()
	firstReply := !cs.introChecked
	cs.introChecked = true
	p.mu.Unlock()
	if !firstReply {
		return nil
	}

	local, ok, err := p.store.GetLatest()
	if err != nil || !ok {
		return nil
	}
	if local.Height >= b.Height+pushAheadDelta {
		enc, err := codec.EncodeBlock(local)
		if err != nil {
			return err
		}
		return cs.send(codec.EncodeFrame(codec.TagWriteHighest, enc))
	}
	return nil
}

// splitMultiaddr pulls a best-effort host/port pair out of a peer's
// multiaddr for the event payload's RemoteHost/RemotePort fields. Peer
// identity itself never depends on this parse succeeding.
func splitMultiaddr(addr string) (string, int) {
	parts := strings.Split(strings.Trim(addr, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "tcp" || parts[i] == "udp" {
			if port, err := strconv.Atoi(parts[i+1]); err == nil && i > 0 {
				return parts[i-1], port
			}
		}
	}
	if host, port, err := splitHostPort(addr); err == nil {
		return host, port
	}
	return addr, 0
}

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("no port in %q", addr)
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return "", 0, err
	}
	return addr[:idx], port, nil
}
