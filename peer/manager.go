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

package peer

import (
	"sync"

	"github.com/anchorchain/multiversed/config"
	"github.com/anchorchain/multiversed/log"
	"github.com/anchorchain/multiversed/metrics"
	"github.com/anchorchain/multiversed/store"
	"github.com/anchorchain/multiversed/types"
)

// Manager implements the quorum and discovery-pause rules of
// §4.2's connection lifecycle: first peer sets the persisted quorum, peer
// loss below quorum restarts discovery, and discovery halts again once
// quorum is reached.
type Manager struct {
	mu          sync.Mutex
	cfg         *config.Config
	store       *store.Store
	book        *Book
	metrics     *metrics.Metrics
	discovering bool
}

// NewManager returns a Manager backed by book.
func NewManager(cfg *config.Config, s *store.Store, book *Book, m *metrics.Metrics) *Manager {
	if m == nil {
		m = metrics.Noop()
	}
	return &Manager{cfg: cfg, store: s, book: book, metrics: m, discovering: true}
}

// OnConnect implements "on connect, compare peer count to persisted quorum
// bc.dht.quorum; first peer sets quorum to 1 (or under low-health mode
// sets it unconditionally)".
func (m *Manager) OnConnect(p *types.Peer) {
	m.book.Connect(p)
	m.metrics.PeersConnected.Set(float64(m.book.ConnectedCount()))

	_, ok, _ := m.store.GetQuorum()
	if !ok || m.cfg.LowHealthNet {
		if err := m.store.PutQuorum(1); err != nil {
			log.WithError(err).Warn("persist quorum failed")
		}
	}
	m.maybeStopDiscovery()
}

// OnDisconnect implements "on peer:disconnect, if quorum is lost, restart
// discovery".
func (m *Manager) OnDisconnect(peerID string) {
	m.book.Disconnect(peerID)
	m.metrics.PeersConnected.Set(float64(m.book.ConnectedCount()))

	if m.book.ConnectedCount() < m.cfg.QuorumSize {
		m.mu.Lock()
		m.discovering = true
		m.mu.Unlock()
	}
}

// OnDiscovered implements "on peer:discovery, stop discovery once quorum
// size is reached".
func (m *Manager) OnDiscovered(p *types.Peer) {
	m.book.Discover(p)
	m.maybeStopDiscovery()
}

func (m *Manager) maybeStopDiscovery() {
	if m.book.ConnectedCount() >= m.cfg.QuorumSize {
		m.mu.Lock()
		m.discovering = false
		m.mu.Unlock()
	}
}

// Discovering reports whether the manager wants more peers dialed.
func (m *Manager) Discovering() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discovering
}

// NextDialTarget returns the next discovered peer worth dialing, or nil
// when discovery is paused or the book is empty.
func (m *Manager) NextDialTarget() *types.Peer {
	if !m.Discovering() {
		return nil
	}
	return m.book.NextDiscovered()
}

// Book exposes the underlying peer book.
func (m *Manager) Book() *Book { return m.book }
