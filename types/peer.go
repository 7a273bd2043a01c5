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

import "time"

// Peer is a remote node in the gossip overlay (§3). Identity is a
// base58 key (see package hashing), analogous to CovenantSQL's
// proto.NodeID — generalized here to carry connection metadata as well,
// since CovenantSQL's Node is SQL-peer-specific (public key, consistent-
// hash nonce) and this core's peer identity is a plain handle into the
// overlay transport.
type Peer struct {
	ID          string
	Multiaddr   string
	ConnectedAt time.Time
	Meta        map[string]string
}

// Clone returns a shallow copy with its own Meta map, so book mutations on
// one copy never alias another's.
func (p *Peer) Clone() *Peer {
	if p == nil {
		return nil
	}
	c := *p
	c.Meta = make(map[string]string, len(p.Meta))
	for k, v := range p.Meta {
		c.Meta[k] = v
	}
	return &c
}
