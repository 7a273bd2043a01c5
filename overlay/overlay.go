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

// Package overlay is the transport collaborator the protocol engine (C6)
// reads and writes frames through. It is grounded on CovenantSQL's
// rpc/mux/client.go: dial a raw TCP connection, wrap it in an
// xtaci/smux session, open one stream per logical conversation. The core
// itself never touches net.Conn or mux.Session directly — it only sees
// the io.ReadWriteCloser a Dial or Accept call hands back, per the
// "guarded global KV access"-style facade discipline §9 applies
// elsewhere to storage.
package overlay

import (
	"net"
	"time"

	"github.com/pkg/errors"
	smux "github.com/xtaci/smux"

	"github.com/anchorchain/multiversed/errkind"
)

// Stream is one logical connection to a peer: a single multiplexed stream
// over a shared TCP session.
type Stream struct {
	net.Conn
	session *smux.Session
}

// Close closes the stream and, once it is the session's last open stream,
// the underlying session.
func (s *Stream) Close() error {
	err := s.Conn.Close()
	if s.session.NumStreams() == 0 {
		_ = s.session.Close()
	}
	return err
}

// DefaultMuxConfig mirrors CovenantSQL's package-level MuxConfig: a single
// shared default rather than a config struct threaded through every call.
var DefaultMuxConfig = smux.DefaultConfig()

// Dial opens a TCP connection to addr and returns one multiplexed stream
// over it.
func Dial(addr string, timeout time.Duration) (*Stream, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errkind.TransportError("dial "+addr, err)
	}
	sess, err := smux.Client(conn, DefaultMuxConfig)
	if err != nil {
		_ = conn.Close()
		return nil, errkind.TransportError("mux client "+addr, errors.Wrap(err, "init smux client failed"))
	}
	stream, err := sess.OpenStream()
	if err != nil {
		_ = sess.Close()
		return nil, errkind.TransportError("open stream "+addr, errors.Wrap(err, "open smux stream failed"))
	}
	return &Stream{Conn: stream, session: sess}, nil
}

// Listener accepts inbound TCP connections and yields one multiplexed
// stream per accepted session — enough for the single-stream-per-peer
// protocol §4.2 describes.
type Listener struct {
	ln net.Listener
}

// Listen binds addr for inbound peer connections.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errkind.TransportError("listen "+addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Accept blocks for the next inbound connection, wraps it as an smux
// server session, and returns its first stream.
func (l *Listener) Accept() (*Stream, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, errkind.TransportError("accept", err)
	}
	sess, err := smux.Server(conn, DefaultMuxConfig)
	if err != nil {
		_ = conn.Close()
		return nil, errkind.TransportError("mux server", errors.Wrap(err, "init smux server failed"))
	}
	stream, err := sess.AcceptStream()
	if err != nil {
		_ = sess.Close()
		return nil, errkind.TransportError("accept stream", errors.Wrap(err, "accept smux stream failed"))
	}
	return &Stream{Conn: stream, session: sess}, nil
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }
