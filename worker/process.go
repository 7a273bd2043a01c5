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

package worker

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/anchorchain/multiversed/log"
	"github.com/anchorchain/multiversed/types"
)

// process is one supervised worker, its pipes, and its lifecycle state.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu    sync.Mutex
	state *types.WorkerState
}

// spawnProcess forks binPath as a child, wiring its stdin/stdout for
// length-prefixed frames. Stderr is inherited so a crashing worker's panic
// trace lands in the pool's own log stream.
func spawnProcess(binPath string, args ...string) (*process, error) {
	cmd := exec.Command(binPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		state:  types.NewWorkerState(cmd.Process.Pid),
	}
	return p, nil
}

// pid returns the OS process id.
func (p *process) pid() int { return p.state.PID }

// send writes one frame to the worker's stdin, tracking it in the
// outstanding-requests outbox keyed by msg_id.
func (p *process) send(msg *types.WorkerMessage) error {
	p.mu.Lock()
	if p.state.OutstandingRequests == nil {
		p.state.OutstandingRequests = make(map[string]time.Time)
	}
	p.state.OutstandingRequests[msg.MsgID] = time.Now()
	p.mu.Unlock()
	return WriteFrame(p.stdin, msg)
}

// recv blocks for the next inbound frame. Callers run this in a dedicated
// per-process goroutine; io.EOF (or any error) means the process exited.
func (p *process) recv() (*types.WorkerMessage, error) {
	return ReadFrame(p.stdout)
}

// hasOutstanding reports whether msgID is still awaiting a reply.
func (p *process) hasOutstanding(msgID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.state.OutstandingRequests[msgID]
	return ok
}

// ack clears an outstanding request and refreshes the heartbeat clock.
func (p *process) ack(msgID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.state.OutstandingRequests, msgID)
	p.state.LastHeartbeat = time.Now()
}

func (p *process) setStatus(s types.WorkerStatus) {
	p.mu.Lock()
	p.state.Status = s
	p.mu.Unlock()
}

func (p *process) status() types.WorkerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Status
}

func (p *process) lastHeartbeat() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.LastHeartbeat
}

// kill signals the process and waits briefly for it to exit, per the
// "signal = KILL, retry with timeout 5s" rule of §4.3.
func (p *process) kill(timeout time.Duration) {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Kill()
	done := make(chan struct{})
	go func() {
		_ = p.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.WithField("pid", p.pid()).Warn("worker did not exit within kill timeout")
	}
}
