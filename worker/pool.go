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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anchorchain/multiversed/config"
	"github.com/anchorchain/multiversed/errkind"
	"github.com/anchorchain/multiversed/hashing"
	"github.com/anchorchain/multiversed/log"
	"github.com/anchorchain/multiversed/metrics"
	"github.com/anchorchain/multiversed/types"
)

// SolutionHandler is invoked, on the reporting worker's read goroutine,
// whenever a worker reports a solved block.
type SolutionHandler func(pid int, sol *types.Solution)

// Pool supervises up to cfg.WorkerCount() miner subprocesses (C8 in
// §2).
type Pool struct {
	cfg       *config.Config
	binPath   string
	guardPath string
	metrics   *metrics.Metrics
	onSolve   SolutionHandler

	mu         sync.Mutex
	session    *types.WorkSession
	procs      map[int]*process
	respawns   []time.Time
	dismissing bool
	stopHealth chan struct{}
}

// Init opens the guard file, kills any previously recorded live workers,
// and writes a fresh session record — §4.3 steps 1-2. binPath is
// the miner executable each forked worker runs.
func Init(cfg *config.Config, binPath string, m *metrics.Metrics, onSolve SolutionHandler) (*Pool, error) {
	if m == nil {
		m = metrics.Noop()
	}
	guardPath := filepath.Join(cfg.DataDir, "worker_guard.json")

	if prev, err := readGuard(guardPath); err != nil {
		return nil, err
	} else if prev != nil {
		killRecordedWorkers(prev)
	}

	sessionID, err := hashing.Random256Hex()
	if err != nil {
		return nil, errkind.WorkerError("generate session id", err)
	}
	session := types.NewWorkSession(sessionID)

	rec := &types.GuardRecord{Session: sessionID, Timestamp: time.Now().Unix()}
	if err := writeGuard(guardPath, rec); err != nil {
		return nil, err
	}

	return &Pool{
		cfg:       cfg,
		binPath:   binPath,
		guardPath: guardPath,
		metrics:   m,
		onSolve:   onSolve,
		session:   session,
		procs:     make(map[int]*process),
	}, nil
}

// killRecordedWorkers signals KILL to every pid in rec, waiting up to
// config.WorkerKillTimeout for each — these are processes from a prior
// run, referenced only by pid, not by our own *os.Process handle.
func killRecordedWorkers(rec *types.GuardRecord) {
	for _, w := range rec.Workers {
		proc, err := os.FindProcess(w.PID)
		if err != nil {
			continue
		}
		_ = proc.Kill()
		done := make(chan struct{})
		go func() {
			_, _ = proc.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(config.WorkerKillTimeout * time.Second):
			log.WithField("pid", w.PID).Warn("stale worker did not exit within kill timeout")
		}
	}
}

// AllRise forks N workers and blocks until every one has replied to its
// initial heartbeat, or rejects after config.WorkerReadyTimeout —
// §4.3 steps 3-4.
func (p *Pool) AllRise() error {
	n := p.cfg.WorkerCount()
	ready := make(chan int, n)
	fail := make(chan error, n)

	for i := 0; i < n; i++ {
		go func() {
			proc, err := spawnProcess(p.binPath)
			if err != nil {
				fail <- errkind.WorkerError("fork worker", err)
				return
			}
			p.registerLocked(proc)
			go p.readLoop(proc)
			if err := p.ping(proc); err != nil {
				fail <- err
				return
			}
			ready <- proc.pid()
		}()
	}

	deadline := time.After(config.WorkerReadyTimeout * time.Second)
	readyCount := 0
	for readyCount < n {
		select {
		case <-ready:
			readyCount++
		case err := <-fail:
			return err
		case <-deadline:
			return errkind.WorkerError("all_rise", fmt.Errorf("only %d/%d workers became ready within %ds", readyCount, n, config.WorkerReadyTimeout))
		}
	}

	p.mu.Lock()
	p.stopHealth = make(chan struct{})
	p.mu.Unlock()
	go p.healthLoop()
	return nil
}

func (p *Pool) registerLocked(proc *process) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.procs[proc.pid()] = proc
	p.session.Workers[proc.pid()] = proc.state
	_ = p.persistGuardLocked()
}

// persistGuardLocked must be called with p.mu held.
func (p *Pool) persistGuardLocked() error {
	rec := &types.GuardRecord{
		Session:   p.session.SessionID,
		Timestamp: time.Now().Unix(),
	}
	for pid := range p.procs {
		rec.Workers = append(rec.Workers, types.GuardWorker{PID: pid})
	}
	return writeGuard(p.guardPath, rec)
}

// ping sends the initial heartbeat and blocks until the worker answers,
// bounded by the read loop delivering a heartbeat ack through the worker's
// status transitioning to Ready.
func (p *Pool) ping(proc *process) error {
	msgID := newMsgID(proc.pid())
	proc.setStatus(types.WorkerStarting)
	if err := proc.send(&types.WorkerMessage{Type: types.MsgHeartbeat, MsgID: msgID}); err != nil {
		return err
	}
	deadline := time.After(config.WorkerReadyTimeout * time.Second)
	for {
		if proc.status() == types.WorkerReady {
			return nil
		}
		select {
		case <-deadline:
			return errkind.WorkerError("worker ready", fmt.Errorf("pid %d did not become ready", proc.pid()))
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// newMsgID builds "{pid}@{random_128_bit}" per §3.
func newMsgID(pid int) string {
	r, err := hashing.Random128()
	if err != nil {
		return fmt.Sprintf("%d@fallback", pid)
	}
	return fmt.Sprintf("%d@%x", pid, r)
}

// readLoop demultiplexes inbound frames from one worker until it exits.
func (p *Pool) readLoop(proc *process) {
	for {
		msg, err := proc.recv()
		if err != nil {
			if err != io.EOF {
				log.WithError(err).WithField("pid", proc.pid()).Warn("worker read failed")
			}
			p.handleExit(proc)
			return
		}
		switch msg.Type {
		case types.MsgHeartbeat:
			proc.ack(msg.MsgID)
			proc.setStatus(types.WorkerReady)
		case types.MsgSolution:
			proc.ack(msg.MsgID)
			proc.setStatus(types.WorkerReady)
			if p.onSolve != nil && msg.Solution != nil {
				p.onSolve(proc.pid(), msg.Solution)
			}
		case types.MsgWorkerError:
			proc.ack(msg.MsgID)
			log.WithField("pid", proc.pid()).WithField("error", msg.ErrMsg).Warn("worker reported an error")
		default:
			log.WithField("pid", proc.pid()).WithField("type", msg.Type.String()).Warn("unexpected message from worker")
		}
	}
}

// handleExit implements the "a worker exit is not fatal; the pool logs and
// may schedule a replacement" rule of §4.3.
func (p *Pool) handleExit(proc *process) {
	p.mu.Lock()
	dismissing := p.dismissing
	delete(p.procs, proc.pid())
	delete(p.session.Workers, proc.pid())
	_ = p.persistGuardLocked()
	p.mu.Unlock()

	proc.setStatus(types.WorkerDead)
	if dismissing {
		return
	}
	log.WithField("pid", proc.pid()).Warn("worker exited; scheduling replacement")
	p.respawn()
}

// respawn forks a single replacement worker, escalating to a logged fatal
// condition if three respawns happen within 60s (§4.3's pool-init
// failure propagation, applied to the steady-state case the distilled
// spec leaves unstated).
func (p *Pool) respawn() {
	now := time.Now()
	p.mu.Lock()
	cutoff := now.Add(-60 * time.Second)
	kept := p.respawns[:0]
	for _, t := range p.respawns {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	p.respawns = append(kept, now)
	tooMany := len(p.respawns) >= 3
	p.mu.Unlock()

	if tooMany {
		log.Fatal("three worker respawns within 60s; worker pool is unhealthy")
		return
	}

	proc, err := spawnProcess(p.binPath)
	if err != nil {
		log.WithError(err).Error("respawn failed")
		return
	}
	p.registerLocked(proc)
	go p.readLoop(proc)
	if err := p.ping(proc); err != nil {
		log.WithError(err).Error("respawned worker failed to become ready")
	}
}

// healthLoop periodically kills any worker that has missed its heartbeat
// deadline (§4.3, §5). It does not compare the guard file's recorded
// workers against the live PID set.
func (p *Pool) healthLoop() {
	ticker := time.NewTicker(config.WorkerHeartbeatInterval * time.Second)
	defer ticker.Stop()
	p.mu.Lock()
	stop := p.stopHealth
	p.mu.Unlock()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.checkHeartbeats()
		}
	}
}

func (p *Pool) checkHeartbeats() {
	p.mu.Lock()
	procs := make([]*process, 0, len(p.procs))
	for _, pr := range p.procs {
		procs = append(procs, pr)
	}
	healthy := 0
	p.mu.Unlock()

	cutoff := time.Now().Add(-config.WorkerHeartbeatMiss * time.Second)
	for _, proc := range procs {
		if proc.lastHeartbeat().Before(cutoff) && proc.status() != types.WorkerStarting {
			log.WithField("pid", proc.pid()).Warn("worker missed heartbeat deadline; killing")
			proc.kill(config.WorkerKillTimeout * time.Second)
			continue
		}
		healthy++
	}
	p.metrics.WorkersHealthy.Set(float64(healthy))
}

// Dismiss disconnects and kills one worker by pid, removing it from the
// guard. Idempotent.
func (p *Pool) Dismiss(pid int) error {
	p.mu.Lock()
	proc, ok := p.procs[pid]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	p.dismissing = true
	p.mu.Unlock()

	msgID := newMsgID(pid)
	_ = proc.send(&types.WorkerMessage{Type: types.MsgAbort, MsgID: msgID})

	acked := make(chan struct{})
	go func() {
		deadline := time.Now().Add(config.WorkerAbortTimeout * time.Second)
		for time.Now().Before(deadline) {
			if !proc.hasOutstanding(msgID) {
				close(acked)
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
		close(acked)
	}()
	<-acked

	proc.kill(config.WorkerKillTimeout * time.Second)

	p.mu.Lock()
	delete(p.procs, pid)
	delete(p.session.Workers, pid)
	_ = p.persistGuardLocked()
	p.mu.Unlock()
	return nil
}

// AllDismissed stops the health loop and dismisses every remaining
// worker.
func (p *Pool) AllDismissed() error {
	p.mu.Lock()
	p.dismissing = true
	stop := p.stopHealth
	pids := make([]int, 0, len(p.procs))
	for pid := range p.procs {
		pids = append(pids, pid)
	}
	p.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	for _, pid := range pids {
		if err := p.Dismiss(pid); err != nil {
			return err
		}
	}
	return nil
}

// Assign sends a work order to pid, marking it busy.
func (p *Pool) Assign(pid int, order *types.WorkOrder) error {
	p.mu.Lock()
	proc, ok := p.procs[pid]
	p.mu.Unlock()
	if !ok {
		return errkind.WorkerError("assign", fmt.Errorf("no such worker pid %d", pid))
	}
	proc.setStatus(types.WorkerBusy)
	return proc.send(&types.WorkerMessage{Type: types.MsgWork, MsgID: newMsgID(pid), Work: order})
}

// AssignAll sends order to every tracked worker, ready or busy. A worker
// already mining a stale order aborts it in favor of the fresh one — see
// cmd/multiverse-worker's handling of a MsgWork arriving mid-search — so
// this is the call site the engine uses whenever the candidate block to
// mine changes, not just when a worker first goes idle.
func (p *Pool) AssignAll(order *types.WorkOrder) {
	p.mu.Lock()
	pids := make([]int, 0, len(p.procs))
	for pid := range p.procs {
		pids = append(pids, pid)
	}
	p.mu.Unlock()

	for _, pid := range pids {
		if err := p.Assign(pid, order); err != nil {
			log.WithError(err).WithField("pid", pid).Debug("assign failed")
		}
	}
}

// Healthy reports the number of workers currently in the Ready or Busy
// state.
func (p *Pool) Healthy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, proc := range p.procs {
		if s := proc.status(); s == types.WorkerReady || s == types.WorkerBusy {
			n++
		}
	}
	return n
}
