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

// WorkerStatus is the lifecycle state of one pool-supervised worker process
// (§3).
type WorkerStatus int

// Worker lifecycle states.
const (
	WorkerStarting WorkerStatus = iota
	WorkerReady
	WorkerBusy
	WorkerDead
)

func (s WorkerStatus) String() string {
	switch s {
	case WorkerStarting:
		return "starting"
	case WorkerReady:
		return "ready"
	case WorkerBusy:
		return "busy"
	case WorkerDead:
		return "dead"
	default:
		return "unknown"
	}
}

// WorkerState tracks one worker process's heartbeat and outstanding
// requests (§3).
type WorkerState struct {
	PID                 int
	LastHeartbeat       time.Time
	OutstandingRequests map[string]time.Time // msg_id -> sent_ts
	Status              WorkerStatus
}

// NewWorkerState returns a WorkerState starting in the `starting` state.
func NewWorkerState(pid int) *WorkerState {
	return &WorkerState{
		PID:                 pid,
		Status:              WorkerStarting,
		OutstandingRequests: make(map[string]time.Time),
	}
}

// WorkSession is the mining supervisor's session record (§3), created by
// worker.Init; its session id and worker pids are what the guard file's
// GuardRecord persists.
type WorkSession struct {
	SessionID string
	StartedAt time.Time
	MinKey    string
	Rovers    map[string]struct{}
	Workers   map[int]*WorkerState // pid -> state
}

// NewWorkSession returns an empty session with the given id.
func NewWorkSession(sessionID string) *WorkSession {
	return &WorkSession{
		SessionID: sessionID,
		StartedAt: time.Now(),
		Rovers:    make(map[string]struct{}),
		Workers:   make(map[int]*WorkerState),
	}
}

// GuardRecord is the JSON document persisted to the worker guard file
// (§6): `{session, timestamp, workers: [{pid}...]}`.
type GuardRecord struct {
	Session   string         `json:"session"`
	Timestamp int64          `json:"timestamp"`
	Workers   []GuardWorker  `json:"workers"`
}

// GuardWorker is one entry of GuardRecord.Workers.
type GuardWorker struct {
	PID int `json:"pid"`
}
