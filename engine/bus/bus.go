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

// Package bus is the internal event dispatcher C9 owns. §9 flags
// the "event emitter with named topics" pattern for replacement: instead of
// CovenantSQL's chainbus.ChainBus (string topics, reflect.Value callbacks,
// arbitrary argument lists), topics are a closed, compile-time-checked enum
// and every handler has one fixed signature. Dispatch is still grounded on
// chainbus/bus.go's shape — a mutex-guarded map of topic to handler slice,
// published to from a single loop — just without the reflection.
package bus

import (
	"sync"

	"github.com/anchorchain/multiversed/log"
	"github.com/anchorchain/multiversed/types"
)

// Topic enumerates every event the core publishes or subscribes to
// (§6: "Events on the internal bus").
type Topic int

const (
	PutBlock Topic = iota
	PutBlockList
	PutMultiverse
	AnnounceNewBlock
	QSend
	GetBlockList
	GetMultiverse
	numTopics
)

func (t Topic) String() string {
	switch t {
	case PutBlock:
		return "putBlock"
	case PutBlockList:
		return "putBlockList"
	case PutMultiverse:
		return "putMultiverse"
	case AnnounceNewBlock:
		return "announceNewBlock"
	case QSend:
		return "qsend"
	case GetBlockList:
		return "getBlockList"
	case GetMultiverse:
		return "getMultiverse"
	default:
		return "unknown"
	}
}

// Handler receives the payload published for a topic. Handlers run
// synchronously on the single dispatcher goroutine, in subscription order,
// so a slow handler delays every later event on every topic; once the
// queue is full it also blocks Publish.
type Handler func(types.EventPayload)

// Event is one message in flight on the bus.
type Event struct {
	Topic   Topic
	Payload types.EventPayload
}

// Bus is the single dispatcher §9 calls for: one goroutine reads a
// queue and fans each event out to every handler subscribed to its topic.
type Bus struct {
	mu       sync.RWMutex
	handlers [numTopics][]Handler
	events   chan Event
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New returns a Bus with a queue of the given depth. A depth of 0 makes
// Publish block until the dispatcher goroutine accepts the event.
func New(queueDepth int) *Bus {
	return &Bus{
		events: make(chan Event, queueDepth),
		stop:   make(chan struct{}),
	}
}

// Subscribe registers h to run whenever topic is published.
func (b *Bus) Subscribe(topic Topic, h Handler) {
	if topic < 0 || topic >= numTopics || h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish enqueues payload for delivery to topic's subscribers. Before Run
// starts, events queue up to the bus's queue depth; past that, Publish
// blocks until the dispatcher takes an event.
func (b *Bus) Publish(topic Topic, payload types.EventPayload) {
	if topic < 0 || topic >= numTopics {
		log.WithField("topic", int(topic)).Warn("publish to unknown bus topic dropped")
		return
	}
	b.events <- Event{Topic: topic, Payload: payload}
}

// Run drains the event queue until Stop is called. It is meant to be
// started once, in its own goroutine, by the engine at startup.
func (b *Bus) Run() {
	b.wg.Add(1)
	defer b.wg.Done()
	for {
		select {
		case ev := <-b.events:
			b.dispatch(ev)
		case <-b.stop:
			return
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[ev.Topic]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(ev.Payload)
	}
}

// Stop halts the dispatcher loop started by Run and waits for it to exit.
// Events already enqueued but not yet dispatched are dropped.
func (b *Bus) Stop() {
	close(b.stop)
	b.wg.Wait()
}
