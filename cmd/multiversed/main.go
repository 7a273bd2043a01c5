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

// Command multiversed runs the consensus-and-gossip node: Multiverse,
// P2P protocol engine, and Worker Pool wired together by the engine
// package. Environment knobs follow §6; see config.FromEnv.
package main

import (
	"context"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/anchorchain/multiversed/config"
	"github.com/anchorchain/multiversed/engine"
	"github.com/anchorchain/multiversed/log"
)

func main() {
	cfg := config.FromEnv()

	listenAddr := os.Getenv("MULTIVERSE_LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":4689"
	}
	minerBin := os.Getenv("MULTIVERSE_WORKER_BIN")
	if minerBin == "" {
		minerBin = "multiverse-worker"
	}

	e, err := engine.New(cfg, minerBin)
	if err != nil {
		log.WithError(err).Fatal("engine init failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.Start(ctx, listenAddr); err != nil {
		log.WithError(err).Fatal("engine start failed")
	}
	log.WithField("addr", listenAddr).Info("multiversed listening")

	for _, addr := range seedPeers() {
		if err := e.Dial(addr); err != nil {
			log.WithError(err).WithField("addr", addr).Warn("seed dial failed")
		}
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, unix.SIGINT, unix.SIGTERM)
	signal.Ignore(unix.SIGHUP, unix.SIGTTIN, unix.SIGTTOU)

	<-signalCh

	if err := e.Stop(); err != nil {
		log.WithError(err).Fatal("engine stop failed")
	}
}

func seedPeers() []string {
	v := os.Getenv("MULTIVERSE_SEED_PEERS")
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}
