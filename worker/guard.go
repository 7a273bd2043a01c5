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
	"encoding/json"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"

	"github.com/anchorchain/multiversed/errkind"
	"github.com/anchorchain/multiversed/types"
)

// readGuard loads the guard file at path. A missing file is not an error —
// it means no previous session was recorded.
func readGuard(path string) (*types.GuardRecord, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errkind.WorkerError("read guard file", err)
	}
	var rec types.GuardRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// A corrupt guard file is treated as "no session" rather than a
		// fatal error — §4.3 only cares that stale workers get
		// killed, and an unparseable record can't name any.
		return nil, nil
	}
	if err := validateGuard(&rec); err != nil {
		return nil, nil
	}
	return &rec, nil
}

// writeGuard persists rec to path, replacing it atomically via a temp file
// + rename so a crash mid-write can never leave a half-written guard.
func writeGuard(path string, rec *types.GuardRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errkind.WorkerError("marshal guard file", err)
	}
	tmp := path + ".tmp"
	if err := ioutil.WriteFile(tmp, raw, 0o600); err != nil {
		return errkind.WorkerError("write guard file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errkind.WorkerError("rename guard file", err)
	}
	return nil
}

// validateGuard checks the guard record against the schema §6
// names: `{session, timestamp, workers: [{pid}...]}` with a non-empty
// session id, a positive timestamp and positive pids. This is a JSON schema-validation
// check on top of the bare round-trip §6 describes.
func validateGuard(rec *types.GuardRecord) error {
	if rec.Session == "" {
		return errors.New("guard record missing session id")
	}
	if rec.Timestamp <= 0 {
		return errors.New("guard record missing timestamp")
	}
	for _, w := range rec.Workers {
		if w.PID <= 0 {
			return errors.New("guard record has a non-positive pid")
		}
	}
	return nil
}
