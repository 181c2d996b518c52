// Copyright 2025 ScriptFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package usage

import (
	"database/sql"
	"log"
)

// Recorder handles recording usage events to the database
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates a new usage recorder with a database connection
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// OperationEvent represents a mutating usage operation to be recorded
type OperationEvent struct {
	Fingerprint    string
	Action         string // "add", "subtract" or "reset"
	WordCount      int    // requested delta (0 for reset)
	WordUsage      int    // resulting monthly total
	Month          string // "YYYY-MM" bucket the operation landed in
	Degraded       bool   // true when served from the in-memory fallback
	LatencyMs      int64
	HTTPStatusCode int
}

// RecordOperation records a usage operation to the database.
// Callers invoke it from a goroutine - errors are logged but don't block responses.
func (r *Recorder) RecordOperation(event OperationEvent) error {
	_, err := r.db.Exec(`
		INSERT INTO usage_events (
			fingerprint, action, word_count, word_usage, month_key,
			degraded, latency_ms, http_status_code
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.Fingerprint, event.Action, event.WordCount, event.WordUsage,
		event.Month, event.Degraded, event.LatencyMs, event.HTTPStatusCode)

	if err != nil {
		log.Printf("[USAGE] Failed to record operation: %v", err)
	}

	return err
}
