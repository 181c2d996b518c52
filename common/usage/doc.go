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

/*
Package usage records word-usage operations to PostgreSQL for analytics.

The quota API itself is served from the key-value store; this package is a
secondary, append-only trail of every mutating operation (add, subtract,
reset) so usage can be analyzed beyond the 30-day retention of the live
records.

Create a recorder with a database connection:

	recorder := usage.NewRecorder(db)

Record operations asynchronously so a slow database never delays the
response:

	go func() {
	    if err := recorder.RecordOperation(event); err != nil {
	        log.Printf("Failed to record usage: %v", err)
	    }
	}()

# Database Schema

Events are stored in the usage_events table:

	CREATE TABLE usage_events (
	    id               BIGSERIAL PRIMARY KEY,
	    fingerprint      TEXT NOT NULL,
	    action           TEXT NOT NULL,
	    word_count       INTEGER NOT NULL,
	    word_usage       INTEGER NOT NULL,
	    month_key        TEXT NOT NULL,
	    degraded         BOOLEAN NOT NULL DEFAULT FALSE,
	    latency_ms       BIGINT NOT NULL,
	    http_status_code INTEGER NOT NULL,
	    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

# Thread Safety

Recorder is safe for concurrent use. RecordOperation can be called from
multiple goroutines simultaneously.
*/
package usage
