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
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// TestNewRecorder tests recorder creation
func TestNewRecorder(t *testing.T) {
	recorder := NewRecorder(nil)
	if recorder == nil {
		t.Error("NewRecorder() returned nil")
	}
}

// TestRecordOperation tests that operations are inserted with all fields
func TestRecordOperation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	tests := []struct {
		name  string
		event OperationEvent
	}{
		{
			name: "add operation",
			event: OperationEvent{
				Fingerprint:    "fp_abc123",
				Action:         "add",
				WordCount:      500,
				WordUsage:      500,
				Month:          "2025-03",
				Degraded:       false,
				LatencyMs:      12,
				HTTPStatusCode: 200,
			},
		},
		{
			name: "reset operation on degraded store",
			event: OperationEvent{
				Fingerprint:    "fp_def456",
				Action:         "reset",
				WordCount:      0,
				WordUsage:      0,
				Month:          "2025-03",
				Degraded:       true,
				LatencyMs:      1,
				HTTPStatusCode: 200,
			},
		},
	}

	recorder := NewRecorder(db)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectExec("INSERT INTO usage_events").
				WithArgs(tt.event.Fingerprint, tt.event.Action, tt.event.WordCount,
					tt.event.WordUsage, tt.event.Month, tt.event.Degraded,
					tt.event.LatencyMs, tt.event.HTTPStatusCode).
				WillReturnResult(sqlmock.NewResult(1, 1))

			if err := recorder.RecordOperation(tt.event); err != nil {
				t.Errorf("RecordOperation() returned error: %v", err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("Unmet sqlmock expectations: %v", err)
			}
		})
	}
}

// TestRecordOperationError tests that database errors are returned, not swallowed
func TestRecordOperationError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO usage_events").
		WillReturnError(sqlmock.ErrCancelled)

	recorder := NewRecorder(db)
	event := OperationEvent{
		Fingerprint:    "fp_abc",
		Action:         "subtract",
		WordCount:      100,
		WordUsage:      0,
		Month:          "2025-03",
		LatencyMs:      5,
		HTTPStatusCode: 200,
	}

	if err := recorder.RecordOperation(event); err == nil {
		t.Error("Expected error from failed insert, got nil")
	}
}
