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

package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"strings"
	"testing"
	"time"
)

// TestNew tests logger initialization
func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		component      string
		instanceID     string
		expectedComp   string
		expectedInstID string
	}{
		{
			name:           "with instance ID set",
			component:      "meter",
			instanceID:     "meter-001",
			expectedComp:   "meter",
			expectedInstID: "meter-001",
		},
		{
			name:           "without instance ID",
			component:      "meter",
			instanceID:     "",
			expectedComp:   "meter",
			expectedInstID: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.instanceID != "" {
				t.Setenv("INSTANCE_ID", tt.instanceID)
			} else {
				if err := os.Unsetenv("INSTANCE_ID"); err != nil {
					t.Fatalf("Failed to unset INSTANCE_ID: %v", err)
				}
			}

			l := New(tt.component)

			if l.Component != tt.expectedComp {
				t.Errorf("Expected component %s, got %s", tt.expectedComp, l.Component)
			}

			if l.InstanceID != tt.expectedInstID {
				t.Errorf("Expected instance ID %s, got %s", tt.expectedInstID, l.InstanceID)
			}

			if l.Container == "" {
				t.Error("Expected container to be set from hostname")
			}
		})
	}
}

// TestLogLevels tests all log level methods
func TestLogLevels(t *testing.T) {
	tests := []struct {
		name        string
		logFunc     func(*Logger, string, string, string, map[string]interface{})
		level       LogLevel
		message     string
		fingerprint string
		requestID   string
		fields      map[string]interface{}
	}{
		{
			name:        "Info log",
			logFunc:     (*Logger).Info,
			level:       INFO,
			message:     "Usage updated",
			fingerprint: "fp_abc123",
			requestID:   "req-456",
			fields:      map[string]interface{}{"action": "add"},
		},
		{
			name:        "Error log",
			logFunc:     (*Logger).Error,
			level:       ERROR,
			message:     "Store write failed",
			fingerprint: "fp_def456",
			requestID:   "req-012",
			fields:      map[string]interface{}{"status_code": 500},
		},
		{
			name:        "Warn log",
			logFunc:     (*Logger).Warn,
			level:       WARN,
			message:     "Falling back to in-memory store",
			fingerprint: "",
			requestID:   "",
			fields:      nil,
		},
		{
			name:        "Debug log",
			logFunc:     (*Logger).Debug,
			level:       DEBUG,
			message:     "Record decoded",
			fingerprint: "fp_xyz",
			requestID:   "req-uvw",
			fields:      map[string]interface{}{"word_usage": 500},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log.SetOutput(&buf)
			defer log.SetOutput(os.Stderr)

			l := New("test-component")
			tt.logFunc(l, tt.fingerprint, tt.requestID, tt.message, tt.fields)

			output := buf.String()

			// Extract JSON from the log line (skip the stdlib timestamp prefix)
			jsonStart := strings.Index(output, "{")
			if jsonStart == -1 {
				t.Fatal("No JSON found in log output")
			}
			jsonStr := strings.TrimSpace(output[jsonStart:])

			var entry LogEntry
			if err := json.Unmarshal([]byte(jsonStr), &entry); err != nil {
				t.Fatalf("Failed to parse JSON log: %v\nOutput: %s", err, output)
			}

			if entry.Level != tt.level {
				t.Errorf("Expected level %s, got %s", tt.level, entry.Level)
			}

			if entry.Message != tt.message {
				t.Errorf("Expected message '%s', got '%s'", tt.message, entry.Message)
			}

			if entry.Fingerprint != tt.fingerprint {
				t.Errorf("Expected fingerprint '%s', got '%s'", tt.fingerprint, entry.Fingerprint)
			}

			if entry.RequestID != tt.requestID {
				t.Errorf("Expected request ID '%s', got '%s'", tt.requestID, entry.RequestID)
			}

			if entry.Component != "test-component" {
				t.Errorf("Expected component 'test-component', got '%s'", entry.Component)
			}

			if _, err := time.Parse(time.RFC3339Nano, entry.Timestamp); err != nil {
				t.Errorf("Invalid timestamp format: %s", entry.Timestamp)
			}

			for key, expected := range tt.fields {
				actual, ok := entry.Fields[key]
				if !ok {
					t.Errorf("Expected field '%s' not found", key)
					continue
				}
				// JSON unmarshals numbers as float64
				if exp, isInt := expected.(int); isInt {
					if got, isFloat := actual.(float64); !isFloat || int(got) != exp {
						t.Errorf("Field '%s': expected %v, got %v", key, expected, actual)
					}
					continue
				}
				if actual != expected {
					t.Errorf("Field '%s': expected %v, got %v", key, expected, actual)
				}
			}
		})
	}
}

// TestInfoWithDuration tests the duration helper
func TestInfoWithDuration(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	l := New("meter")
	l.InfoWithDuration("fp_abc", "req-1", "Request complete", 12.5, nil)

	output := buf.String()
	jsonStart := strings.Index(output, "{")
	if jsonStart == -1 {
		t.Fatal("No JSON found in log output")
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(output[jsonStart:])), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}

	if entry.Fields["duration_ms"] != 12.5 {
		t.Errorf("Expected duration_ms 12.5, got %v", entry.Fields["duration_ms"])
	}
}

// TestErrorWithCode tests the status code helper
func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	l := New("meter")
	l.ErrorWithCode("fp_abc", "req-1", "Handler error", 500, os.ErrDeadlineExceeded, nil)

	output := buf.String()
	jsonStart := strings.Index(output, "{")
	if jsonStart == -1 {
		t.Fatal("No JSON found in log output")
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(output[jsonStart:])), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}

	if entry.Fields["status_code"] != float64(500) {
		t.Errorf("Expected status_code 500, got %v", entry.Fields["status_code"])
	}
	if entry.Fields["error"] == "" {
		t.Error("Expected error field to be set")
	}
}
