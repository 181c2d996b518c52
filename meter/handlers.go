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

package meter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"scriptflow/platform/common/usage"
	"scriptflow/platform/shared/logger"
)

// usageRequest is the POST body for /api/usage. WordCount is untyped on
// purpose: the contract tolerates missing or non-numeric values and
// treats them as zero instead of rejecting the request.
type usageRequest struct {
	Fingerprint string      `json:"fingerprint"`
	WordCount   interface{} `json:"wordCount"`
	Action      string      `json:"action"`
}

// usageResponse is the success shape for both GET and POST.
type usageResponse struct {
	Success   bool   `json:"success"`
	WordUsage int    `json:"wordUsage"`
	Month     string `json:"month"`
	MaxWords  int    `json:"maxWords"`
}

// errorResponse is the failure shape for all status codes.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// usageAPI translates HTTP requests into ledger calls. It owns request
// validation and response shaping; the ledger owns the accounting.
type usageAPI struct {
	ledger   *Ledger
	recorder *usage.Recorder // nil when DATABASE_URL is not configured
	degraded func() bool
	log      *logger.Logger
}

func newUsageAPI(ledger *Ledger, recorder *usage.Recorder, degraded func() bool, log *logger.Logger) *usageAPI {
	if degraded == nil {
		degraded = func() bool { return false }
	}
	return &usageAPI{
		ledger:   ledger,
		recorder: recorder,
		degraded: degraded,
		log:      log,
	}
}

// handleUsage dispatches /api/usage by method. Every response, including
// errors, carries the permissive CORS headers the browser clients expect.
func (a *usageAPI) handleUsage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodPost:
		a.handlePost(w, r)
	case http.MethodGet:
		a.handleGet(w, r)
	default:
		a.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	}
}

func (a *usageAPI) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.New().String()

	var req usageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.log.ErrorWithCode("", requestID, "Failed to decode usage request", http.StatusInternalServerError, err, nil)
		a.observe("unknown", http.StatusInternalServerError, start)
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error", Details: err.Error()})
		return
	}

	if req.Fingerprint == "" {
		a.observe(req.Action, http.StatusBadRequest, start)
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Fingerprint required"})
		return
	}

	action, err := ParseAction(req.Action)
	if err != nil {
		a.observe(req.Action, http.StatusBadRequest, start)
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid action"})
		return
	}

	wordCount := coerceWordCount(req.WordCount)

	res, err := a.ledger.Apply(r.Context(), req.Fingerprint, action, wordCount)
	if err != nil {
		a.log.ErrorWithCode(req.Fingerprint, requestID, "Usage operation failed", http.StatusInternalServerError, err, map[string]interface{}{
			"action": string(action),
		})
		a.observe(string(action), http.StatusInternalServerError, start)
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error", Details: err.Error()})
		return
	}

	a.record(action, req.Fingerprint, wordCount, res, start)
	a.observe(string(action), http.StatusOK, start)
	a.log.InfoWithDuration(req.Fingerprint, requestID, "Usage operation applied", float64(time.Since(start).Milliseconds()), map[string]interface{}{
		"action":     string(action),
		"word_count": wordCount,
		"word_usage": res.WordUsage,
		"month":      res.Month,
	})
	a.writeJSON(w, http.StatusOK, usageResponse{
		Success:   true,
		WordUsage: res.WordUsage,
		Month:     res.Month,
		MaxWords:  res.MaxWords,
	})
}

func (a *usageAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.New().String()

	fingerprint := r.URL.Query().Get("fingerprint")
	if fingerprint == "" {
		a.observe(string(ActionGet), http.StatusBadRequest, start)
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Fingerprint required"})
		return
	}

	res, err := a.ledger.Apply(r.Context(), fingerprint, ActionGet, 0)
	if err != nil {
		a.log.ErrorWithCode(fingerprint, requestID, "Usage lookup failed", http.StatusInternalServerError, err, nil)
		a.observe(string(ActionGet), http.StatusInternalServerError, start)
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error", Details: err.Error()})
		return
	}

	a.observe(string(ActionGet), http.StatusOK, start)
	a.writeJSON(w, http.StatusOK, usageResponse{
		Success:   true,
		WordUsage: res.WordUsage,
		Month:     res.Month,
		MaxWords:  res.MaxWords,
	})
}

// record persists a usage event for analytics. Recording is asynchronous
// and fail-open: a slow or broken database never delays the response.
// get operations don't change state and are not recorded.
func (a *usageAPI) record(action Action, fingerprint string, wordCount int, res Result, start time.Time) {
	if a.recorder == nil || action == ActionGet {
		return
	}

	event := usage.OperationEvent{
		Fingerprint:    fingerprint,
		Action:         string(action),
		WordCount:      wordCount,
		WordUsage:      res.WordUsage,
		Month:          res.Month,
		Degraded:       a.degraded(),
		LatencyMs:      time.Since(start).Milliseconds(),
		HTTPStatusCode: http.StatusOK,
	}
	go func() {
		_ = a.recorder.RecordOperation(event)
	}()
}

func (a *usageAPI) observe(action string, status int, start time.Time) {
	promUsageRequests.WithLabelValues(action, strconv.Itoa(status)).Inc()
	promUsageDuration.WithLabelValues(action).Observe(float64(time.Since(start).Milliseconds()))
}

func (a *usageAPI) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Error("", "", "Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

// coerceWordCount mirrors the JavaScript "typeof wordCount === 'number'"
// check: only JSON numbers count, everything else is zero.
func coerceWordCount(v interface{}) int {
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}
