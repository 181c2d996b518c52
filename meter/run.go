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
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"scriptflow/platform/common/usage"
	"scriptflow/platform/shared/logger"
)

// ScriptFlow Meter - Word Usage Metering Service
// Tracks per-device monthly word quotas for the script generation UI.

// Prometheus metrics
var (
	promUsageRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptflow_meter_usage_requests_total",
			Help: "Total number of usage requests processed, by action and status",
		},
		[]string{"action", "status"},
	)
	promUsageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scriptflow_meter_request_duration_milliseconds",
			Help:    "Usage request duration in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
		},
		[]string{"action"},
	)
	promStoreDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scriptflow_meter_store_degraded",
			Help: "1 when the durable store has been replaced by the in-memory fallback",
		},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promUsageRequests)
	prometheus.MustRegister(promUsageDuration)
	prometheus.MustRegister(promStoreDegraded)
}

// Application readiness state for health checks
var appReady atomic.Bool

// Global router and server - allows health checks to pass immediately
// while initialization happens
var (
	globalRouter *mux.Router
	globalCORS   *cors.Cors
)

// initServerImmediately starts the HTTP server with just /health so load
// balancer health checks pass while the store and database connections
// come up. Remaining routes are added after initialization completes and
// the server never shuts down, so there is no transition gap.
func initServerImmediately(port string) {
	globalRouter = mux.NewRouter()

	globalCORS = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		// Browser preflights expect 200 per the published API contract
		OptionsSuccessStatus: http.StatusOK,
	})

	globalRouter.HandleFunc("/health", readinessAwareHealthHandler).Methods("GET")

	go func() {
		handler := globalCORS.Handler(globalRouter)
		log.Printf("🚀 ScriptFlow Meter starting on port %s (status: starting)", port)
		if err := http.ListenAndServe(":"+port, handler); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Small delay to ensure server is ready to accept connections
	time.Sleep(50 * time.Millisecond)
}

// readinessAwareHealthHandler returns health status based on initialization state
func readinessAwareHealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := "starting"
	if appReady.Load() {
		status = "healthy"
	}
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"service":   "scriptflow-meter",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}

// Run is the exported entry point for the meter service. It blocks for
// the lifetime of the process.
func Run() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	initServerImmediately(cfg.Port)

	lg := logger.New("meter")

	store := NewStore(cfg.RedisURL, lg)

	var recorder *usage.Recorder
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err == nil {
			err = db.Ping()
		}
		if err != nil {
			// Usage analytics are best-effort; the quota API works without them
			lg.Warn("", "", "Usage event recording disabled", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			recorder = usage.NewRecorder(db)
			log.Println("✅ Usage event recording enabled")
		}
	}

	ledger := NewLedger(store, cfg.MaxWords, lg)

	degraded := func() bool { return false }
	if fs, ok := store.(*fallbackStore); ok {
		degraded = fs.Degraded
	}

	api := newUsageAPI(ledger, recorder, degraded, lg)

	globalRouter.Handle("/metrics", promhttp.Handler()).Methods("GET")
	globalRouter.HandleFunc("/api/usage", api.handleUsage)

	appReady.Store(true)
	log.Printf("✅ ScriptFlow Meter ready on port %s (max words: %d)", cfg.Port, cfg.MaxWords)

	select {}
}
