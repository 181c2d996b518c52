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

// Package main is the entry point for the ScriptFlow Meter service.
//
// The Meter tracks per-device monthly word usage for script generation:
// - Serves the /api/usage quota endpoint consumed by browser clients
// - Persists one record per (fingerprint, month) in Redis with a 30-day TTL
// - Falls back to an in-memory store when Redis is unreachable
// - Optionally records usage events to PostgreSQL for analytics
//
// Usage:
//
//	./meter
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	STORAGE_REDIS_URL - Redis connection string; unset means in-memory mode
//	DATABASE_URL - PostgreSQL connection string for usage events (optional)
//	MAX_WORDS_PER_MONTH - monthly word allowance (default: 40000)
//	METER_CONFIG_FILE - optional YAML config file path
package main

import (
	"scriptflow/platform/meter"
)

func main() {
	meter.Run()
}
