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
Package logger provides structured JSON logging for ScriptFlow services.

Every entry is emitted as a single JSON object on stdout so container
runtimes can ship logs without extra parsing. Entries carry the component
name, instance ID (from the INSTANCE_ID environment variable), container
hostname, and optionally the device fingerprint and request ID they relate
to.

Create a logger per component:

	log := logger.New("meter")

Log with fingerprint and request context where available:

	log.Info(fingerprint, requestID, "Usage updated", map[string]interface{}{
	    "action":     "add",
	    "word_usage": 500,
	})

Pass empty strings when no request context applies, for example during
startup.
*/
package logger
