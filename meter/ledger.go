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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"scriptflow/platform/shared/logger"
)

// defaultMaxWords is the monthly word allowance reported to clients. The
// ledger reports it but never enforces it; the UI decides when to block
// further generation.
const defaultMaxWords = 40000

// usageTTL is how long a usage record lives after its last write. The TTL
// is anchored to the last write, not the calendar month boundary, so a
// device active late in a month keeps that month's counter into the next
// one while a new month key accumulates in parallel.
const usageTTL = 2592000 * time.Second

// Action is one of the four usage operations a client may request.
type Action string

const (
	ActionAdd      Action = "add"
	ActionSubtract Action = "subtract"
	ActionGet      Action = "get"
	ActionReset    Action = "reset"
)

var (
	// ErrMissingFingerprint reports a request without a device identity.
	ErrMissingFingerprint = errors.New("fingerprint required")
	// ErrInvalidAction reports an action outside the four known literals.
	ErrInvalidAction = errors.New("invalid action")
)

// ParseAction validates a client-supplied action string.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionAdd, ActionSubtract, ActionGet, ActionReset:
		return Action(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// usageRecord is the persisted JSON blob for one (fingerprint, month) pair.
type usageRecord struct {
	WordUsage int    `json:"wordUsage"`
	Month     string `json:"month"`
}

// Result is the outcome of a ledger operation.
type Result struct {
	WordUsage int
	Month     string
	MaxWords  int
}

// Ledger applies usage operations to the current month's bucket for a
// device fingerprint. It owns record interpretation: decoding, the
// default-to-zero policy on missing or unreadable records, and the clamp
// on subtract. The Store owns physical persistence.
type Ledger struct {
	store    Store
	maxWords int
	log      *logger.Logger
	now      func() time.Time
}

// NewLedger creates a ledger over the given store. maxWords <= 0 selects
// the default allowance.
func NewLedger(store Store, maxWords int, log *logger.Logger) *Ledger {
	if maxWords <= 0 {
		maxWords = defaultMaxWords
	}
	return &Ledger{
		store:    store,
		maxWords: maxWords,
		log:      log,
		now:      time.Now,
	}
}

// monthKey formats a time as the zero-padded "YYYY-MM" billing period.
func monthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// storageKey composes the addressable unit in the store.
func storageKey(fingerprint, month string) string {
	return "usage:" + fingerprint + ":" + month
}

// Apply performs one usage operation and returns the resulting total for
// the current month. Reads that fail for any reason (store error,
// malformed stored JSON) count as zero usage rather than failing the
// operation; usage tracking degrades instead of blocking generation.
//
// wordCount follows the source's lenient policy: callers that could not
// produce a number pass 0, turning add/subtract into no-ops rather than
// errors. get never writes; add, subtract and reset persist the new value
// unconditionally (last writer wins) with a 30-day TTL.
func (l *Ledger) Apply(ctx context.Context, fingerprint string, action Action, wordCount int) (Result, error) {
	if fingerprint == "" {
		return Result{}, ErrMissingFingerprint
	}
	if _, err := ParseAction(string(action)); err != nil {
		return Result{}, err
	}

	month := monthKey(l.now())
	key := storageKey(fingerprint, month)
	current := l.read(ctx, key, fingerprint)

	newUsage := current
	switch action {
	case ActionAdd:
		newUsage = current + wordCount
	case ActionSubtract:
		newUsage = current - wordCount
		if newUsage < 0 {
			newUsage = 0
		}
	case ActionReset:
		newUsage = 0
	case ActionGet:
		return Result{WordUsage: current, Month: month, MaxWords: l.maxWords}, nil
	}

	data, err := json.Marshal(usageRecord{WordUsage: newUsage, Month: month})
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode usage record: %w", err)
	}

	if err := l.store.Set(ctx, key, string(data), usageTTL); err != nil {
		return Result{}, fmt.Errorf("failed to persist usage record: %w", err)
	}

	return Result{WordUsage: newUsage, Month: month, MaxWords: l.maxWords}, nil
}

// read returns the current usage for a key, treating every failure mode
// as zero.
func (l *Ledger) read(ctx context.Context, key, fingerprint string) int {
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil {
		l.log.Warn(fingerprint, "", "Error reading usage record, treating as zero", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return 0
	}
	if !ok {
		return 0
	}

	var rec usageRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		l.log.Warn(fingerprint, "", "Malformed usage record, treating as zero", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return 0
	}
	if rec.WordUsage < 0 {
		return 0
	}
	return rec.WordUsage
}
