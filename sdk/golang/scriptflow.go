// Package scriptflow is the Go SDK for the ScriptFlow word-usage metering
// service. It resolves a stable device fingerprint and provides typed
// wrappers over the /api/usage endpoint.
//
// The SDK is deliberately fail-open: every wrapper returns nil when usage
// cannot be determined (network failure, non-2xx response), and callers
// decide locally whether to proceed or block. Usage tracking must never
// take the generation flow down with it.
package scriptflow

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config represents configuration for the ScriptFlow usage client
type Config struct {
	BaseURL     string        // Required: Meter service URL, e.g. https://api.scriptflow.app
	Fingerprint string        // Optional: explicit device fingerprint; resolved automatically when empty
	Debug       bool          // Enable debug logging (default: false)
	Timeout     time.Duration // Request timeout (default: 10s)
}

// Client calls the word-usage metering API on behalf of one device
type Client struct {
	config     Config
	httpClient *http.Client

	mu          sync.Mutex
	fingerprint string // cached for the lifetime of the client
}

// UsageStatus is the usage snapshot returned by the metering API
type UsageStatus struct {
	WordUsage int    `json:"wordUsage"`
	Month     string `json:"month"`
	MaxWords  int    `json:"maxWords"`
}

// usageResponse is the raw wire shape of the metering API
type usageResponse struct {
	Success   bool   `json:"success"`
	WordUsage int    `json:"wordUsage"`
	Month     string `json:"month"`
	MaxWords  int    `json:"maxWords"`
	Error     string `json:"error,omitempty"`
}

// NewClient creates a new usage client with the given configuration
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	client := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}

	if config.Debug {
		log.Printf("[ScriptFlow] Usage client initialized - Endpoint: %s", config.BaseURL)
	}

	return client
}

// DeviceFingerprint resolves the device identifier used for quota
// tracking. Resolution order: explicit Config.Fingerprint, the
// SCRIPTFLOW_FINGERPRINT environment variable, then a deterministic hash
// of stable machine signals. The result is cached for the lifetime of the
// client.
func (c *Client) DeviceFingerprint() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fingerprint != "" {
		return c.fingerprint
	}

	if c.config.Fingerprint != "" {
		c.fingerprint = c.config.Fingerprint
		return c.fingerprint
	}

	if fp := os.Getenv("SCRIPTFLOW_FINGERPRINT"); fp != "" {
		c.fingerprint = fp
		return c.fingerprint
	}

	c.fingerprint = fallbackFingerprint()
	if c.config.Debug {
		log.Printf("[ScriptFlow] Using fallback fingerprint: %s", c.fingerprint)
	}
	return c.fingerprint
}

// fallbackFingerprint derives a short identifier from machine signals.
// The same machine always produces the same value; two machines rarely
// collide, which is all quota tracking needs.
func fallbackFingerprint() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME")
	}

	zone, _ := time.Now().Zone()

	signals := []string{
		runtime.GOOS,
		runtime.GOARCH,
		strconv.Itoa(runtime.NumCPU()),
		hostname,
		username,
		zone,
	}

	// 32-bit string hash, rendered in base 36 for a compact identifier
	var hash int32
	for _, ch := range strings.Join(signals, "|") {
		hash = hash*31 + ch
	}
	if hash < 0 {
		hash = -hash
	}

	return "fp_" + strconv.FormatInt(int64(hash), 36)
}

// GetWordUsage returns the current month's usage for this device, or nil
// when usage cannot be determined.
func (c *Client) GetWordUsage() *UsageStatus {
	endpoint := c.config.BaseURL + "/api/usage?fingerprint=" + url.QueryEscape(c.DeviceFingerprint())

	resp, err := c.httpClient.Get(endpoint)
	if err != nil {
		if c.config.Debug {
			log.Printf("[ScriptFlow] Failed to get word usage: %v", err)
		}
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	return c.decodeUsage(resp)
}

// AddWordUsage records wordCount generated words against this device's
// monthly quota. Returns the updated usage, or nil on failure.
func (c *Client) AddWordUsage(wordCount int) *UsageStatus {
	return c.syncUsage("add", wordCount)
}

// SubtractWordUsage returns words to the quota, for example when a
// generation is discarded. The server clamps the total at zero.
func (c *Client) SubtractWordUsage(wordCount int) *UsageStatus {
	return c.syncUsage("subtract", wordCount)
}

// ResetWordUsage clears this device's usage for the current month.
func (c *Client) ResetWordUsage() *UsageStatus {
	return c.syncUsage("reset", 0)
}

// syncUsage performs one POST against the metering API
func (c *Client) syncUsage(action string, wordCount int) *UsageStatus {
	body, err := json.Marshal(map[string]interface{}{
		"fingerprint": c.DeviceFingerprint(),
		"wordCount":   wordCount,
		"action":      action,
	})
	if err != nil {
		return nil
	}

	resp, err := c.httpClient.Post(c.config.BaseURL+"/api/usage", "application/json", bytes.NewReader(body))
	if err != nil {
		if c.config.Debug {
			log.Printf("[ScriptFlow] Failed to sync word usage (%s): %v", action, err)
		}
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	return c.decodeUsage(resp)
}

// decodeUsage turns an HTTP response into a UsageStatus, or nil when the
// call did not succeed.
func (c *Client) decodeUsage(resp *http.Response) *UsageStatus {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		if c.config.Debug {
			log.Printf("[ScriptFlow] Usage request failed: HTTP %d: %s", resp.StatusCode, string(raw))
		}
		return nil
	}

	var decoded usageResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if c.config.Debug {
			log.Printf("[ScriptFlow] Failed to decode usage response: %v", err)
		}
		return nil
	}

	return &UsageStatus{
		WordUsage: decoded.WordUsage,
		Month:     decoded.Month,
		MaxWords:  decoded.MaxWords,
	}
}
