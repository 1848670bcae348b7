package imagery

import (
	"log"
	"net/http"
	"sort"
	"sync"
	"time"
)

// RateLimitEvent represents a rate limit occurrence for one provider
type RateLimitEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Provider   string    `json:"provider"`
	StatusCode int       `json:"statusCode"`
	Count      int       `json:"count"` // Consecutive rate-limited responses
}

// RateLimitTracker records which providers are answering with rate limit
// status codes. It never blocks or delays requests: the fallback chain moves
// on to the next source and the tracker only keeps state for reporting.
type RateLimitTracker struct {
	mu          sync.RWMutex
	rateLimited map[string]*RateLimitEvent // provider -> current rate limit state
	onRateLimit func(event RateLimitEvent)
	onRecovered func(provider string)
}

// NewRateLimitTracker creates a new rate limit tracker
func NewRateLimitTracker() *RateLimitTracker {
	return &RateLimitTracker{
		rateLimited: make(map[string]*RateLimitEvent),
	}
}

// SetOnRateLimit sets the callback for rate limit events
func (t *RateLimitTracker) SetOnRateLimit(callback func(event RateLimitEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRateLimit = callback
}

// SetOnRecovered sets the callback for recovery from rate limit
func (t *RateLimitTracker) SetOnRecovered(callback func(provider string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRecovered = callback
}

// IsRateLimitStatus reports whether a status code signals throttling
func IsRateLimitStatus(code int) bool {
	return code == http.StatusTooManyRequests || // Too Many Requests
		code == http.StatusForbidden || // Google uses 403 for quota exhaustion
		code == 509 // Bandwidth Limit Exceeded
}

// Observe analyzes a response status and updates provider state.
// Returns true when the status is a rate limit signal.
func (t *RateLimitTracker) Observe(provider string, statusCode int) bool {
	if !IsRateLimitStatus(statusCode) {
		if statusCode == http.StatusOK {
			t.checkRecovery(provider)
		}
		return false
	}

	t.mu.Lock()
	event, exists := t.rateLimited[provider]
	if !exists {
		event = &RateLimitEvent{Provider: provider}
		t.rateLimited[provider] = event
	}
	event.Timestamp = time.Now()
	event.StatusCode = statusCode
	event.Count++
	snapshot := *event
	callback := t.onRateLimit
	t.mu.Unlock()

	log.Printf("[RateLimit] %s rate limited (HTTP %d, %d consecutive)", provider, statusCode, snapshot.Count)

	if callback != nil {
		callback(snapshot)
	}
	return true
}

// checkRecovery clears provider state after a successful response
func (t *RateLimitTracker) checkRecovery(provider string) {
	t.mu.Lock()
	_, exists := t.rateLimited[provider]
	if exists {
		delete(t.rateLimited, provider)
	}
	callback := t.onRecovered
	t.mu.Unlock()

	if exists {
		log.Printf("[RateLimit] %s rate limit cleared", provider)
		if callback != nil {
			callback(provider)
		}
	}
}

// IsRateLimited checks if a provider is currently flagged
func (t *RateLimitTracker) IsRateLimited(provider string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, limited := t.rateLimited[provider]
	return limited
}

// State returns a copy of the current state for a provider, or nil
func (t *RateLimitTracker) State(provider string) *RateLimitEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if event, exists := t.rateLimited[provider]; exists {
		eventCopy := *event
		return &eventCopy
	}
	return nil
}

// Snapshot returns all flagged providers sorted by name
func (t *RateLimitTracker) Snapshot() []RateLimitEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()

	events := make([]RateLimitEvent, 0, len(t.rateLimited))
	for _, e := range t.rateLimited {
		events = append(events, *e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Provider < events[j].Provider })
	return events
}
