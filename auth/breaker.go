package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/relayhq/chat-api/metrics"
)

// Cache is the slice of the cache layer the auth package needs. All
// operations degrade gracefully: a miss or failed write is never an
// error.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
	InvalidatePattern(ctx context.Context, pattern string) bool
}

const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"

	breakerKey = "auth:circuit_breaker"
)

// breakerData is the persisted breaker state. Sharing it through the
// cache lets every instance see the authorization service failing,
// not just the one that tripped.
type breakerData struct {
	State            string    `json:"state"`
	FailureCount     int       `json:"failure_count"`
	LastFailureTime  time.Time `json:"last_failure_time"`
	HalfOpenAttempts int       `json:"half_open_attempts"`
}

// Breaker is a circuit breaker for authorization service calls. When
// the cache is disabled the state is instance-local.
type Breaker struct {
	cache     Cache
	threshold int
	coolDown  time.Duration
	maxProbes int

	mu    sync.Mutex
	local breakerData

	now func() time.Time
}

func NewBreaker(cache Cache, threshold int, coolDown time.Duration, maxProbes int) *Breaker {
	return &Breaker{
		cache:     cache,
		threshold: threshold,
		coolDown:  coolDown,
		maxProbes: maxProbes,
		local:     breakerData{State: StateClosed},
		now:       time.Now,
	}
}

// ShouldAttempt reports whether a call to the authorization service
// may proceed, moving an open breaker to half-open once the cool-down
// has elapsed.
func (b *Breaker) ShouldAttempt(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := b.load(ctx)
	switch data.State {
	case StateOpen:
		if b.now().Sub(data.LastFailureTime) < b.coolDown {
			return false
		}
		b.transition(&data, StateHalfOpen)
		data.HalfOpenAttempts = 1
		b.save(ctx, data)
		return true
	case StateHalfOpen:
		if data.HalfOpenAttempts >= b.maxProbes {
			return false
		}
		data.HalfOpenAttempts++
		b.save(ctx, data)
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker after a successful call.
func (b *Breaker) RecordSuccess(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := b.load(ctx)
	if data.State != StateClosed {
		b.transition(&data, StateClosed)
	}
	data.FailureCount = 0
	data.HalfOpenAttempts = 0
	b.save(ctx, data)
}

// RecordFailure counts a failed call. A half-open probe failure
// reopens immediately; a closed breaker opens at the threshold.
func (b *Breaker) RecordFailure(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := b.load(ctx)
	data.FailureCount++
	data.LastFailureTime = b.now()

	switch data.State {
	case StateHalfOpen:
		b.transition(&data, StateOpen)
		data.HalfOpenAttempts = 0
	case StateClosed:
		if data.FailureCount >= b.threshold {
			b.transition(&data, StateOpen)
			slog.Error("circuit breaker opened",
				"failure_count", data.FailureCount,
				"threshold", b.threshold)
		}
	}
	b.save(ctx, data)
}

// State returns the current breaker state name.
func (b *Breaker) State(ctx context.Context) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(ctx).State
}

func (b *Breaker) transition(data *breakerData, to string) {
	from := data.State
	if from == to {
		return
	}
	data.State = to
	metrics.CircuitBreakerTransitionsTotal.WithLabelValues(from, to).Inc()
	metrics.CircuitBreakerState.Set(stateValue(to))
	slog.Info("circuit breaker transition", "from", from, "to", to)
}

func stateValue(state string) float64 {
	switch state {
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// load pulls shared state from the cache, falling back to the local
// copy when the cache is unavailable or holds garbage.
func (b *Breaker) load(ctx context.Context) breakerData {
	raw, ok := b.cache.Get(ctx, breakerKey)
	if !ok {
		return b.local
	}
	var data breakerData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		slog.Warn("circuit breaker state unreadable, resetting", "error", err)
		return b.local
	}
	if data.State == "" {
		data.State = StateClosed
	}
	return data
}

func (b *Breaker) save(ctx context.Context, data breakerData) {
	b.local = data
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	// Persist for twice the cool-down so an idle open breaker can
	// still expire back to a clean slate.
	b.cache.Set(ctx, breakerKey, string(raw), 2*b.coolDown)
}
