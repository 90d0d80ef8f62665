package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Sentinel-Gate/rolegate/internal/domain/ratelimit"
)

// RateLimiter implements ratelimit.RateLimiter with GCRA over an in-memory
// map of theoretical arrival times. A background goroutine started by
// StartCleanup evicts keys idle for longer than maxTTL.
type RateLimiter struct {
	cells           map[string]time.Time
	mu              sync.Mutex
	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	maxTTL          time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

// NewRateLimiter creates a limiter that sweeps every 5 minutes and forgets
// keys idle for an hour.
func NewRateLimiter(logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithConfig(5*time.Minute, time.Hour, logger)
}

// NewRateLimiterWithConfig creates a limiter with custom sweep settings.
func NewRateLimiterWithConfig(cleanupInterval, maxTTL time.Duration, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		cells:           make(map[string]time.Time),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
		maxTTL:          maxTTL,
		logger:          logger,
		now:             time.Now,
	}
}

// Allow applies GCRA to key. A non-positive Rate is treated as 1 and a
// non-positive Burst as Rate.
func (r *RateLimiter) Allow(ctx context.Context, key string, config ratelimit.Config) (ratelimit.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if config.Rate <= 0 {
		config.Rate = 1
	}
	if config.Burst <= 0 {
		config.Burst = config.Rate
	}
	emission := config.Period / time.Duration(config.Rate)
	burstOffset := time.Duration(config.Burst) * emission

	tat, ok := r.cells[key]
	if !ok || tat.Before(now) {
		tat = now
	}

	if allowAt := tat.Add(-burstOffset + emission); now.Before(allowAt) {
		return ratelimit.Result{
			RetryAfter: allowAt.Sub(now),
			ResetAfter: tat.Sub(now),
		}, nil
	}

	tat = tat.Add(emission)
	r.cells[key] = tat

	remaining := 0
	if emission > 0 {
		remaining = int((burstOffset - tat.Sub(now)) / emission)
	}
	remaining = max(0, min(remaining, config.Burst))

	return ratelimit.Result{
		Allowed:    true,
		Remaining:  remaining,
		ResetAfter: tat.Sub(now),
	}, nil
}

// StartCleanup runs the eviction sweep until ctx is done or Stop is called.
func (r *RateLimiter) StartCleanup(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.maxTTL)
	cleaned := 0
	for key, tat := range r.cells {
		if tat.Before(cutoff) {
			delete(r.cells, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		r.logger.Debug("rate limiter cleanup completed",
			"cleaned_keys", cleaned,
			"remaining_keys", len(r.cells))
	}
}

// Stop ends the cleanup goroutine and waits for it. Safe to call more than
// once.
func (r *RateLimiter) Stop() {
	r.once.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

// Size returns the number of tracked keys.
func (r *RateLimiter) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cells)
}

// Compile-time interface verification.
var _ ratelimit.RateLimiter = (*RateLimiter)(nil)
