package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// rateLimitIndicators are the throttling phrases known to show up in page
// titles or content when the site pushes back.
var rateLimitIndicators = []string{
	"too many requests",
	"rate limit",
	"rate limiting",
	"try again later",
	"unusual traffic",
	"excessive requests",
	"429",
	"throttled",
}

// RateLimitPolicy bounds the wait-and-recheck loop.
type RateLimitPolicy struct {
	BaseWait   time.Duration
	MaxRetries int
}

// DefaultRateLimitPolicy waits 30s, 60s, 120s before giving up.
func DefaultRateLimitPolicy() RateLimitPolicy {
	return RateLimitPolicy{
		BaseWait:   30 * time.Second,
		MaxRetries: 3,
	}
}

// RateLimited reports whether the page state shows throttling indicators.
func RateLimited(state *PageState) bool {
	title := strings.ToLower(state.Title)
	body := strings.ToLower(state.BodyText)
	for _, indicator := range rateLimitIndicators {
		if strings.Contains(title, indicator) {
			log.Printf("[RateLimit] Throttling indicator %q in page title", indicator)
			return true
		}
		if strings.Contains(body, indicator) {
			log.Printf("[RateLimit] Throttling indicator %q in page content", indicator)
			return true
		}
	}
	return false
}

// WaitOutRateLimit backs off exponentially, reloading and re-checking the
// page after each wait. Returns an error when the throttling persists past
// the retry budget.
func WaitOutRateLimit(ctx context.Context, driver Driver, policy RateLimitPolicy) error {
	for retry := 0; retry < policy.MaxRetries; retry++ {
		wait := policy.BaseWait * (1 << retry)
		log.Printf("[RateLimit] Waiting %v before recheck (retry %d/%d)", wait, retry+1, policy.MaxRetries)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := driver.Reload(ctx); err != nil {
			if IsInvalidSession(err) {
				return err
			}
			log.Printf("[RateLimit] Reload failed during backoff: %v", err)
			continue
		}

		state, err := driver.PageState(ctx)
		if err != nil {
			if IsInvalidSession(err) {
				return err
			}
			log.Printf("[RateLimit] Page state read failed during backoff: %v", err)
			continue
		}
		if !RateLimited(state) {
			log.Printf("[RateLimit] Throttling cleared after waiting")
			return nil
		}
	}
	return fmt.Errorf("rate limiting persisted after %d retries", policy.MaxRetries)
}
