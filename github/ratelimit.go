package github

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

const (
	baseDelay      = 1 * time.Second
	jitterFraction = 0.25
)

// RateLimit represents GitHub's rate limit information
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// parseRateLimit parses rate limit information from response headers.
// It returns nil when the headers are absent.
func parseRateLimit(resp *http.Response) *RateLimit {
	if resp == nil {
		return nil
	}
	remainingStr := resp.Header.Get("X-RateLimit-Remaining")
	resetStr := resp.Header.Get("X-RateLimit-Reset")
	if remainingStr == "" && resetStr == "" {
		return nil
	}

	rl := &RateLimit{}
	rl.Limit, _ = strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))
	rl.Remaining, _ = strconv.Atoi(remainingStr)
	if reset, err := strconv.ParseInt(resetStr, 10, 64); err == nil {
		rl.Reset = time.Unix(reset, 0)
	}
	return rl
}

// isRateLimitResponse reports whether resp is a 403 or 429. GitHub uses 403
// for both primary and secondary limits.
func isRateLimitResponse(resp *http.Response) bool {
	return resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests)
}

func isServerError(resp *http.Response) bool {
	return resp != nil && resp.StatusCode >= 500 && resp.StatusCode < 600
}

// backoff returns the delay before retry attempt (0-indexed): 1s, 2s, 4s...
// capped at maxDelay, plus up to 25% jitter.
func backoff(attempt int, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := time.Duration(math.Pow(2, float64(attempt))) * baseDelay
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(float64(delay) * jitterFraction * rand.Float64())
	return delay + jitter
}

// rateLimitWait decides how long to wait after a rate-limited response.
// The reset header wins, then Retry-After. The result never shrinks below
// the exponential schedule for the attempt and never exceeds maxDelay.
func rateLimitWait(resp *http.Response, attempt int, maxDelay time.Duration) time.Duration {
	wait := backoff(attempt, maxDelay)

	if rl := parseRateLimit(resp); rl != nil && rl.Remaining == 0 && !rl.Reset.IsZero() {
		if d := time.Until(rl.Reset); d > wait {
			wait = d
		}
	} else if resp != nil {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			if d := time.Duration(secs) * time.Second; d > wait {
				wait = d
			}
		}
	}

	if maxDelay > 0 && wait > maxDelay {
		wait = maxDelay
	}
	return wait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
