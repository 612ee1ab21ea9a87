package github

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// fallbackBackoff parks a token that was throttled without saying for how long
const fallbackBackoff = time.Minute

// rateLimit is what one response says about the quota of the token that sent it
type rateLimit struct {
	remaining  int // -1 when the header is absent
	reset      time.Time
	retryAfter time.Duration
}

func readRateLimit(h http.Header) rateLimit {
	rl := rateLimit{remaining: -1}
	if n, err := strconv.Atoi(h.Get("X-RateLimit-Remaining")); err == nil {
		rl.remaining = n
	}
	if sec, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil && sec > 0 {
		rl.reset = time.Unix(sec, 0).UTC()
	}
	if sec, err := strconv.Atoi(h.Get("Retry-After")); err == nil && sec > 0 {
		rl.retryAfter = time.Duration(sec) * time.Second
	}
	return rl
}

// resumeAt is when the token may be used again, zero if it is not exhausted
func (rl rateLimit) resumeAt(now time.Time) time.Time {
	if rl.retryAfter > 0 {
		return now.Add(rl.retryAfter)
	}
	if rl.remaining == 0 && rl.reset.After(now) {
		return rl.reset
	}
	return time.Time{}
}

// quota parks exhausted tokens until their window resets. The anonymous
// caller is tracked under the empty token.
type quota struct {
	mu    sync.Mutex
	until map[string]time.Time
}

func (q *quota) park(tok string, until time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.until == nil {
		q.until = map[string]time.Time{}
	}
	if until.After(q.until[tok]) {
		q.until[tok] = until
	}
}

// parked reports whether tok is still waiting out its window, and until when
func (q *quota) parked(tok string, now time.Time) (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.until[tok]
	if !ok {
		return time.Time{}, false
	}
	if !t.After(now) {
		delete(q.until, tok)
		return time.Time{}, false
	}
	return t, true
}
