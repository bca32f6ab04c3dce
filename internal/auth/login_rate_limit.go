package auth

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"postboard/internal/httpx"
	"postboard/internal/observability"
)

const maxTrackedClients = 5000

// LoginRateLimiter throttles login attempts per client address with a
// sliding window kept in process memory. In a multi-instance deployment each
// instance enforces its own window.
type LoginRateLimiter struct {
	mu             sync.Mutex
	maxHits        int
	window         time.Duration
	trustForwarded bool
	attempts       map[string][]time.Time
	now            func() time.Time
}

func NewLoginRateLimiter(maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		maxHits:  maxHits,
		window:   window,
		attempts: make(map[string][]time.Time),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TrustForwarded keys clients by the proxy-appended X-Forwarded-For hop
// instead of the connection address. Enable it only behind such a proxy.
func (l *LoginRateLimiter) TrustForwarded(trust bool) *LoginRateLimiter {
	l.trustForwarded = trust
	return l
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := observability.ClientIP(r, l.trustForwarded)
		retryAfter, limited := l.record(client, l.now())
		if limited {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			httpx.WriteError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// record counts an attempt for client and reports how long it must wait
// when the window is already full. Rejected attempts are not counted.
func (l *LoginRateLimiter) record(client string, now time.Time) (time.Duration, bool) {
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := inWindow(l.attempts[client], cutoff)
	if len(recent) >= l.maxHits {
		l.attempts[client] = recent
		wait := recent[0].Add(l.window).Sub(now)
		if wait < time.Second {
			wait = time.Second
		}
		return wait, true
	}

	l.attempts[client] = append(recent, now)
	if len(l.attempts) > maxTrackedClients {
		l.sweep(cutoff)
	}
	return 0, false
}

func (l *LoginRateLimiter) sweep(cutoff time.Time) {
	for client, hits := range l.attempts {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.attempts, client)
		}
	}
}

func inWindow(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0:0]
	for _, hit := range hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	return kept
}
