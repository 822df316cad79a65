package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/finrag-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained per-IP rate on /api/query and
	// /api/ingest in requests per second.
	defaultRateLimit = 5
	// defaultRateBurst is the per-IP burst. Batch ingest scripts post in
	// bursts, so it is generous.
	defaultRateBurst = 20
	// limiterIdle is how long an IP may stay silent before its bucket is
	// dropped.
	limiterIdle = 5 * time.Minute
	// sweepEvery is the interval of the idle-bucket sweep.
	sweepEvery = time.Minute
)

// bucket is one client's token bucket.
type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a token bucket per client IP. Rejections answer 429
// with a Retry-After computed from the bucket's refill time.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int

	// now is the clock; tests replace it.
	now func() time.Time
	// onReject is called once per rejected request. May be nil.
	onReject func(handler string)
}

// newRateLimiter returns a limiter and starts its sweep goroutine, which
// runs until stop is called.
func newRateLimiter(rps float64, burst int, onReject func(string)) (rl *rateLimiter, stop func()) {
	rl = &rateLimiter{
		buckets:  make(map[string]*bucket),
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
		onReject: onReject,
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(sweepEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				rl.sweep()
			}
		}
	}()
	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

// reserve takes one token for ip. It returns 0 when the request may
// proceed, or how long the client should wait.
func (rl *rateLimiter) reserve(ip string) time.Duration {
	rl.mu.Lock()
	now := rl.now()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return time.Duration(math.MaxInt64)
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		// Rejected requests must not consume future tokens.
		r.CancelAt(now)
	}
	return delay
}

// sweep drops buckets idle for longer than limiterIdle.
func (rl *rateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-limiterIdle)
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

// size returns the number of live buckets.
func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// wrap applies the limit in front of next. handler labels rejections.
func (rl *rateLimiter) wrap(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		wait := rl.reserve(ip)
		if wait == 0 {
			next.ServeHTTP(w, r)
			return
		}

		if rl.onReject != nil {
			rl.onReject(handler)
		}
		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("ip", ip),
			slog.Duration("retry_after", wait),
		)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// retryAfterSeconds rounds wait up to whole seconds, capped at one hour.
func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	switch {
	case secs < 1:
		return 1
	case secs > 3600:
		return 3600
	default:
		return secs
	}
}

// clientIP returns the host part of RemoteAddr. X-Forwarded-For is not
// trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
