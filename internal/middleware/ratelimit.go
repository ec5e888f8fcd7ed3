package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// defaultMaxClients bounds the number of tracked clients.
const defaultMaxClients = 100_000

// RateLimiter is per-client token bucket rate limiting middleware. The host
// puts it in front of the dispatch endpoint, where each request may hold an
// agent for a full attempt budget.
type RateLimiter struct {
	rate       float64 // tokens per second
	burst      float64
	maxClients int
	now        func() time.Time

	mu      sync.Mutex
	clients map[string]*tokenBucket
}

type tokenBucket struct {
	tokens float64
	last   time.Time
}

// take refills the bucket up to burst and consumes one token if available.
// It returns the tokens left and, when refused, the wait for the next token.
func (b *tokenBucket) take(now time.Time, rate, burst float64) (left float64, wait time.Duration, ok bool) {
	b.tokens = math.Min(burst, b.tokens+now.Sub(b.last).Seconds()*rate)
	b.last = now
	if b.tokens < 1 {
		return b.tokens, time.Duration((1 - b.tokens) / rate * float64(time.Second)), false
	}
	b.tokens--
	return b.tokens, 0, true
}

// NewRateLimiter creates a rate limiter with the given sustained rate
// (requests per second) and burst size.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		burst:      float64(max(burst, 1)),
		maxClients: defaultMaxClients,
		now:        time.Now,
		clients:    make(map[string]*tokenBucket),
	}
}

// Handler returns HTTP middleware that answers 429 once a client has
// exhausted its bucket.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		left, wait, ok := rl.allow(client)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(int(rl.burst)))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(left)))

		if !ok {
			slog.WarnContext(r.Context(), "rate limit exceeded", "client", client, "path", r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(client string) (left float64, wait time.Duration, ok bool) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.clients[client]
	if !exists {
		if len(rl.clients) >= rl.maxClients {
			rl.evictIdlest()
		}
		b = &tokenBucket{tokens: rl.burst, last: now}
		rl.clients[client] = b
	}
	return b.take(now, rl.rate, rl.burst)
}

// evictIdlest drops the client seen longest ago. Callers hold rl.mu.
func (rl *RateLimiter) evictIdlest() {
	var (
		victim string
		oldest time.Time
	)
	for client, b := range rl.clients {
		if victim == "" || b.last.Before(oldest) {
			victim, oldest = client, b.last
		}
	}
	delete(rl.clients, victim)
}

// RunCleanup forgets clients idle longer than maxIdle, every interval, until
// ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.forgetIdle(maxIdle)
		}
	}
}

func (rl *RateLimiter) forgetIdle(maxIdle time.Duration) {
	cutoff := rl.now().Add(-maxIdle)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for client, b := range rl.clients {
		if b.last.Before(cutoff) {
			delete(rl.clients, client)
		}
	}
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// clientIP keys buckets by the connection's remote address. Forwarding
// headers are ignored since clients can forge them.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
