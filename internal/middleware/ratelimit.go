package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the limiter table. Past it, idle entries are
// swept on the next insert.
const maxTrackedClients = 10_000

// idleAfter is how long a client must be quiet before its limiter is dropped.
const idleAfter = 10 * time.Minute

// RateLimiter is a token bucket per client IP.
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per client on average, with
// bursts of up to burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

// Allow reports whether key may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[key]
	if !ok {
		if len(rl.clients) >= maxTrackedClients {
			rl.sweep(now)
		}
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) sweep(now time.Time) {
	for k, c := range rl.clients {
		if now.Sub(c.lastSeen) > idleAfter {
			delete(rl.clients, k)
		}
	}
}

// Middleware answers 429 with a Retry-After header once a client exceeds
// its budget.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			retry := time.Duration(float64(time.Second) / float64(rl.limit))
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limited","message":"too many requests, try again later"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the host part of RemoteAddr. chi's RealIP middleware, when
// installed, has already replaced it with the forwarded address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
