package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Bucket defines rate limit parameters.
type Bucket struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultBuckets are the per-client limits for the public API.
var DefaultBuckets = map[string]Bucket{
	"verify": {MaxRequests: 30, Window: time.Minute},
	"batch":  {MaxRequests: 5, Window: time.Minute},
	"qr":     {MaxRequests: 60, Window: time.Minute},
}

var fallbackBucket = Bucket{MaxRequests: 60, Window: time.Minute}

// Limiter is an in-memory sliding-window rate limiter per key.
type Limiter struct {
	mu      sync.Mutex
	hits    map[string][]time.Time
	buckets map[string]Bucket
	now     func() time.Time
}

// New creates a limiter using DefaultBuckets.
func New() *Limiter {
	return NewWithBuckets(DefaultBuckets)
}

// NewWithBuckets creates a limiter with custom bucket definitions.
func NewWithBuckets(buckets map[string]Bucket) *Limiter {
	return &Limiter{
		hits:    make(map[string][]time.Time),
		buckets: buckets,
		now:     time.Now,
	}
}

// Allow checks if a request identified by key is within the rate limit for the
// given bucket. Returns true if allowed.
func (l *Limiter) Allow(key string, bucket Bucket) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-bucket.Window)

	times := l.hits[key]
	pruned := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= bucket.MaxRequests {
		l.hits[key] = pruned
		return false
	}

	l.hits[key] = append(pruned, now)
	return true
}

// Sweep drops keys with no hits inside the longest bucket window.
func (l *Limiter) Sweep() int {
	var longest time.Duration
	for _, b := range l.buckets {
		longest = max(longest, b.Window)
	}
	longest = max(longest, fallbackBucket.Window)

	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-longest)
	removed := 0
	for key, times := range l.hits {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(l.hits, key)
			removed++
		}
	}
	return removed
}

// Check writes a 429 response if the client is over the limit for bucketName.
// Returns true if the request was rejected.
func (l *Limiter) Check(w http.ResponseWriter, r *http.Request, bucketName string) bool {
	bucket, ok := l.buckets[bucketName]
	if !ok {
		bucket = fallbackBucket
	}

	key := bucketName + ":" + clientIP(r)
	if l.Allow(key, bucket) {
		return false
	}

	retry := strconv.Itoa(int(bucket.Window.Seconds()))
	w.Header().Set("Retry-After", retry)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limited","retry_after_seconds":` + retry + `}`))
	return true
}

// Middleware applies bucketName to every request of the wrapped handler.
func (l *Limiter) Middleware(bucketName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.Check(w, r, bucketName) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the host part of RemoteAddr, which middleware.RealIP rewrites
// when a proxy header is present. The port is dropped so reconnecting does
// not open a fresh window.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
