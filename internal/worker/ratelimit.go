package worker

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Classification calls reach a paid upstream model, so task creation and
// /api/classify are limited per client.
const (
	ClassifyRate  = 2.0 // requests per second
	ClassifyBurst = 10
)

// tokenBucket refills continuously at rate tokens per second up to burst.
type tokenBucket struct {
	seen   time.Time
	now    func() time.Time
	rate   float64
	burst  float64
	tokens float64
	mu     sync.Mutex
}

func newTokenBucket(rate float64, burst int, now func() time.Time) *tokenBucket {
	return &tokenBucket{
		rate:   rate,
		burst:  float64(burst),
		tokens: float64(burst),
		now:    now,
		seen:   now(),
	}
}

// take consumes one token. When none is left it returns how long until one
// will be.
func (b *tokenBucket) take() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.now()
	b.tokens = min(b.burst, b.tokens+t.Sub(b.seen).Seconds()*b.rate)
	b.seen = t

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if b.rate <= 0 {
		return false, time.Duration(math.MaxInt64)
	}
	return false, time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
}

func (b *tokenBucket) lastSeen() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seen
}

// ClientLimiter keeps one token bucket per caller and forgets callers that
// have been quiet for idleTTL.
type ClientLimiter struct {
	swept   time.Time
	now     func() time.Time
	buckets map[string]*tokenBucket
	rate    float64
	burst   int
	sweep   time.Duration
	idleTTL time.Duration
	mu      sync.Mutex
}

// NewClientLimiter allows each caller rate requests per second in bursts of
// up to burst.
func NewClientLimiter(rate float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		now:     time.Now,
		swept:   time.Now(),
		buckets: make(map[string]*tokenBucket),
		rate:    rate,
		burst:   burst,
		sweep:   5 * time.Minute,
		idleTTL: 10 * time.Minute,
	}
}

func (l *ClientLimiter) bucket(key string) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now()
	if t.Sub(l.swept) > l.sweep {
		// l.mu is held before any bucket lock, never the reverse.
		for k, b := range l.buckets {
			if t.Sub(b.lastSeen()) > l.idleTTL {
				delete(l.buckets, k)
			}
		}
		l.swept = t
	}

	b, ok := l.buckets[key]
	if !ok {
		b = newTokenBucket(l.rate, l.burst, l.now)
		l.buckets[key] = b
	}
	return b
}

// Allow reports whether key may make a request now.
func (l *ClientLimiter) Allow(key string) bool {
	ok, _ := l.bucket(key).take()
	return ok
}

// Tracked returns the number of callers with a live bucket.
func (l *ClientLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// LimitPerClient rejects callers over their budget with 429 and a
// Retry-After hint. Callers are keyed by user ID, falling back to the
// client address set by RealIP.
func LimitPerClient(l *ClientLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := userFromRequest(r)
			if key == "" {
				key = r.RemoteAddr
			}

			ok, wait := l.bucket(key).take()
			if !ok {
				secs := int64(math.Ceil(wait.Seconds()))
				if wait == time.Duration(math.MaxInt64) {
					secs = 3600
				}
				w.Header().Set("Retry-After", strconv.FormatInt(max(secs, 1), 10))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
