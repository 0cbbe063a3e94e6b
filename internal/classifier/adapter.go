package classifier

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/thebtf/dailyscore/internal/privacy"
)

// DefaultTimeout bounds a single upstream call.
const DefaultTimeout = 5 * time.Second

// Options configures an Adapter. Upstream and Cache may be nil.
type Options struct {
	Upstream Classifier
	Cache    Cache
	Timeout  time.Duration
	Redact   bool
}

// Adapter wraps an upstream Classifier so that classification never fails.
// Concurrent requests for the same text share one upstream call.
type Adapter struct {
	upstream Classifier
	cache    Cache
	log      zerolog.Logger
	group    singleflight.Group
	mu       sync.RWMutex
	timeout  time.Duration
	redact   bool
}

// NewAdapter creates an adapter.
func NewAdapter(opts Options, log zerolog.Logger) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Adapter{
		upstream: opts.Upstream,
		cache:    opts.Cache,
		timeout:  opts.Timeout,
		redact:   opts.Redact,
		log:      log.With().Str("component", "classifier").Logger(),
	}
}

// SetTimeout changes the upstream timeout for subsequent calls.
func (a *Adapter) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	a.mu.Lock()
	a.timeout = d
	a.mu.Unlock()
}

// Timeout returns the current upstream timeout.
func (a *Adapter) Timeout() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.timeout
}

// Configured reports whether an upstream model is available.
func (a *Adapter) Configured() bool {
	return a.upstream != nil
}

// Classify returns a category for the task text. Any upstream problem yields
// the keyword fallback; the error is logged, never returned.
func (a *Adapter) Classify(ctx context.Context, title, description string) Result {
	if a.upstream == nil {
		a.log.Debug().Msg("no upstream classifier, using keyword fallback")
		return Fallback(title, description)
	}

	sendTitle, sendDesc := title, description
	if a.redact {
		sendTitle, sendDesc = privacy.RedactTask(title, description)
	}
	key := CacheKey(sendTitle, sendDesc)

	if a.cache != nil {
		r, ok, err := a.cache.Get(ctx, key)
		if err != nil {
			a.log.Warn().Err(err).Msg("classification cache read failed")
		} else if ok && r.Category.IsValid() {
			r.Source = SourceCache
			return r
		}
	}

	v, err, _ := a.group.Do(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Timeout())
		defer cancel()
		return a.upstream.Classify(callCtx, sendTitle, sendDesc)
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("upstream classification failed, using keyword fallback")
		return Fallback(title, description)
	}

	r := v.(Result)
	if !r.Category.IsValid() {
		a.log.Warn().Str("category", string(r.Category)).Msg("upstream returned invalid category, using keyword fallback")
		return Fallback(title, description)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		r.Confidence = DefaultConfidence
	}
	r.Source = SourceModel

	if a.cache != nil {
		if err := a.cache.Set(ctx, key, r); err != nil {
			a.log.Warn().Err(err).Msg("classification cache write failed")
		}
	}
	return r
}
