package classifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/dailyscore/pkg/models"
)

func TestFallback(t *testing.T) {
	tests := []struct {
		name        string
		title       string
		description string
		want        models.Category
	}{
		{"work report", "Finish quarterly report", "", models.CategoryWork},
		{"health gym", "Go to the gym", "leg day workout", models.CategoryHealth},
		{"learning", "Read a book", "chapter 3 of the tutorial", models.CategoryLearning},
		{"personal", "Dinner with family", "", models.CategoryPersonal},
		{"no keywords", "Pick up package", "", models.CategoryPersonal},
		{"case insensitive", "CLIENT MEETING", "", models.CategoryWork},
		// "project" (work) vs "study" (learning): 1-1 tie goes to work
		{"tie broken by order", "Study project", "", models.CategoryWork},
		{"description counts", "Tuesday", "yoga and meditation", models.CategoryHealth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Fallback(tt.title, tt.description)
			assert.Equal(t, tt.want, r.Category)
			assert.Equal(t, FallbackConfidence, r.Confidence)
			assert.Equal(t, SourceFallback, r.Source)
		})
	}
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		want       models.Category
		confidence float64
		wantErr    bool
	}{
		{"plain", `{"category": "health", "confidence": 0.92}`, models.CategoryHealth, 0.92, false},
		{"json fence", "```json\n{\"category\": \"work\", \"confidence\": 0.7}\n```", models.CategoryWork, 0.7, false},
		{"bare fence", "```\n{\"category\": \"learning\", \"confidence\": 1}\n```", models.CategoryLearning, 1, false},
		{"missing confidence", `{"category": "personal"}`, models.CategoryPersonal, DefaultConfidence, false},
		{"string confidence", `{"category": "personal", "confidence": "high"}`, models.CategoryPersonal, DefaultConfidence, false},
		{"confidence above one", `{"category": "work", "confidence": 3}`, models.CategoryWork, DefaultConfidence, false},
		{"invalid category", `{"category": "chores", "confidence": 0.9}`, "", 0, true},
		{"not json", "work", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseAnswer(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Category)
			assert.InDelta(t, tt.confidence, r.Confidence, 1e-9)
			assert.Equal(t, SourceModel, r.Source)
		})
	}
}

func geminiServer(t *testing.T, answer string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "Task: Finish quarterly report")

		if status != http.StatusOK {
			http.Error(w, "quota exceeded", status)
			return
		}
		resp := map[string]any{
			"candidates": []any{
				map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": answer}}}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestGemini_Classify(t *testing.T) {
	srv := geminiServer(t, "```json\n{\"category\":\"work\",\"confidence\":0.9}\n```", http.StatusOK)
	defer srv.Close()

	g, err := NewGemini(GeminiConfig{APIKey: "test-key", Model: "test-model", BaseURL: srv.URL})
	require.NoError(t, err)

	r, err := g.Classify(context.Background(), "Finish quarterly report", "")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryWork, r.Category)
	assert.InDelta(t, 0.9, r.Confidence, 1e-9)
}

func TestGemini_HTTPError(t *testing.T) {
	srv := geminiServer(t, "", http.StatusTooManyRequests)
	defer srv.Close()

	g, err := NewGemini(GeminiConfig{APIKey: "test-key", Model: "test-model", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = g.Classify(context.Background(), "Finish quarterly report", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=429")
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(GeminiConfig{APIKey: "  "})
	assert.ErrorIs(t, err, ErrNotConfigured)

	g, err := NewGemini(GeminiConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, GeminiDefaultModel, g.Model())
}

type fakeClassifier struct {
	fn    func(ctx context.Context, title, description string) (Result, error)
	calls atomic.Int32
}

func (f *fakeClassifier) Classify(ctx context.Context, title, description string) (Result, error) {
	f.calls.Add(1)
	return f.fn(ctx, title, description)
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]Result
}

func (c *mapCache) Get(_ context.Context, key string) (Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.m[key]
	return r, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, r Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = r
	return nil
}

func TestAdapter_NoUpstreamUsesFallback(t *testing.T) {
	a := NewAdapter(Options{}, zerolog.Nop())

	r := a.Classify(context.Background(), "Finish quarterly report", "")

	assert.False(t, a.Configured())
	assert.Equal(t, models.CategoryWork, r.Category)
	assert.Equal(t, 0.5, r.Confidence)
}

func TestAdapter_UpstreamSuccess(t *testing.T) {
	up := &fakeClassifier{fn: func(context.Context, string, string) (Result, error) {
		return Result{Category: models.CategoryLearning, Confidence: 0.95}, nil
	}}
	a := NewAdapter(Options{Upstream: up}, zerolog.Nop())

	r := a.Classify(context.Background(), "Finish quarterly report", "")

	assert.Equal(t, models.CategoryLearning, r.Category)
	assert.Equal(t, 0.95, r.Confidence)
	assert.Equal(t, SourceModel, r.Source)
}

func TestAdapter_FailuresFallBack(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context, string, string) (Result, error)
	}{
		{"transport error", func(context.Context, string, string) (Result, error) {
			return Result{}, errors.New("connection refused")
		}},
		{"invalid category", func(context.Context, string, string) (Result, error) {
			return Result{Category: "chores", Confidence: 0.9}, nil
		}},
		{"timeout", func(ctx context.Context, _, _ string) (Result, error) {
			<-ctx.Done()
			return Result{}, ctx.Err()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdapter(Options{Upstream: &fakeClassifier{fn: tt.fn}, Timeout: 20 * time.Millisecond}, zerolog.Nop())

			r := a.Classify(context.Background(), "Finish quarterly report", "")

			assert.Equal(t, models.CategoryWork, r.Category)
			assert.Equal(t, FallbackConfidence, r.Confidence)
			assert.Equal(t, SourceFallback, r.Source)
		})
	}
}

func TestAdapter_OutOfRangeConfidenceDefaults(t *testing.T) {
	up := &fakeClassifier{fn: func(context.Context, string, string) (Result, error) {
		return Result{Category: models.CategoryHealth, Confidence: 7}, nil
	}}
	a := NewAdapter(Options{Upstream: up}, zerolog.Nop())

	r := a.Classify(context.Background(), "Go for a run", "")
	assert.Equal(t, DefaultConfidence, r.Confidence)
}

func TestAdapter_CacheHitSkipsUpstream(t *testing.T) {
	up := &fakeClassifier{fn: func(context.Context, string, string) (Result, error) {
		return Result{Category: models.CategoryHealth, Confidence: 0.9}, nil
	}}
	cache := &mapCache{m: map[string]Result{}}
	a := NewAdapter(Options{Upstream: up, Cache: cache}, zerolog.Nop())

	first := a.Classify(context.Background(), "Yoga class", "")
	second := a.Classify(context.Background(), "  yoga CLASS ", "")

	assert.Equal(t, SourceModel, first.Source)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, models.CategoryHealth, second.Category)
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestAdapter_RedactsBeforeUpstream(t *testing.T) {
	var seen string
	up := &fakeClassifier{fn: func(_ context.Context, title, description string) (Result, error) {
		seen = title + " " + description
		return Result{Category: models.CategoryWork, Confidence: 0.9}, nil
	}}
	a := NewAdapter(Options{Upstream: up, Redact: true}, zerolog.Nop())

	a.Classify(context.Background(), "Email bob@example.com", "call +1 415-555-0132")

	assert.NotContains(t, seen, "bob@example.com")
	assert.NotContains(t, seen, "555-0132")
	assert.True(t, strings.Contains(seen, "[REDACTED]"))
}

func TestAdapter_SetTimeout(t *testing.T) {
	a := NewAdapter(Options{}, zerolog.Nop())
	assert.Equal(t, DefaultTimeout, a.Timeout())

	a.SetTimeout(time.Second)
	a.SetTimeout(0)
	assert.Equal(t, time.Second, a.Timeout())
}

func TestCacheKey_Normalizes(t *testing.T) {
	assert.Equal(t, CacheKey("Run", "Park"), CacheKey(" run ", "PARK"))
	assert.NotEqual(t, CacheKey("Run", "Park"), CacheKey("Run", "Gym"))
	assert.True(t, strings.HasPrefix(CacheKey("a", "b"), cacheKeyPrefix))
}

func TestRedisCache_Integration(t *testing.T) {
	addr := os.Getenv("DAILYSCORE_TEST_REDIS")
	if addr == "" {
		t.Skip("DAILYSCORE_TEST_REDIS not set")
	}
	ctx := context.Background()
	c := NewRedisCache(addr, time.Minute)
	defer c.Close()
	require.NoError(t, c.Ping(ctx))

	key := CacheKey("integration", time.Now().String())
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	want := Result{Category: models.CategoryLearning, Confidence: 0.75, Source: SourceModel}
	require.NoError(t, c.Set(ctx, key, want))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}
