// Package setup builds the stores, classifier, and trackers shared by the
// dailyscore binaries from a loaded Config.
package setup

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm/logger"

	"github.com/thebtf/dailyscore/internal/calendar"
	"github.com/thebtf/dailyscore/internal/classifier"
	"github.com/thebtf/dailyscore/internal/config"
	"github.com/thebtf/dailyscore/internal/db"
	gormdb "github.com/thebtf/dailyscore/internal/db/gorm"
	"github.com/thebtf/dailyscore/internal/db/memory"
	"github.com/thebtf/dailyscore/internal/db/sqlite"
	"github.com/thebtf/dailyscore/internal/scoring"
	"github.com/thebtf/dailyscore/internal/tracker"
)

// OpenStore opens the durable store selected by cfg.DBDriver. Migrations
// run as part of opening.
func OpenStore(cfg *config.Config) (db.Store, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite, "":
		store, err := sqlite.NewStore(sqlite.StoreConfig{Path: cfg.DBPath, MaxConns: cfg.DBMaxConns})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := gormdb.NewStore(gormdb.Config{DSN: cfg.DBDSN, MaxConns: cfg.DBMaxConns, LogLevel: logger.Silent})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

// Engine creates a scoring engine on the configured calendar.
func Engine(cfg *config.Config, log zerolog.Logger) (*scoring.Engine, error) {
	cal, err := calendar.Load(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	sc, err := ScoringConfig(cfg)
	if err != nil {
		return nil, err
	}
	return scoring.NewEngine(sc, cal, log), nil
}

// ScoringConfig returns the default point rules with the configured gap policy.
func ScoringConfig(cfg *config.Config) (*scoring.Config, error) {
	policy, err := scoring.ParseGapPolicy(cfg.StreakGapPolicy)
	if err != nil {
		return nil, err
	}
	sc := scoring.DefaultConfig()
	sc.StreakGapPolicy = policy
	return sc, nil
}

// Classifier builds the classification adapter. The returned cleanup closes
// the Redis cache when one is configured.
func Classifier(cfg *config.Config, log zerolog.Logger) (*classifier.Adapter, func()) {
	opts := classifier.Options{
		Timeout: cfg.ClassifierTimeout(),
		Redact:  cfg.RedactTaskText,
	}

	gemini, err := classifier.NewGemini(classifier.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	})
	if err == nil {
		opts.Upstream = gemini
	} else {
		log.Warn().Msg("No Gemini API key configured, using keyword classification")
	}

	cleanup := func() {}
	if cfg.RedisAddr != "" {
		cache := classifier.NewRedisCache(cfg.RedisAddr, cfg.ClassifierCacheTTL())
		opts.Cache = cache
		cleanup = func() { _ = cache.Close() }
	}

	return classifier.NewAdapter(opts, log), cleanup
}

// Trackers holds the account and guest trackers, which share one engine.
type Trackers struct {
	Engine *scoring.Engine
	Users  *tracker.Tracker
	Guests *tracker.Tracker
}

// NewTrackers wires a user tracker over store and a guest tracker over an
// in-memory store.
func NewTrackers(store db.Store, cls tracker.Classifier, events tracker.EventPublisher, cfg *config.Config, log zerolog.Logger) (*Trackers, error) {
	engine, err := Engine(cfg, log)
	if err != nil {
		return nil, err
	}

	users, err := tracker.New(tracker.Options{
		Store:      store,
		Engine:     engine,
		Classifier: cls,
		Events:     events,
	}, log.With().Str("scope", "users").Logger())
	if err != nil {
		return nil, err
	}

	guests, err := tracker.New(tracker.Options{
		Store:      memory.New(),
		Engine:     engine,
		Classifier: cls,
		Events:     events,
	}, log.With().Str("scope", "guests").Logger())
	if err != nil {
		return nil, err
	}

	return &Trackers{Engine: engine, Users: users, Guests: guests}, nil
}
