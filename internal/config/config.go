// Package config provides configuration management for dailyscore.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultWorkerPort is the default HTTP port for the worker service.
	DefaultWorkerPort = 37800

	// DefaultGeminiModel is the classifier model used when none is configured.
	DefaultGeminiModel = "gemini-2.5-flash"

	// EnvPrefix prefixes every setting key, in the settings file and in the environment.
	EnvPrefix = "DAILYSCORE_"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	// Worker settings
	WorkerPort  int    `json:"worker_port"`
	AuthEnabled bool   `json:"auth_enabled"`
	AuthToken   string `json:"-"`

	// Database settings
	DBDriver   string `json:"db_driver"`
	DBPath     string `json:"db_path"`
	DBDSN      string `json:"-"`
	DBMaxConns int    `json:"db_max_conns"`

	// Calendar and scoring
	Timezone        string `json:"timezone"` // IANA name or "Local"
	StreakGapPolicy string `json:"streak_gap_policy"`

	// Classifier settings
	GeminiAPIKey            string `json:"-"`
	GeminiModel             string `json:"gemini_model"`
	GeminiBaseURL           string `json:"gemini_base_url"`
	ClassifierTimeoutMS     int    `json:"classifier_timeout_ms"`
	RedisAddr               string `json:"redis_addr"` // classifier cache, empty disables it
	ClassifierCacheTTLHours int    `json:"classifier_cache_ttl_hours"`
	RedactTaskText          bool   `json:"redact_task_text"`

	// Maintenance
	GuestRetentionDays       int `json:"guest_retention_days"`
	MaintenanceIntervalHours int `json:"maintenance_interval_hours"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// DataDir returns the data directory path (~/.dailyscore).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dailyscore")
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "dailyscore.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.yaml")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings creates a default settings file if it doesn't exist.
func EnsureSettings() error {
	path := SettingsPath()

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	defaultSettings := `# dailyscore settings. ${VAR} placeholders are expanded from the environment.
DAILYSCORE_WORKER_PORT: 37800
DAILYSCORE_DB_DRIVER: sqlite
DAILYSCORE_TIMEZONE: Local
DAILYSCORE_GEMINI_API_KEY: ${GEMINI_API_KEY}
DAILYSCORE_CLASSIFIER_TIMEOUT_MS: 5000
DAILYSCORE_STREAK_GAP_POLICY: preserve
`
	return os.WriteFile(path, []byte(defaultSettings), 0600)
}

// EnsureAll ensures all required directories and files exist.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		WorkerPort:               DefaultWorkerPort,
		DBDriver:                 DriverSQLite,
		DBPath:                   DBPath(),
		DBMaxConns:               4,
		Timezone:                 "Local",
		StreakGapPolicy:          "preserve",
		GeminiModel:              DefaultGeminiModel,
		ClassifierTimeoutMS:      5000,
		ClassifierCacheTTLHours:  24,
		RedactTaskText:           true,
		GuestRetentionDays:       30,
		MaintenanceIntervalHours: 24,
	}
}

// Load loads configuration from the settings file, merging with defaults
// and then with DAILYSCORE_* environment variables.
func Load() (*Config, error) {
	return LoadFile(SettingsPath())
}

// LoadFile is Load for an explicit settings path. A missing file yields the
// defaults plus environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	settings, err := readSettings(path)
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			settings[key] = v
		}
	}

	if err := cfg.apply(settings); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readSettings parses the YAML settings file into prefix-stripped keys.
func readSettings(path string) (map[string]interface{}, error) {
	settings := make(map[string]interface{})

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), &raw); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	for k, v := range raw {
		settings[strings.TrimPrefix(strings.ToUpper(k), EnvPrefix)] = v
	}
	return settings, nil
}

// expandEnv replaces ${NAME} placeholders with environment values. Unset
// names expand to the empty string.
func expandEnv(content string) string {
	return os.Expand(content, func(name string) string {
		return os.Getenv(name)
	})
}

// keys lists every setting, without the DAILYSCORE_ prefix.
var keys = []string{
	"WORKER_PORT", "AUTH_ENABLED", "AUTH_TOKEN",
	"DB_DRIVER", "DB_PATH", "DB_DSN", "DB_MAX_CONNS",
	"TIMEZONE", "STREAK_GAP_POLICY",
	"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL", "CLASSIFIER_TIMEOUT_MS",
	"REDIS_ADDR", "CLASSIFIER_CACHE_TTL_HOURS", "REDACT_TASK_TEXT",
	"GUEST_RETENTION_DAYS", "MAINTENANCE_INTERVAL_HOURS",
}

func (c *Config) apply(settings map[string]interface{}) error {
	for key, v := range settings {
		var err error
		switch key {
		case "WORKER_PORT":
			err = setInt(&c.WorkerPort, v)
		case "AUTH_ENABLED":
			err = setBool(&c.AuthEnabled, v)
		case "AUTH_TOKEN":
			err = setString(&c.AuthToken, v)
		case "DB_DRIVER":
			err = setString(&c.DBDriver, v)
		case "DB_PATH":
			err = setString(&c.DBPath, v)
		case "DB_DSN":
			err = setString(&c.DBDSN, v)
		case "DB_MAX_CONNS":
			err = setInt(&c.DBMaxConns, v)
		case "TIMEZONE":
			err = setString(&c.Timezone, v)
		case "STREAK_GAP_POLICY":
			err = setString(&c.StreakGapPolicy, v)
		case "GEMINI_API_KEY":
			err = setString(&c.GeminiAPIKey, v)
		case "GEMINI_MODEL":
			err = setString(&c.GeminiModel, v)
		case "GEMINI_BASE_URL":
			err = setString(&c.GeminiBaseURL, v)
		case "CLASSIFIER_TIMEOUT_MS":
			err = setInt(&c.ClassifierTimeoutMS, v)
		case "REDIS_ADDR":
			err = setString(&c.RedisAddr, v)
		case "CLASSIFIER_CACHE_TTL_HOURS":
			err = setInt(&c.ClassifierCacheTTLHours, v)
		case "REDACT_TASK_TEXT":
			err = setBool(&c.RedactTaskText, v)
		case "GUEST_RETENTION_DAYS":
			err = setInt(&c.GuestRetentionDays, v)
		case "MAINTENANCE_INTERVAL_HOURS":
			err = setInt(&c.MaintenanceIntervalHours, v)
		default:
			// Unknown keys are preserved in the file and ignored here.
		}
		if err != nil {
			return fmt.Errorf("setting %s%s: %w", EnvPrefix, key, err)
		}
	}
	return nil
}

func setString(dst *string, v interface{}) error {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		*dst = strings.TrimSpace(x)
	default:
		*dst = fmt.Sprint(x)
	}
	return nil
}

func setInt(dst *int, v interface{}) error {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		*dst = x
	case float64:
		*dst = int(x)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return fmt.Errorf("not an integer: %q", x)
		}
		*dst = n
	default:
		return fmt.Errorf("not an integer: %v", v)
	}
	return nil
}

func setBool(dst *bool, v interface{}) error {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		*dst = x
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return fmt.Errorf("not a boolean: %q", x)
		}
		*dst = b
	default:
		return fmt.Errorf("not a boolean: %v", v)
	}
	return nil
}

// Validate checks the settings are usable.
func (c *Config) Validate() error {
	if c.WorkerPort <= 0 || c.WorkerPort > 65535 {
		return fmt.Errorf("invalid worker port %d", c.WorkerPort)
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("sqlite driver needs %sDB_PATH", EnvPrefix)
		}
	case DriverPostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("postgres driver needs %sDB_DSN", EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.DBDriver)
	}
	if c.AuthEnabled && c.AuthToken == "" {
		return fmt.Errorf("auth is enabled but %sAUTH_TOKEN is empty", EnvPrefix)
	}
	if c.ClassifierTimeoutMS <= 0 {
		return fmt.Errorf("classifier timeout must be positive")
	}
	return nil
}

// ClassifierTimeout returns the upstream classifier deadline.
func (c *Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.ClassifierTimeoutMS) * time.Millisecond
}

// ClassifierCacheTTL returns how long classifications stay cached.
func (c *Config) ClassifierCacheTTL() time.Duration {
	return time.Duration(c.ClassifierCacheTTLHours) * time.Hour
}

// GuestRetention returns how long an inactive guest profile is kept.
func (c *Config) GuestRetention() time.Duration {
	return time.Duration(c.GuestRetentionDays) * 24 * time.Hour
}

// MaintenanceInterval returns the pause between maintenance runs.
func (c *Config) MaintenanceInterval() time.Duration {
	return time.Duration(c.MaintenanceIntervalHours) * time.Hour
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		configMu.Lock()
		globalConfig = cfg
		configMu.Unlock()
	})

	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// Set replaces the global configuration.
func Set(cfg *Config) {
	configOnce.Do(func() {})
	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
}

// GetWorkerPort returns the worker port from environment or config.
func GetWorkerPort() int {
	if port := os.Getenv(EnvPrefix + "WORKER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			return p
		}
	}
	return Get().WorkerPort
}
