package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pilotwatch/pilotwatch/pkg/types"
)

// AlertsConfig holds advisory alert rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based condition over recorded vitals.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "heart_rate > 170", "oxygen_level < 92",
	// "readiness_score < 60", "g_force >= 8".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 5 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | pagerduty | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values.
const (
	DefaultHTTPPort          = 8080
	DefaultBroadcastInterval = 2 * time.Second
	DefaultCountdownTick     = time.Second
	DefaultStoreTTL          = 24 * time.Hour
	DefaultIngestRate        = 20.0
	DefaultIngestBurst       = 40
	DefaultRecModel          = "mistral-large-latest"
	DefaultRecBaseURL        = "https://api.mistral.ai/v1"
	DefaultRecTimeout        = 30 * time.Second
	DefaultRecConcurrency    = 4
	DefaultRecMaxAttempts    = 3
	DefaultRecCacheTTL       = time.Hour
	DefaultSubjectPrefix     = "pilotwatch"
)

// Config is the root of config.yaml.
type Config struct {
	// LogLevel is one of debug | info | warn | error (default info).
	LogLevel string `yaml:"log_level"`

	Server          ServerConfig          `yaml:"server"`
	Mission         MissionConfig         `yaml:"mission"`
	Roster          RosterConfig          `yaml:"roster"`
	Ingest          IngestConfig          `yaml:"ingest"`
	Alerts          AlertsConfig          `yaml:"alerts"`
	Recommendations RecommendationsConfig `yaml:"recommendations"`
	Storage         StorageConfig         `yaml:"storage"`
	NATS            NATSConfig            `yaml:"nats"`
}

// ServerConfig holds HTTP-facing settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates REST and WebSocket clients.
	Auth AuthConfig `yaml:"auth"`

	CORS CORSConfig `yaml:"cors"`

	// BroadcastInterval is how often the full dashboard state is pushed to
	// WebSocket clients in addition to event-driven pushes (default 2s).
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// AuthConfig controls client authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// MissionConfig controls session timing and retention.
type MissionConfig struct {
	// CountdownTick is the autopilot countdown decrement interval (default 1s).
	CountdownTick time.Duration `yaml:"countdown_tick"`

	// StoreTTL is how long an ended mission stays queryable in memory (default 24h).
	StoreTTL time.Duration `yaml:"store_ttl"`
}

// RosterConfig seeds the pilot roster. When Pilots is empty the built-in
// four-pilot roster is used.
type RosterConfig struct {
	Pilots []PilotConfig `yaml:"pilots"`
}

// PilotConfig is one roster entry as written in YAML.
type PilotConfig struct {
	ID                 string       `yaml:"id"`
	TerraUserID        string       `yaml:"terra_user_id"`
	GarminID           string       `yaml:"garmin_id"`
	Name               string       `yaml:"name"`
	Role               string       `yaml:"role"`
	Rank               string       `yaml:"rank"`
	Age                int          `yaml:"age"`
	Gender             string       `yaml:"gender"`
	HeightCm           float64      `yaml:"height_cm"`
	WeightKg           float64      `yaml:"weight_kg"`
	MonthsOfExperience int          `yaml:"months_of_experience"`
	Status             string       `yaml:"status"`
	Vitals             VitalsConfig `yaml:"vitals"`
}

// VitalsConfig is a pilot's starting vitals.
type VitalsConfig struct {
	HeartRate            int     `yaml:"heart_rate"`
	RestingHeartRate     int     `yaml:"resting_heart_rate"`
	HeartRateVariability float64 `yaml:"heart_rate_variability"`
	Systolic             float64 `yaml:"systolic"`
	Diastolic            float64 `yaml:"diastolic"`
	OxygenLevel          float64 `yaml:"oxygen_level"`
	BodyTemperature      float64 `yaml:"body_temperature"`
	GForce               float64 `yaml:"g_force"`
	MinutesOfActivity    int     `yaml:"minutes_of_activity"`
}

// Pilot converts the entry to a roster pilot with vitals stamped at now.
// Calculated metrics are left zero for the caller to recompute.
func (p PilotConfig) Pilot(now time.Time) types.Pilot {
	status := types.PilotStatus(p.Status)
	if status == "" {
		status = types.StatusStandby
	}
	return types.Pilot{
		ID:          p.ID,
		TerraUserID: p.TerraUserID,
		GarminID:    p.GarminID,
		Profile: types.Profile{
			Name:               p.Name,
			Role:               p.Role,
			Rank:               p.Rank,
			Age:                p.Age,
			Gender:             types.Gender(p.Gender),
			HeightCm:           p.HeightCm,
			WeightKg:           p.WeightKg,
			MonthsOfExperience: p.MonthsOfExperience,
		},
		Status: status,
		Vitals: types.VitalsSnapshot{
			Timestamp:            now,
			HeartRate:            p.Vitals.HeartRate,
			RestingHeartRate:     p.Vitals.RestingHeartRate,
			HeartRateVariability: p.Vitals.HeartRateVariability,
			BloodPressure:        types.BloodPressure{Systolic: p.Vitals.Systolic, Diastolic: p.Vitals.Diastolic},
			OxygenLevel:          p.Vitals.OxygenLevel,
			BodyTemperature:      p.Vitals.BodyTemperature,
			GForce:               p.Vitals.GForce,
			MinutesOfActivity:    p.Vitals.MinutesOfActivity,
		},
	}
}

// IngestConfig limits pushed samples per pilot.
type IngestConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// RecommendationsConfig configures the external recommendation provider.
type RecommendationsConfig struct {
	Enabled bool `yaml:"enabled"`

	// BaseURL is an OpenAI-compatible API root; "/chat/completions" is appended.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the bearer token.
	APIKeyEnv string `yaml:"api_key_env"`

	Model         string        `yaml:"model"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	Concurrency   int           `yaml:"concurrency"`
	MaxAttempts   int           `yaml:"max_attempts"`
	Cache         CacheConfig   `yaml:"cache"`
}

// APIKey returns the provider key resolved from the environment.
func (r RecommendationsConfig) APIKey() string {
	if r.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(r.APIKeyEnv)
}

// CacheConfig selects where provider responses are cached.
type CacheConfig struct {
	// Backend is one of: memory | redis | none (default memory).
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig addresses a Redis server.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
}

// Password returns the Redis password resolved from the environment.
func (r RedisConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// StorageConfig selects the mission archive.
type StorageConfig struct {
	// Backend is one of: none | sqlite | postgres (default none).
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// DSNEnv names the environment variable holding the PostgreSQL DSN.
	DSNEnv string `yaml:"dsn_env"`
}

// DSN returns the PostgreSQL DSN resolved from the environment.
func (s StorageConfig) DSN() string {
	if s.DSNEnv == "" {
		return ""
	}
	return os.Getenv(s.DSNEnv)
}

// NATSConfig enables event forwarding and sample ingestion over NATS.
// An empty URL disables NATS.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`

	// Ingest subscribes to "<subject_prefix>.ingest" for pushed samples.
	Ingest bool `yaml:"ingest"`
}

// LoadEnv loads KEY=value pairs from the given .env files into the process
// environment. Missing files are skipped; existing variables win.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML config bytes.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaults()
}

func defaults() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
		},
		Mission: MissionConfig{
			CountdownTick: DefaultCountdownTick,
			StoreTTL:      DefaultStoreTTL,
		},
		Ingest: IngestConfig{
			RatePerSecond: DefaultIngestRate,
			Burst:         DefaultIngestBurst,
		},
		Recommendations: RecommendationsConfig{
			BaseURL:       DefaultRecBaseURL,
			APIKeyEnv:     "MISTRAL_API_KEY",
			Model:         DefaultRecModel,
			Timeout:       DefaultRecTimeout,
			RatePerSecond: 1,
			Burst:         1,
			Concurrency:   DefaultRecConcurrency,
			MaxAttempts:   DefaultRecMaxAttempts,
			Cache: CacheConfig{
				Backend: "memory",
				TTL:     DefaultRecCacheTTL,
			},
		},
		Storage: StorageConfig{Backend: "none"},
		NATS:    NATSConfig{SubjectPrefix: DefaultSubjectPrefix},
	}
}

func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q unknown: want debug|info|warn|error", cfg.LogLevel)
	}
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.BroadcastInterval <= 0 {
		return errors.New("server.broadcast_interval must be positive")
	}
	if cfg.Mission.CountdownTick <= 0 {
		return errors.New("mission.countdown_tick must be positive")
	}
	if cfg.Mission.StoreTTL < 0 {
		return errors.New("mission.store_ttl must not be negative")
	}

	seen := make(map[string]bool, len(cfg.Roster.Pilots))
	for i, p := range cfg.Roster.Pilots {
		if p.ID == "" {
			return fmt.Errorf("roster.pilots[%d].id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("roster.pilots[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		switch types.Gender(p.Gender) {
		case types.GenderMale, types.GenderFemale, types.GenderDiverse:
		default:
			return fmt.Errorf("roster.pilots[%d].gender %q unknown: want m|w|d", i, p.Gender)
		}
		if p.Status != "" && !types.PilotStatus(p.Status).Valid() {
			return fmt.Errorf("roster.pilots[%d].status %q unknown: want active|standby", i, p.Status)
		}
	}

	if cfg.Ingest.RatePerSecond < 0 {
		return errors.New("ingest.rate_per_second must not be negative")
	}

	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d]: name and condition are required", i)
		}
	}

	rec := cfg.Recommendations
	if rec.Enabled {
		if rec.BaseURL == "" || rec.Model == "" {
			return errors.New("recommendations: base_url and model are required when enabled")
		}
		if rec.Concurrency < 1 {
			return fmt.Errorf("recommendations.concurrency %d must be at least 1", rec.Concurrency)
		}
		if rec.MaxAttempts < 1 {
			return fmt.Errorf("recommendations.max_attempts %d must be at least 1", rec.MaxAttempts)
		}
		if rec.RatePerSecond <= 0 {
			return errors.New("recommendations.rate_per_second must be positive")
		}
	}
	switch rec.Cache.Backend {
	case "memory", "none", "":
	case "redis":
		if rec.Cache.Redis.Addr == "" {
			return errors.New("recommendations.cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("recommendations.cache.backend %q unknown: want memory|redis|none", rec.Cache.Backend)
	}

	switch cfg.Storage.Backend {
	case "none", "":
	case "sqlite":
		if cfg.Storage.Path == "" {
			return errors.New("storage.path is required for the sqlite backend")
		}
	case "postgres":
		if cfg.Storage.DSNEnv == "" {
			return errors.New("storage.dsn_env is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q unknown: want none|sqlite|postgres", cfg.Storage.Backend)
	}

	if cfg.NATS.URL != "" && cfg.NATS.SubjectPrefix == "" {
		return errors.New("nats.subject_prefix is required when nats.url is set")
	}
	return nil
}
