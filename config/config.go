package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server         ServerConfig
	Log            LogConfig
	JWT            JWTConfig
	Postgres       PostgresConfig
	Redis          RedisConfig
	RateLimiter    RateLimiterConfig
	CircuitBreaker CircuitBreakerConfig
	Bulkhead       BulkheadConfig
	Maps           MapsConfig
	Cache          CacheConfig
	Geocode        GeocodeConfig
	Assignment     AssignmentConfig
	Internal       InternalConfig
	Sync           SyncConfig
	Kafka          KafkaConfig
}

type ServerConfig struct {
	Port              int
	ShutdownTimeout   time.Duration
	IdempotencyTTLSec int
}

type LogConfig struct {
	Level  string
	Format string // json | text
}

type JWTConfig struct {
	Secret      string
	ExpiryHours time.Duration
}

type PostgresConfig struct {
	URL      string // DATABASE_URL takes precedence if set
	Host     string
	Port     int
	User     string
	Password string
	DB       string
	SSLMode  string
}

type RedisConfig struct {
	URL      string // REDIS_URL takes precedence if set
	Host     string
	Port     int
	Password string
	DB       int
}

type RateLimiterConfig struct {
	MaxRequests   int
	WindowSeconds int
}

// CircuitBreakerConfig guards the external maps provider.
type CircuitBreakerConfig struct {
	FailureThreshold int
	CooldownSeconds  int
}

type BulkheadConfig struct {
	InternalPool int
	MutationPool int
}

type MapsConfig struct {
	Provider       string // google | mapbox
	GoogleBaseURL  string
	GoogleAPIKey   string
	MapboxBaseURL  string
	MapboxToken    string
	TimeoutSeconds int
}

type CacheConfig struct {
	TravelTimeSize   int
	TravelTimeTTLSec int
	GeocodeSize      int
	GeocodeTTLSec    int
	SharedEnabled    bool // use redis as the second tier
}

type GeocodeConfig struct {
	RequirePrecise bool
}

type AssignmentConfig struct {
	CandidateLimit  int
	SweepRadiusKM   float64
	SweepTimeoutSec int
}

type InternalConfig struct {
	SharedSecret string
	LogisticsURL string
}

type SyncConfig struct {
	MaxAttempts       int
	BaseDelayMillis   int
	ReconcileInterval time.Duration
	ReconcileWorkers  int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func getenvFloat(key string, fallback float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getenvBool(key string, fallback bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return v
}

func getenvList(key string) []string {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:              getenvInt("PORT", getenvInt("SERVER_PORT", 8080)),
			ShutdownTimeout:   time.Duration(getenvInt("SHUTDOWN_TIMEOUT_SECONDS", 5)) * time.Second,
			IdempotencyTTLSec: getenvInt("IDEMPOTENCY_TTL_SECONDS", 300),
		},
		Log: LogConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "json"),
		},
		JWT: JWTConfig{
			Secret:      getenv("JWT_SECRET", "default-secret-change-me"),
			ExpiryHours: time.Duration(getenvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		},
		Postgres: PostgresConfig{
			URL:      getenv("DATABASE_URL", ""),
			Host:     getenv("POSTGRES_HOST", "localhost"),
			Port:     getenvInt("POSTGRES_PORT", 5432),
			User:     getenv("POSTGRES_USER", "logistics"),
			Password: getenv("POSTGRES_PASSWORD", "secure_password"),
			DB:       getenv("POSTGRES_DB", "posyandu_logistics"),
			SSLMode:  getenv("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getenv("REDIS_URL", ""),
			Host:     getenv("REDIS_HOST", "localhost"),
			Port:     getenvInt("REDIS_PORT", 6379),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimiter: RateLimiterConfig{
			MaxRequests:   getenvInt("RATE_LIMIT_MAX_REQUESTS", 100),
			WindowSeconds: getenvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: getenvInt("CB_FAILURE_THRESHOLD", 5),
			CooldownSeconds:  getenvInt("CB_COOLDOWN_SECONDS", 30),
		},
		Bulkhead: BulkheadConfig{
			InternalPool: getenvInt("BULKHEAD_INTERNAL_POOL", 100),
			MutationPool: getenvInt("BULKHEAD_MUTATION_POOL", 50),
		},
		Maps: MapsConfig{
			Provider:       getenv("MAPS_PROVIDER", "google"),
			GoogleBaseURL:  getenv("GOOGLE_MAPS_BASE_URL", "https://maps.googleapis.com"),
			GoogleAPIKey:   getenv("GOOGLE_MAPS_API_KEY", ""),
			MapboxBaseURL:  getenv("MAPBOX_BASE_URL", "https://api.mapbox.com"),
			MapboxToken:    getenv("MAPBOX_ACCESS_TOKEN", ""),
			TimeoutSeconds: getenvInt("MAPS_TIMEOUT_SECONDS", 5),
		},
		Cache: CacheConfig{
			TravelTimeSize:   getenvInt("TRAVEL_TIME_CACHE_SIZE", 10000),
			TravelTimeTTLSec: getenvInt("TRAVEL_TIME_CACHE_TTL_SECONDS", 86400),
			GeocodeSize:      getenvInt("GEOCODE_CACHE_SIZE", 5000),
			GeocodeTTLSec:    getenvInt("GEOCODE_CACHE_TTL_SECONDS", 7*86400),
			SharedEnabled:    getenvBool("SHARED_CACHE_ENABLED", true),
		},
		Geocode: GeocodeConfig{
			RequirePrecise: getenvBool("GEOCODE_REQUIRE_PRECISE", false),
		},
		Assignment: AssignmentConfig{
			CandidateLimit:  getenvInt("ASSIGNMENT_CANDIDATE_LIMIT", 3),
			SweepRadiusKM:   getenvFloat("ASSIGNMENT_SWEEP_RADIUS_KM", 0),
			SweepTimeoutSec: getenvInt("ASSIGNMENT_SWEEP_TIMEOUT_SECONDS", 300),
		},
		Internal: InternalConfig{
			SharedSecret: getenv("INTERNAL_API_KEY", ""),
			LogisticsURL: getenv("LOGISTICS_SERVICE_URL", "http://localhost:8080"),
		},
		Sync: SyncConfig{
			MaxAttempts:       getenvInt("SYNC_MAX_ATTEMPTS", 3),
			BaseDelayMillis:   getenvInt("SYNC_BASE_DELAY_MS", 1000),
			ReconcileInterval: time.Duration(getenvInt("RECONCILE_INTERVAL_SECONDS", 600)) * time.Second,
			ReconcileWorkers:  getenvInt("RECONCILE_WORKERS", 4),
		},
		Kafka: KafkaConfig{
			Brokers: getenvList("KAFKA_BROKERS"),
			Topic:   getenv("KAFKA_SHIPMENT_TOPIC", "shipment.events"),
		},
	}

	if cfg.Internal.SharedSecret == "" {
		return nil, fmt.Errorf("INTERNAL_API_KEY must be set")
	}

	return cfg, nil
}

func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DB, p.SSLMode)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (m MapsConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

func (s SyncConfig) BaseDelay() time.Duration {
	return time.Duration(s.BaseDelayMillis) * time.Millisecond
}
