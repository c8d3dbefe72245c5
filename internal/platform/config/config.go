package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration, built once in main.
type Config struct {
	Server     Server
	Postgres   PostgresConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	S3         S3Config
	LLM        LLMConfig
	Validation ValidationConfig
	Policy     PolicyConfig
	Profile    ProfileConfig
	Telemetry  TelemetryConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	Environment     string
	ServiceTokenKey string
	TokenIssuer     string
	TokenAudience   string
	ShutdownTimeout time.Duration
}

// IsLocal reports whether fixtures and in-memory adapters may be used.
func (s Server) IsLocal() bool {
	return s.Environment == "local"
}

// PostgresConfig is empty-URL safe: no URL means in-memory stores.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig backs the per-case lease and the profile cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig drives the validation trigger topic.
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	GroupID           string
	Partitions        int32
	ReplicationFactor int16
}

// S3Config locates evidence objects. Endpoint is set for MinIO and similar.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// LLMConfig selects and tunes the generative capability backend.
type LLMConfig struct {
	Provider          string
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        uint64
	RetryBaseDelay    time.Duration
	// Identifiers masked in document text before extraction.
	RedactEmails     bool
	RedactPhones     bool
	RedactTaxIDs     bool
	RedactDocNumbers bool
}

// ValidationConfig tunes the orchestrator.
type ValidationConfig struct {
	CallTimeout           time.Duration
	TargetLanguage        string
	DeterministicFallback bool
	DefaultCountry        string
	DefaultRiskTier       string
	LockTimeout           time.Duration
	LeaseTTL              time.Duration
	Workers               int
}

// PolicyConfig chooses how unknown categories are treated.
type PolicyConfig struct {
	UnknownCategory string
}

// ProfileConfig points at the customer master-data service.
type ProfileConfig struct {
	BaseURL         string
	Timeout         time.Duration
	CacheTTL        time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// TelemetryConfig enables OTLP trace export when an endpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
	Insecure     bool
	SampleRate   float64
}

// Load reads a .env file when present and then builds the config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            getString("KYC_ADDR", ":8080"),
			Environment:     getString("APP_ENV", "local"),
			ServiceTokenKey: getString("SERVICE_TOKEN_KEY", "dev-secret-key-change-in-production"),
			TokenIssuer:     getString("SERVICE_TOKEN_ISSUER", "kyc-platform"),
			TokenAudience:   getString("SERVICE_TOKEN_AUDIENCE", "kycgate"),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: PostgresConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     getBool("DATABASE_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           getList("KAFKA_BROKERS"),
			Topic:             getString("KAFKA_VALIDATION_TOPIC", "kyc.case.validate"),
			GroupID:           getString("KAFKA_GROUP_ID", "kyc-validation-orchestrator"),
			Partitions:        int32(getInt("KAFKA_TOPIC_PARTITIONS", 6)),
			ReplicationFactor: int16(getInt("KAFKA_TOPIC_REPLICATION", 1)),
		},
		S3: S3Config{
			Bucket:       getString("S3_BUCKET", "kyc-evidence"),
			Region:       getString("S3_REGION", "us-east-1"),
			Endpoint:     os.Getenv("S3_ENDPOINT"),
			UsePathStyle: getBool("S3_USE_PATH_STYLE", false),
		},
		LLM: LLMConfig{
			Provider:          getString("AI_PROVIDER", "stub"),
			BaseURL:           os.Getenv("AI_BASE_URL"),
			APIKey:            os.Getenv("AI_API_KEY"),
			Model:             getString("AI_MODEL", "gemini-1.5-pro"),
			Timeout:           getDuration("AI_TIMEOUT", 60*time.Second),
			RequestsPerSecond: getFloat("AI_REQUESTS_PER_SECOND", 5),
			Burst:             getInt("AI_BURST", 5),
			MaxRetries:        uint64(getInt("AI_REASONER_MAX_RETRIES", 2)),
			RetryBaseDelay:    getDuration("AI_REASONER_RETRY_BASE_DELAY", 800*time.Millisecond),
			RedactEmails:      getBool("AI_REDACT_EMAILS", true),
			RedactPhones:      getBool("AI_REDACT_PHONES", true),
			RedactTaxIDs:      getBool("AI_REDACT_TAX_IDS", true),
			RedactDocNumbers:  getBool("AI_REDACT_DOC_NUMBERS", true),
		},
		Validation: ValidationConfig{
			CallTimeout:           getDuration("VALIDATION_CALL_TIMEOUT", 30*time.Second),
			TargetLanguage:        getString("VALIDATION_TARGET_LANGUAGE", "en"),
			DeterministicFallback: getBool("VALIDATION_DETERMINISTIC_FALLBACK", false),
			DefaultCountry:        getString("VALIDATION_DEFAULT_COUNTRY", "IN"),
			DefaultRiskTier:       getString("VALIDATION_DEFAULT_RISK_TIER", "medium"),
			LockTimeout:           getDuration("VALIDATION_LOCK_TIMEOUT", 2*time.Minute),
			LeaseTTL:              getDuration("VALIDATION_LEASE_TTL", 5*time.Minute),
			Workers:               getInt("VALIDATION_WORKERS", 4),
		},
		Policy: PolicyConfig{
			UnknownCategory: getString("POLICY_UNKNOWN_CATEGORY", "fail_open"),
		},
		Profile: ProfileConfig{
			BaseURL:         os.Getenv("CUSTOMER_MASTER_BASE_URL"),
			Timeout:         getDuration("CUSTOMER_MASTER_TIMEOUT", 8*time.Second),
			CacheTTL:        getDuration("CUSTOMER_PROFILE_CACHE_TTL", 5*time.Minute),
			BreakerFailures: getInt("CUSTOMER_MASTER_BREAKER_FAILURES", 5),
			BreakerCooldown: getDuration("CUSTOMER_MASTER_BREAKER_COOLDOWN", 30*time.Second),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:  getString("OTEL_SERVICE_NAME", "kycgate"),
			Insecure:     getBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRate:   getFloat("OTEL_TRACES_SAMPLE_RATE", 1.0),
		},
	}
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
