package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "comply/pkg/platform/strings"
)

// Config holds everything main needs to wire the service. Values come from
// the environment so deployments stay twelve-factor and main stays lean.
type Config struct {
	Server    Server
	Kafka     Kafka
	Redis     RedisConfig
	Postgres  Postgres
	Filing    Filing
	Screening Screening
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
}

// Kafka captures broker addresses and the topics the router consumes and
// produces. Inbound topics are partitioned and ordered; the group id scopes
// offset commits.
type Kafka struct {
	Brokers []string
	GroupID string

	FraudAlertsTopic       string
	CashDepositsTopic      string
	ScreeningRequestsTopic string
	FilingFailuresTopic    string

	DeadLetterTopic   string
	AlertTopic        string
	StatusTopic       string
	ManualReviewTopic string
}

// Inbound lists the topics the consumer group subscribes to.
func (k Kafka) Inbound() []string {
	return []string{
		k.FraudAlertsTopic,
		k.CashDepositsTopic,
		k.ScreeningRequestsTopic,
		k.FilingFailuresTopic,
	}
}

// RedisConfig configures the shared Redis client used by the screening
// result cache. An empty URL disables Redis and callers fall back to the
// in-memory cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Postgres configures the filing store. An empty DSN selects the in-memory
// store, which is only appropriate for development.
type Postgres struct {
	DSN string
}

// Filing tunes deadline sweeping and failure handling. Transition rules and
// deadline windows are policy, not configuration, and live in the filing
// package.
type Filing struct {
	OverdueSweepInterval    time.Duration
	NotifyFailureEscalation bool
}

// Screening tunes the consolidator's timeouts and concurrency. Sources are
// the external list providers to query; when none are configured the service
// falls back to empty in-memory lists, which is only useful in development.
type Screening struct {
	OverallTimeout   time.Duration
	PerSourceTimeout time.Duration
	MaxConcurrent    int64
	CacheTTL         time.Duration

	Sources         []ScreeningSource
	APIKey          string
	DomesticSources []string
}

// ScreeningSource names one external screening provider endpoint.
type ScreeningSource struct {
	Name string
	URL  string
}

// FromEnv builds the full configuration from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envString("COMPLY_ADDR", ":8080"),
			JWTSigningKey: envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Kafka: Kafka{
			Brokers:                envStrings("KAFKA_BROKERS", "localhost:9092"),
			GroupID:                envString("KAFKA_GROUP_ID", "comply-event-processor"),
			FraudAlertsTopic:       envString("KAFKA_FRAUD_ALERTS_TOPIC", "compliance.fraud-alerts"),
			CashDepositsTopic:      envString("KAFKA_CASH_DEPOSITS_TOPIC", "compliance.cash-deposits"),
			ScreeningRequestsTopic: envString("KAFKA_SCREENING_REQUESTS_TOPIC", "compliance.screening-requests"),
			FilingFailuresTopic:    envString("KAFKA_FILING_FAILURES_TOPIC", "compliance.filing-failures"),
			DeadLetterTopic:        envString("KAFKA_DLQ_TOPIC", "compliance.dlq"),
			AlertTopic:             envString("KAFKA_ALERT_TOPIC", "compliance.alerts"),
			StatusTopic:            envString("KAFKA_STATUS_TOPIC", "compliance.filing-status"),
			ManualReviewTopic:      envString("KAFKA_MANUAL_REVIEW_TOPIC", "compliance.manual-review"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: Postgres{
			DSN: os.Getenv("POSTGRES_DSN"),
		},
		Filing: Filing{
			OverdueSweepInterval:    envDuration("FILING_OVERDUE_SWEEP_INTERVAL", 5*time.Minute),
			NotifyFailureEscalation: envBool("NOTIFY_FAILURE_ESCALATION", false),
		},
		Screening: Screening{
			OverallTimeout:   envDuration("SCREENING_OVERALL_TIMEOUT", 3*time.Second),
			PerSourceTimeout: envDuration("SCREENING_SOURCE_TIMEOUT", 2*time.Second),
			MaxConcurrent:    int64(envInt("SCREENING_MAX_CONCURRENT", 8)),
			CacheTTL:         envDuration("SCREENING_CACHE_TTL", 15*time.Minute),
			Sources:          envSources("SCREENING_SOURCES"),
			APIKey:           os.Getenv("SCREENING_API_KEY"),
			DomesticSources:  envOptionalStrings("SCREENING_DOMESTIC_SOURCES"),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envStrings(key, fallback string) []string {
	raw := envString(key, fallback)
	return platformstrings.DedupeAndTrim(strings.Split(raw, ","))
}

// envOptionalStrings is envStrings without a fallback: an unset variable
// yields nil rather than a one-element slice.
func envOptionalStrings(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	return platformstrings.DedupeAndTrim(strings.Split(raw, ","))
}

// envSources parses "NAME=url,NAME=url" pairs. Malformed pairs are skipped
// rather than failing startup; a missing source surfaces loudly at screening
// time anyway.
func envSources(key string) []ScreeningSource {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []ScreeningSource
	for _, pair := range strings.Split(raw, ",") {
		name, url, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" || url == "" {
			continue
		}
		out = append(out, ScreeningSource{Name: name, URL: url})
	}
	return out
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
