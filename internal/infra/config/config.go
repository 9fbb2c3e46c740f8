package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig is the immutable process configuration, constructed once at
// startup and passed by reference into constructors.
type AppConfig struct {
	App          AppSettings          `mapstructure:"app"`
	Postgres     PostgresSettings     `mapstructure:"postgres"`
	Redis        RedisSettings        `mapstructure:"redis"`
	Kafka        KafkaSettings        `mapstructure:"kafka"`
	Journey      JourneySettings      `mapstructure:"journey"`
	Verification VerificationSettings `mapstructure:"verification"`
	RateLimit    RateLimitSettings    `mapstructure:"rate_limit"`
	Protocol     ProtocolSettings     `mapstructure:"protocol"`
	Telemetry    TelemetrySettings    `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name               string   `mapstructure:"name"`
	Env                string   `mapstructure:"env"`
	Host               string   `mapstructure:"host"`
	Port               int      `mapstructure:"port"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	DB            int           `mapstructure:"db"`
	Password      string        `mapstructure:"password"`
	TLSEnabled    bool          `mapstructure:"tls_enabled"`
	SessionPrefix string        `mapstructure:"session_prefix"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
}

// KafkaSettings configures the Kafka producer for journey lifecycle events.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// JourneySettings configures journey correlation and persistence.
type JourneySettings struct {
	// QueryParam is the browser-facing query parameter carrying the journey id.
	QueryParam string `mapstructure:"query_param"`
	// SessionCookieName identifies the browser session backing the ephemeral
	// store.
	SessionCookieName string `mapstructure:"session_cookie_name"`
	// AllowListCookieName holds the signed allow-list of journey ids this
	// browser has created, consulted by the durable store.
	AllowListCookieName string `mapstructure:"allow_list_cookie_name"`
	// CookieSigningKey signs the allow-list cookie.
	CookieSigningKey string        `mapstructure:"cookie_signing_key"`
	CookieTTL        time.Duration `mapstructure:"cookie_ttl"`
	// LookupMaxAttempts bounds registration-number lookup attempts before the
	// requirement counts as exhausted.
	LookupMaxAttempts int `mapstructure:"lookup_max_attempts"`
}

// VerificationSettings configures one-time-code issuance and checking.
type VerificationSettings struct {
	CodeTTL time.Duration `mapstructure:"code_ttl"`
	// ExpiredGrace is the window after expiry in which a submitted code is
	// flagged recently expired so a fresh one is silently reissued.
	ExpiredGrace time.Duration `mapstructure:"expired_grace"`
}

// RateLimitSettings configures per-IP abuse counters. Disabled substitutes a
// no-op limiter without changing caller code.
type RateLimitSettings struct {
	Enabled           bool          `mapstructure:"enabled"`
	KeyPrefix         string        `mapstructure:"key_prefix"`
	WindowDuration    time.Duration `mapstructure:"window_duration"`
	IssueMaxAttempts  int           `mapstructure:"issue_max_attempts"`
	VerifyMaxAttempts int           `mapstructure:"verify_max_attempts"`
}

// ProtocolSettings configures the development protocol engine stand-in.
type ProtocolSettings struct {
	Issuer     string `mapstructure:"issuer"`
	SigningKey string `mapstructure:"signing_key"`
}

type TelemetrySettings struct {
	MetricsPort int    `mapstructure:"metrics_port"`
	ServiceName string `mapstructure:"service_name"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("IDP")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.cors_allowed_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.session_prefix",
		"redis.session_ttl",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"journey.query_param",
		"journey.session_cookie_name",
		"journey.allow_list_cookie_name",
		"journey.cookie_signing_key",
		"journey.cookie_ttl",
		"journey.lookup_max_attempts",
		"verification.code_ttl",
		"verification.expired_grace",
		"rate_limit.enabled",
		"rate_limit.key_prefix",
		"rate_limit.window_duration",
		"rate_limit.issue_max_attempts",
		"rate_limit.verify_max_attempts",
		"protocol.issuer",
		"protocol.signing_key",
		"telemetry.metrics_port",
		"telemetry.service_name",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "get-an-identity")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.cors_allowed_origins", []string{})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "idp")
	v.SetDefault("postgres.password", "idp_password")
	v.SetDefault("postgres.database", "idp")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.session_prefix", "idp:session")
	v.SetDefault("redis.session_ttl", "30m")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "idp")
	v.SetDefault("kafka.async", true)

	v.SetDefault("journey.query_param", "journey_id")
	v.SetDefault("journey.session_cookie_name", "idp-session")
	v.SetDefault("journey.allow_list_cookie_name", "idp-journeys")
	v.SetDefault("journey.cookie_ttl", "720h")
	v.SetDefault("journey.lookup_max_attempts", 3)

	v.SetDefault("verification.code_ttl", "2m")
	v.SetDefault("verification.expired_grace", "2h")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.key_prefix", "idp:rate-limit")
	v.SetDefault("rate_limit.window_duration", "1h")
	v.SetDefault("rate_limit.issue_max_attempts", 5)
	v.SetDefault("rate_limit.verify_max_attempts", 10)

	v.SetDefault("protocol.issuer", "http://localhost:8080")
	v.SetDefault("protocol.signing_key", "")

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.service_name", "get-an-identity")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}
