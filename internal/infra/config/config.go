package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	SMTP      SMTPSettings      `mapstructure:"smtp"`
	Security  SecuritySettings  `mapstructure:"security"`
	Scheduler SchedulerSettings `mapstructure:"scheduler"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	BaseURL        string   `mapstructure:"base_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
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

// RedisSettings configures Redis connection and TLS.
type RedisSettings struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	DB            int    `mapstructure:"db"`
	Password      string `mapstructure:"password"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	WarningPrefix string `mapstructure:"warning_prefix"`
}

// KafkaSettings configures the Kafka producer.
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// SMTPSettings configures the outbound mail relay.
type SMTPSettings struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// SecuritySettings tunes the identity policies.
type SecuritySettings struct {
	SessionSecret        string        `mapstructure:"session_secret"`
	SessionTTL           time.Duration `mapstructure:"session_ttl"`
	LockoutThreshold     int           `mapstructure:"lockout_threshold"`
	PasswordExpiry       time.Duration `mapstructure:"password_expiry"`
	TempPasswordExpiry   time.Duration `mapstructure:"temp_password_expiry"`
	PasswordHistoryLimit int           `mapstructure:"password_history_limit"`
	ResetTokenTTL        time.Duration `mapstructure:"reset_token_ttl"`
	WarningThreshold     time.Duration `mapstructure:"warning_threshold"`
}

// SchedulerSettings holds the cron expressions for the maintenance bands.
type SchedulerSettings struct {
	Enabled       bool   `mapstructure:"enabled"`
	SessionSweep  string `mapstructure:"session_sweep"`
	PasswordSweep string `mapstructure:"password_sweep"`
	LedgerSweep   string `mapstructure:"ledger_sweep"`
}

type TelemetrySettings struct {
	ServiceName string `mapstructure:"service_name"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint.
type RateLimitSettings struct {
	WindowDuration   time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts int           `mapstructure:"login_max_attempts"`
	ResetMaxAttempts int           `mapstructure:"reset_max_attempts"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("HELM")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.base_url",
		"app.allowed_origins",
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
		"redis.warning_prefix",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"smtp.enabled",
		"smtp.host",
		"smtp.port",
		"smtp.username",
		"smtp.password",
		"smtp.from",
		"security.session_secret",
		"security.session_ttl",
		"security.lockout_threshold",
		"security.password_expiry",
		"security.temp_password_expiry",
		"security.password_history_limit",
		"security.reset_token_ttl",
		"security.warning_threshold",
		"scheduler.enabled",
		"scheduler.session_sweep",
		"scheduler.password_sweep",
		"scheduler.ledger_sweep",
		"telemetry.service_name",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.reset_max_attempts",
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
	v.SetDefault("app.name", "identity-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.allowed_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "helm")
	v.SetDefault("postgres.password", "helm_password")
	v.SetDefault("postgres.database", "helm")
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
	v.SetDefault("redis.warning_prefix", "helm:password_warning")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "helm.identity")
	v.SetDefault("kafka.async", true)

	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "no-reply@helm.local")

	v.SetDefault("security.session_secret", "development-session-secret")
	v.SetDefault("security.session_ttl", "1h")
	v.SetDefault("security.lockout_threshold", 3)
	v.SetDefault("security.password_expiry", "2160h") // 90 days
	v.SetDefault("security.temp_password_expiry", "15m")
	v.SetDefault("security.password_history_limit", 10)
	v.SetDefault("security.reset_token_ttl", "1h")
	v.SetDefault("security.warning_threshold", "72h")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.session_sweep", "@every 10m")
	v.SetDefault("scheduler.password_sweep", "@every 1h")
	v.SetDefault("scheduler.ledger_sweep", "@every 24h")

	v.SetDefault("telemetry.service_name", "identity-service")

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.reset_max_attempts", 3)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "HELM_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
