package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Service names accepted by Load.
const (
	ServiceIdentity = "identity"
	ServiceStyling  = "styling"
	ServiceWardrobe = "wardrobe"
	ServiceSocial   = "social"
	ServiceCommerce = "commerce"
)

const (
	maxAuthCacheTTL   = 60 * time.Second
	maxUserContextTTL = 5 * time.Minute
)

type AppConfig struct {
	App            AppSettings            `mapstructure:"app"`
	Log            LogSettings            `mapstructure:"log"`
	HTTP           HTTPSettings           `mapstructure:"http"`
	Postgres       PostgresSettings       `mapstructure:"postgres"`
	Redis          RedisSettings          `mapstructure:"redis"`
	Kafka          KafkaSettings          `mapstructure:"kafka"`
	Identity       IdentitySettings       `mapstructure:"identity"`
	Argon2         Argon2Settings         `mapstructure:"argon2"`
	RateLimit      RateLimitSettings      `mapstructure:"rate_limit"`
	AuthCache      AuthCacheSettings      `mapstructure:"auth_cache"`
	UserContext    UserContextSettings    `mapstructure:"user_context"`
	Peers          PeerSettings           `mapstructure:"peers"`
	ServiceAuth    ServiceAuthSettings    `mapstructure:"service_auth"`
	Export         ExportSettings         `mapstructure:"export"`
	Retention      RetentionSettings      `mapstructure:"retention"`
	Reconciliation ReconciliationSettings `mapstructure:"reconciliation"`
	Styling        StylingSettings        `mapstructure:"styling"`
	Snowflake      SnowflakeSettings      `mapstructure:"snowflake"`
	Telemetry      TelemetrySettings      `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name    string `mapstructure:"name"`
	Service string `mapstructure:"service"`
	Env     string `mapstructure:"env"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// LogSettings configures the optional rotated file sink.
type LogSettings struct {
	File string `mapstructure:"file"`
}

type HTTPSettings struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
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
	QueryTimeout      time.Duration `mapstructure:"query_timeout"`
}

// RedisSettings configures Redis connection and TLS. An empty host disables Redis.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the producer and consumer groups.
type KafkaSettings struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	TopicPrefix   string   `mapstructure:"topic_prefix"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	Async         bool     `mapstructure:"async"`
}

// IdentitySettings tunes token lifetime and the login lockout heuristics.
type IdentitySettings struct {
	TokenTTL            time.Duration `mapstructure:"token_ttl"`
	LockoutThreshold    int           `mapstructure:"lockout_threshold"`
	LockoutDuration     time.Duration `mapstructure:"lockout_duration"`
	SuspiciousWindow    time.Duration `mapstructure:"suspicious_window"`
	SuspiciousThreshold int           `mapstructure:"suspicious_threshold"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration      time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts    int           `mapstructure:"login_max_attempts"`
	RegisterMaxAttempts int           `mapstructure:"register_max_attempts"`
	RefreshMaxAttempts  int           `mapstructure:"refresh_max_attempts"`
}

type AuthCacheSettings struct {
	TTL  time.Duration `mapstructure:"ttl"`
	Size int           `mapstructure:"size"`
}

type UserContextSettings struct {
	TTL  time.Duration `mapstructure:"ttl"`
	Size int           `mapstructure:"size"`
}

// PeerSettings locates sibling services. Empty URLs disable the matching client.
type PeerSettings struct {
	IdentityURL string        `mapstructure:"identity_url"`
	WardrobeURL string        `mapstructure:"wardrobe_url"`
	StylingURL  string        `mapstructure:"styling_url"`
	SocialURL   string        `mapstructure:"social_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ServiceAuthSettings configures the HS256 tokens services present on /internal routes.
type ServiceAuthSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type ExportSettings struct {
	Storage      string        `mapstructure:"storage"`
	Dir          string        `mapstructure:"dir"`
	S3           S3Settings    `mapstructure:"s3"`
	TTL          time.Duration `mapstructure:"ttl"`
	MaxDownloads int           `mapstructure:"max_downloads"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
	ReclaimAfter time.Duration `mapstructure:"reclaim_after"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type S3Settings struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	Prefix          string `mapstructure:"prefix"`
}

type RetentionSettings struct {
	Interval      time.Duration `mapstructure:"interval"`
	CriticalYears int           `mapstructure:"critical_years"`
}

type ReconciliationSettings struct {
	Interval       time.Duration `mapstructure:"interval"`
	DriftThreshold float64       `mapstructure:"drift_threshold"`
	BatchSize      int           `mapstructure:"batch_size"`
}

type StylingSettings struct {
	NormalizeInterval time.Duration `mapstructure:"normalize_interval"`
}

type SnowflakeSettings struct {
	Node int64 `mapstructure:"node"`
}

type TelemetrySettings struct {
	MetricsEnabled bool    `mapstructure:"metrics_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// Load reads configuration for service from defaults, the environment and VANITY_* overrides.
func Load(service string) (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("VANITY")

	setDefaults(v, service)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.service",
		"app.env",
		"app.host",
		"app.port",
		"log.file",
		"http.request_timeout",
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
		"postgres.query_timeout",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.consumer_group",
		"kafka.async",
		"identity.token_ttl",
		"identity.lockout_threshold",
		"identity.lockout_duration",
		"identity.suspicious_window",
		"identity.suspicious_threshold",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.register_max_attempts",
		"rate_limit.refresh_max_attempts",
		"auth_cache.ttl",
		"auth_cache.size",
		"user_context.ttl",
		"user_context.size",
		"peers.identity_url",
		"peers.wardrobe_url",
		"peers.styling_url",
		"peers.social_url",
		"peers.timeout",
		"service_auth.secret",
		"service_auth.issuer",
		"service_auth.ttl",
		"export.storage",
		"export.dir",
		"export.s3.bucket",
		"export.s3.region",
		"export.s3.endpoint",
		"export.s3.access_key_id",
		"export.s3.secret_access_key",
		"export.s3.use_path_style",
		"export.s3.prefix",
		"export.ttl",
		"export.max_downloads",
		"export.job_timeout",
		"export.reclaim_after",
		"export.poll_interval",
		"retention.interval",
		"retention.critical_years",
		"reconciliation.interval",
		"reconciliation.drift_threshold",
		"reconciliation.batch_size",
		"styling.normalize_interval",
		"snowflake.node",
		"telemetry.metrics_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// normalize enforces the staleness bounds on the cross-service caches.
func (c *AppConfig) normalize() error {
	switch c.App.Service {
	case ServiceIdentity, ServiceStyling, ServiceWardrobe, ServiceSocial, ServiceCommerce:
	default:
		return fmt.Errorf("config: unknown service %q", c.App.Service)
	}
	if c.AuthCache.TTL <= 0 || c.AuthCache.TTL > maxAuthCacheTTL {
		c.AuthCache.TTL = maxAuthCacheTTL
	}
	if c.UserContext.TTL <= 0 || c.UserContext.TTL > maxUserContextTTL {
		c.UserContext.TTL = maxUserContextTTL
	}
	if c.Export.Storage != "local" && c.Export.Storage != "s3" {
		return fmt.Errorf("config: export.storage must be local or s3, got %q", c.Export.Storage)
	}
	if c.Export.Storage == "s3" && c.Export.S3.Bucket == "" {
		return fmt.Errorf("config: export.s3.bucket is required when export.storage=s3")
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "vanity-" + c.App.Service
	}
	return nil
}

// Addr is the HTTP listen address.
func (c AppSettings) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether a Redis host is configured.
func (r RedisSettings) Enabled() bool {
	return r.Host != ""
}

var defaultPorts = map[string]int{
	ServiceIdentity: 8001,
	ServiceStyling:  8002,
	ServiceWardrobe: 8003,
	ServiceSocial:   8004,
	ServiceCommerce: 8005,
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("app.name", "vanity-agent")
	v.SetDefault("app.service", service)
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", defaultPorts[service])

	v.SetDefault("log.file", "")
	v.SetDefault("http.request_timeout", "10s")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "vanity")
	v.SetDefault("postgres.password", "vanity_password")
	v.SetDefault("postgres.database", "vanity")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.query_timeout", "2s")

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "vanity:"+service)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "vanity")
	v.SetDefault("kafka.consumer_group", "vanity-"+service)
	v.SetDefault("kafka.async", true)

	v.SetDefault("identity.token_ttl", "24h")
	v.SetDefault("identity.lockout_threshold", 5)
	v.SetDefault("identity.lockout_duration", "30m")
	v.SetDefault("identity.suspicious_window", "1h")
	v.SetDefault("identity.suspicious_threshold", 3)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 20)
	v.SetDefault("rate_limit.register_max_attempts", 5)
	v.SetDefault("rate_limit.refresh_max_attempts", 10)

	v.SetDefault("auth_cache.ttl", "60s")
	v.SetDefault("auth_cache.size", 10000)
	v.SetDefault("user_context.ttl", "5m")
	v.SetDefault("user_context.size", 10000)

	v.SetDefault("peers.identity_url", "http://localhost:8001")
	v.SetDefault("peers.wardrobe_url", "http://localhost:8003")
	v.SetDefault("peers.styling_url", "http://localhost:8002")
	v.SetDefault("peers.social_url", "http://localhost:8004")
	v.SetDefault("peers.timeout", "3s")

	v.SetDefault("service_auth.secret", "vanity-dev-service-secret-change-me")
	v.SetDefault("service_auth.issuer", "vanity-agent")
	v.SetDefault("service_auth.ttl", "5m")

	v.SetDefault("export.storage", "local")
	v.SetDefault("export.dir", "./exports")
	v.SetDefault("export.s3.region", "us-east-1")
	v.SetDefault("export.s3.prefix", "exports/")
	v.SetDefault("export.ttl", "168h")
	v.SetDefault("export.max_downloads", 3)
	v.SetDefault("export.job_timeout", "10m")
	v.SetDefault("export.reclaim_after", "30m")
	v.SetDefault("export.poll_interval", "10s")

	v.SetDefault("retention.interval", "24h")
	v.SetDefault("retention.critical_years", 7)

	v.SetDefault("reconciliation.interval", "1h")
	v.SetDefault("reconciliation.drift_threshold", 0.01)
	v.SetDefault("reconciliation.batch_size", 1000)

	v.SetDefault("styling.normalize_interval", "1h")

	v.SetDefault("snowflake.node", 1)

	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "VANITY_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
