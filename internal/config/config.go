package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

type HTTPConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
	// AuditBuffer bounds the audit events waiting to be published.
	AuditBuffer int
}

type StorageConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	UseSSL     bool
	Region     string
	PresignTTL time.Duration
}

const (
	SessionBackendMemory   = "memory"
	SessionBackendRedis    = "redis"
	SessionBackendPostgres = "postgres"
)

type SessionConfig struct {
	Backend    string
	CookieName string
	Timeout    time.Duration
	// Grace is added to the store TTL so an idle session is still loadable
	// when the timeout check runs and can be reported as expired.
	Grace    time.Duration
	HashKey  string
	BlockKey string
}

const (
	PasswordBcrypt   = "bcrypt"
	PasswordArgon2id = "argon2id"
)

type Argon2Config struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

type RateLimitConfig struct {
	Requests   int
	Window     time.Duration
	LoginBurst int
}

type SecurityConfig struct {
	CSRFTTL           time.Duration
	MaxLoginAttempts  int
	LockoutWindow     time.Duration
	PasswordAlgorithm string
	BcryptCost        int
	Argon2            Argon2Config
	RateLimit         RateLimitConfig
}

type UploadConfig struct {
	MaxSize           int64
	AllowedExtensions []string
}

type QueueConfig struct {
	ClaimInterval time.Duration
}

type JobsConfig struct {
	CleanupSchedule string
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	TLS              TLSConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Session          SessionConfig
	Security         SecurityConfig
	Upload           UploadConfig
	Queues           QueueConfig
	Jobs             JobsConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("WEBCHAXUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the auth layer cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendRedis, SessionBackendPostgres:
	default:
		return fmt.Errorf("config: unknown session backend %q", c.Session.Backend)
	}
	if c.Session.Timeout <= 0 {
		return errors.New("config: session.timeout must be positive")
	}

	sec := c.Security
	switch sec.PasswordAlgorithm {
	case PasswordBcrypt, PasswordArgon2id:
	default:
		return fmt.Errorf("config: unknown password algorithm %q", sec.PasswordAlgorithm)
	}
	if sec.BcryptCost < bcrypt.MinCost || sec.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("config: bcrypt cost %d out of range", sec.BcryptCost)
	}
	if sec.CSRFTTL <= 0 {
		return errors.New("config: security.csrfttl must be positive")
	}
	if sec.MaxLoginAttempts <= 0 || sec.LockoutWindow <= 0 {
		return errors.New("config: login throttle needs positive attempts and window")
	}
	if sec.RateLimit.Requests <= 0 || sec.RateLimit.Window <= 0 {
		return errors.New("config: rate limit needs positive requests and window")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.trustedproxies", []string{})

	v.SetDefault("tls.enabled", false)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "webchaxun:events")
	v.SetDefault("redis.group", "webchaxun-workers")
	v.SetDefault("redis.consumer", "worker-1")
	v.SetDefault("redis.auditbuffer", 1024)

	v.SetDefault("storage.endpoint", "127.0.0.1:9000")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucket", "webchaxun-files")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.presignttl", "15m")

	v.SetDefault("session.backend", SessionBackendRedis)
	v.SetDefault("session.cookiename", "EXCEL_SYSTEM_SESSION")
	v.SetDefault("session.timeout", "1h")
	v.SetDefault("session.grace", "5m")
	v.SetDefault("session.hashkey", "")
	v.SetDefault("session.blockkey", "")

	v.SetDefault("security.csrfttl", "30m")
	v.SetDefault("security.maxloginattempts", 5)
	v.SetDefault("security.lockoutwindow", "15m")
	v.SetDefault("security.passwordalgorithm", PasswordBcrypt)
	v.SetDefault("security.bcryptcost", 12)
	v.SetDefault("security.argon2.time", 3)
	v.SetDefault("security.argon2.memory", 64*1024)
	v.SetDefault("security.argon2.threads", 2)
	v.SetDefault("security.ratelimit.requests", 60)
	v.SetDefault("security.ratelimit.window", "60s")
	v.SetDefault("security.ratelimit.loginburst", 10)

	v.SetDefault("upload.maxsize", 50<<20)
	v.SetDefault("upload.allowedextensions", []string{"xls", "xlsx", "csv"})

	v.SetDefault("queues.claiminterval", "10s")
	v.SetDefault("jobs.cleanupschedule", "0 */10 * * * *")

	v.SetDefault("logging.level", "info")
	v.SetDefault("allowcorsorigins", []string{})
}
