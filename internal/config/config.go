package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is built once at startup and handed to constructors; nothing reads
// the environment after Load returns.
type Config struct {
	Environment    string
	Port           string
	DatabaseURL    string
	SentryDSN      string
	CronSecret     string
	RequestTimeout time.Duration
	RunMigrations  bool

	// TrustProxyHeaders makes client identification use the X-Forwarded-For
	// hop appended by a fronting proxy instead of the TCP peer.
	TrustProxyHeaders bool

	DB        DB
	Tokens    Tokens
	LoginRate LoginRate
	Media     Media
	Mail      Mail
}

type DB struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type Tokens struct {
	Secret              []byte
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	ActionTTL           time.Duration
	RevokeRefreshTokens bool
	RevocationRetention time.Duration
	RevocationBatchSize int
}

type LoginRate struct {
	MaxHits int
	Window  time.Duration
}

type Media struct {
	Backend       string
	LocalDir      string
	PublicBaseURL string
	CloudinaryURL string
	R2            R2
}

type R2 struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicURL       string
}

type Mail struct {
	AMQPURL string
	Queue   string
}

// Production reports whether cookies must carry the Secure attribute.
func (c Config) Production() bool {
	return c.Environment == EnvProduction
}

func Load() (Config, error) {
	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}

	environment := strings.ToLower(envOrDefault("APP_ENV", envOrDefault("ENVIRONMENT", EnvDevelopment)))

	cfg := Config{
		Environment:    environment,
		Port:           envOrDefault("PORT", "8080"),
		DatabaseURL:    databaseURL,
		SentryDSN:      strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		CronSecret:     strings.TrimSpace(os.Getenv("CRON_SECRET")),
		RequestTimeout: envSecondsOrDefault("REQUEST_TIMEOUT_SECONDS", 15),
		RunMigrations:  EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", true),

		TrustProxyHeaders: EnvBoolOrDefault("TRUST_PROXY_HEADERS", false),
		DB: DB{
			MaxOpenConns:    envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
			ConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
		},
		Tokens: Tokens{
			Secret:              []byte(jwtSecret),
			AccessTTL:           envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
			RefreshTTL:          envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),
			ActionTTL:           envMinutesOrDefault("ACTION_TOKEN_TTL_MINUTES", 60),
			RevokeRefreshTokens: EnvBoolOrDefault("REVOKE_REFRESH_TOKENS", false),
			RevocationRetention: envDaysOrDefault("AUTH_REVOCATION_RETENTION_DAYS", 1),
			RevocationBatchSize: envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
		},
		LoginRate: LoginRate{
			MaxHits: envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
			Window:  envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		Media: Media{
			Backend:       strings.ToLower(envOrDefault("MEDIA_BACKEND", "local")),
			LocalDir:      envOrDefault("MEDIA_LOCAL_DIR", "static"),
			PublicBaseURL: strings.TrimRight(envOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			CloudinaryURL: strings.TrimSpace(os.Getenv("CLOUDINARY_URL")),
			R2: R2{
				AccountID:       strings.TrimSpace(os.Getenv("R2_ACCOUNT_ID")),
				AccessKeyID:     strings.TrimSpace(os.Getenv("R2_ACCESS_KEY_ID")),
				SecretAccessKey: strings.TrimSpace(os.Getenv("R2_SECRET_ACCESS_KEY")),
				Bucket:          strings.TrimSpace(os.Getenv("R2_BUCKET_NAME")),
				PublicURL:       strings.TrimRight(strings.TrimSpace(os.Getenv("R2_PUBLIC_URL")), "/"),
			},
		},
		Mail: Mail{
			AMQPURL: strings.TrimSpace(os.Getenv("AMQP_URL")),
			Queue:   envOrDefault("MAIL_QUEUE", "postboard.mail"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if len(c.Tokens.Secret) < 32 && c.Production() {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes in production")
	}

	switch c.Media.Backend {
	case "local":
	case "r2":
		r2 := c.Media.R2
		if r2.AccountID == "" || r2.AccessKeyID == "" || r2.SecretAccessKey == "" || r2.Bucket == "" || r2.PublicURL == "" {
			return fmt.Errorf("MEDIA_BACKEND=r2 requires R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_BUCKET_NAME and R2_PUBLIC_URL")
		}
	case "cloudinary":
		if c.Media.CloudinaryURL == "" {
			return fmt.Errorf("MEDIA_BACKEND=cloudinary requires CLOUDINARY_URL")
		}
	default:
		return fmt.Errorf("unknown MEDIA_BACKEND: %s", c.Media.Backend)
	}

	return nil
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
