package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "dev-secret"

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Student   StudentConfig
	Upload    UploadConfig
	SMTP      SMTPConfig
	Workflow  WorkflowConfig
	Seed      SeedConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	BaseURL               string
	RequestTimeoutSeconds int
	TrustProxyHeaders     bool
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines admin session parameters.
type AuthConfig struct {
	JWTSecret  string
	SessionTTL time.Duration
	CookieName string
	BcryptCost int
}

// RateLimitConfig selects the admission backend and its policy.
type RateLimitConfig struct {
	Backend   string
	Window    time.Duration
	MaxHits   int
	KeyPrefix string
}

// StudentConfig constrains student contact details.
type StudentConfig struct {
	EmailDomain string
}

// UploadConfig selects where attachment binaries are written.
type UploadConfig struct {
	Provider     string
	LocalDir     string
	PublicPrefix string
	MaxBytes     int64
	AllowedMimes []string
	S3Bucket     string
	S3Region     string
	S3AccessKey  string
	S3SecretKey  string
	S3Endpoint   string
	S3PublicURL  string
	S3KeyPrefix  string
}

// SMTPConfig holds outbound mail settings. An empty Host disables delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// WorkflowConfig toggles status-transition enforcement.
type WorkflowConfig struct {
	StrictTransitions bool
}

// SeedConfig feeds the seed command.
type SeedConfig struct {
	AdminEmail    string
	AdminPassword string
	SampleTicket  bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))
	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "uni-helpdesk"),
			Env:                   env,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			BaseURL:               strings.TrimSuffix(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			TrustProxyHeaders:     getEnvAsBool("HTTP_TRUST_PROXY_HEADERS", false),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("AUTH_JWT_SECRET", defaultJWTSecret),
			SessionTTL: getEnvAsDuration("AUTH_SESSION_TTL", 8*time.Hour),
			CookieName: getEnv("AUTH_COOKIE_NAME", "helpdesk_session"),
			BcryptCost: getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		RateLimit: RateLimitConfig{
			Backend:   strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),
			Window:    getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
			MaxHits:   getEnvAsInt("RATE_LIMIT_MAX", 5),
			KeyPrefix: getEnv("RATE_LIMIT_PREFIX", "helpdesk"),
		},
		Student: StudentConfig{
			EmailDomain: strings.TrimPrefix(getEnv("STUDENT_EMAIL_DOMAIN", "britishuniversity.krd"), "@"),
		},
		Upload: UploadConfig{
			Provider:     strings.ToLower(getEnv("UPLOAD_PROVIDER", "local")),
			LocalDir:     getEnv("UPLOAD_LOCAL_DIR", "public/uploads"),
			PublicPrefix: "/" + strings.Trim(getEnv("UPLOAD_PUBLIC_PREFIX", "/uploads"), "/"),
			MaxBytes:     int64(getEnvAsInt("UPLOAD_MAX_BYTES", 5*1024*1024)),
			AllowedMimes: getEnvAsList("UPLOAD_ALLOWED_MIMES", []string{"image/png", "image/jpeg", "application/pdf"}),
			S3Bucket:     os.Getenv("S3_BUCKET"),
			S3Region:     os.Getenv("S3_REGION"),
			S3AccessKey:  os.Getenv("S3_ACCESS_KEY_ID"),
			S3SecretKey:  os.Getenv("S3_SECRET_ACCESS_KEY"),
			S3Endpoint:   os.Getenv("S3_ENDPOINT"),
			S3PublicURL:  strings.TrimSuffix(os.Getenv("S3_PUBLIC_URL"), "/"),
			S3KeyPrefix:  getEnv("S3_KEY_PREFIX", "uploads"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     getEnv("SMTP_FROM", "no-reply@university.edu"),
		},
		Workflow: WorkflowConfig{
			StrictTransitions: getEnvAsBool("WORKFLOW_STRICT_TRANSITIONS", false),
		},
		Seed: SeedConfig{
			AdminEmail:    os.Getenv("ADMIN_SEED_EMAIL"),
			AdminPassword: os.Getenv("ADMIN_SEED_PASSWORD"),
			SampleTicket:  getEnvAsBool("SEED_SAMPLE_TICKET", env != "production"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	var errs []error
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("RATE_LIMIT_BACKEND=redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend))
	}
	if c.RateLimit.MaxHits <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit window and max must be positive"))
	}
	switch c.Upload.Provider {
	case "local":
	case "s3":
		if c.Upload.S3Bucket == "" || c.Upload.S3Region == "" {
			errs = append(errs, errors.New("UPLOAD_PROVIDER=s3 requires S3_BUCKET and S3_REGION"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown UPLOAD_PROVIDER %q", c.Upload.Provider))
	}
	if c.App.IsProduction() && c.Auth.JWTSecret == defaultJWTSecret {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be set in production"))
	}
	if c.Student.EmailDomain == "" {
		errs = append(errs, errors.New("STUDENT_EMAIL_DOMAIN must not be empty"))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsProduction reports whether APP_ENV is production.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, "production")
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// S3BaseURL returns the public URL prefix for objects written to S3, or ""
// when S3 is not configured.
func (u UploadConfig) S3BaseURL() string {
	if u.S3PublicURL != "" {
		return strings.TrimRight(u.S3PublicURL, "/")
	}
	if u.S3Bucket == "" || u.S3Region == "" {
		return ""
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", u.S3Bucket, u.S3Region)
}

// AllowedReferencePrefixes lists URL prefixes an attachment reference may use.
func (u UploadConfig) AllowedReferencePrefixes() []string {
	prefixes := []string{strings.TrimSuffix(u.PublicPrefix, "/") + "/"}
	if base := u.S3BaseURL(); base != "" {
		prefixes = append(prefixes, base+"/")
	}
	return prefixes
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
