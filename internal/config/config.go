package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string
	AppURL  string // base URL embedded in magic links
	AppName string

	StoreBackend     string // "dynamo" | "postgres" | "memory"
	RateLimitBackend string // "redis" | "memory"
	StoreTimeout     time.Duration

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MagicLinkExpiry time.Duration
	OTPExpiry       time.Duration
	ResendAfter     time.Duration
	Limits          Limits

	DispatchWorkers     int
	DispatchQueueSize   int
	DispatchMaxAttempts int
	DispatchBackoff     time.Duration
	PurgeInterval       time.Duration

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SNSRegion    string
	SMSMethod    string // "sns" | "log"

	AllowedOrigins []string // CORS allowed origins
	TrustedProxies []string // peers whose X-Forwarded-For is believed (IPs or CIDRs)
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users       string
	Credentials string
	Sessions    string
}

// Policy is a fixed-window budget: at most Max attempts per Window.
type Policy struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// Limits groups the per-identifier budgets for issuing and verifying secrets.
type Limits struct {
	Send   Policy `yaml:"send"`
	Verify Policy `yaml:"verify"`
}

// Load reads all configuration from environment variables. When RATE_LIMIT_FILE
// points to a YAML document, its policies override the environment ones.
func Load() (*Config, error) {
	cfg := &Config{
		AppPort:          getEnv("APP_PORT", "3000"),
		AppEnv:           getEnv("APP_ENV", "development"),
		AppURL:           strings.TrimRight(getEnv("APP_URL", "http://localhost:3000"), "/"),
		AppName:          getEnv("APP_NAME", "Passwordless"),
		StoreBackend:     getEnv("STORE_BACKEND", "dynamo"),
		RateLimitBackend: getEnv("RATE_LIMIT_BACKEND", "redis"),
		StoreTimeout:     getEnvDuration("STORE_TIMEOUT", 3*time.Second),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL:   getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID:   getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:     getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:       getEnv("DYNAMO_TABLE_USERS", "users"),
			Credentials: getEnv("DYNAMO_TABLE_CREDENTIALS", "credentials"),
			Sessions:    getEnv("DYNAMO_TABLE_SESSIONS", "sessions"),
		},
		DatabaseURL:     getEnv("DATABASE_URL", "postgres://localhost:5432/passwordless?sslmode=disable"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		MagicLinkExpiry: time.Duration(getEnvInt("MAGIC_LINK_EXPIRY_MINUTES", 15)) * time.Minute,
		OTPExpiry:       time.Duration(getEnvInt("OTP_EXPIRY_MINUTES", 10)) * time.Minute,
		ResendAfter:     getEnvDuration("RESEND_AFTER", 60*time.Second),
		Limits: Limits{
			Send: Policy{
				Max:    getEnvInt("SEND_LIMIT", 3),
				Window: getEnvDuration("SEND_WINDOW", 60*time.Second),
			},
			Verify: Policy{
				Max:    getEnvInt("VERIFY_LIMIT", 10),
				Window: getEnvDuration("VERIFY_WINDOW", 60*time.Second),
			},
		},
		DispatchWorkers:     getEnvInt("DISPATCH_WORKERS", 4),
		DispatchQueueSize:   getEnvInt("DISPATCH_QUEUE_SIZE", 256),
		DispatchMaxAttempts: getEnvInt("DISPATCH_MAX_ATTEMPTS", 3),
		DispatchBackoff:     getEnvDuration("DISPATCH_BACKOFF", 2*time.Second),
		PurgeInterval:       getEnvDuration("PURGE_INTERVAL", 10*time.Minute),
		JWTPrivateKeyPath:   getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:    getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:           getEnvDuration("JWT_EXPIRY", 7*24*time.Hour),
		SMTPHost:            getEnv("SMTP_HOST", "localhost"),
		SMTPPort:            getEnvInt("SMTP_PORT", 1025),
		SMTPFrom:            getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		SNSRegion:           getEnv("SNS_REGION", "us-east-1"),
		SMSMethod:           getEnv("SMS_METHOD", "sns"),
		AllowedOrigins:      strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		TrustedProxies:      splitList(getEnv("TRUSTED_PROXIES", "")),
	}

	if path := os.Getenv("RATE_LIMIT_FILE"); path != "" {
		if err := cfg.loadLimits(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadLimits(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rate limit file: %w", err)
	}
	var file struct {
		Limits Limits `yaml:"limits"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse rate limit file: %w", err)
	}
	if file.Limits.Send.Max > 0 {
		c.Limits.Send = file.Limits.Send
	}
	if file.Limits.Verify.Max > 0 {
		c.Limits.Verify = file.Limits.Verify
	}
	return nil
}

func (c *Config) validate() error {
	for name, p := range map[string]Policy{"send": c.Limits.Send, "verify": c.Limits.Verify} {
		if p.Max <= 0 || p.Window <= 0 {
			return fmt.Errorf("invalid %s rate limit policy: max=%d window=%s", name, p.Max, p.Window)
		}
	}
	if c.MagicLinkExpiry <= 0 || c.OTPExpiry <= 0 {
		return fmt.Errorf("credential expiry must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
