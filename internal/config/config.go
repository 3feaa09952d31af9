package config

import (
	"fmt"
	"net"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Token formats accepted by AUTH_TOKEN_FORMAT.
const (
	TokenFormatPaseto = "paseto"
	TokenFormatJWT    = "jwt"
)

// Database drivers accepted by DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	OTP       OTPConfig
	Email     EmailConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port            string        `env:"SERVER_PORT" envDefault:"8080"`
	Env             string        `env:"APP_ENV" envDefault:"dev"` // dev or prod
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"20s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	TrustedOrigins  []string      `env:"TRUSTED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
}

type DatabaseConfig struct {
	Driver         string `env:"DB_DRIVER" envDefault:"postgres"`
	Host           string `env:"DB_HOST" envDefault:"localhost"`
	Port           string `env:"DB_PORT" envDefault:"5432"`
	User           string `env:"DB_USER" envDefault:"postgres"`
	Password       string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName         string `env:"DB_NAME" envDefault:"otpauth"`
	SSLMode        string `env:"DB_SSLMODE" envDefault:"disable"`
	ChannelBinding string `env:"DB_CHANNEL_BINDING"` // "require" for Neon DB, empty for local
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"otpauth.db"`
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     string `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type AuthConfig struct {
	TokenFormat string `env:"AUTH_TOKEN_FORMAT" envDefault:"paseto"`
	// PASETO symmetric key (must be 32 bytes for v4.local)
	PasetoKey string `env:"PASETO_KEY"`
	// HS256 secret, at least 32 bytes
	JWTSecret            string        `env:"JWT_SECRET"`
	Issuer               string        `env:"TOKEN_ISSUER" envDefault:"go-otp-auth"`
	AccessTokenDuration  time.Duration `env:"ACCESS_TOKEN_DURATION" envDefault:"15m"`
	RefreshTokenDuration time.Duration `env:"REFRESH_TOKEN_DURATION" envDefault:"168h"`
	PasswordResetTTL     time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"1h"`
}

type OTPConfig struct {
	TTL time.Duration `env:"OTP_TTL" envDefault:"10m"`
}

type EmailConfig struct {
	SMTPHost     string        `env:"SMTP_HOST"`
	SMTPPort     string        `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string        `env:"SMTP_USER"`
	SMTPPassword string        `env:"SMTP_PASS"`
	FromAddress  string        `env:"EMAIL_FROM"`
	AppName      string        `env:"APP_NAME" envDefault:"Language App"`
	FrontendURL  string        `env:"FRONTEND_URL" envDefault:"http://localhost:3000"` // base for password reset links
	SendTimeout  time.Duration `env:"EMAIL_SEND_TIMEOUT" envDefault:"10s"`
}

// RateLimitConfig holds the per-purpose fixed-window quotas keyed by client IP.
type RateLimitConfig struct {
	RegisterLimit       int64         `env:"RATE_LIMIT_REGISTER" envDefault:"5"`
	RegisterWindow      time.Duration `env:"RATE_LIMIT_REGISTER_WINDOW" envDefault:"1h"`
	VerifyLimit         int64         `env:"RATE_LIMIT_VERIFY" envDefault:"10"`
	VerifyWindow        time.Duration `env:"RATE_LIMIT_VERIFY_WINDOW" envDefault:"1m"`
	LoginLimit          int64         `env:"RATE_LIMIT_LOGIN" envDefault:"10"`
	LoginWindow         time.Duration `env:"RATE_LIMIT_LOGIN_WINDOW" envDefault:"1m"`
	ResendLimit         int64         `env:"RATE_LIMIT_RESEND" envDefault:"10"`
	ResendWindow        time.Duration `env:"RATE_LIMIT_RESEND_WINDOW" envDefault:"15m"`
	PasswordResetLimit  int64         `env:"RATE_LIMIT_PASSWORD_RESET" envDefault:"10"`
	PasswordResetWindow time.Duration `env:"RATE_LIMIT_PASSWORD_RESET_WINDOW" envDefault:"15m"`
	EmailCooldown       time.Duration `env:"EMAIL_COOLDOWN" envDefault:"2m"`
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return Parse()
}

// Parse builds a Config from the current environment without touching .env files.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	switch c.Auth.TokenFormat {
	case TokenFormatPaseto:
		if len(c.Auth.PasetoKey) != 32 {
			return fmt.Errorf("PASETO_KEY must be exactly 32 bytes, got %d", len(c.Auth.PasetoKey))
		}
	case TokenFormatJWT:
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.Auth.JWTSecret))
		}
	default:
		return fmt.Errorf("unsupported AUTH_TOKEN_FORMAT %q", c.Auth.TokenFormat)
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	if c.OTP.TTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}
	if c.Auth.AccessTokenDuration <= 0 || c.Auth.RefreshTokenDuration <= c.Auth.AccessTokenDuration {
		return fmt.Errorf("REFRESH_TOKEN_DURATION must be longer than ACCESS_TOKEN_DURATION")
	}

	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)

	// Add channel_binding if configured (required for Neon DB)
	if c.ChannelBinding != "" {
		connStr += fmt.Sprintf(" channel_binding=%s", c.ChannelBinding)
	}

	return connStr
}

// Address returns Redis connection address (host:port)
func (c *RedisConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// IsDevelopment returns true if the environment is set to dev
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "dev"
}

// Sender returns the envelope sender, falling back to the SMTP user.
func (c *EmailConfig) Sender() string {
	if c.FromAddress != "" {
		return c.FromAddress
	}
	return c.SMTPUser
}
