package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Postgres PostgresConfig
	Auth     AuthConfig
	Mail     MailConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           string `env:"PORT" envDefault:"8080"`
	CORSOrigins    string `env:"CORS_ORIGINS"`
	TrustedProxies string `env:"TRUSTED_PROXIES"`
	GinMode        string `env:"GIN_MODE" envDefault:"release"`
}

type StorageConfig struct {
	Adapter    string `env:"DB_ADAPTER" envDefault:"postgres"`
	SQLiteFile string `env:"SQLITE_FILE" envDefault:"auth.db"`
}

type PostgresConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`
	Host        string `env:"PGHOST" envDefault:"localhost"`
	Port        string `env:"PGPORT" envDefault:"5432"`
	User        string `env:"PGUSER"`
	Password    string `env:"PGPASSWORD"`
	Database    string `env:"PGDATABASE"`
	SSLMode     string `env:"PGSSLMODE" envDefault:"disable"`
}

type AuthConfig struct {
	JWTSecret                      string        `env:"JWT_SECRET"`
	JWTAlg                         string        `env:"JWT_ALG" envDefault:"HS256"`
	JWTExpireMinutes               int           `env:"JWT_EXPIRE_MINUTES" envDefault:"30"`
	RefreshExpireDays              int           `env:"REFRESH_EXPIRE_DAYS" envDefault:"7"`
	ResetTokenTTL                  time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	VerificationTokenTTL           time.Duration `env:"VERIFICATION_TOKEN_TTL" envDefault:"24h"`
	LoginWindow                    time.Duration `env:"LOGIN_WINDOW" envDefault:"60s"`
	LoginLimit                     int           `env:"LOGIN_LIMIT" envDefault:"10"`
	AllowSignup                    bool          `env:"ALLOW_SIGNUP" envDefault:"true"`
	RevokeSessionsOnPasswordChange bool          `env:"REVOKE_SESSIONS_ON_PASSWORD_CHANGE" envDefault:"false"`
	SendVerificationOnRegister     bool          `env:"SEND_VERIFICATION_ON_REGISTER" envDefault:"true"`
	BcryptCost                     int           `env:"BCRYPT_COST" envDefault:"10"`
	CookieSecure                   bool          `env:"AUTH_COOKIE_SECURE" envDefault:"true"`
	CookieSameSite                 string        `env:"AUTH_COOKIE_SAMESITE" envDefault:"lax"`
	CookiePath                     string        `env:"AUTH_COOKIE_PATH" envDefault:"/"`
	CookieDomain                   string        `env:"AUTH_COOKIE_DOMAIN"`
}

// AccessTTL is zero when access tokens carry no expiry.
func (c AuthConfig) AccessTTL() time.Duration {
	if c.JWTExpireMinutes <= 0 {
		return 0
	}
	return time.Duration(c.JWTExpireMinutes) * time.Minute
}

func (c AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshExpireDays) * 24 * time.Hour
}

type MailConfig struct {
	SMTPHost      string        `env:"SMTP_HOST"`
	SMTPPort      int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser      string        `env:"SMTP_USER"`
	SMTPPassword  string        `env:"SMTP_PASSWORD"`
	SMTPFrom      string        `env:"SMTP_FROM"`
	SMTPTimeout   time.Duration `env:"SMTP_TIMEOUT" envDefault:"10s"`
	RatePerSecond float64       `env:"MAIL_RATE_PER_SECOND" envDefault:"2"`
	Burst         int           `env:"MAIL_BURST" envDefault:"5"`
	AppBaseURL    string        `env:"APP_BASE_URL"`
}

// Enabled reports whether an SMTP relay is configured.
func (c MailConfig) Enabled() bool {
	return strings.TrimSpace(c.SMTPHost) != ""
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv parses the process environment without touching .env.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.Storage.Adapter {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("invalid DB_ADAPTER %q", c.Storage.Adapter)
	}
	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid GIN_MODE %q", c.Server.GinMode)
	}
	if c.Auth.LoginWindow <= 0 || c.Auth.LoginLimit <= 0 {
		return errors.New("LOGIN_WINDOW and LOGIN_LIMIT must be positive")
	}
	if c.Auth.RefreshExpireDays <= 0 {
		return errors.New("REFRESH_EXPIRE_DAYS must be positive")
	}
	if c.Auth.ResetTokenTTL <= 0 || c.Auth.VerificationTokenTTL <= 0 {
		return errors.New("RESET_TOKEN_TTL and VERIFICATION_TOKEN_TTL must be positive")
	}
	if c.Mail.SMTPTimeout <= 0 {
		return errors.New("SMTP_TIMEOUT must be positive")
	}
	if _, err := ParseOrigins(c.Server.CORSOrigins); err != nil {
		return err
	}
	return nil
}

// ParseOrigins accepts a JSON array or a comma separated list.
func ParseOrigins(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var origins []string
		if err := json.Unmarshal([]byte(raw), &origins); err != nil {
			return nil, fmt.Errorf("invalid CORS_ORIGINS: %w", err)
		}
		return compact(origins), nil
	}
	return compact(strings.Split(raw, ",")), nil
}

// ParseList splits a comma separated value, dropping blanks.
func ParseList(raw string) []string {
	return compact(strings.Split(raw, ","))
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
