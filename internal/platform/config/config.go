// Package config loads claims-engine configuration from an optional YAML
// file plus environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host            string        `json:"host" env:"SERVER_HOST"`
	Port            int           `json:"port" env:"SERVER_PORT"`
	RequestTimeout  time.Duration `json:"request_timeout" env:"SERVER_REQUEST_TIMEOUT"`
	MaxBodyBytes    int64         `json:"max_body_bytes" env:"SERVER_MAX_BODY_BYTES"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	Driver          string `json:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" env:"DATABASE_PORT"`
	User            string `json:"user" env:"DATABASE_USER"`
	Password        string `json:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

type RedisConfig struct {
	Addr     string `json:"addr" env:"REDIS_ADDR"`
	Password string `json:"password" env:"REDIS_PASSWORD"`
	DB       int    `json:"db" env:"REDIS_DB"`
}

type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"`
}

type AuthConfig struct {
	JWTSecret          string        `json:"jwt_secret" env:"AUTH_JWT_SECRET"`
	AccessTokenTTL     time.Duration `json:"access_token_ttl" env:"AUTH_ACCESS_TOKEN_TTL"`
	RefreshTokenTTL    time.Duration `json:"refresh_token_ttl" env:"AUTH_REFRESH_TOKEN_TTL"`
	MagicLinkTTL       time.Duration `json:"magic_link_ttl" env:"AUTH_MAGIC_LINK_TTL"`
	PasswordResetTTL   time.Duration `json:"password_reset_ttl" env:"AUTH_PASSWORD_RESET_TTL"`
	BcryptCost         int           `json:"bcrypt_cost" env:"AUTH_BCRYPT_COST"`
}

type EncryptionConfig struct {
	MasterKey string `json:"master_key" env:"DB_ENCRYPTION_KEY"`
	FileKey   string `json:"file_key" env:"FILE_ENCRYPTION_KEY"`
}

type WebDAVConfig struct {
	BaseURL  string `json:"base_url" env:"WEBDAV_BASE_URL"`
	Username string `json:"username" env:"WEBDAV_USERNAME"`
	Password string `json:"password" env:"WEBDAV_PASSWORD"`
}

type SMTPConfig struct {
	Host     string `json:"host" env:"SMTP_HOST"`
	Port     int    `json:"port" env:"SMTP_PORT"`
	Username string `json:"username" env:"SMTP_USERNAME"`
	Password string `json:"password" env:"SMTP_PASSWORD"`
	From     string `json:"from" env:"SMTP_FROM"`
}

type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials" env:"CORS_ALLOW_CREDENTIALS"`
}

type PipelineConfig struct {
	MaxUploadBytes      int64 `json:"max_upload_bytes" env:"PIPELINE_MAX_UPLOAD_BYTES"`
	StreamingThresholdB int64 `json:"streaming_threshold_bytes" env:"PIPELINE_STREAMING_THRESHOLD_BYTES"`
	RequireScan         bool  `json:"require_scan" env:"PIPELINE_REQUIRE_SCAN"`
}

// Config is the top-level configuration for the claims engine.
type Config struct {
	Environment string           `json:"environment" env:"ENVIRONMENT"`
	Server      ServerConfig     `json:"server"`
	Database    DatabaseConfig   `json:"database"`
	Redis       RedisConfig      `json:"redis"`
	Logging     LoggingConfig    `json:"logging"`
	Auth        AuthConfig       `json:"auth"`
	Encryption  EncryptionConfig `json:"encryption"`
	WebDAV      WebDAVConfig     `json:"webdav"`
	SMTP        SMTPConfig       `json:"smtp"`
	CORS        CORSConfig       `json:"cors"`
	Pipeline    PipelineConfig   `json:"pipeline"`
}

// New returns configuration populated with safe local-development defaults.
func New() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			RequestTimeout:  30 * time.Second,
			MaxBodyBytes:    10 << 20,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			AccessTokenTTL:   15 * time.Minute,
			RefreshTokenTTL:  30 * 24 * time.Hour,
			MagicLinkTTL:     48 * time.Hour,
			PasswordResetTTL: 2 * time.Hour,
			BcryptCost:       12,
		},
		Pipeline: PipelineConfig{
			MaxUploadBytes:      25 << 20,
			StreamingThresholdB: 50 << 20,
			RequireScan:         true,
		},
	}
}

func (c DatabaseConfig) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Load loads a local .env file (if present), an optional YAML config file,
// then applies environment variable overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}

// Validate fails fast on configuration that would be unsafe in production,
// per the fail-closed posture required of secret material and CORS policy.
func (c *Config) Validate() error {
	if c.Environment != "production" {
		return nil
	}
	if len(strings.TrimSpace(c.Auth.JWTSecret)) < 32 {
		return fmt.Errorf("config: AUTH_JWT_SECRET must be at least 32 bytes in production")
	}
	if len(strings.TrimSpace(c.Encryption.MasterKey)) < 32 {
		return fmt.Errorf("config: DB_ENCRYPTION_KEY must be at least 32 bytes in production")
	}
	if len(strings.TrimSpace(c.Encryption.FileKey)) < 32 {
		return fmt.Errorf("config: FILE_ENCRYPTION_KEY must be at least 32 bytes in production")
	}
	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("config: CORS cannot allow credentials with a wildcard origin")
			}
			if !strings.HasPrefix(origin, "https://") {
				return fmt.Errorf("config: CORS origin %q must be HTTPS when credentials are allowed", origin)
			}
		}
	}
	return nil
}
