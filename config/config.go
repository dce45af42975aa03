package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/interview-coach/realtime/internal/speech"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Feedback FeedbackConfig
	Augment  AugmentConfig
	Analysis speech.Config
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings. An empty DSN disables persistence.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings. An empty Addr disables fan-out and summary jobs.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the summary archive bucket.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SummariesBucket string
	Endpoint        string // S3-compatible endpoint (MinIO, LocalStack); empty for AWS
}

// FeedbackConfig tunes the per-connection loop.
type FeedbackConfig struct {
	SendBuffer      int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
	MaxConnections  int
}

// AugmentConfig configures the optional AI augmentation collaborator.
type AugmentConfig struct {
	Enabled   bool
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// LogConfig enables an optional rotating log file next to stdout.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from
// components, or empty when DB_HOST is unset.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	analysis, err := LoadAnalysis(getEnv("ANALYSIS_CONFIG_FILE", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "interview_coach"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			SummariesBucket: getEnv("AWS_S3_SUMMARIES_BUCKET", ""),
			Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
		},
		Feedback: FeedbackConfig{
			SendBuffer:      getEnvInt("FEEDBACK_SEND_BUFFER", 64),
			PingInterval:    time.Duration(getEnvInt("FEEDBACK_PING_INTERVAL_SEC", 30)) * time.Second,
			PongWait:        time.Duration(getEnvInt("FEEDBACK_PONG_WAIT_SEC", 60)) * time.Second,
			WriteWait:       time.Duration(getEnvInt("FEEDBACK_WRITE_WAIT_SEC", 10)) * time.Second,
			MaxMessageBytes: int64(getEnvInt("FEEDBACK_MAX_MESSAGE_BYTES", 1<<20)),
			MaxConnections:  getEnvInt("FEEDBACK_MAX_CONNECTIONS", 0),
		},
		Augment: AugmentConfig{
			Enabled:   getEnvBool("AUGMENT_ENABLED", false),
			BaseURL:   getEnv("AUGMENT_BASE_URL", ""),
			APIKey:    getEnv("AUGMENT_API_KEY", getEnv("OPENAI_API_KEY", "")),
			Model:     getEnv("AUGMENT_MODEL", "gpt-4o-mini"),
			Timeout:   time.Duration(getEnvInt("AUGMENT_TIMEOUT_MS", 1500)) * time.Millisecond,
			MaxTokens: getEnvInt("AUGMENT_MAX_TOKENS", 300),
		},
		Analysis: analysis,
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 14),
		},
	}
	if cfg.Augment.Enabled && cfg.Augment.APIKey == "" && cfg.Augment.BaseURL == "" {
		return nil, fmt.Errorf("config: AUGMENT_ENABLED requires AUGMENT_API_KEY or AUGMENT_BASE_URL")
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
