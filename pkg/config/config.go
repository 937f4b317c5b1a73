package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	Zoom       ZoomConfig
	LinkedIn   LinkedInConfig
	Pipeline   PipelineConfig
	Publish    PublishConfig
	Deletion   DeletionConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type EncryptionConfig struct {
	Key string
}

// ZoomConfig holds the OAuth app credentials plus the webhook secret used
// to verify inbound event signatures.
type ZoomConfig struct {
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	TokenURL      string
	APIBaseURL    string
}

type LinkedInConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIBaseURL   string
}

// PipelineConfig points at the content-generation service.
type PipelineConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	MaxHooks       int
}

// PublishConfig bounds outbound publishing per user per platform.
type PublishConfig struct {
	DailyLimit          int
	RescheduleBufferMin int
}

type DeletionConfig struct {
	GraceDays int
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (s *ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

func (p *PipelineConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (p *PublishConfig) RescheduleBuffer() time.Duration {
	return time.Duration(p.RescheduleBufferMin) * time.Minute
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "recast")
	v.SetDefault("DATABASE_PASSWORD", "recast_secret")
	v.SetDefault("DATABASE_NAME", "recast")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("ZOOM_TOKEN_URL", "https://zoom.us/oauth/token")
	v.SetDefault("ZOOM_API_BASE_URL", "https://api.zoom.us/v2")
	v.SetDefault("LINKEDIN_TOKEN_URL", "https://www.linkedin.com/oauth/v2/accessToken")
	v.SetDefault("LINKEDIN_API_BASE_URL", "https://api.linkedin.com/v2")
	v.SetDefault("PIPELINE_TIMEOUT_SECONDS", 120)
	v.SetDefault("PIPELINE_MAX_HOOKS", 5)
	v.SetDefault("PUBLISH_DAILY_LIMIT", 10)
	v.SetDefault("PUBLISH_RESCHEDULE_BUFFER_MIN", 5)
	v.SetDefault("DELETION_GRACE_DAYS", 10)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
			Env:  v.GetString("SERVER_ENV"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			Issuer: v.GetString("JWT_ISSUER"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		Zoom: ZoomConfig{
			ClientID:      v.GetString("ZOOM_CLIENT_ID"),
			ClientSecret:  v.GetString("ZOOM_CLIENT_SECRET"),
			WebhookSecret: v.GetString("ZOOM_WEBHOOK_SECRET"),
			TokenURL:      v.GetString("ZOOM_TOKEN_URL"),
			APIBaseURL:    v.GetString("ZOOM_API_BASE_URL"),
		},
		LinkedIn: LinkedInConfig{
			ClientID:     v.GetString("LINKEDIN_CLIENT_ID"),
			ClientSecret: v.GetString("LINKEDIN_CLIENT_SECRET"),
			TokenURL:     v.GetString("LINKEDIN_TOKEN_URL"),
			APIBaseURL:   v.GetString("LINKEDIN_API_BASE_URL"),
		},
		Pipeline: PipelineConfig{
			BaseURL:        v.GetString("PIPELINE_BASE_URL"),
			APIKey:         v.GetString("PIPELINE_API_KEY"),
			TimeoutSeconds: v.GetInt("PIPELINE_TIMEOUT_SECONDS"),
			MaxHooks:       v.GetInt("PIPELINE_MAX_HOOKS"),
		},
		Publish: PublishConfig{
			DailyLimit:          v.GetInt("PUBLISH_DAILY_LIMIT"),
			RescheduleBufferMin: v.GetInt("PUBLISH_RESCHEDULE_BUFFER_MIN"),
		},
		Deletion: DeletionConfig{
			GraceDays: v.GetInt("DELETION_GRACE_DAYS"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	return cfg, nil
}
