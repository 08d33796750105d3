package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Email    EmailConfig
	Storage  StorageConfig
	Scraper  ScraperConfig
	AI       AIConfig
	Video    VideoConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Cron     CronConfig
	Seed     SeedConfig
}

type ServerConfig struct {
	Port        string `env:"PORT" envDefault:"3000"`
	AppURL      string `env:"APP_URL" envDefault:"http://localhost:3000"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"*"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	// Cookies are marked Secure outside development.
	Production bool `env:"PRODUCTION" envDefault:"false"`
}

type DatabaseConfig struct {
	URL          string `env:"DATABASE_URL"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"100"`
}

type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	CookieName string        `env:"SESSION_COOKIE" envDefault:"otto_session"`
}

type EmailConfig struct {
	// resend, sendgrid or smtp
	Provider     string `env:"EMAIL_PROVIDER" envDefault:"smtp"`
	From         string `env:"EMAIL_FROM" envDefault:"OttoSeguridad <boletin@ottoseguridad.com>"`
	ResendAPIKey string `env:"RESEND_API_KEY"`
	SendGridKey  string `env:"SENDGRID_API_KEY"`
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	Concurrency  int    `env:"EMAIL_CONCURRENCY" envDefault:"4"`
	AdminReports bool   `env:"EMAIL_ADMIN_REPORTS" envDefault:"true"`
}

type StorageConfig struct {
	AccountID string `env:"R2_ACCOUNT_ID"`
	AccessKey string `env:"R2_ACCESS_KEY"`
	SecretKey string `env:"R2_SECRET_KEY"`
	Bucket    string `env:"R2_BUCKET_NAME"`
	PublicURL string `env:"R2_PUBLIC_URL" envDefault:"https://cdn.ottoseguridad.com"`
}

type ScraperConfig struct {
	APIURL           string        `env:"SCRAPER_API_URL" envDefault:"https://api.firecrawl.dev"`
	APIKey           string        `env:"SCRAPER_API_KEY"`
	Timeout          time.Duration `env:"SCRAPER_TIMEOUT" envDefault:"90s"`
	RequestsPerSec   float64       `env:"SCRAPER_RPS" envDefault:"2"`
	Concurrency      int           `env:"SCRAPER_CONCURRENCY" envDefault:"4"`
	MinContentLength int           `env:"SCRAPER_MIN_CONTENT" envDefault:"80"`
	RecencyHours     int           `env:"SCRAPER_RECENCY_HOURS" envDefault:"36"`
}

type AIConfig struct {
	APIKey    string `env:"OPENAI_API_KEY"`
	BaseURL   string `env:"OPENAI_BASE_URL"`
	Model     string `env:"AI_MODEL" envDefault:"gpt-4o-mini"`
	TTSModel  string `env:"TTS_MODEL" envDefault:"tts-1"`
	TTSVoice  string `env:"TTS_VOICE" envDefault:"nova"`
	BatchSize int    `env:"AI_BATCH_SIZE" envDefault:"20"`
}

type VideoConfig struct {
	RenderURL    string        `env:"VIDEO_RENDER_URL"`
	APIKey       string        `env:"VIDEO_RENDER_KEY"`
	Composition  string        `env:"VIDEO_COMPOSITION" envDefault:"DailyBulletin"`
	PollInterval time.Duration `env:"VIDEO_POLL_INTERVAL" envDefault:"5s"`
	Timeout      time.Duration `env:"VIDEO_TIMEOUT" envDefault:"20m"`
}

type RedisConfig struct {
	URL      string        `env:"REDIS_URL"`
	CacheTTL time.Duration `env:"REDIS_CACHE_TTL" envDefault:"10m"`
}

type NATSConfig struct {
	URL string `env:"NATS_URL"`
}

type CronConfig struct {
	Enabled     bool          `env:"CRON_ENABLED" envDefault:"true"`
	Bulletin    string        `env:"CRON_BULLETIN" envDefault:"0 6 * * *"`
	Timezone    string        `env:"CRON_TZ" envDefault:"America/Guayaquil"`
	AutoPublish bool          `env:"AUTO_PUBLISH" envDefault:"false"`
	JobTimeout  time.Duration `env:"PIPELINE_TIMEOUT" envDefault:"30m"`
}

type SeedConfig struct {
	AdminEmail    string `env:"ADMIN_EMAIL" envDefault:"admin@ottoseguridad.com"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	AdminName     string `env:"ADMIN_NAME" envDefault:"Administrador"`
}

// Load reads .env (if present) and parses the environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional in containers

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	switch c.Email.Provider {
	case "resend", "sendgrid", "smtp":
	default:
		return fmt.Errorf("unknown EMAIL_PROVIDER %q", c.Email.Provider)
	}
	return nil
}
