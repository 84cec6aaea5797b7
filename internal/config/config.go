package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DBPath      string `env:"DB_PATH"      envDefault:"promoter.sqlite"`
	BaseURL     string `env:"BASE_URL"     envDefault:"http://localhost:5001"`
	CompanyName string `env:"COMPANY_NAME" envDefault:"Your Company"`
	UTMParams   string `env:"UTM_PARAMS"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	SentryDSN   string `env:"SENTRY_DSN"`
	RedisURL    string `env:"REDIS_URL"`

	EmailEnabled bool `env:"EMAIL_ENABLED" envDefault:"false"`

	OpenAI   OpenAI   `envPrefix:"OPENAI_"`
	LinkedIn LinkedIn `envPrefix:"LINKEDIN_"`
	Mail     Mail     `envPrefix:"MAIL_"`
	Chat     Chat
	Tasks    Tasks    `envPrefix:"TASK_"`
	Schedule Schedule
}

type OpenAI struct {
	APIKey string `env:"API_KEY"`
	Model  string `env:"MODEL"   envDefault:"gpt-4o-mini"`
}

type LinkedIn struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
	AuthURL      string `env:"AUTH_URL"      envDefault:"https://www.linkedin.com/oauth/v2/authorization"`
	TokenURL     string `env:"TOKEN_URL"     envDefault:"https://www.linkedin.com/oauth/v2/accessToken"`
	APIURL       string `env:"API_URL"       envDefault:"https://api.linkedin.com/v2"`
}

type Mail struct {
	Server   string `env:"SERVER"`
	Port     int    `env:"PORT"           envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	Sender   string `env:"DEFAULT_SENDER" envDefault:"noreply@example.com"`
}

type Chat struct {
	Backend              string        `env:"CHAT_BACKEND"                envDefault:"slack"`
	SlackToken           string        `env:"SLACK_BOT_TOKEN"`
	DefaultChannel       string        `env:"SLACK_DEFAULT_CHANNEL_ID"`
	NotificationsEnabled bool          `env:"SLACK_NOTIFICATIONS_ENABLED" envDefault:"false"`
	TelegramToken        string        `env:"TELEGRAM_TOKEN"`
	MinInterval          time.Duration `env:"CHAT_MIN_INTERVAL"           envDefault:"1s"`
}

type Tasks struct {
	Workers         int           `env:"WORKERS"          envDefault:"4"`
	RetryBaseDelay  time.Duration `env:"RETRY_BASE_DELAY" envDefault:"60s"`
	MaxRetries      int           `env:"MAX_RETRIES"      envDefault:"3"`
	ResultRetention time.Duration `env:"RESULT_RETENTION" envDefault:"24h"`
}

type Schedule struct {
	Digest       string `env:"DIGEST_SCHEDULE"        envDefault:"0 9 * * 5"`
	TokenRefresh string `env:"TOKEN_REFRESH_SCHEDULE" envDefault:"0 3 * * *"`
	Timezone     string `env:"SCHEDULE_TIMEZONE"      envDefault:"America/New_York"`
}

func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.Chat.Backend {
	case "slack", "telegram", "":
	default:
		return Config{}, fmt.Errorf("unknown CHAT_BACKEND %q", cfg.Chat.Backend)
	}

	return cfg, nil
}
