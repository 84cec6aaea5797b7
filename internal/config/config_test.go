package config_test

import (
	"testing"
	"time"

	"promoter/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DBPath != "promoter.sqlite" || cfg.BaseURL != "http://localhost:5001" {
		t.Fatalf("unexpected core defaults: %+v", cfg)
	}

	if cfg.OpenAI.Model != "gpt-4o-mini" || cfg.Mail.Port != 587 || cfg.EmailEnabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	if cfg.Tasks.RetryBaseDelay != time.Minute || cfg.Tasks.MaxRetries != 3 || cfg.Tasks.Workers != 4 ||
		cfg.Tasks.ResultRetention != 24*time.Hour {
		t.Fatalf("unexpected task defaults: %+v", cfg.Tasks)
	}

	if cfg.Schedule.Digest != "0 9 * * 5" || cfg.Schedule.Timezone != "America/New_York" {
		t.Fatalf("unexpected schedule defaults: %+v", cfg.Schedule)
	}
}

func TestLoadPrefixedSections(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LINKEDIN_CLIENT_ID", "client")
	t.Setenv("MAIL_SERVER", "smtp.example.com")
	t.Setenv("EMAIL_ENABLED", "true")
	t.Setenv("TASK_RETRY_BASE_DELAY", "2s")
	t.Setenv("CHAT_BACKEND", "telegram")
	t.Setenv("SLACK_DEFAULT_CHANNEL_ID", "C1")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.OpenAI.APIKey != "sk-test" || cfg.LinkedIn.ClientID != "client" || cfg.Mail.Server != "smtp.example.com" {
		t.Fatalf("prefixed values not loaded: %+v", cfg)
	}

	if !cfg.EmailEnabled || cfg.Tasks.RetryBaseDelay != 2*time.Second {
		t.Fatalf("unexpected values: %+v", cfg)
	}

	if cfg.Chat.Backend != "telegram" || cfg.Chat.DefaultChannel != "C1" {
		t.Fatalf("unexpected chat config: %+v", cfg.Chat)
	}
}

func TestLoadRejectsUnknownChatBackend(t *testing.T) {
	t.Setenv("CHAT_BACKEND", "irc")

	if _, err := config.Load(); err == nil {
		t.Fatalf("expected error for unknown chat backend")
	}
}
