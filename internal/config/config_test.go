package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("expected 24h session TTL, got %s", cfg.SessionTTL)
	}
	if cfg.CompletionTimeout != 60*time.Second {
		t.Errorf("expected 60s completion timeout, got %s", cfg.CompletionTimeout)
	}
	if cfg.SlotWindowDays != 14 {
		t.Errorf("expected 14 day slot window, got %d", cfg.SlotWindowDays)
	}
	if cfg.BookingFallbackURL == "" {
		t.Error("expected a default booking fallback URL")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("SLOT_WINDOW_DAYS", "7")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://myra.com, https://www.myra.com")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("expected 1h session TTL, got %s", cfg.SessionTTL)
	}
	if !cfg.UseMemoryQueue {
		t.Error("expected memory queue enabled")
	}
	if cfg.SlotWindowDays != 7 {
		t.Errorf("expected 7 day slot window, got %d", cfg.SlotWindowDays)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://www.myra.com" {
		t.Errorf("unexpected CORS origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("SLOT_WINDOW_DAYS", "not-a-number")
	t.Setenv("SESSION_TTL", "soon")

	cfg := Load()
	if cfg.SlotWindowDays != 14 {
		t.Errorf("expected fallback slot window, got %d", cfg.SlotWindowDays)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("expected fallback session TTL, got %s", cfg.SessionTTL)
	}
}
