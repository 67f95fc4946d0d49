package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("IDENTITY_KEY", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.GraphCacheTTL != 5*time.Minute {
		t.Errorf("GraphCacheTTL = %v", cfg.GraphCacheTTL)
	}
	if cfg.RedisURL != "" {
		t.Errorf("RedisURL = %q, want empty", cfg.RedisURL)
	}
}

func TestLoadChatChannels(t *testing.T) {
	t.Setenv("IDENTITY_KEY", "s3cret")
	t.Setenv("CHAT_CHANNELS", "111:summer,222:winter")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ChatChannels["111"] != "summer" || cfg.ChatChannels["222"] != "winter" {
		t.Errorf("ChatChannels = %v", cfg.ChatChannels)
	}
}

func TestLoadRejectsZeroBuffer(t *testing.T) {
	t.Setenv("IDENTITY_KEY", "s3cret")
	t.Setenv("ACTIVITY_BUFFER", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for ACTIVITY_BUFFER=0")
	}
}

func TestLoadRequiresIdentityKey(t *testing.T) {
	t.Setenv("IDENTITY_KEY", "")
	t.Setenv("DEV_MODE", "false")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without IDENTITY_KEY")
	}
}

func TestLoadDevModeUsesDevKey(t *testing.T) {
	t.Setenv("IDENTITY_KEY", "")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IdentityKey != DevIdentityKey {
		t.Errorf("IdentityKey = %q, want dev key", cfg.IdentityKey)
	}
}

func TestLoadKeepsExplicitKeyInDevMode(t *testing.T) {
	t.Setenv("IDENTITY_KEY", "s3cret")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IdentityKey != "s3cret" {
		t.Errorf("IdentityKey = %q", cfg.IdentityKey)
	}
}
