package config

import (
	"strings"
	"testing"
	"time"
)

const validSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", validSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8001 {
		t.Errorf("Port = %d, want 8001", cfg.Server.Port)
	}
	if cfg.Server.APIPrefix != "/api/chat" {
		t.Errorf("APIPrefix = %q", cfg.Server.APIPrefix)
	}
	if cfg.JWT.Algorithm != "HS256" {
		t.Errorf("Algorithm = %q", cfg.JWT.Algorithm)
	}
	if cfg.AuthCache.TTLRead != 300*time.Second {
		t.Errorf("TTLRead = %v", cfg.AuthCache.TTLRead)
	}
	if cfg.AuthCache.TTLWrite != 60*time.Second {
		t.Errorf("TTLWrite = %v", cfg.AuthCache.TTLWrite)
	}
	if cfg.AuthCache.TTLAdmin != 30*time.Second {
		t.Errorf("TTLAdmin = %v", cfg.AuthCache.TTLAdmin)
	}
	if cfg.AuthCache.TTLDenied != 120*time.Second {
		t.Errorf("TTLDenied = %v", cfg.AuthCache.TTLDenied)
	}
	if cfg.Breaker.Threshold != 5 || cfg.Breaker.CoolDown != 30*time.Second {
		t.Errorf("Breaker = %+v", cfg.Breaker)
	}
	if cfg.AuthFailOpen {
		t.Error("AuthFailOpen should default to false")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", validSecret)
	t.Setenv("PORT", "9000")
	t.Setenv("AUTH_CACHE_TTL_READ", "600")
	t.Setenv("CIRCUIT_BREAKER_THRESHOLD", "10")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("AUTH_FAIL_OPEN", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.AuthCache.TTLRead != 600*time.Second {
		t.Errorf("TTLRead = %v", cfg.AuthCache.TTLRead)
	}
	if cfg.Breaker.Threshold != 10 {
		t.Errorf("Threshold = %d", cfg.Breaker.Threshold)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if !cfg.AuthFailOpen {
		t.Error("AUTH_FAIL_OPEN=true not applied")
	}
}

func TestLoadRejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "too-short")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for short secret")
	}
	if !strings.Contains(err.Error(), "JWT_SECRET_KEY") {
		t.Errorf("error %q does not name the variable", err)
	}
}

func TestLoadRejectsUnknownAlgorithm(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", validSecret)
	t.Setenv("JWT_ALGORITHM", "RS256")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}

func TestSecretOK(t *testing.T) {
	cfg := &Config{}
	cfg.JWT.SecretKey = validSecret
	if !cfg.SecretOK() {
		t.Error("SecretOK = false for a valid secret")
	}
	cfg.JWT.SecretKey = "short"
	if cfg.SecretOK() {
		t.Error("SecretOK = true for a short secret")
	}
}
