package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "SIGNCHAT_BASE", "PUBLIC_DIR", "DB_DSN", "UPSTREAM_TIMEOUT", "WS_PING_INTERVAL", "WS_PONG_WAIT"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.SignchatBase != DefaultSignchatBase {
		t.Errorf("SignchatBase = %q, want %q", cfg.SignchatBase, DefaultSignchatBase)
	}
	if cfg.PublicDir != "cliente" {
		t.Errorf("PublicDir = %q, want cliente", cfg.PublicDir)
	}
	if cfg.DBDsn == "" {
		t.Error("expected default DB_DSN")
	}
	if cfg.UpstreamTimeout != 0 {
		t.Errorf("UpstreamTimeout = %v, want 0 (transport default)", cfg.UpstreamTimeout)
	}
	if cfg.WebSocket != DefaultWebSocketConfig() {
		t.Errorf("WebSocket = %+v, want defaults", cfg.WebSocket)
	}
	if got := cfg.Addr(); got != ":3000" {
		t.Errorf("Addr() = %q, want :3000", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("SIGNCHAT_BASE", "http://upstream.test/ms")
	t.Setenv("UPSTREAM_TIMEOUT", "7s")
	t.Setenv("WS_PING_INTERVAL", "5s")
	t.Setenv("WS_PONG_WAIT", "15s")
	t.Setenv("WS_MAX_MESSAGE_SIZE", "1024")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != 8081 {
		t.Errorf("Port = %d, want 8081", cfg.Port)
	}
	if cfg.SignchatBase != "http://upstream.test/ms" {
		t.Errorf("SignchatBase = %q", cfg.SignchatBase)
	}
	if cfg.UpstreamTimeout != 7*time.Second {
		t.Errorf("UpstreamTimeout = %v, want 7s", cfg.UpstreamTimeout)
	}
	if cfg.WebSocket.PingInterval != 5*time.Second || cfg.WebSocket.PongWait != 15*time.Second {
		t.Errorf("unexpected keepalive settings: %+v", cfg.WebSocket)
	}
	if cfg.WebSocket.MaxMessageSize != 1024 {
		t.Errorf("MaxMessageSize = %d, want 1024", cfg.WebSocket.MaxMessageSize)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"non-numeric port", "PORT", "abc"},
		{"port out of range", "PORT", "70000"},
		{"bad timeout", "UPSTREAM_TIMEOUT", "soon"},
		{"bad pong wait", "WS_PONG_WAIT", "1 minute"},
		{"ping not shorter than pong", "WS_PING_INTERVAL", "2m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.val)
			}
		})
	}
}
