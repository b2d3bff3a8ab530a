package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	viper.SetDefault("server_url", "http://localhost:8000")
	viper.SetDefault("processing_mode", "standard")

	cfg := Load()

	if cfg.ServerURL != "http://localhost:8000" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.WSURL != "ws://localhost:8000" {
		t.Errorf("WSURL = %q", cfg.WSURL)
	}
	if cfg.ProcessingMode != "standard" {
		t.Errorf("ProcessingMode = %q", cfg.ProcessingMode)
	}
}

func TestDeriveWS(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"http://localhost:8000", "ws://localhost:8000"},
		{"https://scribe.example.com", "wss://scribe.example.com"},
		{"localhost:8000", "ws://localhost:8000"},
	}

	for _, tt := range tests {
		if got := deriveWS(tt.server); got != tt.want {
			t.Errorf("deriveWS(%q) = %q, want %q", tt.server, got, tt.want)
		}
	}
}

func TestExplicitWSOverride(t *testing.T) {
	viper.Reset()
	viper.Set("server_url", "http://localhost:8000")
	viper.Set("ws_url", "ws://other-host:9000")

	cfg := Load()
	if cfg.WSURL != "ws://other-host:9000" {
		t.Errorf("WSURL = %q, want the explicit override", cfg.WSURL)
	}
}
