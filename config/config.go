// Package config resolves client settings from flags, environment, and an
// optional config file, all through viper.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Settings is the resolved client configuration.
type Settings struct {
	ServerURL      string
	WSURL          string
	ProcessingMode string
}

func init() {
	viper.SetDefault("server_url", "http://localhost:8000")
	viper.SetDefault("processing_mode", "standard")
}

// Load reads the current viper state into a Settings value. The websocket
// URL derives from the server URL unless ws_url overrides it.
func Load() Settings {
	server := strings.TrimRight(viper.GetString("server_url"), "/")
	ws := viper.GetString("ws_url")
	if ws == "" {
		ws = deriveWS(server)
	}
	return Settings{
		ServerURL:      server,
		WSURL:          ws,
		ProcessingMode: viper.GetString("processing_mode"),
	}
}

func deriveWS(server string) string {
	switch {
	case strings.HasPrefix(server, "https://"):
		return "wss://" + strings.TrimPrefix(server, "https://")
	case strings.HasPrefix(server, "http://"):
		return "ws://" + strings.TrimPrefix(server, "http://")
	default:
		return "ws://" + server
	}
}
