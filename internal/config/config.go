package config

import (
	"os"
	"strings"
	"time"
)

const (
	DefaultServerURL     = "ws://127.0.0.1:8080/ws"
	DefaultAPIBackend    = "websocket"
	DefaultRevokeTimeout = 10 * time.Second
)

type Config struct {
	ServerURL       string
	APIBackend      string
	LogLevel        string
	MetricsAddr     string
	RevokeTimeout   time.Duration
	FindUncollapsed bool
}

// Defaults are used for settings the environment leaves unset, normally
// values read from the settings file. Zero fields fall back to the
// built-in defaults.
type Defaults struct {
	ServerURL       string
	APIBackend      string
	FindUncollapsed bool
}

func LoadConfig() Config {
	return LoadConfigWithDefaults(Defaults{})
}

func LoadConfigWithDefaults(d Defaults) Config {
	server := strings.TrimSpace(os.Getenv("FIREXVIEW_SERVER_URL"))
	if server == "" {
		server = strings.TrimSpace(d.ServerURL)
	}
	if server == "" {
		server = DefaultServerURL
	}

	backend := strings.TrimSpace(os.Getenv("FIREXVIEW_API_BACKEND"))
	if backend == "" {
		backend = strings.TrimSpace(d.APIBackend)
	}
	if backend == "" {
		backend = DefaultAPIBackend
	}

	level := os.Getenv("FIREXVIEW_LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	revokeTimeout := DefaultRevokeTimeout
	if ms := atoiOrDefault(os.Getenv("FIREXVIEW_REVOKE_TIMEOUT_MS"), 0); ms > 0 {
		revokeTimeout = time.Duration(ms) * time.Millisecond
	}

	findUncollapsed := d.FindUncollapsed
	switch os.Getenv("FIREXVIEW_FIND_UNCOLLAPSED") {
	case "1":
		findUncollapsed = true
	case "0":
		findUncollapsed = false
	}

	return Config{
		ServerURL:       server,
		APIBackend:      backend,
		LogLevel:        level,
		MetricsAddr:     strings.TrimSpace(os.Getenv("FIREXVIEW_METRICS_ADDR")),
		RevokeTimeout:   revokeTimeout,
		FindUncollapsed: findUncollapsed,
	}
}

func atoiOrDefault(v string, fallback int) int {
	n := 0
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return fallback
		}
		n = n*10 + int(v[i]-'0')
	}
	if n == 0 {
		return fallback
	}
	return n
}
