package config

import (
	"os"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultAddr         = ":8080"
	DefaultSTUN         = "stun:stun.l.google.com:19302"
	DefaultSetupTimeout = 30 * time.Second
)

// Config holds everything both binaries read from the environment. There is
// one signaling server implementation; origin policy and ports are
// configuration, not forks.
type Config struct {
	// Addr is the server listen address.
	Addr string

	// AllowedOrigins restricts websocket upgrades. Empty means allow all
	// (development).
	AllowedOrigins []string

	// ServerURL is the websocket endpoint a client dials.
	ServerURL string

	// STUNServers feed the client's peer connection.
	STUNServers []string

	// SetupTimeout bounds how long an outgoing call may ring before the
	// client gives up with no-answer.
	SetupTimeout time.Duration
}

// Options carry CLI flag overrides; flags beat environment beats defaults.
type Options struct {
	Addr      string
	ServerURL string
}

func Load(opts Options) *Config {
	addr := opts.Addr
	if addr == "" {
		addr = os.Getenv("GLIMMER_ADDR")
	}
	if addr == "" {
		addr = DefaultAddr
	}

	serverURL := opts.ServerURL
	if serverURL == "" {
		serverURL = os.Getenv("GLIMMER_SERVER_URL")
	}
	if serverURL == "" {
		serverURL = "ws://localhost" + DefaultAddr + "/ws"
	}

	var origins []string
	if v := os.Getenv("GLIMMER_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	stun := []string{DefaultSTUN}
	if v := os.Getenv("GLIMMER_STUN_SERVER"); v != "" {
		stun = []string{v}
	}

	timeout := DefaultSetupTimeout
	if v := os.Getenv("GLIMMER_SETUP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			timeout = d
		}
	}

	return &Config{
		Addr:           addr,
		AllowedOrigins: origins,
		ServerURL:      serverURL,
		STUNServers:    stun,
		SetupTimeout:   timeout,
	}
}
