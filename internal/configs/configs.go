/*
Package configs loads and validates the application configuration.

All settings come from environment variables: the running environment, listen
port, CORS allowed origins, the message echo policy, and the optional identity
ticket secret shared with the external auth layer.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// AppConfig contains every configuration parameter the server needs.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// EchoSender controls whether the sender of a chat message receives its
	// own message back on the broadcast. Defaults to true, matching the
	// room-wide emit behavior clients were built against.
	EchoSender bool

	// Security Settings
	AllowedOrigins []string

	// TicketSecret is the HS256 secret shared with the external auth layer.
	// When set, join handshakes may carry a signed identity ticket and the
	// display name is taken from the verified claim. When empty, the name
	// field of the join payload is trusted as-is.
	TicketSecret string
}

// LoadConfig reads the configuration from environment variables, applying
// development defaults and validating production requirements.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	// Environment
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// Port
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	cfg.Port = port

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	// EchoSender
	echoStr := os.Getenv("ECHO_SENDER")
	if echoStr == "" {
		cfg.EchoSender = true
	} else {
		echo, err := strconv.ParseBool(echoStr)
		if err != nil {
			return nil, fmt.Errorf("invalid ECHO_SENDER environment variable: %w", err)
		}
		cfg.EchoSender = echo
	}

	// --- Security Settings ---
	// AllowedOrigins
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr != "" {
		origins := strings.Split(originsStr, ",")
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{}
	}

	// TicketSecret
	ticketSecret := os.Getenv("TICKET_SECRET")
	if ticketSecret == "" && cfg.Environment != "development" {
		return nil, fmt.Errorf("TICKET_SECRET environment variable is required in %s environment for identity verification", cfg.Environment)
	}
	cfg.TicketSecret = ticketSecret

	return cfg, nil
}
