package config

import (
	"fmt"
	"time"
)

const (
	DefaultSessionTTL         = 24 * time.Hour
	DefaultTypingTimeout      = 900 * time.Millisecond
	DefaultIdleChannelTimeout = 30 * time.Second
)

type Config struct {
	ServerAddr         string
	DatabaseDSN        string
	MigrationsURL      string
	AllowedOrigins     []string
	SessionTTL         time.Duration
	TypingTimeout      time.Duration
	IdleChannelTimeout time.Duration
	// DevMode runs on the in-memory repository with seeded demo data.
	DevMode bool
}

func NewConfig(serverAddr, databaseDSN string, allowedOrigins []string, devMode bool,
	sessionTTL, typingTimeout, idleChannelTimeout time.Duration) (*Config, error) {

	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" && !devMode {
		return nil, fmt.Errorf("database DSN cannot be empty outside dev mode")
	}

	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if typingTimeout <= 0 {
		typingTimeout = DefaultTypingTimeout
	}
	if idleChannelTimeout <= 0 {
		idleChannelTimeout = DefaultIdleChannelTimeout
	}

	return &Config{
		ServerAddr:         serverAddr,
		DatabaseDSN:        databaseDSN,
		MigrationsURL:      "file://migrations",
		AllowedOrigins:     allowedOrigins,
		SessionTTL:         sessionTTL,
		TypingTimeout:      typingTimeout,
		IdleChannelTimeout: idleChannelTimeout,
		DevMode:            devMode,
	}, nil
}
