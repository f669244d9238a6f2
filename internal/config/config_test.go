package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	tt := []struct {
		name    string
		addr    string
		dsn     string
		devMode bool
		wantErr string
	}{
		{
			name: "valid",
			addr: "localhost:8000",
			dsn:  "postgres://localhost/speakset",
		},
		{
			name:    "dev mode without dsn",
			addr:    "localhost:8000",
			devMode: true,
		},
		{
			name:    "missing addr",
			dsn:     "postgres://localhost/speakset",
			wantErr: "server address cannot be empty",
		},
		{
			name:    "missing dsn outside dev mode",
			addr:    "localhost:8000",
			wantErr: "database DSN cannot be empty outside dev mode",
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.addr, tc.dsn, []string{"http://localhost:3000"}, tc.devMode, 0, 0, 0)
			if tc.wantErr != "" {
				require.EqualError(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.addr, cfg.ServerAddr)
			assert.Equal(t, tc.devMode, cfg.DevMode)
		})
	}
}

func TestNewConfig_timeoutDefaults(t *testing.T) {
	cfg, err := NewConfig("localhost:8000", "", nil, true, 0, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, DefaultSessionTTL, cfg.SessionTTL)
	assert.Equal(t, DefaultTypingTimeout, cfg.TypingTimeout)
	assert.Equal(t, DefaultIdleChannelTimeout, cfg.IdleChannelTimeout)
}

func TestNewConfig_timeoutOverrides(t *testing.T) {
	cfg, err := NewConfig("localhost:8000", "", nil, true,
		time.Hour, 2*time.Second, 5*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 2*time.Second, cfg.TypingTimeout)
	assert.Equal(t, 5*time.Minute, cfg.IdleChannelTimeout)
}
