package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 30*24*time.Hour, cfg.TTL)
	assert.Equal(t, cfg.TTL/2, cfg.RefreshThreshold)
}

func TestLoadConfigFromEnv_Override(t *testing.T) {
	t.Setenv("GATE_SESSION_TTL", "168h")
	t.Setenv("GATE_SESSION_REFRESH_THRESHOLD", "24h")
	t.Setenv("GATE_SESSION_TOKEN_BYTES", "48")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, cfg.TTL)
	assert.Equal(t, 24*time.Hour, cfg.RefreshThreshold)
	assert.Equal(t, 48, cfg.TokenBytes)
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"negative ttl", map[string]string{"GATE_SESSION_TTL": "-5m"}},
		{"not a duration", map[string]string{"GATE_SESSION_TTL": "thirty days"}},
		{"threshold above ttl", map[string]string{"GATE_SESSION_TTL": "1h", "GATE_SESSION_REFRESH_THRESHOLD": "2h"}},
		{"small token", map[string]string{"GATE_SESSION_TOKEN_BYTES": "16"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfigFromEnv()
			require.ErrorIs(t, err, ErrConfig)
		})
	}
}
