package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://deals@localhost:5432/deals")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, IdempotencyBackendPostgres, cfg.GetIdempotencyBackend())
	assert.Equal(t, 30*24*time.Hour, cfg.GetDedupeWindow())
	assert.Equal(t, 3, cfg.NoContactThreshold)
	assert.Equal(t, "no response after 3 attempts", cfg.DisqualificationReason)
	assert.Equal(t, int32(25), cfg.GetDatabaseMaxConns())
	assert.Equal(t, 15*time.Minute, cfg.GetRescoreInterval())
	assert.False(t, cfg.IsSchedulerEnabled())
}

func TestLoadDerivesDisqualificationReasonFromThreshold(t *testing.T) {
	setRequired(t)
	t.Setenv("CADENCE_NO_CONTACT_THRESHOLD", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "no response after 5 attempts", cfg.DisqualificationReason)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database", map[string]string{"DATABASE_URL": ""}},
		{"redis backend without redis", map[string]string{"IDEMPOTENCY_BACKEND": "redis"}},
		{"unknown backend", map[string]string{"IDEMPOTENCY_BACKEND": "memcached"}},
		{"zero threshold", map[string]string{"CADENCE_NO_CONTACT_THRESHOLD": "0"}},
		{"min above max conns", map[string]string{"DB_MIN_CONNS": "30"}},
		{"bad rescore interval", map[string]string{"RESCORE_INTERVAL": "soon"}},
		{"wildcard cors with credentials", map[string]string{"CORS_ORIGINS": "*"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
