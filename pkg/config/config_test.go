package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10.0, cfg.Cancellation.PenaltyPercent)
	assert.Equal(t, 3, cfg.Cancellation.ProbationMonths)
	assert.Equal(t, 30*time.Minute, cfg.Cache.RequirementsTTL)
	assert.Empty(t, cfg.Access.RoleCapabilities)
}

func TestLoadRoleCapabilityOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ROLE_CAPABILITIES_STAFF", "applications:read, documents:read ,")
	t.Setenv("PROBATION_WINDOW_MONTHS", "6")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"applications:read", "documents:read"}, cfg.Access.RoleCapabilities["STAFF"])
	assert.Equal(t, 6, cfg.Cancellation.ProbationMonths)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("garbage", time.Minute))
	assert.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
}
