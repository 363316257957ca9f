package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("EVALUATOR_TIMEOUT", "5s")
	t.Setenv("REQUIRE_CHIEF_ADMIN_FOR_PUBLISH", "false")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "gemini", cfg.Evaluator.Driver)
	assert.Equal(t, 5*time.Second, cfg.Evaluator.Timeout)
	assert.Equal(t, 2, cfg.Evaluator.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Timer.SubmissionGrace)
	assert.False(t, cfg.Auth.RequireChiefAdminForPublish)
}
