package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServeConfig_Defaults(t *testing.T) {
	cfg, err := LoadServeConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ".", cfg.FlowDir)
	assert.Empty(t, cfg.RedisAddr)
	assert.True(t, cfg.Metrics)
}

func TestLoadServeConfig_Environment(t *testing.T) {
	t.Setenv("ESPALIER_PORT", "9999")
	t.Setenv("ESPALIER_FLOW_DIR", "/flows/intake")
	t.Setenv("ESPALIER_REDIS_ADDR", "localhost:6379")
	t.Setenv("ESPALIER_REDIS_DB", "3")
	t.Setenv("ESPALIER_METRICS", "false")

	cfg, err := LoadServeConfig()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "/flows/intake", cfg.FlowDir)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.False(t, cfg.Metrics)
}
