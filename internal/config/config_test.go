package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHATPLAN_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "LGU+", cfg.Chat.Provider)
	assert.Equal(t, "regex", cfg.Chat.Extractor)
	assert.Equal(t, 24*time.Hour, cfg.SSE.ChannelTimeout)
	assert.False(t, cfg.Chat.RequireNonEmptySlots)
	assert.False(t, cfg.TrustUserHeader)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatplan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
chat:
  provider: "KT"
  extractor: chain
sse:
  keepalive_interval: 3s
`), 0o600))

	t.Setenv("CHATPLAN_CONFIG", path)
	t.Setenv("RECOMMEND_PROVIDER", "SKT")
	t.Setenv("SLOT_REQUIRE_NON_EMPTY", "yes")
	t.Setenv("TRUST_USER_HEADER", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "SKT", cfg.Chat.Provider)
	assert.Equal(t, "chain", cfg.Chat.Extractor)
	assert.Equal(t, 3*time.Second, cfg.SSE.KeepaliveInterval)
	assert.True(t, cfg.Chat.RequireNonEmptySlots)
	assert.True(t, cfg.TrustUserHeader)
}

func TestLoadRejectsUnknownExtractor(t *testing.T) {
	t.Setenv("CHATPLAN_CONFIG", "")
	t.Setenv("SLOT_EXTRACTOR", "magic")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLOT_EXTRACTOR")
}

func TestGetEnvDurationFallsBack(t *testing.T) {
	t.Setenv("SOME_DURATION", "not-a-duration")
	assert.Equal(t, time.Second, getEnvDuration("SOME_DURATION", time.Second))
}

func TestIsDevelopment(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.IsDevelopment())
	cfg.FrontendURL = "https://plan.example.com"
	assert.False(t, cfg.IsDevelopment())
}
