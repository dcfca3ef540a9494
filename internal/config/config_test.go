package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 60, cfg.Options.RateLimit)
	assert.Equal(t, 7, cfg.Options.Days)
	assert.True(t, cfg.Options.Submit)
	assert.False(t, cfg.Options.ShowDiscovery)
	assert.Equal(t, 12, cfg.Megathread.Episodes)
	assert.Equal(t, 24*time.Hour, cfg.Options.EngagementLag())
	assert.Equal(t, 30*24*time.Hour, cfg.Options.EpisodeRetention())
	assert.NotEmpty(t, cfg.Post.Formats["discussion"])
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /tmp/test.db
options:
  ratelimit: 30
  min_upvotes: 5
  disable_inactive: true
lemmy:
  instance: lemmy.example
  community: anime
  username: bot
  password: hunter2
megathread:
  episodes: 6
feeds:
  - name: releases
    url: https://releases.example/rss
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, 30, cfg.Options.RateLimit)
	assert.Equal(t, 5, cfg.Options.MinUpvotes)
	assert.True(t, cfg.Options.DisableInactive)
	assert.Equal(t, 6, cfg.Megathread.Episodes)
	require.Len(t, cfg.Feeds, 1)
	assert.Equal(t, "releases", cfg.Feeds[0].Name)

	// Untouched sections keep their defaults.
	assert.Equal(t, 7, cfg.Options.Days)
	assert.NotEmpty(t, cfg.Post.Title)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RIKKA_DB_PATH", "/env/rikka.db")
	t.Setenv("RIKKA_LEMMY_PASSWORD", "fromenv")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/env/rikka.db", cfg.Database.Path)
	assert.Equal(t, "fromenv", cfg.Lemmy.Password)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate(), "missing lemmy settings must fail")

	cfg.Lemmy = LemmyConfig{Instance: "lemmy.example", Community: "anime", Username: "bot", Password: "x"}
	require.NoError(t, cfg.Validate())

	cfg.Options.RateLimit = -1
	require.Error(t, cfg.Validate())
	cfg.Options.RateLimit = 60

	cfg.Megathread.Episodes = 0
	require.Error(t, cfg.Validate())
}
