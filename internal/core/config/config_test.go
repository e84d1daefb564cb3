package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Len(t, cfg.Channels, 6)

	tw, ok := cfg.Channels["twitter"]
	require.True(t, ok)
	assert.Equal(t, 4*time.Hour, tw.Window.Std())
	assert.Equal(t, 3, tw.MaxAttempts)
	assert.Equal(t, 30*time.Second, tw.Timeout.Std())
	assert.False(t, tw.Publishable(), "no command configured by default")

	book, ok := cfg.Channels["book-section"]
	require.True(t, ok)
	assert.Equal(t, 1, book.MaxAttempts)
	assert.False(t, book.Publishable())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dataDir := t.TempDir()

	cfg, err := Load(filepath.Join(dataDir, "nope.yaml"), dataDir)
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.Sweep.Interval.Std())
}

func TestLoadMergesChannels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
channels:
  twitter:
    window: 1h
    command: "post-twitter"
  mastodon:
    window: 30m
    command: "post-mastodon"
sweep:
  interval: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, dir)
	require.NoError(t, err)

	tw, ok := cfg.Channel("twitter")
	require.True(t, ok)
	assert.Equal(t, time.Hour, tw.Window.Std())
	assert.True(t, tw.Publishable())
	// unset fields fall back to channel defaults
	assert.Equal(t, 3, tw.MaxAttempts)
	assert.Equal(t, 30*time.Second, tw.Timeout.Std())

	// user-defined channels are added alongside built-ins
	masto, ok := cfg.Channel("mastodon")
	require.True(t, ok)
	assert.Equal(t, 30*time.Minute, masto.Window.Std())

	_, ok = cfg.Channel("bluesky")
	assert.True(t, ok, "built-in channels survive the merge")

	assert.Equal(t, time.Minute, cfg.Sweep.Interval.Std())
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
channels:
  twitter:
    command: "post-twitter"
    max_attempts: -1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestDurationUnmarshal(t *testing.T) {
	var d Duration
	require.NoError(t, yaml.Unmarshal([]byte(`30m`), &d))
	assert.Equal(t, 30*time.Minute, d.Std())

	require.NoError(t, yaml.Unmarshal([]byte(`"2h"`), &d))
	assert.Equal(t, 2*time.Hour, d.Std())

	require.Error(t, yaml.Unmarshal([]byte(`"not-a-duration"`), &d))
}

func TestValidateDeep(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.DataDir = t.TempDir()

		require.NoError(t, cfg.ValidateDeep(""))
	})

	t.Run("timeout exceeding window is a field error", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.DataDir = t.TempDir()
		cfg.Channels["twitter"] = ChannelConfig{
			Window:      Duration(time.Second),
			MaxAttempts: 3,
			Timeout:     Duration(time.Minute),
			Command:     "post-twitter",
		}

		err := cfg.ValidateDeep("")
		require.Error(t, err)

		var fieldErrs criterio.FieldErrors
		require.ErrorAs(t, err, &fieldErrs)
		assert.Contains(t, fieldErrs[0].Field, "twitter")
	})

	t.Run("data dir pointing at a file is a field error", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "afile")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

		cfg := DefaultConfig()
		cfg.DataDir = file

		err := cfg.ValidateDeep("")
		require.Error(t, err)

		var fieldErrs criterio.FieldErrors
		require.ErrorAs(t, err, &fieldErrs)
	})
}

func TestWarnings(t *testing.T) {
	cfg := DefaultConfig()

	warnings := cfg.Warnings()
	require.Len(t, warnings, 5, "every default social channel lacks a command")

	cfg.Channels["twitter"] = ChannelConfig{
		Window:      Duration(time.Hour),
		MaxAttempts: 3,
		Timeout:     Duration(30 * time.Second),
		Command:     "post-twitter",
	}
	assert.Len(t, cfg.Warnings(), 4)
}
