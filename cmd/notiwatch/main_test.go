package main

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/notiwatch/pkg/config"
)

func TestApplyFlags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.Flags().Parse([]string{
		"--url", "https://social.example/notifications",
		"--item", "li.notification",
		"--headless",
		"--listen", ":9090",
	}))

	cfg, err := config.LoadOptional(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	require.NoError(t, applyFlags(cmd, cfg))

	assert.Equal(t, "https://social.example/notifications", cfg.Site.NotificationsURL)
	assert.Equal(t, "li.notification", cfg.Site.ItemSelector)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, ":9090", cfg.Stream.Listen)

	// untouched flags keep the config values
	assert.Equal(t, config.DefaultContainerSelector, cfg.Site.ContainerSelector)
	assert.Equal(t, config.DefaultLoginURL, cfg.Site.LoginURL)
	assert.False(t, cfg.Browser.Stealth)
}

func TestRootCmdRejectsArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"unexpected"})

	assert.Error(t, cmd.Execute())
}

func TestLoadConfigMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "typo.yaml")

	t.Run("explicit path must exist", func(t *testing.T) {
		cmd := newRootCmd()
		require.NoError(t, cmd.Flags().Parse([]string{"--config", missing}))

		_, err := loadConfig(cmd, missing)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("default path may be missing", func(t *testing.T) {
		cmd := newRootCmd()
		require.NoError(t, cmd.Flags().Parse(nil))

		cfg, err := loadConfig(cmd, missing)
		require.NoError(t, err)
		assert.Equal(t, config.DefaultNotificationsURL, cfg.Site.NotificationsURL)
	})

	t.Run("command fails before launching a browser", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetArgs([]string{"--config", missing})

		assert.ErrorIs(t, cmd.Execute(), fs.ErrNotExist)
	})
}
