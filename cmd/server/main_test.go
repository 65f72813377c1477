package main

import (
	"testing"

	"starblog/internal/platform/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFlagOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORAGE", "postgres")
	t.Setenv("API_PORT", "8080")

	cfg, err := loadConfig(&flags{storage: "memory", port: "9090"})
	require.NoError(t, err)
	assert.Equal(t, config.StorageMemory, cfg.Storage)
	assert.Equal(t, "9090", cfg.APIPort)
}

func TestLoadConfigRejectsUnknownStorageFlag(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	_, err := loadConfig(&flags{storage: "sqlite"})
	assert.Error(t, err)
}

func TestLoadConfigFlagRescuesInvalidEnvStorage(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORAGE", "sqlite")

	cfg, err := loadConfig(&flags{storage: "Memory"})
	require.NoError(t, err)
	assert.Equal(t, config.StorageMemory, cfg.Storage)

	_, err = loadConfig(&flags{})
	assert.ErrorContains(t, err, "sqlite")
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
	assert.NotNil(t, root.PersistentFlags().Lookup("storage"))
	assert.NotNil(t, root.PersistentFlags().Lookup("port"))
}
