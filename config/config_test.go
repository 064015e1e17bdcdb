package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig_PassesValidation(t *testing.T) {
	cfg := NewDefaultConfig()
	err := checkConfig(cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.TOML())
}

func TestCheckPoolCfg_RejectsMaxBelowMin(t *testing.T) {
	p := NewDefaultPool()
	p.MinWait = 5
	p.MaxWait = 1
	err := checkPoolCfg(p)
	assert.Error(t, err)
}

func TestCheckCoordinatorCfg_WorkerRequiresManagerHost(t *testing.T) {
	c := NewDefaultCoordinator()
	c.Role = RoleWorker
	err := checkCoordinatorCfg(c)
	assert.Error(t, err)

	c.ManagerHost = "127.0.0.1"
	err = checkCoordinatorCfg(c)
	assert.NoError(t, err)
}

func TestCheckCoordinatorCfg_ManagerRequiresExpectWorkers(t *testing.T) {
	c := NewDefaultCoordinator()
	c.Role = RoleManager
	err := checkCoordinatorCfg(c)
	assert.Error(t, err)

	c.ExpectWorkers = 3
	err = checkCoordinatorCfg(c)
	assert.NoError(t, err)
}

func TestLoadAndSetConfig_MissingOptionalFileUsesDefaults(t *testing.T) {
	cfg := &Config{}
	err := LoadAndSetConfig("", "/nonexistent/path/goose.toml", cfg)
	require.NoError(t, err)
	assert.Equal(t, NewDefaultPool().HatchRate, cfg.Pool.HatchRate)
}
