package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validProductionConfig returns a baseline Config that passes Validate() in
// production, so individual tests can mutate one field and assert the
// resulting error.
func validProductionConfig() *Config {
	return &Config{
		Environment: EnvProduction,
		Database: DatabaseConfig{
			Password: "s3cret",
		},
		Chain: ChainConfig{
			ChainID:            534352,
			CoordinatorAddress: "0x1111111111111111111111111111111111111111",
			RPCURL:             "https://rpc.scroll.io",
		},
		EIP712: EIP712Config{
			Name:    "Accountant",
			Version: "1",
		},
	}
}

func TestValidateProductionOK(t *testing.T) {
	cfg := validProductionConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresCoordinatorAddress(t *testing.T) {
	cfg := validProductionConfig()
	cfg.Chain.CoordinatorAddress = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "SPLIT_COORDINATOR_ADDRESS is required"))
}

func TestValidateRejectsInvalidCoordinatorAddress(t *testing.T) {
	cfg := validProductionConfig()
	cfg.Chain.CoordinatorAddress = "not-an-address"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "must be a valid EVM address"))
}

func TestValidateRequiresRPCURL(t *testing.T) {
	cfg := validProductionConfig()
	cfg.Chain.RPCURL = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "RPC_URL_SCROLL is required"))
}

func TestValidateRequiresPositiveChainID(t *testing.T) {
	cfg := validProductionConfig()
	cfg.Chain.ChainID = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "CHAIN_ID must be a positive integer"))
}

func TestValidateRejectsMalformedExecutorKey(t *testing.T) {
	cfg := validProductionConfig()
	cfg.Executor.PrivateKeyHex = "not-hex"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "EXECUTOR_PRIVATE_KEY"))
}

func TestValidateAcceptsWellFormedExecutorKey(t *testing.T) {
	cfg := validProductionConfig()
	// arbitrary 32-byte hex key, not used on any live chain
	cfg.Executor.PrivateKeyHex = "0c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresDBPasswordInProduction(t *testing.T) {
	cfg := validProductionConfig()
	cfg.Database.Password = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "DB_PASSWORD is required in production"))
}

func TestValidateAllowsEmptyDBPasswordInDevelopment(t *testing.T) {
	cfg := validProductionConfig()
	cfg.Environment = EnvDevelopment
	cfg.Database.Password = ""
	require.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("SPLIT_COORDINATOR_ADDRESS", "")
	t.Setenv("CHAIN_ID", "")

	cfg := Load()
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, "Accountant", cfg.EIP712.Name)
	assert.Equal(t, "1", cfg.EIP712.Version)
	assert.Equal(t, int64(534352), cfg.Chain.ChainID)
}

func TestLoadReadsChainConfigFromEnv(t *testing.T) {
	t.Setenv("CHAIN_ID", "42161")
	t.Setenv("SPLIT_COORDINATOR_ADDRESS", "0x2222222222222222222222222222222222222222")
	t.Setenv("RPC_URL_SCROLL", "https://example.invalid/rpc")

	cfg := Load()
	assert.Equal(t, int64(42161), cfg.Chain.ChainID)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", cfg.Chain.CoordinatorAddress)
	assert.Equal(t, "https://example.invalid/rpc", cfg.Chain.RPCURL)
}

func TestIsDevelopmentIsProduction(t *testing.T) {
	dev := &Config{Environment: EnvDevelopment}
	assert.True(t, dev.IsDevelopment())
	assert.False(t, dev.IsProduction())

	prod := &Config{Environment: EnvProduction}
	assert.True(t, prod.IsProduction())
	assert.False(t, prod.IsDevelopment())
}
