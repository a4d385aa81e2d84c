package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/oracle-observatory/internal/domain/oracle"
)

func writeInstanceFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "instances.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

const sampleYAML = `
instances:
  - id: uma-ethereum
    name: UMA on Ethereum
    protocol: uma
    chain: ethereum
    enabled: true
    rpcUrls: "https://rpc-a.example.com, https://rpc-b.example.com"
    startBlock: 100
    maxBlockRange: 5000
    confirmationBlocks: 12
    protocolConfig:
      optimisticOracleV3Address: "0x5f4ec3df9cbd43714fe2740f5e3616155c5b8419"
      votingPeriodSeconds: 172800
  - id: chainlink-polygon-eth-usd
    name: Chainlink ETH/USD on Polygon
    protocol: chainlink
    chain: polygon
    enabled: true
    rpcUrl: "https://polygon.example.com"
    protocolConfig:
      heartbeatSeconds: 3600
`

func TestLoadBuildsInstancesWithConcreteProtocolConfig(t *testing.T) {
	path := writeInstanceFile(t, sampleYAML)

	instances, err := Load(path)
	require.NoError(t, err)
	require.Len(t, instances, 2)

	uma := instances[0]
	require.Equal(t, oracle.ProtocolUMA, uma.Protocol)
	require.Equal(t, []string{"https://rpc-a.example.com", "https://rpc-b.example.com"}, uma.Config.RPCURLs)
	require.Equal(t, uint64(5000), uma.Config.MaxBlockRange)

	umaCfg, ok := uma.ProtocolConfig.(oracle.UMAConfig)
	require.True(t, ok)
	require.Equal(t, "0x5f4ec3df9cbd43714fe2740f5e3616155c5b8419", umaCfg.OptimisticOracleV3Address)
	require.Equal(t, int64(172800), umaCfg.VotingPeriodSeconds)

	cl := instances[1]
	clCfg, ok := cl.ProtocolConfig.(oracle.ChainlinkConfig)
	require.True(t, ok)
	require.Equal(t, 3600, clCfg.HeartbeatSeconds)
}

func TestLoadAppliesRPCURLEnvOverride(t *testing.T) {
	path := writeInstanceFile(t, sampleYAML)

	t.Setenv("UMA_ETHEREUM_RPC_URL", "https://override.example.com")
	instances, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, []string{"https://override.example.com"}, instances[0].Config.RPCURLs)
}

func TestLoadAppliesOptimisticOracleAddressOverride(t *testing.T) {
	path := writeInstanceFile(t, sampleYAML)

	t.Setenv("UMA_ETHEREUM_OPTIMISTIC_ORACLE_V3_ADDRESS", "0x000000000000000000000000000000deadbeef")
	instances, err := Load(path)
	require.NoError(t, err)

	cfg := instances[0].ProtocolConfig.(oracle.UMAConfig)
	require.Equal(t, "0x000000000000000000000000000000deadbeef", cfg.OptimisticOracleV3Address)
}

func TestLoadRejectsUnknownProtocol(t *testing.T) {
	path := writeInstanceFile(t, `
instances:
  - id: bad
    protocol: notaprotocol
    chain: ethereum
    enabled: true
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestRewardsAndTVLIntervalOverrides(t *testing.T) {
	t.Setenv("UMA_REWARDS_SYNC_INTERVAL_MS", "90000")
	t.Setenv("UMA_TVL_SYNC_INTERVAL_MS", "")

	require.Equal(t, int64(90000), RewardsSyncInterval(0).Milliseconds())
	require.Equal(t, int64(60000), TVLSyncInterval(60*time.Second).Milliseconds())
}

func TestFileListerReloadsOnEachCall(t *testing.T) {
	path := writeInstanceFile(t, sampleYAML)
	lister := NewFileLister(path)

	instances, err := lister.List(context.Background())
	require.NoError(t, err)
	require.Len(t, instances, 2)
}
