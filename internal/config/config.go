// Package config loads the per-instance record described in the external
// interfaces: a YAML file listing one entry per (protocol, chain) pair,
// each producing a ProtocolInstance with its tagged-variant ProtocolConfig.
// Per-instance fields can be overridden at deploy time via the
// UMA_<CHAIN_UPPER>_RPC_URL-style environment pattern, layered on top of
// the file so an operator never edits the committed instance list just to
// rotate an endpoint.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	infraconfig "github.com/r3e-network/oracle-observatory/infrastructure/config"
	"github.com/r3e-network/oracle-observatory/internal/domain/oracle"
)

// rawInstance mirrors the YAML shape of one instance entry. protocolConfig
// is left as a generic map since its fields vary per protocol; build()
// below dispatches it into the matching concrete ProtocolConfig struct.
type rawInstance struct {
	ID                 string                 `yaml:"id"`
	Name               string                 `yaml:"name"`
	Protocol           string                 `yaml:"protocol"`
	Chain              string                 `yaml:"chain"`
	Enabled            bool                   `yaml:"enabled"`
	RPCURL             string                 `yaml:"rpcUrl"`
	RPCURLs            string                 `yaml:"rpcUrls"`
	StartBlock         uint64                 `yaml:"startBlock"`
	MaxBlockRange      uint64                 `yaml:"maxBlockRange"`
	ConfirmationBlocks uint64                 `yaml:"confirmationBlocks"`
	SyncIntervalMs     int64                  `yaml:"syncIntervalMs"`
	Metadata           map[string]string      `yaml:"metadata"`
	ProtocolConfig     map[string]interface{} `yaml:"protocolConfig"`
}

type fileFormat struct {
	Instances []rawInstance `yaml:"instances"`
}

// Load reads the instance list at path, applies environment overrides, and
// returns fully-built ProtocolInstance records ready for the scheduler.
func Load(path string) ([]oracle.ProtocolInstance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instance config %q: %w", path, err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse instance config %q: %w", path, err)
	}

	instances := make([]oracle.ProtocolInstance, 0, len(f.Instances))
	for _, raw := range f.Instances {
		inst, err := build(raw)
		if err != nil {
			return nil, fmt.Errorf("instance %q: %w", raw.ID, err)
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

func build(raw rawInstance) (oracle.ProtocolInstance, error) {
	if raw.ID == "" {
		return oracle.ProtocolInstance{}, fmt.Errorf("missing id")
	}
	if raw.Chain == "" {
		return oracle.ProtocolInstance{}, fmt.Errorf("missing chain")
	}

	cfg := oracle.DefaultInstanceConfig()
	cfg.RPCURLs = rpcURLs(raw)
	if raw.StartBlock > 0 {
		cfg.StartBlock = raw.StartBlock
	}
	if raw.MaxBlockRange > 0 {
		cfg.MaxBlockRange = raw.MaxBlockRange
	}
	if raw.ConfirmationBlocks > 0 || hasKey(raw.ProtocolConfig, "confirmationBlocks") {
		cfg.ConfirmationBlocks = raw.ConfirmationBlocks
	}
	if raw.SyncIntervalMs > 0 {
		cfg.SyncIntervalMs = raw.SyncIntervalMs
	}

	protocolCfg, err := buildProtocolConfig(raw.Protocol, raw.Chain, raw.ProtocolConfig)
	if err != nil {
		return oracle.ProtocolInstance{}, err
	}

	applyEnvOverrides(&cfg, &protocolCfg, raw.Protocol, raw.Chain)

	return oracle.ProtocolInstance{
		ID:             raw.ID,
		Name:           raw.Name,
		Protocol:       oracle.Protocol(strings.ToLower(raw.Protocol)),
		Chain:          raw.Chain,
		Enabled:        raw.Enabled,
		Config:         cfg,
		ProtocolConfig: protocolCfg,
		Metadata:       raw.Metadata,
	}, nil
}

func rpcURLs(raw rawInstance) []string {
	if raw.RPCURLs != "" {
		return infraconfig.SplitAndTrimCSV(raw.RPCURLs)
	}
	if raw.RPCURL != "" {
		return []string{raw.RPCURL}
	}
	return nil
}

func hasKey(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	_, ok := m[key]
	return ok
}

func strField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func intField(m map[string]interface{}, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func int64Field(m map[string]interface{}, key string) int64 {
	return int64(intField(m, key))
}

func buildProtocolConfig(protocol, chain string, pc map[string]interface{}) (oracle.ProtocolConfig, error) {
	switch oracle.Protocol(strings.ToLower(protocol)) {
	case oracle.ProtocolChainlink:
		return oracle.ChainlinkConfig{HeartbeatSeconds: intField(pc, "heartbeatSeconds")}, nil
	case oracle.ProtocolPyth:
		return oracle.PythConfig{ContractAddress: strField(pc, "contractAddress")}, nil
	case oracle.ProtocolUMA:
		return oracle.UMAConfig{
			OptimisticOracleV2Address: strField(pc, "optimisticOracleV2Address"),
			OptimisticOracleV3Address: strField(pc, "optimisticOracleV3Address"),
			VotingPeriodSeconds:       int64Field(pc, "votingPeriodSeconds"),
		}, nil
	case oracle.ProtocolBand:
		return oracle.BandConfig{BaseURL: strField(pc, "baseUrl")}, nil
	case oracle.ProtocolAPI3:
		return oracle.API3Config{ProxyAddress: strField(pc, "proxyAddress")}, nil
	case oracle.ProtocolRedStone:
		return oracle.RedStoneConfig{ContractAddress: strField(pc, "contractAddress")}, nil
	case oracle.ProtocolFlux:
		return oracle.FluxConfig{
			Version:         strField(pc, "version"),
			ContractAddress: strField(pc, "contractAddress"),
			BaseURL:         strField(pc, "baseUrl"),
		}, nil
	case oracle.ProtocolDIA:
		return oracle.DIAConfig{BaseURL: strField(pc, "baseUrl")}, nil
	case oracle.ProtocolSwitchboard:
		return oracle.SwitchboardConfig{ContractAddress: strField(pc, "contractAddress")}, nil
	case oracle.ProtocolInsight:
		return oracle.InsightConfig{
			BaseURL:      strField(pc, "baseUrl"),
			RPCTimeoutMs: intField(pc, "rpcTimeoutMs"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown protocol %q for chain %q", protocol, chain)
	}
}

// applyEnvOverrides layers UMA_<CHAIN_UPPER>_*-style environment variables
// on top of the file-loaded config, per the external interfaces. Every
// protocol gets the RPC_URL override generically; the remaining overrides
// are protocol-specific since the address field they target differs.
func applyEnvOverrides(cfg *oracle.InstanceConfig, protocolCfg *oracle.ProtocolConfig, protocol, chain string) {
	prefix := strings.ToUpper(protocol)

	if raw := infraconfig.GetEnv(infraconfig.InstanceEnvKey(prefix, chain, "RPC_URL"), ""); raw != "" {
		cfg.RPCURLs = infraconfig.SplitAndTrimCSV(raw)
	}

	switch c := (*protocolCfg).(type) {
	case oracle.UMAConfig:
		if v := infraconfig.GetEnv(infraconfig.InstanceEnvKey(prefix, chain, "OPTIMISTIC_ORACLE_V3_ADDRESS"), ""); v != "" {
			c.OptimisticOracleV3Address = v
		}
		if v := infraconfig.GetEnv(infraconfig.InstanceEnvKey(prefix, chain, "OPTIMISTIC_ORACLE_V2_ADDRESS"), ""); v != "" {
			c.OptimisticOracleV2Address = v
		}
		*protocolCfg = c
	case oracle.ChainlinkConfig:
		*protocolCfg = c
	case oracle.PythConfig:
		if v := infraconfig.GetEnv(infraconfig.InstanceEnvKey(prefix, chain, "CONTRACT_ADDRESS"), ""); v != "" {
			c.ContractAddress = v
		}
		*protocolCfg = c
	case oracle.InsightConfig:
		if ms := infraconfig.GetEnvInt("INSIGHT_RPC_TIMEOUT_MS", 0); ms > 0 {
			c.RPCTimeoutMs = ms
		}
		*protocolCfg = c
	}
}

// RewardsSyncInterval resolves UMA_REWARDS_SYNC_INTERVAL_MS, falling back
// to def when unset or invalid.
func RewardsSyncInterval(def time.Duration) time.Duration {
	if ms := infraconfig.GetEnvInt("UMA_REWARDS_SYNC_INTERVAL_MS", 0); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

// TVLSyncInterval resolves UMA_TVL_SYNC_INTERVAL_MS, falling back to def
// when unset or invalid.
func TVLSyncInterval(def time.Duration) time.Duration {
	if ms := infraconfig.GetEnvInt("UMA_TVL_SYNC_INTERVAL_MS", 0); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
