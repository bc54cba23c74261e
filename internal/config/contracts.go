// Lending proxy address configuration management
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	ModeMainnet = "mainnet"
	ModeTestnet = "testnet"
)

// ContractAddresses contract addresses of one deployment
type ContractAddresses struct {
	LendingProxy string `yaml:"lending_proxy" json:"lending_proxy"`
	NativeAsset  string `yaml:"native_asset" json:"native_asset"` // native coin as seen on the EVM side
}

// ContractNetworkConfig network configuration (contracts plus display info)
type ContractNetworkConfig struct {
	Name         string            `yaml:"name" json:"name"`
	NativeSymbol string            `yaml:"native_symbol" json:"native_symbol"`
	Explorer     string            `yaml:"explorer" json:"explorer"`
	Contracts    ContractAddresses `yaml:"contracts" json:"contracts"`
}

// ContractsConfig complete contract configuration, keyed by network mode
type ContractsConfig struct {
	Version  string                           `yaml:"version" json:"version"`
	Updated  string                           `yaml:"updated" json:"updated"`
	Networks map[string]ContractNetworkConfig `yaml:"networks" json:"networks"`
}

// NetworkAddresses resolved, validated addresses for one mode.
type NetworkAddresses struct {
	Mode        string
	Proxy       common.Address
	NativeAsset common.Address
}

// ContractsConfigManager contract configuration manager
type ContractsConfigManager struct {
	config ContractsConfig
	mu     sync.RWMutex
}

// NewContractsConfigManager creates a manager from the built-in table,
// merged with configPath when it is set and readable.
func NewContractsConfigManager(configPath string) *ContractsConfigManager {
	manager := &ContractsConfigManager{config: DefaultContracts()}

	if configPath == "" {
		return manager
	}

	if err := manager.loadConfig(configPath); err != nil {
		logrus.WithError(err).WithField("path", configPath).Warn("⚠️ Unable to load contract configuration file, using built-in addresses")
	}

	return manager
}

// loadConfig merges a YAML file over the current table
func (m *ContractsConfigManager) loadConfig(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	var loaded ContractsConfig
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if loaded.Version != "" {
		m.config.Version = loaded.Version
	}
	if loaded.Updated != "" {
		m.config.Updated = loaded.Updated
	}
	for mode, network := range loaded.Networks {
		m.config.Networks[strings.ToLower(mode)] = network
	}
	return nil
}

// DefaultContracts the built-in deployment table
func DefaultContracts() ContractsConfig {
	return ContractsConfig{
		Version: "1.0",
		Updated: "2025-06-01",
		Networks: map[string]ContractNetworkConfig{
			ModeMainnet: {
				Name:         "TAC Mainnet",
				NativeSymbol: "TON",
				Explorer:     "https://explorer.tac.build",
				Contracts: ContractAddresses{
					LendingProxy: "0x21b5562FEee5013379F8F79C5093EC294d535BEC",
					NativeAsset:  "0xb76d91340F5CE3577f0a056D29f6e3Eb4E88B140",
				},
			},
			ModeTestnet: {
				Name:         "TAC Testnet",
				NativeSymbol: "TON",
				Explorer:     "https://testnet.explorer.tac.build",
				Contracts: ContractAddresses{
					LendingProxy: "0x001e29479B3DFbaA0c371EaA5E23E157e188871d",
					NativeAsset:  "0xe3a2296bE422768a630eb35014978A808D106899",
				},
			},
		},
	}
}

// GetNetworkConfig returns the entry for mode
func (m *ContractsConfigManager) GetNetworkConfig(mode string) (*ContractNetworkConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	network, ok := m.config.Networks[strings.ToLower(mode)]
	if !ok {
		return nil, fmt.Errorf("network %s not found", mode)
	}
	return &network, nil
}

// GetSupportedNetworks returns every configured mode
func (m *ContractsConfigManager) GetSupportedNetworks() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	modes := make([]string, 0, len(m.config.Networks))
	for mode := range m.config.Networks {
		modes = append(modes, mode)
	}
	return modes
}

// Resolve returns the addresses for cfg.Mode. Non-empty overrides in cfg
// replace the table entries; every address must be a valid hex address.
func (m *ContractsConfigManager) Resolve(cfg NetworkConfig) (NetworkAddresses, error) {
	network, err := m.GetNetworkConfig(cfg.Mode)
	if err != nil {
		return NetworkAddresses{}, err
	}

	proxy := network.Contracts.LendingProxy
	if cfg.ProxyAddress != "" {
		proxy = cfg.ProxyAddress
	}
	native := network.Contracts.NativeAsset
	if cfg.NativeAssetAddress != "" {
		native = cfg.NativeAssetAddress
	}

	if !common.IsHexAddress(proxy) {
		return NetworkAddresses{}, fmt.Errorf("invalid lending proxy address %q for %s", proxy, cfg.Mode)
	}
	if !common.IsHexAddress(native) {
		return NetworkAddresses{}, fmt.Errorf("invalid native asset address %q for %s", native, cfg.Mode)
	}

	return NetworkAddresses{
		Mode:        strings.ToLower(cfg.Mode),
		Proxy:       common.HexToAddress(proxy),
		NativeAsset: common.HexToAddress(native),
	}, nil
}

// ResolveNetwork resolves cfg against the built-in table plus cfg.ContractsFile.
func ResolveNetwork(cfg NetworkConfig) (NetworkAddresses, error) {
	return NewContractsConfigManager(cfg.ContractsFile).Resolve(cfg)
}
