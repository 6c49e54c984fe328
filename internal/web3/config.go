package web3

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chains.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single network together with the AMM contracts
// deployed on it.
type ChainDefinition struct {
	Type        string `yaml:"type"`
	RPCURL      string `yaml:"rpc_url"`
	ChainID     int64  `yaml:"chain_id"`
	Router      string `yaml:"router"`
	WETH        string `yaml:"weth"`
	Explorer    string `yaml:"explorer"`
	Description string `yaml:"description"`
}

// RouterAddress returns the parsed router address.
func (d ChainDefinition) RouterAddress() common.Address {
	return common.HexToAddress(d.Router)
}

// WETHAddress returns the configured wrapped native token address.
func (d ChainDefinition) WETHAddress() common.Address {
	return common.HexToAddress(d.WETH)
}

// Validate checks that the addresses of the definition are well formed.
func (d ChainDefinition) Validate(name string) error {
	if strings.TrimSpace(d.RPCURL) == "" {
		return fmt.Errorf("链 %s 缺少 rpc_url", name)
	}
	if !common.IsHexAddress(d.Router) {
		return fmt.Errorf("链 %s 的 router 地址无效: %q", name, d.Router)
	}
	if !common.IsHexAddress(d.WETH) {
		return fmt.Errorf("链 %s 的 weth 地址无效: %q", name, d.WETH)
	}
	return nil
}

// LoadChainDefinitions parses the YAML file containing chain metadata.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	return defs, nil
}
