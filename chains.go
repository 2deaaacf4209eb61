// Package x402 provides the core types and pure helpers of the x402 paywall
// client: chain configuration and resolution, amount normalization, payment
// requirement selection, wallet interfaces and error classification.
//
// Networks are identified with CAIP-2 identifiers ("eip155:<chain id>").
// The exact scheme is the only one supported: an EIP-3009
// transferWithAuthorization of a 6-decimal stablecoin signed as EIP-712
// typed data.
package x402

import (
	"strconv"
	"strings"
)

// CAIP-2 network identifiers
const (
	// EVM Mainnets
	NetworkBase      = "eip155:8453"
	NetworkPolygon   = "eip155:137"
	NetworkAvalanche = "eip155:43114"

	// EVM Testnets
	NetworkBaseSepolia   = "eip155:84532"
	NetworkPolygonAmoy   = "eip155:80002"
	NetworkAvalancheFuji = "eip155:43113"
)

const eip155Prefix = "eip155:"

// ChainConfig describes a chain a payment can be made on. Values are
// supplied by the caller (or taken from DefaultChains) and never mutated.
type ChainConfig struct {
	// Network is the CAIP-2 network identifier.
	Network string `yaml:"network" json:"network"`

	// ChainID is the EVM chain id.
	ChainID int64 `yaml:"chain_id" json:"chainId" validate:"gt=0"`

	// Name is the human-readable chain name shown to users.
	Name string `yaml:"name" json:"name"`

	// AssetAddress is the stablecoin contract address on this chain.
	AssetAddress string `yaml:"asset_address" json:"assetAddress" validate:"omitempty,eth_addr"`

	// RPCURL is the JSON-RPC endpoint used for balance reads and for
	// wallet_addEthereumChain.
	RPCURL string `yaml:"rpc_url" json:"rpcUrl" validate:"omitempty,url"`

	// BlockExplorerURL is the block explorer base URL.
	BlockExplorerURL string `yaml:"block_explorer_url" json:"blockExplorerUrl" validate:"omitempty,url"`

	// Decimals is the number of decimal places of the asset (6 for USDC).
	Decimals uint8 `yaml:"decimals" json:"decimals"`

	// EIP3009Name is the EIP-712 domain name of the asset contract.
	EIP3009Name string `yaml:"eip3009_name" json:"eip3009Name"`

	// EIP3009Version is the EIP-712 domain version of the asset contract.
	EIP3009Version string `yaml:"eip3009_version" json:"eip3009Version"`
}

// Mainnet chain configurations
var (
	// BaseMainnet is the configuration for Base mainnet.
	BaseMainnet = ChainConfig{
		Network:          NetworkBase,
		ChainID:          8453,
		Name:             "Base",
		AssetAddress:     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		RPCURL:           "https://mainnet.base.org",
		BlockExplorerURL: "https://basescan.org",
		Decimals:         6,
		EIP3009Name:      "USD Coin",
		EIP3009Version:   "2",
	}

	// PolygonMainnet is the configuration for Polygon PoS mainnet.
	PolygonMainnet = ChainConfig{
		Network:          NetworkPolygon,
		ChainID:          137,
		Name:             "Polygon",
		AssetAddress:     "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		RPCURL:           "https://polygon-rpc.com",
		BlockExplorerURL: "https://polygonscan.com",
		Decimals:         6,
		EIP3009Name:      "USD Coin",
		EIP3009Version:   "2",
	}

	// AvalancheMainnet is the configuration for Avalanche C-Chain mainnet.
	AvalancheMainnet = ChainConfig{
		Network:          NetworkAvalanche,
		ChainID:          43114,
		Name:             "Avalanche",
		AssetAddress:     "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
		RPCURL:           "https://api.avax.network/ext/bc/C/rpc",
		BlockExplorerURL: "https://snowtrace.io",
		Decimals:         6,
		EIP3009Name:      "USD Coin",
		EIP3009Version:   "2",
	}
)

// Testnet chain configurations
var (
	// BaseSepolia is the configuration for Base Sepolia testnet.
	BaseSepolia = ChainConfig{
		Network:          NetworkBaseSepolia,
		ChainID:          84532,
		Name:             "Base Sepolia",
		AssetAddress:     "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		RPCURL:           "https://sepolia.base.org",
		BlockExplorerURL: "https://sepolia.basescan.org",
		Decimals:         6,
		EIP3009Name:      "USDC",
		EIP3009Version:   "2",
	}

	// PolygonAmoy is the configuration for Polygon Amoy testnet.
	PolygonAmoy = ChainConfig{
		Network:          NetworkPolygonAmoy,
		ChainID:          80002,
		Name:             "Polygon Amoy",
		AssetAddress:     "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
		RPCURL:           "https://rpc-amoy.polygon.technology",
		BlockExplorerURL: "https://amoy.polygonscan.com",
		Decimals:         6,
		EIP3009Name:      "USDC",
		EIP3009Version:   "2",
	}

	// AvalancheFuji is the configuration for Avalanche Fuji testnet.
	AvalancheFuji = ChainConfig{
		Network:          NetworkAvalancheFuji,
		ChainID:          43113,
		Name:             "Avalanche Fuji",
		AssetAddress:     "0x5425890298aed601595a70AB815c96711a31Bc65",
		RPCURL:           "https://api.avax-test.network/ext/bc/C/rpc",
		BlockExplorerURL: "https://testnet.snowtrace.io",
		Decimals:         6,
		EIP3009Name:      "USD Coin",
		EIP3009Version:   "2",
	}
)

// DefaultChains is the built-in chain map keyed by CAIP-2 network id. It is
// consulted when the caller's own map has no entry for a network.
var DefaultChains = map[string]ChainConfig{
	NetworkBase:          BaseMainnet,
	NetworkPolygon:       PolygonMainnet,
	NetworkAvalanche:     AvalancheMainnet,
	NetworkBaseSepolia:   BaseSepolia,
	NetworkPolygonAmoy:   PolygonAmoy,
	NetworkAvalancheFuji: AvalancheFuji,
}

// ParseChainID extracts the numeric chain id from an "eip155:<id>" network
// identifier. ok is false for any other format.
func ParseChainID(network string) (int64, bool) {
	if !strings.HasPrefix(network, eip155Prefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(network[len(eip155Prefix):], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// NetworkForChainID returns the CAIP-2 identifier for an EVM chain id.
func NetworkForChainID(chainID int64) string {
	return eip155Prefix + strconv.FormatInt(chainID, 10)
}

// ResolveChain picks the chain configuration a requirement is paid on.
//
// A caller-supplied single chain wins by default. When the requirement names
// a network whose chain id differs from it, the chain map (then
// DefaultChains) is consulted for that network instead, and resolution
// fails if neither has it: a payment is never signed on a chain the server
// did not ask for. Without a single chain the lookup is keyed purely by the
// requirement's network.
func ResolveChain(req *PaymentRequirement, single *ChainConfig, chains map[string]ChainConfig) (ChainConfig, bool) {
	if single != nil {
		if req != nil {
			if id, ok := ParseChainID(req.Network); ok && id != single.ChainID {
				return lookupChain(req.Network, chains)
			}
		}
		return *single, true
	}
	if req == nil || req.Network == "" {
		return ChainConfig{}, false
	}
	return lookupChain(req.Network, chains)
}

func lookupChain(network string, chains map[string]ChainConfig) (ChainConfig, bool) {
	if chain, ok := chains[network]; ok {
		return withNetwork(chain, network), true
	}
	if chain, ok := DefaultChains[network]; ok {
		return chain, true
	}
	return ChainConfig{}, false
}

// withNetwork fills in identifiers a caller may have left out of a map entry.
func withNetwork(chain ChainConfig, network string) ChainConfig {
	if chain.Network == "" {
		chain.Network = network
	}
	if chain.ChainID == 0 {
		if id, ok := ParseChainID(network); ok {
			chain.ChainID = id
		}
	}
	return chain
}
