// Package rpc provides an x402.Wallet backed by an EIP-1193 style JSON-RPC
// endpoint: a wallet daemon, a browser bridge or a node with unlocked
// accounts. Calls map one to one onto eth_requestAccounts, eth_chainId,
// wallet_switchEthereumChain, wallet_addEthereumChain and
// eth_signTypedData_v4.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/mark3labs/x402-paywall"
)

// Wallet implements x402.Wallet and x402.WalletEvents over JSON-RPC. Events
// are derived from the wallet's own responses: a changed account list from
// eth_requestAccounts and a successful chain switch.
type Wallet struct {
	x402.EventHub

	client *ethrpc.Client
	logger *slog.Logger

	mu       sync.Mutex
	accounts []string
	chainID  int64
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithLogger sets the logger used for wallet diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Wallet) {
		w.logger = logger
	}
}

// Dial connects to the wallet endpoint at rawURL (http, ws or ipc).
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Wallet, error) {
	client, err := ethrpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet: %w", err)
	}
	return New(client, opts...), nil
}

// New wraps an existing client.
func New(client *ethrpc.Client, opts ...Option) *Wallet {
	w := &Wallet{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Close closes the underlying client.
func (w *Wallet) Close() {
	w.client.Close()
}

// RequestAccounts implements x402.Wallet.
func (w *Wallet) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := w.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}

	w.mu.Lock()
	changed := !slices.EqualFunc(w.accounts, accounts, strings.EqualFold)
	w.accounts = accounts
	w.mu.Unlock()

	if changed {
		w.EmitAccountsChanged(accounts)
	}
	return accounts, nil
}

// ChainID implements x402.Wallet.
func (w *Wallet) ChainID(ctx context.Context) (int64, error) {
	var id hexutil.Uint64
	if err := w.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}

	w.mu.Lock()
	w.chainID = int64(id)
	w.mu.Unlock()

	return int64(id), nil
}

// SwitchChain implements x402.Wallet. A wallet that does not know the chain
// (code 4902) is asked to add it from chain's RPC and explorer URLs, then
// the switch is retried once.
func (w *Wallet) SwitchChain(ctx context.Context, chain x402.ChainConfig) error {
	err := w.switchChain(ctx, chain.ChainID)
	if x402.HasErrorCode(err, x402.CodeUnrecognizedChain) {
		w.logger.Info("wallet does not know chain, adding it",
			"chain_id", chain.ChainID,
			"name", chain.Name)
		if addErr := w.addChain(ctx, chain); addErr != nil {
			return addErr
		}
		err = w.switchChain(ctx, chain.ChainID)
	}
	if err != nil {
		return err
	}

	w.mu.Lock()
	changed := w.chainID != chain.ChainID
	w.chainID = chain.ChainID
	w.mu.Unlock()

	if changed {
		w.EmitChainChanged(chain.ChainID)
	}
	return nil
}

// SignTypedData implements x402.Wallet.
func (w *Wallet) SignTypedData(ctx context.Context, account string, data apitypes.TypedData) (string, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode typed data: %w", err)
	}

	var signature string
	if err := w.client.CallContext(ctx, &signature, "eth_signTypedData_v4", account, string(encoded)); err != nil {
		return "", err
	}
	if _, err := hexutil.Decode(signature); err != nil {
		return "", fmt.Errorf("%w: wallet returned malformed signature", x402.ErrSigningFailed)
	}
	return signature, nil
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

type nativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type addChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    nativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

func (w *Wallet) switchChain(ctx context.Context, chainID int64) error {
	params := switchChainParams{ChainID: hexutil.EncodeUint64(uint64(chainID))}
	return w.client.CallContext(ctx, nil, "wallet_switchEthereumChain", params)
}

func (w *Wallet) addChain(ctx context.Context, chain x402.ChainConfig) error {
	if chain.RPCURL == "" {
		return fmt.Errorf("%w: chain %d has no RPC URL to add", x402.ErrNetworkSwitch, chain.ChainID)
	}
	params := addChainParams{
		ChainID:        hexutil.EncodeUint64(uint64(chain.ChainID)),
		ChainName:      chain.Name,
		NativeCurrency: nativeCurrencyFor(chain.ChainID),
		RPCURLs:        []string{chain.RPCURL},
	}
	if chain.BlockExplorerURL != "" {
		params.BlockExplorerURLs = []string{chain.BlockExplorerURL}
	}
	return w.client.CallContext(ctx, nil, "wallet_addEthereumChain", params)
}

func nativeCurrencyFor(chainID int64) nativeCurrency {
	switch chainID {
	case x402.PolygonMainnet.ChainID, x402.PolygonAmoy.ChainID:
		return nativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18}
	case x402.AvalancheMainnet.ChainID, x402.AvalancheFuji.ChainID:
		return nativeCurrency{Name: "Avalanche", Symbol: "AVAX", Decimals: 18}
	default:
		return nativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18}
	}
}
