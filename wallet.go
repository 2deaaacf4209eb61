package x402

import (
	"context"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Wallet is the wallet provider the payment flow talks to. Implementations
// cover local keys, EIP-1193 JSON-RPC wallets and remote signing services.
// Every method may block on the user; callers pass a context to bound it.
type Wallet interface {
	// RequestAccounts asks the wallet to connect and returns its accounts
	// (eth_requestAccounts). The first account is the active one.
	RequestAccounts(ctx context.Context) ([]string, error)

	// ChainID returns the wallet's active chain id (eth_chainId).
	ChainID(ctx context.Context) (int64, error)

	// SwitchChain asks the wallet to make chain active
	// (wallet_switchEthereumChain, adding it first when unknown).
	SwitchChain(ctx context.Context, chain ChainConfig) error

	// SignTypedData signs EIP-712 typed data for account
	// (eth_signTypedData_v4) and returns the 0x-prefixed 65-byte signature.
	SignTypedData(ctx context.Context, account string, data apitypes.TypedData) (string, error)
}

// WalletEvents is implemented by wallets that report account and chain
// changes. Each registration returns a function that removes the handler.
type WalletEvents interface {
	OnAccountsChanged(handler func(accounts []string)) (unsubscribe func())
	OnChainChanged(handler func(chainID int64)) (unsubscribe func())
}
