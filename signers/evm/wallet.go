// Package evm provides a local-key x402.Wallet: the key comes from a hex
// private key, an encrypted keystore file or a BIP39 mnemonic, and typed
// data is signed in process.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/mark3labs/x402-paywall"
	typed "github.com/mark3labs/x402-paywall/evm"
)

// Wallet implements x402.Wallet and x402.WalletEvents with an in-memory key.
type Wallet struct {
	x402.EventHub

	privateKey *ecdsa.PrivateKey
	address    common.Address
	maxAmount  *big.Int
	supported  map[int64]bool

	mu        sync.RWMutex
	chainID   int64
	connected bool
}

// WalletOption configures a Wallet.
type WalletOption func(*Wallet) error

// NewWallet creates a local wallet. A key option is required; the active
// chain defaults to Base mainnet.
func NewWallet(opts ...WalletOption) (*Wallet, error) {
	w := &Wallet{
		chainID: x402.BaseMainnet.ChainID,
	}

	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}

	if w.privateKey == nil {
		return nil, x402.ErrInvalidKey
	}
	w.address = crypto.PubkeyToAddress(w.privateKey.PublicKey)

	return w, nil
}

// WithPrivateKey sets the private key from a hex string.
func WithPrivateKey(hexKey string) WalletOption {
	return func(w *Wallet) error {
		hexKey = strings.TrimPrefix(hexKey, "0x")

		privateKey, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			return x402.ErrInvalidKey
		}

		w.privateKey = privateKey
		return nil
	}
}

// WithChain sets the initially active chain.
func WithChain(chain x402.ChainConfig) WalletOption {
	return func(w *Wallet) error {
		if chain.ChainID <= 0 {
			return fmt.Errorf("invalid chain id %d", chain.ChainID)
		}
		w.chainID = chain.ChainID
		return nil
	}
}

// WithSupportedChains restricts the chains SwitchChain accepts. Switching to
// any other chain fails with EIP-1193 code 4902. Without this option every
// chain is accepted.
func WithSupportedChains(chains ...x402.ChainConfig) WalletOption {
	return func(w *Wallet) error {
		if w.supported == nil {
			w.supported = make(map[int64]bool)
		}
		for _, c := range chains {
			w.supported[c.ChainID] = true
		}
		return nil
	}
}

// WithMaxAmountPerCall caps the atomic value of any signed authorization.
func WithMaxAmountPerCall(amount string) WalletOption {
	return func(w *Wallet) error {
		maxAmount, ok := new(big.Int).SetString(amount, 10)
		if !ok || maxAmount.Sign() < 0 {
			return x402.ErrInvalidAmount
		}
		w.maxAmount = maxAmount
		return nil
	}
}

// Address returns the wallet address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// RequestAccounts connects the wallet and returns its single account.
func (w *Wallet) RequestAccounts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.connected = true
	w.mu.Unlock()
	return []string{w.address.Hex()}, nil
}

// ChainID returns the active chain id.
func (w *Wallet) ChainID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.chainID, nil
}

// SwitchChain makes chain active and emits a chain change.
func (w *Wallet) SwitchChain(ctx context.Context, chain x402.ChainConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.supported != nil && !w.supported[chain.ChainID] {
		return &x402.ProviderError{
			Code:    x402.CodeUnrecognizedChain,
			Message: fmt.Sprintf("Unrecognized chain ID %d", chain.ChainID),
		}
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

// SignTypedData signs data for account. The domain chain id must match the
// active chain and the message value must respect WithMaxAmountPerCall.
func (w *Wallet) SignTypedData(ctx context.Context, account string, data apitypes.TypedData) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !strings.EqualFold(account, w.address.Hex()) {
		return "", fmt.Errorf("%w: %s", x402.ErrAccountMismatch, account)
	}

	w.mu.RLock()
	active := w.chainID
	w.mu.RUnlock()
	if data.Domain.ChainId != nil {
		if domainChain := (*big.Int)(data.Domain.ChainId); domainChain.Cmp(big.NewInt(active)) != 0 {
			return "", fmt.Errorf("%w: typed data chain id %s does not match active chain %d",
				x402.ErrSigningFailed, domainChain, active)
		}
	}

	if w.maxAmount != nil {
		if value, ok := messageValue(data); ok && value.Cmp(w.maxAmount) > 0 {
			return "", x402.ErrAmountExceeded
		}
	}

	signature, err := typed.SignTypedData(w.privateKey, data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", x402.ErrSigningFailed, err)
	}
	return signature, nil
}

// Disconnect drops the connection and reports an empty account list, the
// way an injected wallet does when the user locks it.
func (w *Wallet) Disconnect() {
	w.mu.Lock()
	wasConnected := w.connected
	w.connected = false
	w.mu.Unlock()

	if wasConnected {
		w.EmitAccountsChanged(nil)
	}
}

func messageValue(data apitypes.TypedData) (*big.Int, bool) {
	switch v := data.Message["value"].(type) {
	case string:
		return math.ParseBig256(v)
	case *big.Int:
		return v, v != nil
	case *math.HexOrDecimal256:
		return (*big.Int)(v), v != nil
	default:
		return nil, false
	}
}
