// Package coinbase provides an x402.Wallet whose key lives in a Coinbase
// Developer Platform (CDP) server wallet. Typed data is signed remotely
// through the CDP REST API; no private key is held locally.
package coinbase

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/mark3labs/x402-paywall"
)

// Wallet implements x402.Wallet and x402.WalletEvents on a CDP account.
// The active chain is client-side state: CDP accounts sign for any chain.
type Wallet struct {
	x402.EventHub

	client      *CDPClient
	auth        *CDPAuth
	accountName string
	address     string

	mu      sync.RWMutex
	chainID int64
}

// WalletOption configures a Wallet.
type WalletOption func(*Wallet) error

// NewWallet resolves (or creates) the CDP account called accountName and
// returns a wallet for it. Credentials are required.
func NewWallet(ctx context.Context, accountName string, opts ...WalletOption) (*Wallet, error) {
	w := &Wallet{
		accountName: accountName,
		chainID:     x402.BaseMainnet.ChainID,
	}

	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}

	if w.client == nil {
		if w.auth == nil {
			return nil, fmt.Errorf("CDP credentials not provided")
		}
		w.client = NewCDPClient(w.auth)
	}

	account, err := CreateOrGetAccount(ctx, w.client, accountName)
	if err != nil {
		return nil, err
	}
	w.address = account.Address

	return w, nil
}

// WithCDPCredentials sets the CDP API credentials.
func WithCDPCredentials(apiKeyName, apiKeySecret, walletSecret string) WalletOption {
	return func(w *Wallet) error {
		auth, err := NewCDPAuth(apiKeyName, apiKeySecret, walletSecret)
		if err != nil {
			return fmt.Errorf("failed to initialize CDP auth: %w", err)
		}
		w.auth = auth
		return nil
	}
}

// WithCDPCredentialsFromEnv reads CDP_API_KEY_NAME, CDP_API_KEY_SECRET and
// the optional CDP_WALLET_SECRET.
func WithCDPCredentialsFromEnv() WalletOption {
	return func(w *Wallet) error {
		name := os.Getenv("CDP_API_KEY_NAME")
		secret := os.Getenv("CDP_API_KEY_SECRET")
		if name == "" {
			return fmt.Errorf("CDP_API_KEY_NAME environment variable not set")
		}
		if secret == "" {
			return fmt.Errorf("CDP_API_KEY_SECRET environment variable not set")
		}
		return WithCDPCredentials(name, secret, os.Getenv("CDP_WALLET_SECRET"))(w)
	}
}

// WithClient uses an already configured client, e.g. one pointed at a
// different base URL.
func WithClient(client *CDPClient) WalletOption {
	return func(w *Wallet) error {
		w.client = client
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

// Address returns the CDP account address.
func (w *Wallet) Address() string {
	return w.address
}

// AccountName returns the CDP account name.
func (w *Wallet) AccountName() string {
	return w.accountName
}

// RequestAccounts implements x402.Wallet.
func (w *Wallet) RequestAccounts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []string{w.address}, nil
}

// ChainID implements x402.Wallet.
func (w *Wallet) ChainID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.chainID, nil
}

// SwitchChain implements x402.Wallet.
func (w *Wallet) SwitchChain(ctx context.Context, chain x402.ChainConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if chain.ChainID <= 0 {
		return fmt.Errorf("%w: invalid chain id %d", x402.ErrNetworkSwitch, chain.ChainID)
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

// cdpTypedData is the request body of the sign/typed-data endpoint. CDP
// wants chainId as a JSON number.
type cdpTypedData struct {
	Domain      cdpDomain                 `json:"domain"`
	Types       apitypes.Types            `json:"types"`
	PrimaryType string                    `json:"primaryType"`
	Message     apitypes.TypedDataMessage `json:"message"`
}

type cdpDomain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           int64  `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

type signResponse struct {
	Signature string `json:"signature"`
}

// SignTypedData implements x402.Wallet by calling
// POST /platform/v2/evm/accounts/{address}/sign/typed-data.
func (w *Wallet) SignTypedData(ctx context.Context, account string, data apitypes.TypedData) (string, error) {
	if !strings.EqualFold(account, w.address) {
		return "", fmt.Errorf("%w: %s", x402.ErrAccountMismatch, account)
	}

	var chainID int64
	if data.Domain.ChainId != nil {
		id := (*big.Int)(data.Domain.ChainId)
		if !id.IsInt64() {
			return "", fmt.Errorf("%w: chain id out of range", x402.ErrSigningFailed)
		}
		chainID = id.Int64()
	}

	body := cdpTypedData{
		Domain: cdpDomain{
			Name:              data.Domain.Name,
			Version:           data.Domain.Version,
			ChainID:           chainID,
			VerifyingContract: data.Domain.VerifyingContract,
		},
		Types:       data.Types,
		PrimaryType: data.PrimaryType,
		Message:     data.Message,
	}

	path := fmt.Sprintf("%s/%s/sign/typed-data", evmAccountsPath, w.address)
	var resp signResponse
	if err := w.client.do(ctx, "POST", path, body, &resp, true); err != nil {
		return "", fmt.Errorf("sign typed data: %w", err)
	}
	if _, err := hexutil.Decode(resp.Signature); err != nil {
		return "", fmt.Errorf("%w: CDP returned malformed signature", x402.ErrSigningFailed)
	}
	return resp.Signature, nil
}
