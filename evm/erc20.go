package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var parsedERC20 = mustParseABI(erc20ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("evm: invalid ERC-20 ABI: %v", err))
	}
	return parsed
}

// ERC20Reader performs read-only ERC-20 calls over JSON-RPC. One client is
// dialed per RPC URL and reused; it is safe for concurrent use.
type ERC20Reader struct {
	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

// NewERC20Reader creates a reader with an empty client cache.
func NewERC20Reader() *ERC20Reader {
	return &ERC20Reader{clients: make(map[string]*ethclient.Client)}
}

// BalanceOf returns the token balance of owner in atomic units.
func (r *ERC20Reader) BalanceOf(ctx context.Context, rpcURL, token, owner string) (*big.Int, error) {
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("invalid owner address: %q", owner)
	}
	out, err := r.call(ctx, rpcURL, token, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", out[0])
	}
	return balance, nil
}

// Decimals returns the token's decimal precision.
func (r *ERC20Reader) Decimals(ctx context.Context, rpcURL, token string) (uint8, error) {
	out, err := r.call(ctx, rpcURL, token, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals result type %T", out[0])
	}
	return decimals, nil
}

// Close closes every cached client.
func (r *ERC20Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for url, client := range r.clients {
		client.Close()
		delete(r.clients, url)
	}
}

func (r *ERC20Reader) call(ctx context.Context, rpcURL, token, method string, args ...interface{}) ([]interface{}, error) {
	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("invalid token address: %q", token)
	}
	client, err := r.client(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	data, err := parsedERC20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	contract := common.HexToAddress(token)
	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	out, err := parsedERC20.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty %s result", method)
	}
	return out, nil
}

func (r *ERC20Reader) client(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("missing RPC URL")
	}

	r.mu.Lock()
	client, ok := r.clients[rpcURL]
	r.mu.Unlock()
	if ok {
		return client, nil
	}

	// Dial without holding the lock so a stalled endpoint only delays its
	// own callers.
	dialed, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients == nil {
		r.clients = make(map[string]*ethclient.Client)
	}
	if existing, ok := r.clients[rpcURL]; ok {
		dialed.Close()
		return existing, nil
	}
	r.clients[rpcURL] = dialed
	return dialed, nil
}
