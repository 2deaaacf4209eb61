// Package balance reads the connected account's token balance on every
// network a 402 response accepts.
//
// Reads for all networks run concurrently and each entry succeeds or fails on
// its own: a slow or broken RPC endpoint never delays or spoils the result of
// another network. Every network has its own circuit breaker so an endpoint
// that keeps failing is skipped quickly on the next refresh.
package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/mark3labs/x402-paywall"
	"github.com/mark3labs/x402-paywall/evm"
	"github.com/mark3labs/x402-paywall/metrics"
	"github.com/mark3labs/x402-paywall/retry"
)

// Reader reads ERC-20 state. evm.ERC20Reader implements it.
type Reader interface {
	BalanceOf(ctx context.Context, rpcURL, token, owner string) (*big.Int, error)
	Decimals(ctx context.Context, rpcURL, token string) (uint8, error)
}

// Resolver maps a requirement to the chain its balance is read from.
type Resolver func(req *x402.PaymentRequirement) (x402.ChainConfig, bool)

// Info is the balance of one accepted requirement. Exactly one of Balance
// and Error is set once loaded.
type Info struct {
	Network   string           `json:"network"`
	ChainName string           `json:"chainName,omitempty"`
	Balance   *decimal.Decimal `json:"balance,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// BreakerConfig configures the per-network circuit breakers.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval clears the closed-state counts. Zero never clears.
	Interval time.Duration

	// Timeout is how long a breaker stays open.
	Timeout time.Duration

	// ConsecutiveFailures trips the breaker. Zero disables tripping.
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig is used unless WithBreakerConfig overrides it.
var DefaultBreakerConfig = BreakerConfig{
	MaxRequests:         1,
	Interval:            60 * time.Second,
	Timeout:             30 * time.Second,
	ConsecutiveFailures: 5,
}

// DefaultRetryConfig is used for every RPC read.
var DefaultRetryConfig = retry.Config{
	MaxAttempts:  2,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     time.Second,
	Multiplier:   2.0,
}

// ErrMissingRPCURL is reported for chains without an RPC endpoint.
var ErrMissingRPCURL = errors.New("chain has no RPC URL")

// Aggregator fetches balances across networks.
type Aggregator struct {
	reader  Reader
	enabled bool
	logger  *slog.Logger
	metrics *metrics.Metrics
	retry   retry.Config
	breaker BreakerConfig

	mu         sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker
	generation uint64
	latest     []Info
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator) error

// NewAggregator creates an Aggregator. Without WithReader it reads through
// an evm.ERC20Reader.
func NewAggregator(opts ...AggregatorOption) (*Aggregator, error) {
	a := &Aggregator{
		enabled:  true,
		logger:   slog.Default(),
		retry:    DefaultRetryConfig,
		breaker:  DefaultBreakerConfig,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.reader == nil {
		a.reader = evm.NewERC20Reader()
	}
	return a, nil
}

// WithReader sets the token reader.
func WithReader(r Reader) AggregatorOption {
	return func(a *Aggregator) error {
		if r == nil {
			return fmt.Errorf("reader must not be nil")
		}
		a.reader = r
		return nil
	}
}

// WithEnabled turns balance reads on or off. A disabled aggregator returns
// nil without touching the network.
func WithEnabled(enabled bool) AggregatorOption {
	return func(a *Aggregator) error {
		a.enabled = enabled
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) error {
		if logger != nil {
			a.logger = logger
		}
		return nil
	}
}

// WithMetrics records balance reads on m.
func WithMetrics(m *metrics.Metrics) AggregatorOption {
	return func(a *Aggregator) error {
		a.metrics = m
		return nil
	}
}

// WithRetry sets the retry policy of each RPC read.
func WithRetry(cfg retry.Config) AggregatorOption {
	return func(a *Aggregator) error {
		if cfg.MaxAttempts < 1 {
			return fmt.Errorf("retry max attempts must be at least 1")
		}
		a.retry = cfg
		return nil
	}
}

// WithBreakerConfig sets the circuit breaker policy.
func WithBreakerConfig(cfg BreakerConfig) AggregatorOption {
	return func(a *Aggregator) error {
		a.breaker = cfg
		return nil
	}
}

// Enabled reports whether reads are performed.
func (a *Aggregator) Enabled() bool {
	return a.enabled
}

// Fetch returns one Info per requirement, in order. It returns nil when the
// aggregator is disabled or address is empty.
func (a *Aggregator) Fetch(ctx context.Context, reqs []x402.PaymentRequirement, resolve Resolver, address string) []Info {
	if !a.enabled || address == "" {
		return nil
	}

	results := make([]Info, len(reqs))

	// Errors are recorded per entry; the group never cancels siblings.
	var g errgroup.Group
	for i := range reqs {
		req := &reqs[i]
		chain, ok := resolve(req)
		if !ok {
			results[i] = Info{Network: req.Network, Error: x402.MessageMissingChainConfig}
			continue
		}
		g.Go(func() error {
			results[i] = a.fetchOne(ctx, req, chain, address)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Refresh runs Fetch and stores the result unless a newer Refresh started
// in the meantime. It returns the stored result.
func (a *Aggregator) Refresh(ctx context.Context, reqs []x402.PaymentRequirement, resolve Resolver, address string) []Info {
	a.mu.Lock()
	a.generation++
	generation := a.generation
	a.mu.Unlock()

	infos := a.Fetch(ctx, reqs, resolve, address)

	a.mu.Lock()
	defer a.mu.Unlock()
	if generation != a.generation {
		a.logger.Debug("discarding superseded balance refresh", "generation", generation)
		return a.latest
	}
	a.latest = infos
	return infos
}

// Latest returns the result of the newest completed Refresh.
func (a *Aggregator) Latest() []Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

// Close releases the reader's connections.
func (a *Aggregator) Close() {
	if c, ok := a.reader.(interface{ Close() }); ok {
		c.Close()
	}
}

func (a *Aggregator) fetchOne(ctx context.Context, req *x402.PaymentRequirement, chain x402.ChainConfig, address string) Info {
	info := Info{Network: req.Network, ChainName: chain.Name}
	if info.Network == "" {
		info.Network = chain.Network
	}
	if chain.RPCURL == "" {
		info.Error = ErrMissingRPCURL.Error()
		return info
	}
	token := req.Asset
	if token == "" {
		token = chain.AssetAddress
	}

	start := time.Now()
	var raw *big.Int
	var decimals uint8

	var g errgroup.Group
	g.Go(func() error {
		var err error
		raw, err = guarded(ctx, a, chain.Network, func() (*big.Int, error) {
			return a.reader.BalanceOf(ctx, chain.RPCURL, token, address)
		})
		return err
	})
	g.Go(func() error {
		var err error
		decimals, err = guarded(ctx, a, chain.Network, func() (uint8, error) {
			return a.reader.Decimals(ctx, chain.RPCURL, token)
		})
		return err
	})
	err := g.Wait()
	a.metrics.ObserveBalanceRead(chain.Network, time.Since(start), err)

	if err != nil {
		a.logger.Warn("balance read failed",
			"network", chain.Network,
			"token", token,
			"error", err)
		info.Error = err.Error()
		return info
	}

	balance := x402.AtomicToDecimal(raw, decimals)
	info.Balance = &balance
	return info
}

// guarded runs fn with retries behind the network's circuit breaker.
func guarded[T any](ctx context.Context, a *Aggregator, network string, fn func() (T, error)) (T, error) {
	var zero T
	v, err := a.breakerFor(network).Execute(func() (interface{}, error) {
		cfg := a.retry
		if cfg.OnRetry == nil {
			cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
				a.logger.Debug("retrying balance read",
					"network", network, "attempt", attempt, "wait", wait, "error", err)
			}
		}
		return retry.WithRetry(ctx, cfg, retry.Always, fn)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%s RPC temporarily unavailable: %w", network, err)
		}
		return zero, err
	}
	return v.(T), nil
}

func (a *Aggregator) breakerFor(network string) *gobreaker.CircuitBreaker {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cb, ok := a.breakers[network]; ok {
		return cb
	}
	cfg := a.breaker
	logger := a.logger
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        network,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("balance circuit breaker state changed",
				"network", name,
				"from", from.String(),
				"to", to.String())
		},
	})
	a.breakers[network] = cb
	return cb
}
