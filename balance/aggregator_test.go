package balance

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mark3labs/x402-paywall"
	"github.com/mark3labs/x402-paywall/metrics"
	"github.com/mark3labs/x402-paywall/retry"
)

const owner = "0x000000000000000000000000000000000000bEEF"

// fakeReader serves balances per RPC URL.
type fakeReader struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	decimals map[string]uint8
	failing  map[string]error
	delay    map[string]time.Duration
	calls    int32
}

func (f *fakeReader) BalanceOf(ctx context.Context, rpcURL, token, addr string) (*big.Int, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	delay, err, v := f.delay[rpcURL], f.failing[rpcURL], f.balances[rpcURL]
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (f *fakeReader) Decimals(ctx context.Context, rpcURL, token string) (uint8, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decimals[rpcURL], nil
}

func testChains() map[string]x402.ChainConfig {
	return map[string]x402.ChainConfig{
		"eip155:8453":  {Network: "eip155:8453", ChainID: 8453, Name: "Base", RPCURL: "base", AssetAddress: "0xA"},
		"eip155:84532": {Network: "eip155:84532", ChainID: 84532, Name: "Base Sepolia", RPCURL: "sepolia", AssetAddress: "0xB"},
	}
}

func resolver(chains map[string]x402.ChainConfig) Resolver {
	return func(req *x402.PaymentRequirement) (x402.ChainConfig, bool) {
		c, ok := chains[req.Network]
		return c, ok
	}
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func newTestAggregator(t *testing.T, reader Reader, opts ...AggregatorOption) *Aggregator {
	t.Helper()
	a, err := NewAggregator(append([]AggregatorOption{WithReader(reader), WithRetry(fastRetry())}, opts...)...)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return a
}

func TestFetch_IsolatesFailures(t *testing.T) {
	reader := &fakeReader{
		balances: map[string]*big.Int{"base": big.NewInt(12_340_000)},
		decimals: map[string]uint8{"base": 6, "sepolia": 6},
		failing:  map[string]error{"sepolia": errors.New("connection refused")},
	}
	m := metrics.New(prometheus.NewRegistry())
	a := newTestAggregator(t, reader, WithMetrics(m))

	reqs := []x402.PaymentRequirement{
		{Network: "eip155:8453", Asset: "0xA"},
		{Network: "eip155:1"},
		{Network: "eip155:84532", Asset: "0xB"},
	}
	infos := a.Fetch(context.Background(), reqs, resolver(testChains()), owner)

	if len(infos) != 3 {
		t.Fatalf("got %d entries, want 3", len(infos))
	}
	for i, info := range infos {
		if info.Network != reqs[i].Network {
			t.Errorf("entry %d network = %s, want %s", i, info.Network, reqs[i].Network)
		}
	}

	if infos[0].Error != "" || infos[0].Balance == nil || infos[0].Balance.String() != "12.34" {
		t.Errorf("base entry = %+v", infos[0])
	}
	if infos[0].ChainName != "Base" {
		t.Errorf("chain name = %q", infos[0].ChainName)
	}
	if infos[1].Error != x402.MessageMissingChainConfig || infos[1].Balance != nil {
		t.Errorf("unresolved entry = %+v", infos[1])
	}
	if infos[2].Balance != nil || infos[2].Error == "" {
		t.Errorf("failing entry = %+v", infos[2])
	}

	// The unresolved entry made no calls: two reads per resolved entry.
	if n := atomic.LoadInt32(&reader.calls); n != 4 {
		t.Errorf("reader calls = %d, want 4", n)
	}
	if got := promtest.ToFloat64(m.BalanceReadsTotal.WithLabelValues("eip155:84532", "failure")); got != 1 {
		t.Errorf("failure metric = %.0f", got)
	}
}

func TestFetch_Concurrent(t *testing.T) {
	reader := &fakeReader{
		balances: map[string]*big.Int{"base": big.NewInt(1), "sepolia": big.NewInt(2)},
		decimals: map[string]uint8{"base": 6, "sepolia": 6},
		delay:    map[string]time.Duration{"base": 150 * time.Millisecond, "sepolia": 150 * time.Millisecond},
	}
	a := newTestAggregator(t, reader)

	reqs := []x402.PaymentRequirement{{Network: "eip155:8453"}, {Network: "eip155:84532"}}
	start := time.Now()
	infos := a.Fetch(context.Background(), reqs, resolver(testChains()), owner)
	elapsed := time.Since(start)

	if elapsed >= 300*time.Millisecond {
		t.Errorf("reads were serialized: took %v", elapsed)
	}
	for _, info := range infos {
		if info.Balance == nil {
			t.Errorf("missing balance for %s: %s", info.Network, info.Error)
		}
	}
}

func TestFetch_DisabledOrNoAddress(t *testing.T) {
	reqs := []x402.PaymentRequirement{{Network: "eip155:8453"}}

	tests := []struct {
		name    string
		enabled bool
		address string
	}{
		{name: "disabled", enabled: false, address: owner},
		{name: "no address", enabled: true, address: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{}
			a := newTestAggregator(t, reader, WithEnabled(tt.enabled))
			if infos := a.Fetch(context.Background(), reqs, resolver(testChains()), tt.address); infos != nil {
				t.Errorf("expected nil, got %+v", infos)
			}
			if reader.calls != 0 {
				t.Errorf("reader called %d times", reader.calls)
			}
		})
	}
}

func TestFetch_MissingRPCURL(t *testing.T) {
	chains := map[string]x402.ChainConfig{"eip155:8453": {Network: "eip155:8453", ChainID: 8453}}
	reader := &fakeReader{}
	a := newTestAggregator(t, reader)

	infos := a.Fetch(context.Background(), []x402.PaymentRequirement{{Network: "eip155:8453"}}, resolver(chains), owner)
	if infos[0].Error != ErrMissingRPCURL.Error() {
		t.Errorf("entry = %+v", infos[0])
	}
	if reader.calls != 0 {
		t.Error("reader called without an RPC URL")
	}
}

func TestFetch_BreakerOpens(t *testing.T) {
	reader := &fakeReader{
		decimals: map[string]uint8{"base": 6},
		failing:  map[string]error{"base": errors.New("503")},
	}
	a := newTestAggregator(t, reader, WithBreakerConfig(BreakerConfig{
		MaxRequests:         1,
		Timeout:             time.Minute,
		ConsecutiveFailures: 1,
	}))
	reqs := []x402.PaymentRequirement{{Network: "eip155:8453"}}

	a.Fetch(context.Background(), reqs, resolver(testChains()), owner)
	before := atomic.LoadInt32(&reader.calls)

	infos := a.Fetch(context.Background(), reqs, resolver(testChains()), owner)
	if infos[0].Error == "" {
		t.Fatal("expected an error while the breaker is open")
	}
	if after := atomic.LoadInt32(&reader.calls); after != before {
		t.Errorf("open breaker let %d reads through", after-before)
	}
}

func TestRefresh_KeepsNewest(t *testing.T) {
	reader := &fakeReader{
		balances: map[string]*big.Int{"base": big.NewInt(1_000_000), "sepolia": big.NewInt(2_000_000)},
		decimals: map[string]uint8{"base": 6, "sepolia": 6},
		delay:    map[string]time.Duration{"base": 200 * time.Millisecond},
	}
	a := newTestAggregator(t, reader)
	chains := testChains()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Refresh(context.Background(), []x402.PaymentRequirement{{Network: "eip155:8453"}}, resolver(chains), owner)
	}()

	// Let the slow refresh start, then issue a fast one.
	time.Sleep(50 * time.Millisecond)
	newest := a.Refresh(context.Background(), []x402.PaymentRequirement{{Network: "eip155:84532"}}, resolver(chains), owner)
	wg.Wait()

	latest := a.Latest()
	if len(latest) != 1 || latest[0].Network != "eip155:84532" {
		t.Fatalf("latest = %+v, want the newer refresh", latest)
	}
	if newest[0].Balance == nil || newest[0].Balance.String() != "2" {
		t.Errorf("newest = %+v", newest[0])
	}
}
