// Package config loads paywall client settings from a YAML file, optional
// .env files and X402_* environment variables, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/x402-paywall"
)

// Wallet types.
const (
	WalletLocal    = "local"
	WalletKeystore = "keystore"
	WalletMnemonic = "mnemonic"
	WalletRPC      = "rpc"
	WalletCoinbase = "coinbase"
)

// Duration wraps time.Duration for YAML. Values are Go duration strings
// ("30s", "1m") or bare numbers of seconds.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
	parsed, err := parseDuration(value.Value)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err == nil {
		return parsed, nil
	}
	if secs, convErr := time.ParseDuration(raw + "s"); convErr == nil {
		return secs, nil
	}
	return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
}

// Config is the complete client configuration.
type Config struct {
	// Network is the CAIP-2 id of the primary chain. Requirements naming
	// another chain are paid on that chain instead.
	Network string `yaml:"network" validate:"required,startswith=eip155:"`

	// Chains overrides or extends x402.DefaultChains, keyed by network.
	Chains map[string]x402.ChainConfig `yaml:"chains" validate:"dive"`

	Wallet  WalletConfig  `yaml:"wallet"`
	Client  ClientConfig  `yaml:"client"`
	Balance BalanceConfig `yaml:"balance"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// WalletConfig selects and configures the signing wallet.
type WalletConfig struct {
	Type string `yaml:"type" validate:"oneof=local keystore mnemonic rpc coinbase"`

	PrivateKey       string `yaml:"private_key" validate:"required_if=Type local"`
	KeystorePath     string `yaml:"keystore_path" validate:"required_if=Type keystore"`
	KeystorePassword string `yaml:"keystore_password"`
	Mnemonic         string `yaml:"mnemonic" validate:"required_if=Type mnemonic"`
	AccountIndex     uint32 `yaml:"account_index"`

	// RPCURL is the EIP-1193 JSON-RPC endpoint of an external wallet.
	RPCURL string `yaml:"rpc_url" validate:"required_if=Type rpc"`

	// CoinbaseAccount is the CDP account name. Credentials come from
	// CDP_API_KEY_NAME, CDP_API_KEY_SECRET and CDP_WALLET_SECRET.
	CoinbaseAccount string `yaml:"coinbase_account" validate:"required_if=Type coinbase"`

	// MaxAmountPerCall caps every signature of a local wallet, in atomic units.
	MaxAmountPerCall string `yaml:"max_amount_per_call" validate:"omitempty,numeric"`
}

// ClientConfig configures the HTTP side.
type ClientConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// BalanceConfig configures balance reads.
type BalanceConfig struct {
	Enabled     bool     `yaml:"enabled"`
	MaxAttempts int      `yaml:"max_attempts" validate:"gte=1,lte=10"`
	Timeout     Duration `yaml:"timeout"`

	BreakerFailures uint32   `yaml:"breaker_failures"`
	BreakerTimeout  Duration `yaml:"breaker_timeout"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Address
// disables it.
type MetricsConfig struct {
	Address string `yaml:"address" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Network: x402.NetworkBaseSepolia,
		Wallet: WalletConfig{
			Type: WalletLocal,
		},
		Client: ClientConfig{
			Timeout: Duration{Duration: 60 * time.Second},
		},
		Balance: BalanceConfig{
			Enabled:         true,
			MaxAttempts:     2,
			Timeout:         Duration{Duration: 10 * time.Second},
			BreakerFailures: 5,
			BreakerTimeout:  Duration{Duration: 30 * time.Second},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (optional), then envFiles (missing files are skipped),
// applies X402_* overrides and validates the result.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

func loadEnvFiles(files []string) error {
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		// Variables already set in the environment are not overwritten.
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("load env file %s: %w", file, err)
		}
	}
	return nil
}

// ChainMap returns x402.DefaultChains merged with the configured chains.
// Configured entries win; their Network defaults to the map key.
func (c *Config) ChainMap() map[string]x402.ChainConfig {
	chains := make(map[string]x402.ChainConfig, len(x402.DefaultChains)+len(c.Chains))
	for network, chain := range x402.DefaultChains {
		chains[network] = chain
	}
	for network, chain := range c.Chains {
		if chain.Network == "" {
			chain.Network = network
		}
		chains[network] = chain
	}
	return chains
}

// PrimaryChain returns the chain named by Network.
func (c *Config) PrimaryChain() (x402.ChainConfig, bool) {
	chain, ok := c.ChainMap()[c.Network]
	return chain, ok
}

// Logger builds a logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Logging.Level)}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
