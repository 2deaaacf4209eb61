package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mark3labs/x402-paywall"
)

// applyEnvOverrides applies X402_* environment variables. Environment
// values take precedence over the YAML file.
func (c *Config) applyEnvOverrides() error {
	setIfEnv(&c.Network, "X402_NETWORK")

	setIfEnv(&c.Wallet.Type, "X402_WALLET_TYPE")
	setIfEnv(&c.Wallet.PrivateKey, "X402_PRIVATE_KEY")
	setIfEnv(&c.Wallet.KeystorePath, "X402_KEYSTORE_PATH")
	setIfEnv(&c.Wallet.KeystorePassword, "X402_KEYSTORE_PASSWORD")
	setIfEnv(&c.Wallet.Mnemonic, "X402_MNEMONIC")
	setIfEnv(&c.Wallet.RPCURL, "X402_WALLET_RPC_URL")
	setIfEnv(&c.Wallet.CoinbaseAccount, "X402_CDP_ACCOUNT")
	setIfEnv(&c.Wallet.MaxAmountPerCall, "X402_MAX_AMOUNT_PER_CALL")
	if v := os.Getenv("X402_ACCOUNT_INDEX"); v != "" {
		index, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("X402_ACCOUNT_INDEX: %w", err)
		}
		c.Wallet.AccountIndex = uint32(index)
	}

	if err := setDurationIfEnv(&c.Client.Timeout, "X402_CLIENT_TIMEOUT"); err != nil {
		return err
	}

	setBoolIfEnv(&c.Balance.Enabled, "X402_BALANCE_ENABLED")
	if err := setDurationIfEnv(&c.Balance.Timeout, "X402_BALANCE_TIMEOUT"); err != nil {
		return err
	}

	setIfEnv(&c.Logging.Level, "X402_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "X402_LOG_FORMAT")
	setIfEnv(&c.Metrics.Address, "X402_METRICS_ADDRESS")

	// X402_RPC_URL_<CHAIN ID> overrides the RPC endpoint of a chain.
	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, "X402_RPC_URL_") || value == "" {
			continue
		}
		network := "eip155:" + strings.TrimPrefix(name, "X402_RPC_URL_")
		chain, ok := c.ChainMap()[network]
		if !ok {
			continue
		}
		chain.RPCURL = value
		if c.Chains == nil {
			c.Chains = make(map[string]x402.ChainConfig)
		}
		c.Chains[network] = chain
	}
	return nil
}

func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv accepts "1" and any case of "true" as true.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

func setDurationIfEnv(target *Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := parseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	target.Duration = d
	return nil
}
