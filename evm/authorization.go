// Package evm builds and validates the EIP-712 typed data of an EIP-3009
// transferWithAuthorization, signs it with local keys, and reads ERC-20
// balances over JSON-RPC.
package evm

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/x402-paywall"
)

const (
	// ClockSkewTolerance is subtracted from now for validAfter so a client
	// clock running ahead of the server does not produce a not-yet-valid
	// authorization.
	ClockSkewTolerance = 600 * time.Second

	// DefaultValiditySeconds is used when a requirement has no timeout.
	DefaultValiditySeconds = 3600
)

// Authorization represents the parameters for EIP-3009 transferWithAuthorization.
type Authorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       common.Hash
}

// NewAuthorization creates an authorization valid from now-600s until
// now+timeoutSeconds (3600 when timeoutSeconds is not positive), with a
// fresh random nonce.
func NewAuthorization(from, to common.Address, value *big.Int, timeoutSeconds int, now time.Time) (*Authorization, error) {
	nonce, err := GenerateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	if timeoutSeconds <= 0 {
		timeoutSeconds = DefaultValiditySeconds
	}

	unix := now.Unix()
	return &Authorization{
		From:        from,
		To:          to,
		Value:       new(big.Int).Set(value),
		ValidAfter:  big.NewInt(unix - int64(ClockSkewTolerance/time.Second)),
		ValidBefore: big.NewInt(unix + int64(timeoutSeconds)),
		Nonce:       nonce,
	}, nil
}

// Payload returns the wire form of the authorization: addresses in
// checksum hex, numbers as decimal strings.
func (a *Authorization) Payload() x402.EVMAuthorization {
	return x402.EVMAuthorization{
		From:        a.From.Hex(),
		To:          a.To.Hex(),
		Value:       a.Value.String(),
		ValidAfter:  a.ValidAfter.String(),
		ValidBefore: a.ValidBefore.String(),
		Nonce:       a.Nonce.Hex(),
	}
}

// GenerateNonce generates a cryptographically secure 32-byte random nonce.
func GenerateNonce() (common.Hash, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(nonce[:]), nil
}
