// Package paywall coordinates the wallet-interactive payment flow: a
// caller-owned Session holds the connection, the status machine and the
// action lock; a Submitter drives one payment at a time through network
// check, signing and HTTP replay.
package paywall

import (
	"strings"
	"sync"

	"github.com/mark3labs/x402-paywall"
)

// Session is the per-user context every paywall call operates on. The
// package holds no global state; each Session owns its lock and status.
type Session struct {
	Wallet x402.Wallet
	Status *StatusMachine
	Lock   *ActionLock

	mu      sync.RWMutex
	address string
	chainID int64
}

// NewSession returns a disconnected session for wallet.
func NewSession(wallet x402.Wallet) *Session {
	return &Session{
		Wallet: wallet,
		Status: NewStatusMachine(),
		Lock:   &ActionLock{},
	}
}

// Address returns the connected account, or "" when disconnected.
func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// ChainID returns the last known active chain id of the wallet.
func (s *Session) ChainID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainID
}

func (s *Session) setAddress(address string) {
	s.mu.Lock()
	s.address = address
	s.mu.Unlock()
}

func (s *Session) setChainID(chainID int64) {
	s.mu.Lock()
	s.chainID = chainID
	s.mu.Unlock()
}

func (s *Session) clear() {
	s.mu.Lock()
	s.address = ""
	s.chainID = 0
	s.mu.Unlock()
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
