package paywall

import (
	"context"
	"fmt"

	"github.com/mark3labs/x402-paywall"
)

// Messages shown for connection failures.
const (
	MessageConnectRejected = "Wallet connection was rejected."
	MessageConnectFailed   = "Failed to connect wallet."
	MessageNoAccounts      = "No accounts returned by the wallet."
)

// Connect asks the wallet for its accounts and moves the session to
// StatusConnected. A connect supersedes any in-flight action. A wallet that
// reports it is already connected counts as success.
func Connect(ctx context.Context, s *Session) error {
	s.Lock.Reset()
	token, _ := s.Lock.Begin()
	defer s.Lock.End(token)

	accounts, err := s.Wallet.RequestAccounts(ctx)
	if s.Lock.IsStale(token) {
		return nil
	}
	if err != nil {
		if x402.IsAlreadyConnected(err) {
			s.Status.Connected()
			return nil
		}
		message := MessageConnectFailed
		code := x402.ErrCodeConfiguration
		if x402.IsUserRejection(err) {
			message = MessageConnectRejected
			code = x402.ErrCodeUserRejected
		}
		s.Status.Failed(message)
		return x402.NewPaymentError(code, message, err)
	}
	if len(accounts) == 0 || accounts[0] == "" {
		s.Status.Failed(MessageNoAccounts)
		return x402.NewPaymentError(x402.ErrCodeConfiguration, MessageNoAccounts, x402.ErrWalletNotConnected)
	}
	s.setAddress(accounts[0])

	chainID, err := s.Wallet.ChainID(ctx)
	if s.Lock.IsStale(token) {
		return nil
	}
	if err != nil {
		s.Status.Failed(MessageConnectFailed)
		return x402.NewPaymentError(x402.ErrCodeConfiguration, MessageConnectFailed, fmt.Errorf("read chain id: %w", err))
	}
	s.setChainID(chainID)

	s.Status.Connected()
	return nil
}

// Disconnect clears the session, invalidates any in-flight action and
// returns the status to StatusConnect. Wallets that keep their own
// connection state are disconnected as well.
func Disconnect(s *Session) {
	s.Lock.Reset()
	s.clear()
	s.Status.Reset()
	if d, ok := s.Wallet.(interface{ Disconnect() }); ok {
		d.Disconnect()
	}
}

// Watch applies wallet account and chain events to s until the returned
// function is called.
func Watch(s *Session, events x402.WalletEvents) (stop func()) {
	stopAccounts := events.OnAccountsChanged(func(accounts []string) {
		applyAccounts(s, accounts)
	})
	stopChain := events.OnChainChanged(func(chainID int64) {
		s.setChainID(chainID)
	})
	return func() {
		stopAccounts()
		stopChain()
	}
}

// applyAccounts resets the session when the wallet drops every account and
// invalidates in-flight actions when the active account changes.
func applyAccounts(s *Session, accounts []string) {
	if len(accounts) == 0 || accounts[0] == "" {
		s.Lock.Reset()
		s.clear()
		s.Status.Reset()
		return
	}

	previous := s.Address()
	if sameAddress(previous, accounts[0]) {
		return
	}
	// Without a previous address nothing paid can be in flight; a Connect
	// that triggered this event keeps its token.
	if previous != "" {
		s.Lock.Reset()
	}
	s.setAddress(accounts[0])
	if previous == "" {
		s.Status.Connected()
	} else if state := s.Status.State(); state.Status == StatusProcessing {
		s.Status.Connected()
	}
}
