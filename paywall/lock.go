package paywall

import "sync"

// ActionToken identifies one user-initiated action. Tokens increase
// monotonically; only the most recent one is current.
type ActionToken uint64

// ActionLock admits at most one in-flight action and lets long-running
// continuations detect that they have been superseded. The zero value is
// ready to use.
type ActionLock struct {
	mu      sync.Mutex
	current ActionToken
	held    bool
}

// Begin starts an action. It returns false, and no token, when another
// action is still in flight; the caller must then do nothing.
func (l *ActionLock) Begin() (ActionToken, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return 0, false
	}
	l.current++
	l.held = true
	return l.current, true
}

// End releases the lock held by token. Ending a stale token is a no-op, so
// a superseded action cannot release the lock of the action that replaced it.
func (l *ActionLock) End(token ActionToken) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if token == l.current {
		l.held = false
	}
}

// IsStale reports whether token has been superseded by a later Begin or by
// Reset. Check it after every suspension point.
func (l *ActionLock) IsStale(token ActionToken) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return token != l.current
}

// Reset forcibly releases the lock and invalidates the current token.
func (l *ActionLock) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current++
	l.held = false
}

// Current returns the most recently issued token.
func (l *ActionLock) Current() ActionToken {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Held reports whether an action is in flight.
func (l *ActionLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}
