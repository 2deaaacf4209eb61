package x402

import "sync"

// EventHub is a WalletEvents implementation that wallets embed to fan out
// account and chain changes to registered handlers. Handlers run
// synchronously on the emitting goroutine.
type EventHub struct {
	mu       sync.Mutex
	nextID   int
	accounts map[int]func([]string)
	chains   map[int]func(int64)
}

// OnAccountsChanged registers handler and returns its unsubscribe func.
func (h *EventHub) OnAccountsChanged(handler func(accounts []string)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.accounts == nil {
		h.accounts = make(map[int]func([]string))
	}
	id := h.nextID
	h.nextID++
	h.accounts[id] = handler
	return func() {
		h.mu.Lock()
		delete(h.accounts, id)
		h.mu.Unlock()
	}
}

// OnChainChanged registers handler and returns its unsubscribe func.
func (h *EventHub) OnChainChanged(handler func(chainID int64)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.chains == nil {
		h.chains = make(map[int]func(int64))
	}
	id := h.nextID
	h.nextID++
	h.chains[id] = handler
	return func() {
		h.mu.Lock()
		delete(h.chains, id)
		h.mu.Unlock()
	}
}

// EmitAccountsChanged notifies every account handler.
func (h *EventHub) EmitAccountsChanged(accounts []string) {
	h.mu.Lock()
	handlers := make([]func([]string), 0, len(h.accounts))
	for _, fn := range h.accounts {
		handlers = append(handlers, fn)
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(accounts)
	}
}

// EmitChainChanged notifies every chain handler.
func (h *EventHub) EmitChainChanged(chainID int64) {
	h.mu.Lock()
	handlers := make([]func(int64), 0, len(h.chains))
	for _, fn := range h.chains {
		handlers = append(handlers, fn)
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(chainID)
	}
}
