package x402

import "strings"

// SelectRequirement returns the requirement at index. An index outside
// [0, len) falls back to the first requirement; an empty list yields nil.
func SelectRequirement(requirements []PaymentRequirement, index int) *PaymentRequirement {
	if len(requirements) == 0 {
		return nil
	}
	if index < 0 || index >= len(requirements) {
		index = 0
	}
	return &requirements[index]
}

// PayableIndex returns the index of the first requirement the client can
// pay: exact scheme on an EVM network with a resolvable chain. It returns
// fallback when none qualifies.
func PayableIndex(requirements []PaymentRequirement, single *ChainConfig, chains map[string]ChainConfig, fallback int) int {
	for i := range requirements {
		req := &requirements[i]
		if req.Scheme != "" && req.Scheme != SchemeExact {
			continue
		}
		if !strings.HasPrefix(req.Network, eip155Prefix) {
			continue
		}
		if _, ok := ResolveChain(req, single, chains); ok {
			return i
		}
	}
	return fallback
}
