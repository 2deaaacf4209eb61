package x402

// X402Version is the protocol version stamped on payment payloads when the
// server did not announce one.
const X402Version = 1

// SchemeExact is the only payment scheme this client signs.
const SchemeExact = "exact"

// PaymentRequirement represents a single payment option from a 402 response.
type PaymentRequirement struct {
	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the CAIP-2 network identifier (e.g., "eip155:8453").
	Network string `json:"network"`

	// MaxAmountRequired is the payment amount. Servers usually send atomic
	// units, but human decimals ("0.01") are accepted and normalized.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Asset is the token contract address.
	Asset string `json:"asset"`

	// PayTo is the recipient address for the payment.
	PayTo string `json:"payTo"`

	// Resource is the URL of the protected resource.
	Resource string `json:"resource,omitempty"`

	// Description is an optional human-readable payment description.
	Description string `json:"description,omitempty"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType,omitempty"`

	// MaxTimeoutSeconds is the validity period for the payment authorization.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Extra contains scheme-specific additional data. For the exact scheme it
	// carries the EIP-712 domain "name" and "version" of the asset contract.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// DomainName returns extra.name, the EIP-712 domain name of the asset.
func (r *PaymentRequirement) DomainName() string {
	return r.extraString("name")
}

// DomainVersion returns extra.version, the EIP-712 domain version of the asset.
func (r *PaymentRequirement) DomainVersion() string {
	return r.extraString("version")
}

func (r *PaymentRequirement) extraString(key string) string {
	if r == nil || r.Extra == nil {
		return ""
	}
	v, ok := r.Extra[key].(string)
	if !ok {
		return ""
	}
	return v
}

// PaymentRequired represents the complete 402 response body.
type PaymentRequired struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// Error is a human-readable error message.
	Error string `json:"error,omitempty"`

	// Accepts is an array of payment options the server will accept.
	Accepts []PaymentRequirement `json:"accepts"`

	// Resource optionally describes the protected resource.
	Resource *ResourceInfo `json:"resource,omitempty"`
}

// ResourceInfo describes the resource a 402 response protects.
type ResourceInfo struct {
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentPayload represents a signed payment that will be sent to the server.
type PaymentPayload struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier.
	Network string `json:"network"`

	// Payload contains the signature and the signed authorization.
	Payload EVMPayload `json:"payload"`
}

// EVMPayload represents an EVM payment with EIP-3009 authorization.
type EVMPayload struct {
	// Signature is the hex-encoded ECDSA signature.
	Signature string `json:"signature"`

	// Authorization contains the EIP-3009 transferWithAuthorization parameters.
	Authorization EVMAuthorization `json:"authorization"`
}

// EVMAuthorization represents EIP-3009 transferWithAuthorization parameters.
// Numeric fields are decimal strings.
type EVMAuthorization struct {
	// From is the payer's address.
	From string `json:"from"`

	// To is the recipient's address.
	To string `json:"to"`

	// Value is the payment amount in atomic units.
	Value string `json:"value"`

	// ValidAfter is the unix timestamp after which the authorization is valid.
	ValidAfter string `json:"validAfter"`

	// ValidBefore is the unix timestamp before which the authorization is valid.
	ValidBefore string `json:"validBefore"`

	// Nonce is a unique 32-byte hex string to prevent replay attacks.
	Nonce string `json:"nonce"`
}

// SettlementResponse represents the server's response after payment settlement.
type SettlementResponse struct {
	// Success indicates whether the payment was successfully settled.
	Success bool `json:"success"`

	// ErrorReason provides details if the payment failed.
	ErrorReason string `json:"errorReason,omitempty"`

	// Transaction is the blockchain transaction hash.
	Transaction string `json:"transaction,omitempty"`

	// Network is the blockchain network where the payment was settled.
	Network string `json:"network"`

	// Payer is the address that made the payment.
	Payer string `json:"payer"`
}

// ResolvedPaymentContext is the derived, per-attempt view of a payment:
// the selected requirement, the chain it will be paid on and the amount in
// atomic units. It is recomputed whenever its inputs change.
type ResolvedPaymentContext struct {
	Requirement  *PaymentRequirement
	Chain        ChainConfig
	AmountAtomic string
}

// Resolve builds a ResolvedPaymentContext. ok is false when no chain can be
// resolved or the amount does not normalize.
func Resolve(req *PaymentRequirement, single *ChainConfig, chains map[string]ChainConfig) (ResolvedPaymentContext, bool) {
	if req == nil {
		return ResolvedPaymentContext{}, false
	}
	chain, ok := ResolveChain(req, single, chains)
	if !ok {
		return ResolvedPaymentContext{}, false
	}
	amount, ok := ToAtomic(req.MaxAmountRequired)
	if !ok {
		return ResolvedPaymentContext{}, false
	}
	return ResolvedPaymentContext{
		Requirement:  req,
		Chain:        chain,
		AmountAtomic: amount,
	}, true
}
