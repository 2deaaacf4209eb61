package x402

import "errors"

// Standard x402 paywall error definitions

var (
	// ErrInvalidAmount indicates an amount that does not normalize to atomic units.
	ErrInvalidAmount = errors.New("x402: invalid amount")

	// ErrInvalidRequirements indicates the payment requirements from the server are invalid.
	ErrInvalidRequirements = errors.New("x402: invalid payment requirements")

	// ErrNoRequirement indicates no payment requirement is available.
	ErrNoRequirement = errors.New("x402: no payment requirement available")

	// ErrMissingChainConfig indicates no chain configuration matches the requirement.
	ErrMissingChainConfig = errors.New("x402: missing chain configuration")

	// ErrMissingDomain indicates the requirement lacks extra.name or extra.version.
	ErrMissingDomain = errors.New("x402: missing EIP-712 domain")

	// ErrWalletNotConnected indicates no wallet address is connected.
	ErrWalletNotConnected = errors.New("x402: wallet not connected")

	// ErrUserRejected indicates the user declined a wallet prompt.
	ErrUserRejected = errors.New("x402: user rejected the request")

	// ErrAlreadyConnected indicates a connect attempt on an already connected wallet.
	ErrAlreadyConnected = errors.New("x402: wallet already connected")

	// ErrNetworkSwitch indicates the wallet could not switch to the target chain.
	ErrNetworkSwitch = errors.New("x402: network switch failed")

	// ErrSigningFailed indicates the payment signing operation failed.
	ErrSigningFailed = errors.New("x402: payment signing failed")

	// ErrVerificationFailed indicates the resource server rejected the payment.
	ErrVerificationFailed = errors.New("x402: payment verification failed")

	// ErrInvalidKey indicates an invalid private key.
	ErrInvalidKey = errors.New("x402: invalid private key")

	// ErrInvalidKeystore indicates an invalid or corrupted keystore file.
	ErrInvalidKeystore = errors.New("x402: invalid keystore file")

	// ErrInvalidMnemonic indicates an invalid BIP39 mnemonic phrase.
	ErrInvalidMnemonic = errors.New("x402: invalid mnemonic phrase")

	// ErrAmountExceeded indicates a payment amount above the wallet's per-call limit.
	ErrAmountExceeded = errors.New("x402: payment amount exceeds per-call limit")

	// ErrAccountMismatch indicates a signing request for an account the wallet does not hold.
	ErrAccountMismatch = errors.New("x402: account not managed by wallet")

	// ErrMalformedHeader indicates a payment header that does not decode.
	ErrMalformedHeader = errors.New("x402: malformed payment header")
)

// MessageMissingChainConfig is the user-facing text for a requirement whose
// network has no chain configuration.
const MessageMissingChainConfig = "Missing chain configuration"

// ErrorCode represents payment error codes for programmatic handling.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates missing chain config, requirement fields
	// or EIP-712 domain. Never retried automatically.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeUserRejected indicates the user declined a wallet prompt.
	ErrCodeUserRejected ErrorCode = "USER_REJECTED"

	// ErrCodeNetworkSwitch indicates the wallet could not switch chains.
	ErrCodeNetworkSwitch ErrorCode = "NETWORK_SWITCH_FAILED"

	// ErrCodeSigningFailed indicates signing failed for another reason.
	ErrCodeSigningFailed ErrorCode = "SIGNING_FAILED"

	// ErrCodeSubmissionFailed indicates a non-2xx response or transport failure.
	ErrCodeSubmissionFailed ErrorCode = "SUBMISSION_FAILED"

	// ErrCodeInvalidRequirements indicates invalid server requirements.
	ErrCodeInvalidRequirements ErrorCode = "INVALID_REQUIREMENTS"
)

// PaymentError provides structured error information. Message is the
// user-facing text; Err keeps the underlying cause.
type PaymentError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError with the given code and message.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds additional context to the error.
func (e *PaymentError) WithDetails(key string, value interface{}) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrorMessage returns the user-facing message of err: the Message of a
// PaymentError when there is one, otherwise err.Error(), otherwise fallback.
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var pe *PaymentError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
