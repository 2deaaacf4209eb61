// Package encoding provides utilities for encoding and decoding x402 payment data.
// It handles base64 and JSON marshaling for payment payloads, settlements, and requirements.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/x402-paywall"
)

// EncodePayment converts a PaymentPayload to a base64-encoded JSON string,
// the value of the PAYMENT-SIGNATURE request headers.
func EncodePayment(payment x402.PaymentPayload) (string, error) {
	return encode(payment, "payment")
}

// DecodePayment converts a base64-encoded JSON string to PaymentPayload.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	return decode[x402.PaymentPayload](encoded, "payment")
}

// EncodeSettlement converts a SettlementResponse to base64-encoded JSON.
// This is the X-PAYMENT-RESPONSE header value.
func EncodeSettlement(settlement x402.SettlementResponse) (string, error) {
	return encode(settlement, "settlement")
}

// DecodeSettlement converts a base64-encoded JSON string to SettlementResponse.
func DecodeSettlement(encoded string) (x402.SettlementResponse, error) {
	return decode[x402.SettlementResponse](encoded, "settlement")
}

// EncodeRequirements converts a PaymentRequired body to base64-encoded JSON,
// as carried by the PAYMENT response header of a 402.
func EncodeRequirements(requirements x402.PaymentRequired) (string, error) {
	return encode(requirements, "requirements")
}

// DecodeRequirements converts base64-encoded JSON to PaymentRequired.
//
// A value that decodes but lists no accepted requirement is rejected with
// x402.ErrInvalidRequirements.
func DecodeRequirements(encoded string) (x402.PaymentRequired, error) {
	requirements, err := decode[x402.PaymentRequired](encoded, "requirements")
	if err != nil {
		return requirements, err
	}
	if len(requirements.Accepts) == 0 {
		return requirements, fmt.Errorf("%w: no accepted payment options", x402.ErrInvalidRequirements)
	}
	return requirements, nil
}

func encode(v any, what string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", what, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// decode accepts standard and URL-safe base64, padded or not; servers in the
// wild emit all four.
func decode[T any](encoded string, what string) (T, error) {
	var v T

	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return v, fmt.Errorf("%w: empty %s", x402.ErrMalformedHeader, what)
	}

	data, err := decodeBase64(encoded)
	if err != nil {
		return v, fmt.Errorf("%w: failed to decode base64: %v", x402.ErrMalformedHeader, err)
	}

	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: failed to unmarshal %s: %v", x402.ErrMalformedHeader, what, err)
	}
	return v, nil
}

func decodeBase64(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
