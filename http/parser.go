package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mark3labs/x402-paywall"
	"github.com/mark3labs/x402-paywall/encoding"
)

// Header names used by the x402 exchange.
const (
	// HeaderPayment carries base64 JSON requirements on a 402 response.
	HeaderPayment = "PAYMENT"

	// HeaderXPayment is the legacy name of HeaderPayment.
	HeaderXPayment = "X-PAYMENT"

	// HeaderPaymentSignature carries the signed payment on the replayed request.
	HeaderPaymentSignature = "PAYMENT-SIGNATURE"

	// HeaderXPaymentSignature is the legacy name of HeaderPaymentSignature.
	// Both are always sent.
	HeaderXPaymentSignature = "X-PAYMENT-SIGNATURE"

	// HeaderPaymentResponse carries the base64 JSON settlement on success.
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

// maxBodySize bounds how much of a response body is buffered.
const maxBodySize = 10 << 20

// ParsePaymentRequired extracts the payment requirements of a 402
// response. It returns nil when nothing decodable is present; callers treat
// that as "no payment requirement available". The response body stays
// readable.
func ParsePaymentRequired(resp *http.Response) *x402.PaymentRequired {
	required, err := parsePaymentRequired(resp)
	if err != nil {
		return nil
	}
	return required
}

// parsePaymentRequired tries, in order: the PAYMENT header, the X-PAYMENT
// header, a JSON body with a paymentRequired field, and the body itself.
func parsePaymentRequired(resp *http.Response) (*x402.PaymentRequired, error) {
	if resp == nil {
		return nil, x402.ErrNoRequirement
	}

	var headerErr error
	for _, name := range []string{HeaderPayment, HeaderXPayment} {
		value := resp.Header.Get(name)
		if value == "" {
			continue
		}
		required, err := encoding.DecodeRequirements(value)
		if err == nil {
			return &required, nil
		}
		if headerErr == nil {
			headerErr = fmt.Errorf("%s header: %w", name, err)
		}
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if required, ok := requirementsFromBody(body); ok {
		return required, nil
	}

	if headerErr != nil {
		return nil, headerErr
	}
	return nil, x402.ErrNoRequirement
}

func requirementsFromBody(body []byte) (*x402.PaymentRequired, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, false
	}

	var wrapped struct {
		PaymentRequired *x402.PaymentRequired `json:"paymentRequired"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil &&
		wrapped.PaymentRequired != nil && len(wrapped.PaymentRequired.Accepts) > 0 {
		return wrapped.PaymentRequired, true
	}

	var direct x402.PaymentRequired
	if err := json.Unmarshal(body, &direct); err == nil && len(direct.Accepts) > 0 {
		return &direct, true
	}
	return nil, false
}

// readBody drains resp.Body and replaces it with a re-readable copy.
func readBody(resp *http.Response) ([]byte, error) {
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// ReadResult reads a successful response body: decoded JSON when the body
// parses as JSON, the raw text otherwise. The response body stays readable.
func ReadResult(resp *http.Response) (any, error) {
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	var data any
	if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &data) == nil {
		return data, nil
	}
	return string(body), nil
}

// ErrorMessage returns the message field of a JSON error body, or fallback.
func ErrorMessage(resp *http.Response, fallback string) string {
	body, err := readBody(resp)
	if err != nil {
		return fallback
	}
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return fallback
	}
	if msg := strings.TrimSpace(parsed.Message); msg != "" {
		return msg
	}
	return fallback
}

// GetSettlement extracts settlement information from an HTTP response.
// Returns nil if no settlement header is present or if parsing fails.
func GetSettlement(resp *http.Response) *x402.SettlementResponse {
	if resp == nil {
		return nil
	}
	value := resp.Header.Get(HeaderPaymentResponse)
	if value == "" {
		return nil
	}
	settlement, err := encoding.DecodeSettlement(value)
	if err != nil {
		return nil
	}
	return &settlement
}
