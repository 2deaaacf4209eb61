package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/x402-paywall"
)

// Payment is a signed payment ready to be attached to a replayed request.
type Payment struct {
	// Header is the base64 JSON payment header value.
	Header string

	// Requirement is the requirement the payment satisfies.
	Requirement *x402.PaymentRequirement

	// Payer is the signing wallet address.
	Payer string
}

// Payer signs a payment for the requirements of a 402 response.
type Payer interface {
	Pay(ctx context.Context, required *x402.PaymentRequired) (*Payment, error)
}

// PayerFunc adapts a function to the Payer interface.
type PayerFunc func(ctx context.Context, required *x402.PaymentRequired) (*Payment, error)

// Pay implements Payer.
func (f PayerFunc) Pay(ctx context.Context, required *x402.PaymentRequired) (*Payment, error) {
	return f(ctx, required)
}

// X402Transport is a custom RoundTripper that handles x402 payment flows.
// It wraps an existing http.RoundTripper and automatically handles 402 Payment Required responses.
type X402Transport struct {
	// Base is the underlying RoundTripper (typically http.DefaultTransport).
	Base http.RoundTripper

	// Payer signs payments. Without one, 402 responses are returned as is.
	Payer Payer

	// Logger receives payment flow logs; nil means slog.Default().
	Logger *slog.Logger

	// OnPaymentAttempt is called when a payment attempt is made.
	OnPaymentAttempt x402.PaymentCallback

	// OnPaymentSuccess is called when a payment succeeds.
	OnPaymentSuccess x402.PaymentCallback

	// OnPaymentFailure is called when a payment fails.
	OnPaymentFailure x402.PaymentCallback
}

// RoundTrip implements http.RoundTripper.
// It makes the initial request, and if a 402 Payment Required response with
// readable requirements is received, it pays and replays the request once.
func (t *X402Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	body, err := BufferBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := base.RoundTrip(cloneWithBody(req, body))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired || t.Payer == nil {
		return resp, nil
	}

	required := ParsePaymentRequired(resp)
	if required == nil {
		t.logger().Warn("402 response without readable payment requirements", "url", req.URL.String())
		return resp, nil
	}
	resp.Body.Close()

	startTime := time.Now()
	payment, err := t.Payer.Pay(req.Context(), required)
	if err != nil {
		t.fail(req, nil, err, startTime)
		return nil, err
	}

	t.emit(t.OnPaymentAttempt, x402.PaymentEvent{
		Type:      x402.PaymentEventAttempt,
		Timestamp: startTime,
	}, req, payment)

	paidResp, err := base.RoundTrip(PaidRequest(req, body, payment.Header))
	if err != nil {
		t.fail(req, payment, err, startTime)
		return nil, x402.NewPaymentError(x402.ErrCodeSubmissionFailed, "payment submission failed", err)
	}

	if paidResp.StatusCode >= 200 && paidResp.StatusCode < 300 {
		event := x402.PaymentEvent{
			Type:      x402.PaymentEventSuccess,
			Timestamp: time.Now(),
			Duration:  time.Since(startTime),
		}
		if settlement := GetSettlement(paidResp); settlement != nil && settlement.Payer != "" {
			event.Payer = settlement.Payer
		}
		t.emit(t.OnPaymentSuccess, event, req, payment)
	} else {
		t.fail(req, payment, x402.ErrVerificationFailed, startTime)
	}

	return paidResp, nil
}

func (t *X402Transport) fail(req *http.Request, payment *Payment, err error, startTime time.Time) {
	t.logger().Error("x402 payment failed", "url", req.URL.String(), "error", err)
	t.emit(t.OnPaymentFailure, x402.PaymentEvent{
		Type:      x402.PaymentEventFailure,
		Timestamp: time.Now(),
		Error:     err,
		Duration:  time.Since(startTime),
	}, req, payment)
}

func (t *X402Transport) emit(callback x402.PaymentCallback, event x402.PaymentEvent, req *http.Request, payment *Payment) {
	if callback == nil {
		return
	}
	event.URL = req.URL.String()
	if payment != nil {
		if event.Payer == "" {
			event.Payer = payment.Payer
		}
		if r := payment.Requirement; r != nil {
			event.Network = r.Network
			event.Scheme = r.Scheme
			event.Amount = r.MaxAmountRequired
			event.Asset = r.Asset
			event.Recipient = r.PayTo
		}
	}
	callback(event)
}

func (t *X402Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
