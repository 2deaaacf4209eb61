package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/x402-paywall"
)

// Client is an HTTP client that automatically handles x402 payment flows.
// It wraps a standard http.Client and adds payment handling via a custom RoundTripper.
type Client struct {
	*http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// NewClient creates a new x402-enabled HTTP client.
func NewClient(opts ...ClientOption) (*Client, error) {
	client := &Client{
		Client: &http.Client{Transport: http.DefaultTransport},
	}

	for _, opt := range opts {
		if err := opt(client); err != nil {
			return nil, err
		}
	}

	return client, nil
}

// WithHTTPClient sets a custom underlying HTTP client. Apply it before the
// other options; it replaces the transport chain built so far.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) error {
		if httpClient == nil {
			return fmt.Errorf("http client must not be nil")
		}
		c.Client = httpClient
		if c.Transport == nil {
			c.Transport = http.DefaultTransport
		}
		return nil
	}
}

// WithPayer sets the payer that signs payments for 402 responses.
func WithPayer(payer Payer) ClientOption {
	return func(c *Client) error {
		if payer == nil {
			return fmt.Errorf("payer must not be nil")
		}
		transport(c).Payer = payer
		return nil
	}
}

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		transport(c).Logger = logger
		return nil
	}
}

// WithPaymentCallback sets a callback for a specific payment event type.
func WithPaymentCallback(eventType x402.PaymentEventType, callback x402.PaymentCallback) ClientOption {
	return func(c *Client) error {
		t := transport(c)

		switch eventType {
		case x402.PaymentEventAttempt:
			t.OnPaymentAttempt = callback
		case x402.PaymentEventSuccess:
			t.OnPaymentSuccess = callback
		case x402.PaymentEventFailure:
			t.OnPaymentFailure = callback
		default:
			return fmt.Errorf("unknown payment event type: %s", eventType)
		}

		return nil
	}
}

// WithPaymentCallbacks sets all payment callbacks at once.
// Pass nil for any callback you don't want to set.
func WithPaymentCallbacks(onAttempt, onSuccess, onFailure x402.PaymentCallback) ClientOption {
	return func(c *Client) error {
		t := transport(c)

		if onAttempt != nil {
			t.OnPaymentAttempt = onAttempt
		}
		if onSuccess != nil {
			t.OnPaymentSuccess = onSuccess
		}
		if onFailure != nil {
			t.OnPaymentFailure = onFailure
		}

		return nil
	}
}

// transport returns the client's X402Transport, wrapping the current
// transport in one first if needed.
func transport(c *Client) *X402Transport {
	t, ok := c.Transport.(*X402Transport)
	if !ok {
		t = &X402Transport{Base: c.Transport}
		c.Transport = t
	}
	return t
}
