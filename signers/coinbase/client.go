package coinbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mark3labs/x402-paywall/retry"
)

// DefaultBaseURL is the CDP REST API base URL.
const DefaultBaseURL = "https://" + apiHost

// cdpAuth is implemented by CDPAuth; tests substitute a fake.
type cdpAuth interface {
	GenerateBearerToken(method, path string) (string, error)
	GenerateWalletAuthToken(method, path string, body []byte) (string, error)
}

// CDPClient calls the CDP REST API with authentication, error
// classification and retries for rate limits and server errors. It is safe
// for concurrent use.
type CDPClient struct {
	baseURL     string
	httpClient  *http.Client
	auth        cdpAuth
	retryConfig retry.Config
}

// NewCDPClient creates a client for the production API.
func NewCDPClient(auth cdpAuth) *CDPClient {
	return &CDPClient{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		auth: auth,
		retryConfig: retry.Config{
			MaxAttempts:  5,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			DelayHint:    retryAfter,
		},
	}
}

// do executes one logical request, retrying transient failures.
func (c *CDPClient) do(ctx context.Context, method, path string, body, result interface{}, walletAuth bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	_, err := retry.WithRetry(ctx, c.retryConfig, isRetryable, func() (struct{}, error) {
		return struct{}{}, c.doOnce(ctx, method, path, payload, result, walletAuth)
	})
	return err
}

func (c *CDPClient) doOnce(ctx context.Context, method, path string, payload []byte, result interface{}, walletAuth bool) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	token, err := c.auth.GenerateBearerToken(method, path)
	if err != nil {
		return fmt.Errorf("generate JWT: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	if walletAuth {
		walletToken, err := c.auth.GenerateWalletAuthToken(method, path, payload)
		if err != nil {
			return fmt.Errorf("generate wallet auth JWT: %w", err)
		}
		req.Header.Set("X-Wallet-Auth", walletToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyError(resp, method, path)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// classifyError builds a CDPError from a non-2xx response:
// 429 and 5xx are retryable, 401/403 are auth errors, other 4xx client errors.
func classifyError(resp *http.Response, method, path string) error {
	cdpErr := &CDPError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-ID"),
		Method:     method,
		Path:       path,
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	cdpErr.Message = errorMessage(body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		cdpErr.ErrorType = ErrorTypeRateLimit
		cdpErr.Retryable = true
		cdpErr.RetryAfter = parseRetryAfter(resp)
		if cdpErr.Message == "" {
			cdpErr.Message = "Rate limit exceeded"
		}
	case resp.StatusCode >= 500:
		cdpErr.ErrorType = ErrorTypeServerError
		cdpErr.Retryable = true
		if cdpErr.Message == "" {
			cdpErr.Message = "CDP server error"
		}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		cdpErr.ErrorType = ErrorTypeAuthError
		if cdpErr.Message == "" {
			cdpErr.Message = "Authentication failed - check API credentials"
		}
	default:
		cdpErr.ErrorType = ErrorTypeClientError
		if cdpErr.Message == "" {
			cdpErr.Message = "Invalid request parameters"
		}
	}

	return cdpErr
}

// errorMessage prefers the errorMessage field of a CDP error body.
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var parsed struct {
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.ErrorMessage != "" {
		return parsed.ErrorMessage
	}
	return string(body)
}

// parseRetryAfter reads Retry-After as seconds or an HTTP date, defaulting
// to one second.
func parseRetryAfter(resp *http.Response) time.Duration {
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return time.Second
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return time.Second
}
