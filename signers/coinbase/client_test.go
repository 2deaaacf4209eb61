package coinbase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/x402-paywall/retry"
)

// mockCDPAuth returns fixed tokens.
type mockCDPAuth struct{}

func (m *mockCDPAuth) GenerateBearerToken(method, path string) (string, error) {
	return "mock-bearer-token", nil
}

func (m *mockCDPAuth) GenerateWalletAuthToken(method, path string, body []byte) (string, error) {
	return "mock-wallet-token", nil
}

func newTestClient(baseURL string) *CDPClient {
	client := NewCDPClient(&mockCDPAuth{})
	client.baseURL = baseURL
	client.retryConfig = retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
	return client
}

func TestCDPClient_Headers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer mock-bearer-token" {
			t.Errorf("Authorization = %q", got)
		}
		wantWallet := ""
		if r.Method == http.MethodPost {
			wantWallet = "mock-wallet-token"
		}
		if got := r.Header.Get("X-Wallet-Auth"); got != wantWallet {
			t.Errorf("X-Wallet-Auth = %q, want %q", got, wantWallet)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"address":"0x000000000000000000000000000000000000dEaD"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	var account CDPAccount
	if err := client.do(context.Background(), "GET", "/x", nil, &account, false); err != nil {
		t.Fatalf("GET: %v", err)
	}
	if err := client.do(context.Background(), "POST", "/x", map[string]string{"a": "b"}, &account, true); err != nil {
		t.Fatalf("POST: %v", err)
	}
	if account.Address == "" {
		t.Error("expected decoded response")
	}
}

func TestCDPClient_Retries(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantCalls int32
		wantErr   string
	}{
		{name: "server error then success", statuses: []int{500, 200}, wantCalls: 2},
		{name: "rate limited then success", statuses: []int{429, 200}, wantCalls: 2},
		{name: "unauthorized is final", statuses: []int{401}, wantCalls: 1, wantErr: ErrorTypeAuthError},
		{name: "bad request is final", statuses: []int{400}, wantCalls: 1, wantErr: ErrorTypeClientError},
		{name: "retries exhausted", statuses: []int{503, 503, 503}, wantCalls: 3, wantErr: ErrorTypeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				status := tt.statuses[len(tt.statuses)-1]
				if int(n) <= len(tt.statuses) {
					status = tt.statuses[n-1]
				}
				if status == http.StatusTooManyRequests {
					w.Header().Set("Retry-After", "0")
				}
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{}`))
			}))
			defer server.Close()

			err := newTestClient(server.URL).do(context.Background(), "GET", "/x", nil, nil, false)

			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var cdpErr *CDPError
			if !errors.As(err, &cdpErr) {
				t.Fatalf("expected CDPError, got %v", err)
			}
			if cdpErr.ErrorType != tt.wantErr {
				t.Errorf("ErrorType = %s, want %s", cdpErr.ErrorType, tt.wantErr)
			}
		})
	}
}

func TestClassifyError_Message(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", "req-123")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorType":"invalid_request","errorMessage":"name already taken"}`))
	}))
	defer server.Close()

	err := newTestClient(server.URL).do(context.Background(), "POST", "/x", nil, nil, false)
	var cdpErr *CDPError
	if !errors.As(err, &cdpErr) {
		t.Fatalf("expected CDPError, got %v", err)
	}
	if cdpErr.Message != "name already taken" {
		t.Errorf("Message = %q", cdpErr.Message)
	}
	if cdpErr.RequestID != "req-123" {
		t.Errorf("RequestID = %q", cdpErr.RequestID)
	}
	if cdpErr.Retryable {
		t.Error("400 should not be retryable")
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"missing", "", time.Second},
		{"seconds", "3", 3 * time.Second},
		{"zero", "0", 0},
		{"garbage", "soon", time.Second},
		{"past date", "Mon, 02 Jan 2006 15:04:05 GMT", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.header != "" {
				resp.Header.Set("Retry-After", tt.header)
			}
			if got := parseRetryAfter(resp); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}
