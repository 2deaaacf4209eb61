package paywall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/x402-paywall"
	"github.com/mark3labs/x402-paywall/encoding"
	"github.com/mark3labs/x402-paywall/evm"
	x402http "github.com/mark3labs/x402-paywall/http"
	"github.com/mark3labs/x402-paywall/metrics"
)

// User-facing messages. Each entry guard has its own.
const (
	MessageConnectWallet      = "Please connect your wallet first."
	MessageNoRequirement      = "No payment requirement available."
	MessageMissingPayTo       = "Payment requirement is missing a recipient."
	MessageMissingAsset       = "Payment requirement is missing an asset."
	MessageMissingAmount      = "Payment requirement is missing an amount."
	MessageInvalidAmount      = "Payment amount is invalid."
	MessageInvalidAddress     = "Connected account is not a valid address."
	MessageMissingDomain      = "Payment requirement is missing token domain information (extra.name, extra.version)."
	MessageUserRejected       = "Payment was rejected in your wallet."
	MessageSigningFailed      = "Failed to sign payment."
	MessageSubmissionFailed   = "Failed to submit payment."
	MessageVerificationFailed = "Payment verification failed"
)

// Processing texts, in stage order.
const (
	TextCheckingNetwork = "Checking network..."
	TextPreparing       = "Preparing payment..."
	TextAwaitSignature  = "Waiting for signature..."
	TextSubmitting      = "Submitting payment..."
)

var (
	// ErrActionInProgress is returned by a Payer when another action holds the lock.
	ErrActionInProgress = errors.New("paywall: another action is in progress")

	// ErrActionSuperseded is returned by a Payer when a disconnect or reconnect
	// invalidated the payment while it was waiting.
	ErrActionSuperseded = errors.New("paywall: action superseded")

	errStale = errors.New("stale action")
)

// Request is one paid request.
type Request struct {
	// HTTPRequest is the original request. Its method, URL and headers are
	// preserved on replay.
	HTTPRequest *http.Request

	// Body is the original request body. When nil, HTTPRequest.Body is read.
	Body []byte

	// Required is the decoded 402 response.
	Required *x402.PaymentRequired

	// Index selects the requirement from Required.Accepts; out of range
	// falls back to the first one.
	Index int
}

// SuccessInfo accompanies the parsed body passed to the success callback.
type SuccessInfo struct {
	Response      *http.Response
	PaymentHeader string
}

// Result describes an accepted payment.
type Result struct {
	// Data is the response body: decoded JSON, or the raw text.
	Data any

	// Response is the 2xx response. Its body can be read again.
	Response *http.Response

	// PaymentHeader is the header value that was sent.
	PaymentHeader string

	// Payment is the signed payload behind PaymentHeader.
	Payment x402.PaymentPayload

	// Context is the resolved requirement, chain and amount that were paid.
	Context x402.ResolvedPaymentContext
}

// Submitter runs the payment flow. It is stateless between calls; all
// mutable state lives in the Session.
type Submitter struct {
	chain      *x402.ChainConfig
	chains     map[string]x402.ChainConfig
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	onSuccess func(data any, info SuccessInfo)
	onError   func(err error)
	onEvent   x402.PaymentCallback

	now func() time.Time
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter) error

// NewSubmitter creates a Submitter.
func NewSubmitter(opts ...SubmitterOption) (*Submitter, error) {
	s := &Submitter{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// WithChain sets the primary chain. It is used unless a requirement names a
// different chain.
func WithChain(chain x402.ChainConfig) SubmitterOption {
	return func(s *Submitter) error {
		if chain.ChainID <= 0 {
			return fmt.Errorf("invalid chain id %d", chain.ChainID)
		}
		s.chain = &chain
		return nil
	}
}

// WithChains sets the chain map consulted by network identifier before
// x402.DefaultChains.
func WithChains(chains map[string]x402.ChainConfig) SubmitterOption {
	return func(s *Submitter) error {
		s.chains = chains
		return nil
	}
}

// WithHTTPClient sets the client used to replay requests.
func WithHTTPClient(client *http.Client) SubmitterOption {
	return func(s *Submitter) error {
		if client == nil {
			return fmt.Errorf("http client must not be nil")
		}
		s.httpClient = client
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SubmitterOption {
	return func(s *Submitter) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithMetrics records payment metrics on m.
func WithMetrics(m *metrics.Metrics) SubmitterOption {
	return func(s *Submitter) error {
		s.metrics = m
		return nil
	}
}

// OnSuccess sets the callback invoked once per accepted payment.
func OnSuccess(fn func(data any, info SuccessInfo)) SubmitterOption {
	return func(s *Submitter) error {
		s.onSuccess = fn
		return nil
	}
}

// OnError sets the callback invoked with every surfaced error.
func OnError(fn func(err error)) SubmitterOption {
	return func(s *Submitter) error {
		s.onError = fn
		return nil
	}
}

// OnPaymentEvent sets the lifecycle event callback.
func OnPaymentEvent(fn x402.PaymentCallback) SubmitterOption {
	return func(s *Submitter) error {
		s.onEvent = fn
		return nil
	}
}

// Resolve returns the payment context r would be paid with.
func (sub *Submitter) Resolve(r *Request) (x402.ResolvedPaymentContext, bool) {
	if r == nil || r.Required == nil {
		return x402.ResolvedPaymentContext{}, false
	}
	return x402.Resolve(x402.SelectRequirement(r.Required.Accepts, r.Index), sub.chain, sub.chains)
}

// Submit pays for r and replays it. It returns (nil, nil) without side
// effects when another action is in flight or when the action was
// superseded while waiting. Entry guard failures while another action is
// in flight are returned without touching the status. Every other failure
// moves the session to StatusError, is passed to the error callback and
// returned as an *x402.PaymentError.
func (sub *Submitter) Submit(ctx context.Context, s *Session, r *Request) (*Result, error) {
	if r == nil || r.HTTPRequest == nil {
		return nil, fmt.Errorf("paywall: request is required")
	}

	required := r.Required
	payCtx, err := sub.check(s, required, r.Index)
	if err != nil {
		// The in-flight action owns the status; a rejected second submit
		// only reports its own error.
		if s.Lock.Held() {
			sub.logger.Debug("payment rejected while another action is in flight", "error", err)
			return nil, err
		}
		return nil, sub.fail(s, nil, err, time.Now())
	}

	token, ok := s.Lock.Begin()
	if !ok {
		sub.logger.Debug("payment ignored, another action is in flight")
		return nil, nil
	}
	defer s.Lock.End(token)

	body := r.Body
	if body == nil {
		if body, err = x402http.BufferBody(r.HTTPRequest); err != nil {
			return nil, sub.fail(s, &payCtx, x402.NewPaymentError(x402.ErrCodeSubmissionFailed, MessageSubmissionFailed, err), time.Now())
		}
	}

	start := time.Now()
	payment, header, err := sub.authorize(ctx, s, token, payCtx, version(required))
	if errors.Is(err, errStale) {
		sub.metrics.ObservePayment(payCtx.Chain.Network, metrics.OutcomeStale, time.Since(start))
		return nil, nil
	}
	if err != nil {
		return nil, sub.fail(s, &payCtx, err, start)
	}

	s.Status.Processing(TextSubmitting)
	stageStart := time.Now()
	resp, err := sub.httpClient.Do(x402http.PaidRequest(r.HTTPRequest.WithContext(ctx), body, header))
	sub.metrics.ObserveStage("submission", time.Since(stageStart))
	if s.Lock.IsStale(token) {
		if resp != nil {
			resp.Body.Close()
		}
		sub.metrics.ObservePayment(payCtx.Chain.Network, metrics.OutcomeStale, time.Since(start))
		return nil, nil
	}
	if err != nil {
		perr := x402.NewPaymentError(x402.ErrCodeSubmissionFailed, x402.ErrorMessage(err, MessageSubmissionFailed), err)
		return nil, sub.fail(s, &payCtx, perr, start)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := x402http.ErrorMessage(resp, MessageVerificationFailed)
		resp.Body.Close()
		perr := x402.NewPaymentError(x402.ErrCodeSubmissionFailed, message, x402.ErrVerificationFailed).
			WithDetails("status", resp.StatusCode)
		return nil, sub.fail(s, &payCtx, perr, start)
	}

	data, err := x402http.ReadResult(resp)
	if err != nil {
		perr := x402.NewPaymentError(x402.ErrCodeSubmissionFailed, MessageSubmissionFailed, err)
		return nil, sub.fail(s, &payCtx, perr, start)
	}

	s.Status.Succeeded()
	sub.logger.Info("payment accepted",
		"network", payCtx.Chain.Network,
		"amount", payCtx.AmountAtomic,
		"status", resp.StatusCode)
	sub.metrics.ObservePayment(payCtx.Chain.Network, metrics.OutcomeSuccess, time.Since(start))
	sub.emit(x402.PaymentEvent{
		Type:     x402.PaymentEventSuccess,
		URL:      r.HTTPRequest.URL.String(),
		Payer:    payment.Payload.Authorization.From,
		Duration: time.Since(start),
	}, &payCtx)

	if sub.onSuccess != nil {
		sub.onSuccess(data, SuccessInfo{Response: resp, PaymentHeader: header})
	}

	return &Result{
		Data:          data,
		Response:      resp,
		PaymentHeader: header,
		Payment:       payment,
		Context:       payCtx,
	}, nil
}

// Payer returns an x402http.Payer that signs on behalf of s, for use with
// x402http.X402Transport. The transport does the replay, so the session
// returns to StatusConnected once the payment is signed.
func (sub *Submitter) Payer(s *Session) x402http.Payer {
	return x402http.PayerFunc(func(ctx context.Context, required *x402.PaymentRequired) (*x402http.Payment, error) {
		index := 0
		if required != nil {
			index = x402.PayableIndex(required.Accepts, sub.chain, sub.chains, 0)
		}
		payCtx, err := sub.check(s, required, index)
		if err != nil {
			return nil, sub.fail(s, nil, err, time.Now())
		}

		token, ok := s.Lock.Begin()
		if !ok {
			return nil, ErrActionInProgress
		}
		defer s.Lock.End(token)

		start := time.Now()
		payment, header, err := sub.authorize(ctx, s, token, payCtx, version(required))
		if errors.Is(err, errStale) {
			return nil, ErrActionSuperseded
		}
		if err != nil {
			return nil, sub.fail(s, &payCtx, err, start)
		}

		s.Status.Connected()
		return &x402http.Payment{
			Header:      header,
			Requirement: payCtx.Requirement,
			Payer:       payment.Payload.Authorization.From,
		}, nil
	})
}

// check runs the entry guards. No lock is taken.
func (sub *Submitter) check(s *Session, required *x402.PaymentRequired, index int) (x402.ResolvedPaymentContext, error) {
	var none x402.ResolvedPaymentContext

	address := s.Address()
	if address == "" {
		return none, configError(MessageConnectWallet, x402.ErrWalletNotConnected)
	}
	if !common.IsHexAddress(address) {
		return none, configError(MessageInvalidAddress, x402.ErrWalletNotConnected)
	}

	var req *x402.PaymentRequirement
	if required != nil {
		req = x402.SelectRequirement(required.Accepts, index)
	}
	if req == nil {
		return none, configError(MessageNoRequirement, x402.ErrNoRequirement)
	}

	chain, ok := x402.ResolveChain(req, sub.chain, sub.chains)
	if !ok {
		return none, configError(x402.MessageMissingChainConfig, x402.ErrMissingChainConfig).
			WithDetails("network", req.Network)
	}

	switch {
	case req.PayTo == "" || !common.IsHexAddress(req.PayTo):
		return none, configError(MessageMissingPayTo, x402.ErrInvalidRequirements)
	case req.Asset == "" || !common.IsHexAddress(req.Asset):
		return none, configError(MessageMissingAsset, x402.ErrInvalidRequirements)
	case req.MaxAmountRequired == "":
		return none, configError(MessageMissingAmount, x402.ErrInvalidRequirements)
	}
	if req.DomainName() == "" || req.DomainVersion() == "" {
		return none, configError(MessageMissingDomain, x402.ErrMissingDomain)
	}

	amount, ok := x402.ToAtomic(req.MaxAmountRequired)
	if !ok {
		return none, configError(MessageInvalidAmount, x402.ErrInvalidAmount)
	}

	return x402.ResolvedPaymentContext{
		Requirement:  req,
		Chain:        chain,
		AmountAtomic: amount,
	}, nil
}

// authorize checks the network, builds the typed data and obtains the
// signature. It returns errStale when token was superseded at any
// suspension point.
func (sub *Submitter) authorize(ctx context.Context, s *Session, token ActionToken, payCtx x402.ResolvedPaymentContext, x402Version int) (x402.PaymentPayload, string, error) {
	var none x402.PaymentPayload
	chain := payCtx.Chain
	req := payCtx.Requirement

	// checkingNetwork
	s.Status.Processing(TextCheckingNetwork)
	stageStart := time.Now()
	err := sub.ensureChain(ctx, s, chain)
	sub.metrics.ObserveStage("network", time.Since(stageStart))
	if s.Lock.IsStale(token) {
		return none, "", errStale
	}
	if err != nil {
		return none, "", err
	}

	// preparing
	s.Status.Processing(TextPreparing)
	value, err := x402.AmountToBigInt(payCtx.AmountAtomic)
	if err != nil {
		return none, "", configError(MessageInvalidAmount, err)
	}
	address := s.Address()
	auth, err := evm.NewAuthorization(common.HexToAddress(address), common.HexToAddress(req.PayTo), value, req.MaxTimeoutSeconds, sub.now())
	if err != nil {
		return none, "", x402.NewPaymentError(x402.ErrCodeSigningFailed, MessageSigningFailed, err)
	}
	typedData, err := evm.BuildTransferAuthorization(evm.DomainFor(req, chain), auth)
	if err != nil {
		return none, "", x402.NewPaymentError(x402.ErrCodeInvalidRequirements, MessageSigningFailed, err)
	}

	// awaitingSignature
	s.Status.Processing(TextAwaitSignature)
	sub.emit(x402.PaymentEvent{Type: x402.PaymentEventAttempt, Payer: address}, &payCtx)
	stageStart = time.Now()
	signature, err := s.Wallet.SignTypedData(ctx, address, typedData)
	sub.metrics.ObserveStage("signature", time.Since(stageStart))
	if s.Lock.IsStale(token) {
		return none, "", errStale
	}
	if err != nil {
		if x402.IsUserRejection(err) {
			return none, "", x402.NewPaymentError(x402.ErrCodeUserRejected, MessageUserRejected, err)
		}
		return none, "", x402.NewPaymentError(x402.ErrCodeSigningFailed, x402.ErrorMessage(err, MessageSigningFailed), err)
	}

	payment := x402.PaymentPayload{
		X402Version: x402Version,
		Scheme:      x402.SchemeExact,
		Network:     req.Network,
		Payload: x402.EVMPayload{
			Signature:     signature,
			Authorization: auth.Payload(),
		},
	}
	if payment.Network == "" {
		payment.Network = chain.Network
	}
	header, err := encoding.EncodePayment(payment)
	if err != nil {
		return none, "", x402.NewPaymentError(x402.ErrCodeSigningFailed, MessageSigningFailed, err)
	}
	return payment, header, nil
}

// ensureChain switches the wallet to chain when it is on another one.
func (sub *Submitter) ensureChain(ctx context.Context, s *Session, chain x402.ChainConfig) error {
	current, err := s.Wallet.ChainID(ctx)
	if err == nil && current == chain.ChainID {
		s.setChainID(current)
		return nil
	}

	sub.logger.Info("switching wallet network",
		"from_chain_id", current,
		"chain_id", chain.ChainID,
		"network", chain.Network)
	s.Status.Processing(fmt.Sprintf("Switching to %s...", chainName(chain)))

	if err := s.Wallet.SwitchChain(ctx, chain); err != nil {
		message := fmt.Sprintf("Please switch your wallet to %s to continue.", chainName(chain))
		return x402.NewPaymentError(x402.ErrCodeNetworkSwitch, message, err).
			WithDetails("chainId", chain.ChainID)
	}
	s.setChainID(chain.ChainID)
	return nil
}

// fail surfaces err: status, error callback, failure event and metrics.
func (sub *Submitter) fail(s *Session, payCtx *x402.ResolvedPaymentContext, err error, start time.Time) error {
	message := x402.ErrorMessage(err, MessageSubmissionFailed)
	s.Status.Failed(message)

	outcome := metrics.OutcomeFailure
	if x402.IsUserRejection(err) {
		outcome = metrics.OutcomeRejected
	}

	network := ""
	if payCtx != nil {
		network = payCtx.Chain.Network
		sub.metrics.ObservePayment(network, outcome, time.Since(start))
	}
	sub.logger.Warn("payment failed", "network", network, "outcome", outcome, "error", err)
	sub.emit(x402.PaymentEvent{
		Type:     x402.PaymentEventFailure,
		Error:    err,
		Duration: time.Since(start),
	}, payCtx)

	if sub.onError != nil {
		sub.onError(err)
	}
	return err
}

func (sub *Submitter) emit(event x402.PaymentEvent, payCtx *x402.ResolvedPaymentContext) {
	if sub.onEvent == nil {
		return
	}
	event.Timestamp = sub.now()
	if payCtx != nil && payCtx.Requirement != nil {
		event.Network = payCtx.Chain.Network
		event.Scheme = x402.SchemeExact
		event.Amount = payCtx.AmountAtomic
		event.Asset = payCtx.Requirement.Asset
		event.Recipient = payCtx.Requirement.PayTo
	}
	sub.onEvent(event)
}

func configError(message string, err error) *x402.PaymentError {
	return x402.NewPaymentError(x402.ErrCodeConfiguration, message, err)
}

func version(required *x402.PaymentRequired) int {
	if required == nil || required.X402Version == 0 {
		return x402.X402Version
	}
	return required.X402Version
}

func chainName(chain x402.ChainConfig) string {
	if chain.Name != "" {
		return chain.Name
	}
	return chain.Network
}
