package daraja

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://sandbox.safaricom.co.ke"

	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	transactionType = "CustomerPayBillOnline"
	transactionDesc = "Payment for services"
)

// Config carries the merchant credentials for the Daraja API. All five
// credential fields are required; validation happens at startup, not here.
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string

	// CacheTokens reuses access tokens until shortly before expiry instead
	// of re-authenticating on every operation. Off by default: enabling it
	// halves the processor call count per operation, which is observable.
	CacheTokens bool
}

// Client talks to the Daraja STK push endpoints. Safe for concurrent use;
// the only mutable state is the optional cached token.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.SugaredLogger
	breaker    *gobreaker.CircuitBreaker

	authMu      sync.Mutex
	cachedToken string
	tokenExpiry time.Time
}

func NewClient(cfg Config, httpClient *http.Client, logger *zap.SugaredLogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "daraja",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("processor circuit state changed", "from", from.String(), "to", to.String())
		},
	})
	return c
}

type httpResult struct {
	status int
	body   []byte
}

var errProcessorDown = fmt.Errorf("processor returned a server error")

// roundTrip performs one HTTP exchange through the circuit breaker. A nil
// result means the request never completed (transport failure or open
// breaker); a non-nil result carries whatever status the processor answered,
// 5xx included.
func (c *Client) roundTrip(ctx context.Context, method, url string, header http.Header, body []byte) (*httpResult, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		hr := &httpResult{status: resp.StatusCode, body: data}
		if resp.StatusCode >= http.StatusInternalServerError {
			return hr, errProcessorDown
		}
		return hr, nil
	})
	if res != nil {
		return res.(*httpResult), nil
	}
	return nil, err
}

// accessToken acquires a bearer token via HTTP Basic auth. No retries:
// resilience is the caller's concern.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.cfg.CacheTokens {
		c.authMu.Lock()
		if c.cachedToken != "" && time.Now().Before(c.tokenExpiry) {
			token := c.cachedToken
			c.authMu.Unlock()
			return token, nil
		}
		c.authMu.Unlock()
	}

	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	header := http.Header{}
	header.Set("Authorization", "Basic "+basic)
	header.Set("Content-Type", "application/json")

	hr, err := c.roundTrip(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, header, nil)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	if hr.status != http.StatusOK {
		return "", &AuthError{HTTPStatus: hr.status}
	}
	var tok tokenResponse
	if err := json.Unmarshal(hr.body, &tok); err != nil {
		return "", &AuthError{Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tok.AccessToken == "" {
		return "", &AuthError{Err: fmt.Errorf("token response missing access_token")}
	}

	if c.cfg.CacheTokens {
		lifetime := time.Hour
		if secs, err := strconv.Atoi(tok.ExpiresIn); err == nil && secs > 0 {
			lifetime = time.Duration(secs) * time.Second
		}
		buffer := time.Minute
		if lifetime <= buffer {
			buffer = lifetime / 2
		}
		c.authMu.Lock()
		c.cachedToken = tok.AccessToken
		c.tokenExpiry = time.Now().Add(lifetime - buffer)
		c.authMu.Unlock()
	}

	return tok.AccessToken, nil
}

// newAccountReference generates a per-request reference so retried
// submissions stay distinguishable at the processor.
func newAccountReference() string {
	return "INV" + strings.ToUpper(uuid.NewString()[:8])
}

// STKPush submits a payment prompt to the payer's device. phone must already
// be validated (2547XXXXXXXX) and amount must be positive; both are caller
// preconditions.
func (c *Client) STKPush(ctx context.Context, phone string, amount int64) (*STKPushResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := Password(c.cfg.ShortCode, c.cfg.Passkey, time.Now())
	accountRef := newAccountReference()
	payload := stkPushPayload{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            amount,
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  accountRef,
		TransactionDesc:   transactionDesc,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &InitiationError{Kind: ErrKindNetwork, Err: err}
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+token)
	header.Set("Cache-Control", "no-cache")

	hr, err := c.roundTrip(ctx, http.MethodPost, c.cfg.BaseURL+stkPushPath, header, body)
	if err != nil {
		return nil, &InitiationError{Kind: ErrKindNetwork, Err: err}
	}
	if hr.status != http.StatusOK {
		initErr := &InitiationError{Kind: ErrKindProcessorRejected, HTTPStatus: hr.status}
		// the processor often explains rejections in the body; keep the
		// detail for operators when it is there
		var rejected STKPushResult
		if json.Unmarshal(hr.body, &rejected) == nil {
			initErr.Code = rejected.ErrorCode
			initErr.Message = rejected.ErrorMessage
		}
		return nil, initErr
	}

	var out STKPushResult
	if err := json.Unmarshal(hr.body, &out); err != nil {
		return nil, &InitiationError{Kind: ErrKindInvalidResponse, Err: err}
	}
	if out.ErrorCode != "" || out.ResponseCode != "0" {
		code := out.ErrorCode
		msg := out.ErrorMessage
		if code == "" {
			code = out.ResponseCode
			msg = out.ResponseDescription
		}
		return nil, &InitiationError{Kind: ErrKindProcessorError, Code: code, Message: msg}
	}
	out.AccountReference = accountRef

	c.logger.Infow("stk push accepted",
		"merchant_request_id", out.MerchantRequestID,
		"checkout_request_id", out.CheckoutRequestID,
		"account_reference", accountRef,
	)
	return &out, nil
}

// STKQuery asks the processor for the outcome of a previously initiated push.
// A successful query always yields a Status, pending included; an error means
// the question itself could not be answered.
func (c *Client) STKQuery(ctx context.Context, checkoutRequestID string) (Status, *STKQueryResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", nil, &ResolutionError{Err: err}
	}

	password, timestamp := Password(c.cfg.ShortCode, c.cfg.Passkey, time.Now())
	payload := stkQueryPayload{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, &ResolutionError{Err: err}
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+token)

	hr, err := c.roundTrip(ctx, http.MethodPost, c.cfg.BaseURL+stkQueryPath, header, body)
	if err != nil {
		return "", nil, &ResolutionError{Err: err}
	}
	if hr.status != http.StatusOK {
		return "", nil, &ResolutionError{HTTPStatus: hr.status}
	}

	var out STKQueryResult
	if err := json.Unmarshal(hr.body, &out); err != nil {
		return "", nil, &ResolutionError{Err: fmt.Errorf("decode query response: %w", err)}
	}

	status := ClassifyResultCode(out.ResultCode.Int())
	c.logger.Debugw("stk query resolved",
		"checkout_request_id", checkoutRequestID,
		"result_code", out.ResultCode.Int(),
		"status", status,
	)
	return status, &out, nil
}
