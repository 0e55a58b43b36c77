package daraja

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testConsumerKey    = "key"
	testConsumerSecret = "secret"
	testShortCode      = "174379"
	testPasskey        = "testpasskey"
)

type processorMock struct {
	srv *httptest.Server

	tokenStatus int
	tokenBody   string
	tokenCalls  atomic.Int32

	pushStatus int
	pushBody   string
	pushCalls  atomic.Int32
	lastPush   stkPushPayload

	queryStatus int
	queryBody   string
	lastQuery   stkQueryPayload
}

func newProcessorMock(t *testing.T) *processorMock {
	m := &processorMock{
		tokenStatus: http.StatusOK,
		tokenBody:   `{"access_token": "tok-123", "expires_in": "3599"}`,
		pushStatus:  http.StatusOK,
		pushBody: `{
			"MerchantRequestID": "29115-34620561-1",
			"CheckoutRequestID": "ws_CO_191220191020363925",
			"ResponseCode": "0",
			"ResponseDescription": "Success. Request accepted for processing",
			"CustomerMessage": "Success. Request accepted for processing"
		}`,
		queryStatus: http.StatusOK,
		queryBody:   `{"ResponseCode": "0", "ResultCode": "0", "ResultDesc": "The service request is processed successfully."}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		m.tokenCalls.Add(1)
		expected := "Basic " + base64.StdEncoding.EncodeToString([]byte(testConsumerKey+":"+testConsumerSecret))
		require.Equal(t, expected, r.Header.Get("Authorization"))
		require.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
		w.WriteHeader(m.tokenStatus)
		w.Write([]byte(m.tokenBody))
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		m.pushCalls.Add(1)
		require.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&m.lastPush))
		w.WriteHeader(m.pushStatus)
		w.Write([]byte(m.pushBody))
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&m.lastQuery))
		w.WriteHeader(m.queryStatus)
		w.Write([]byte(m.queryBody))
	})

	m.srv = httptest.NewServer(mux)
	t.Cleanup(m.srv.Close)
	return m
}

func (m *processorMock) client(cacheTokens bool) *Client {
	return NewClient(Config{
		BaseURL:        m.srv.URL,
		ConsumerKey:    testConsumerKey,
		ConsumerSecret: testConsumerSecret,
		ShortCode:      testShortCode,
		Passkey:        testPasskey,
		CallbackURL:    "https://merchant.example.com/webhooks/mpesa",
		CacheTokens:    cacheTokens,
	}, m.srv.Client(), nil)
}

func TestSTKPushSuccess(t *testing.T) {
	mock := newProcessorMock(t)
	c := mock.client(false)

	result, err := c.STKPush(context.Background(), "254712345678", 10)
	require.NoError(t, err)
	require.Equal(t, "ws_CO_191220191020363925", result.CheckoutRequestID)
	require.Equal(t, "29115-34620561-1", result.MerchantRequestID)
	require.NotEmpty(t, result.AccountReference)

	payload := mock.lastPush
	require.Equal(t, testShortCode, payload.BusinessShortCode)
	require.Equal(t, "CustomerPayBillOnline", payload.TransactionType)
	require.Equal(t, int64(10), payload.Amount)
	require.Equal(t, "254712345678", payload.PartyA)
	require.Equal(t, testShortCode, payload.PartyB)
	require.Equal(t, "254712345678", payload.PhoneNumber)
	require.Equal(t, "https://merchant.example.com/webhooks/mpesa", payload.CallBackURL)
	require.Equal(t, payload.AccountReference, result.AccountReference)

	// password must be base64(shortcode + passkey + timestamp) for the
	// timestamp carried in the same payload
	raw, err := base64.StdEncoding.DecodeString(payload.Password)
	require.NoError(t, err)
	require.Equal(t, testShortCode+testPasskey+payload.Timestamp, string(raw))
	require.Len(t, payload.Timestamp, 14)
}

func TestSTKPushUniqueAccountReferences(t *testing.T) {
	mock := newProcessorMock(t)
	c := mock.client(false)

	first, err := c.STKPush(context.Background(), "254712345678", 10)
	require.NoError(t, err)
	second, err := c.STKPush(context.Background(), "254712345678", 10)
	require.NoError(t, err)
	require.NotEqual(t, first.AccountReference, second.AccountReference)
}

func TestSTKPushTokenFailureSkipsPush(t *testing.T) {
	mock := newProcessorMock(t)
	mock.tokenStatus = http.StatusInternalServerError
	mock.tokenBody = `{"error": "down"}`
	c := mock.client(false)

	_, err := c.STKPush(context.Background(), "254712345678", 10)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusInternalServerError, authErr.HTTPStatus)
	require.Equal(t, int32(0), mock.pushCalls.Load())
}

func TestSTKPushTokenMissingAccessToken(t *testing.T) {
	mock := newProcessorMock(t)
	mock.tokenBody = `{"expires_in": "3599"}`
	c := mock.client(false)

	_, err := c.STKPush(context.Background(), "254712345678", 10)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, int32(0), mock.pushCalls.Load())
}

func TestSTKPushProcessorRejected(t *testing.T) {
	mock := newProcessorMock(t)
	mock.pushStatus = http.StatusForbidden
	mock.pushBody = `{"errorCode": "403.001", "errorMessage": "Invalid credentials"}`
	c := mock.client(false)

	_, err := c.STKPush(context.Background(), "254712345678", 10)

	var initErr *InitiationError
	require.ErrorAs(t, err, &initErr)
	require.Equal(t, ErrKindProcessorRejected, initErr.Kind)
	require.Equal(t, http.StatusForbidden, initErr.HTTPStatus)
	require.Equal(t, "403.001", initErr.Code)
	require.Equal(t, "Invalid credentials", initErr.Message)
}

func TestSTKPushProcessorError(t *testing.T) {
	mock := newProcessorMock(t)
	mock.pushBody = `{"ResponseCode": "1", "ResponseDescription": "Unable to process"}`
	c := mock.client(false)

	_, err := c.STKPush(context.Background(), "254712345678", 10)

	var initErr *InitiationError
	require.ErrorAs(t, err, &initErr)
	require.Equal(t, ErrKindProcessorError, initErr.Kind)
	require.Equal(t, "1", initErr.Code)
	require.Equal(t, "Unable to process", initErr.Message)
}

func TestSTKPushInvalidResponseBody(t *testing.T) {
	mock := newProcessorMock(t)
	mock.pushBody = `<html>definitely not json</html>`
	c := mock.client(false)

	_, err := c.STKPush(context.Background(), "254712345678", 10)

	var initErr *InitiationError
	require.ErrorAs(t, err, &initErr)
	require.Equal(t, ErrKindInvalidResponse, initErr.Kind)
}

func TestSTKPushNetworkFailure(t *testing.T) {
	mock := newProcessorMock(t)
	c := mock.client(false)
	mock.srv.Close()

	_, err := c.STKPush(context.Background(), "254712345678", 10)

	// the first round trip is token acquisition, so a dead processor
	// surfaces as an auth failure
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestSTKQueryCancelled(t *testing.T) {
	mock := newProcessorMock(t)
	mock.queryBody = `{"ResultCode": 1032, "ResultDesc": "Request cancelled by user"}`
	c := mock.client(false)

	status, result, err := c.STKQuery(context.Background(), "ws_CO_123")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, status)
	require.Equal(t, 1032, result.ResultCode.Int())
	require.Equal(t, "ws_CO_123", mock.lastQuery.CheckoutRequestID)

	raw, err := base64.StdEncoding.DecodeString(mock.lastQuery.Password)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), testShortCode+testPasskey))
}

func TestSTKQueryCompletedFromStringCode(t *testing.T) {
	mock := newProcessorMock(t)
	c := mock.client(false)

	status, _, err := c.STKQuery(context.Background(), "ws_CO_123")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, status)
}

func TestSTKQueryAbsentResultCodeIsPending(t *testing.T) {
	mock := newProcessorMock(t)
	mock.queryBody = `{"ResponseCode": "0", "ResultDesc": "still processing"}`
	c := mock.client(false)

	status, result, err := c.STKQuery(context.Background(), "ws_CO_123")
	require.NoError(t, err)
	require.Equal(t, StatusPending, status)
	require.Equal(t, 1, result.ResultCode.Int())
}

func TestSTKQueryHTTPErrorIsResolutionError(t *testing.T) {
	mock := newProcessorMock(t)
	mock.queryStatus = http.StatusInternalServerError
	mock.queryBody = `{"error": "boom"}`
	c := mock.client(false)

	_, _, err := c.STKQuery(context.Background(), "ws_CO_123")

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	require.Equal(t, http.StatusInternalServerError, resErr.HTTPStatus)
}

func TestSTKQueryNonJSONIsResolutionError(t *testing.T) {
	mock := newProcessorMock(t)
	mock.queryBody = `gateway timeout`
	c := mock.client(false)

	_, _, err := c.STKQuery(context.Background(), "ws_CO_123")

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestTokenReusedOnlyWhenCachingEnabled(t *testing.T) {
	mock := newProcessorMock(t)
	c := mock.client(false)

	_, _, err := c.STKQuery(context.Background(), "ws_CO_123")
	require.NoError(t, err)
	_, _, err = c.STKQuery(context.Background(), "ws_CO_123")
	require.NoError(t, err)
	require.Equal(t, int32(2), mock.tokenCalls.Load())

	cached := newProcessorMock(t)
	cc := cached.client(true)
	_, _, err = cc.STKQuery(context.Background(), "ws_CO_123")
	require.NoError(t, err)
	_, _, err = cc.STKQuery(context.Background(), "ws_CO_123")
	require.NoError(t, err)
	require.Equal(t, int32(1), cached.tokenCalls.Load())
}
