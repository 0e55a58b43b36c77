package daraja

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Status is the closed set of payment outcomes this package reports.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

// Result codes the processor documents for STK push outcomes.
const (
	ResultCodeSuccess   = 0
	ResultCodeCancelled = 1032
	ResultCodeTimeout   = 1037
)

// ClassifyResultCode maps a processor result code onto a Status. Total: every
// integer maps somewhere, and the same code always maps to the same status.
// Codes the processor has not decided yet (or that we do not recognise) are
// pending; the caller re-polls.
func ClassifyResultCode(code int) Status {
	switch code {
	case ResultCodeSuccess:
		return StatusCompleted
	case ResultCodeCancelled:
		return StatusCancelled
	case ResultCodeTimeout:
		return StatusTimeout
	default:
		return StatusPending
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkQueryPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// STKPushResult is the processor's acknowledgement of an accepted push.
// CheckoutRequestID is the handle for later status queries; the caller must
// keep it. Missing optional fields decode to empty strings.
type STKPushResult struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`

	// AccountReference is the unique reference this client generated for the
	// request, echoed back so callers can correlate retries.
	AccountReference string `json:"-"`

	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// STKQueryResult is the processor's answer to a status query.
type STKQueryResult struct {
	MerchantRequestID string     `json:"MerchantRequestID"`
	CheckoutRequestID string     `json:"CheckoutRequestID"`
	ResponseCode      string     `json:"ResponseCode"`
	ResultCode        ResultCode `json:"ResultCode"`
	ResultDesc        string     `json:"ResultDesc"`
}

// ResultCode tolerates the processor's habit of sending result codes as
// either a bare number or a quoted string. A value that decodes to neither
// leaves the field unset, which classification treats as not-success.
type ResultCode struct {
	Value int
	Set   bool
}

func (r *ResultCode) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	r.Value = n
	r.Set = true
	return nil
}

func (r ResultCode) MarshalJSON() ([]byte, error) {
	if !r.Set {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// Int returns the code, defaulting an absent value to 1 (not success).
func (r ResultCode) Int() int {
	if !r.Set {
		return 1
	}
	return r.Value
}
