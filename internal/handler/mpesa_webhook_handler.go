package handler

import (
	"encoding/json"
	"net/http"

	"mpesasend/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// STKCallback is the envelope Daraja POSTs to the registered callback URL
// once a push prompt is decided.
type STKCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type MpesaWebhookHandler struct {
	svc    *service.PaymentService
	logger *zap.SugaredLogger
}

func NewMpesaWebhookHandler(svc *service.PaymentService, logger *zap.SugaredLogger) *MpesaWebhookHandler {
	return &MpesaWebhookHandler{svc: svc, logger: logger}
}

// Handle processes the asynchronous result notification. The response is
// always an acknowledgement: a non-200 would only make the processor
// re-deliver a payload we cannot use any better the second time.
func (h *MpesaWebhookHandler) Handle(c *gin.Context) {
	var payload STKCallback
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warnw("mpesa callback with unreadable body", "error", err)
		c.JSON(http.StatusOK, ack())
		return
	}

	cb := payload.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		h.logger.Warnw("mpesa callback without CheckoutRequestID")
		c.JSON(http.StatusOK, ack())
		return
	}

	receipt, txnDate := extractMetadata(payload)
	h.logger.Infow("mpesa callback received",
		"checkout_request_id", cb.CheckoutRequestID,
		"result_code", cb.ResultCode,
		"result_desc", cb.ResultDesc,
	)

	if err := h.svc.ApplyCallback(c.Request.Context(), cb.CheckoutRequestID, cb.ResultCode, cb.ResultDesc, receipt, txnDate); err != nil {
		h.logger.Errorw("mpesa callback not applied", "checkout_request_id", cb.CheckoutRequestID, "error", err)
	}

	c.JSON(http.StatusOK, ack())
}

func ack() gin.H {
	return gin.H{"ResultCode": 0, "ResultDesc": "Accepted"}
}

// extractMetadata pulls the receipt number and transaction date out of the
// callback's name/value item list. Values arrive as strings or numbers
// depending on the field, hence the raw decoding.
func extractMetadata(payload STKCallback) (receipt, txnDate string) {
	for _, item := range payload.Body.StkCallback.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			var s string
			if json.Unmarshal(item.Value, &s) == nil {
				receipt = s
			}
		case "TransactionDate":
			var n json.Number
			if json.Unmarshal(item.Value, &n) == nil {
				txnDate = n.String()
			}
		}
	}
	return receipt, txnDate
}
