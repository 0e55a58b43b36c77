package handler

import (
	"errors"
	"net/http"
	"strconv"

	"mpesasend/internal/service"
	"mpesasend/pkg/daraja"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	svc    *service.PaymentService
	logger *zap.SugaredLogger
}

func NewPaymentHandler(svc *service.PaymentService, logger *zap.SugaredLogger) *PaymentHandler {
	return &PaymentHandler{svc: svc, logger: logger}
}

// Initiate handles POST /api/v1/payments: validates the operator input and
// pushes the payment prompt to the payer's phone.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req struct {
		Phone  string  `json:"phone" binding:"required"`
		Amount float64 `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.SubmitPayment(c.Request.Context(), req.Phone, req.Amount)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"message":             "Payment request sent. Ask the customer to complete the prompt on their phone.",
		"checkout_request_id": result.CheckoutRequestID,
		"merchant_request_id": result.MerchantRequestID,
		"account_reference":   result.AccountReference,
		"customer_message":    result.CustomerMessage,
	})
}

// Status handles GET /api/v1/payments/:checkoutRequestID: resolves the
// payment outcome. Pending is a legitimate answer, not an error.
func (h *PaymentHandler) Status(c *gin.Context) {
	checkoutRequestID := c.Param("checkoutRequestID")

	result, err := h.svc.QueryStatus(c.Request.Context(), checkoutRequestID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"checkout_request_id": checkoutRequestID,
		"status":              result.Status,
		"message":             statusMessage(result),
		"result":              result,
	})
}

// List handles GET /api/v1/payments: recent transaction records for
// operator reconciliation.
func (h *PaymentHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	payments, err := h.svc.ListPayments(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list payments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// renderError maps the service's typed errors onto HTTP statuses: caller
// mistakes are 400, an unreachable or broken processor is 502/504.
func (h *PaymentHandler) renderError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	var authErr *daraja.AuthError
	var initErr *daraja.InitiationError
	var resolutionErr *daraja.ResolutionError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &authErr):
		h.logger.Errorw("processor auth failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment processor unavailable"})
	case errors.As(err, &initErr):
		h.logger.Errorw("payment initiation failed", "kind", initErr.Kind, "code", initErr.Code, "error", err)
		if initErr.Kind == daraja.ErrKindNetwork {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "payment processor did not respond"})
			return
		}
		body := gin.H{"error": "payment request rejected"}
		if initErr.Code != "" {
			body["processor_code"] = initErr.Code
			body["processor_message"] = initErr.Message
		}
		c.JSON(http.StatusBadGateway, body)
	case errors.As(err, &resolutionErr):
		h.logger.Errorw("status query failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not check payment status, try again"})
	default:
		h.logger.Errorw("unexpected error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func statusMessage(r *service.StatusResult) string {
	switch r.Status {
	case daraja.StatusCompleted:
		return "Payment completed successfully"
	case daraja.StatusCancelled:
		return "Payment was cancelled by the customer"
	case daraja.StatusTimeout:
		return "Payment request timed out"
	case daraja.StatusFailed:
		return "Payment failed"
	default:
		if r.ResultDesc != "" {
			return r.ResultDesc
		}
		return "Payment is being processed"
	}
}
