package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"mpesasend/internal/cache"
	"mpesasend/internal/domain"
	"mpesasend/internal/models"
	"mpesasend/pkg/daraja"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// phone must be country-code prefixed: 254 followed by exactly 9 digits.
var phonePattern = regexp.MustCompile(`^254\d{9}$`)

// ValidationError is a caller-input problem. It is raised before any network
// call so callers can tell user mistakes from processor trouble.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProcessorClient is the slice of the daraja client this service needs.
type ProcessorClient interface {
	STKPush(ctx context.Context, phone string, amount int64) (*daraja.STKPushResult, error)
	STKQuery(ctx context.Context, checkoutRequestID string) (daraja.Status, *daraja.STKQueryResult, error)
}

// PaymentStore is the slice of the payment repository this service needs.
type PaymentStore interface {
	Create(p *models.Payment) error
	GetByCheckoutRequestID(id string) (*models.Payment, error)
	Update(p *models.Payment) error
	ListRecent(limit int) ([]models.Payment, error)
}

// StatusResult is the outcome of one status query.
type StatusResult struct {
	Status     daraja.Status `json:"status"`
	ResultCode *int          `json:"result_code,omitempty"`
	ResultDesc string        `json:"result_desc,omitempty"`
}

// PaymentService is the single entry point for submitting payments and
// resolving their outcomes. Stateless between calls; safe for concurrent use.
type PaymentService struct {
	processor ProcessorClient
	store     PaymentStore
	statuses  cache.StatusStore
	logger    *zap.SugaredLogger
}

func NewPaymentService(processor ProcessorClient, store PaymentStore, statuses cache.StatusStore, logger *zap.SugaredLogger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PaymentService{
		processor: processor,
		store:     store,
		statuses:  statuses,
		logger:    logger,
	}
}

// SubmitPayment validates the input, pushes the payment prompt to the payer's
// phone and records the pending transaction. Fractional amounts are truncated
// toward zero to match the processor's integer-amount contract.
func (s *PaymentService) SubmitPayment(ctx context.Context, phone string, amount float64) (*daraja.STKPushResult, error) {
	if !phonePattern.MatchString(phone) {
		return nil, &ValidationError{Field: "phone", Reason: "must be in format 254XXXXXXXXX"}
	}
	whole := int64(amount)
	if whole <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be a positive amount in KES"}
	}

	result, err := s.processor.STKPush(ctx, phone, whole)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		PhoneNumber:       phone,
		Amount:            whole,
		Currency:          "KES",
		AccountReference:  result.AccountReference,
		MerchantRequestID: result.MerchantRequestID,
		CheckoutRequestID: result.CheckoutRequestID,
		Status:            domain.PaymentStatusPending,
	}
	if err := s.store.Create(payment); err != nil {
		// the prompt is already on the payer's phone; losing the row is a
		// reconciliation problem, not grounds to fail the submission
		s.logger.Errorw("payment record create failed",
			"checkout_request_id", result.CheckoutRequestID, "error", err)
	}

	return result, nil
}

// QueryStatus resolves the current outcome of an initiated payment. Terminal
// outcomes are served from cache; everything else goes to the processor.
func (s *PaymentService) QueryStatus(ctx context.Context, checkoutRequestID string) (*StatusResult, error) {
	if checkoutRequestID == "" {
		return nil, &ValidationError{Field: "checkout_request_id", Reason: "must not be empty"}
	}

	if s.statuses != nil {
		cached, found, err := s.statuses.GetStatus(ctx, checkoutRequestID)
		if err != nil {
			// a broken cache degrades to a processor query
			s.logger.Warnw("status cache read failed", "error", err)
		} else if found {
			res := &StatusResult{Status: domainToStatus(cached)}
			if payment, err := s.store.GetByCheckoutRequestID(checkoutRequestID); err == nil {
				res.ResultCode = payment.ResultCode
				res.ResultDesc = payment.ResultDesc
			}
			return res, nil
		}
	}

	status, query, err := s.processor.STKQuery(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}

	code := query.ResultCode.Int()
	res := &StatusResult{Status: status, ResultCode: &code, ResultDesc: query.ResultDesc}
	s.recordOutcome(ctx, checkoutRequestID, statusToDomain(status), &code, query.ResultDesc, "", "")
	return res, nil
}

// ApplyCallback processes the processor's asynchronous result notification.
// Callbacks only arrive for decided payments, so any unrecognised code is a
// terminal failure (insufficient funds and friends), not pending.
func (s *PaymentService) ApplyCallback(ctx context.Context, checkoutRequestID string, resultCode int, resultDesc, receiptNumber, transactionDate string) error {
	if checkoutRequestID == "" {
		return &ValidationError{Field: "checkout_request_id", Reason: "must not be empty"}
	}

	var status string
	switch resultCode {
	case daraja.ResultCodeSuccess:
		status = domain.PaymentStatusCompleted
	case daraja.ResultCodeCancelled:
		status = domain.PaymentStatusCancelled
	case daraja.ResultCodeTimeout:
		status = domain.PaymentStatusTimeout
	default:
		status = domain.PaymentStatusFailed
	}

	s.recordOutcome(ctx, checkoutRequestID, status, &resultCode, resultDesc, receiptNumber, transactionDate)
	return nil
}

// ListPayments returns recent transaction records for reconciliation.
func (s *PaymentService) ListPayments(limit int) ([]models.Payment, error) {
	return s.store.ListRecent(limit)
}

// recordOutcome writes an observed outcome to the payment row and, when
// terminal, the status cache. Terminal rows are never downgraded: a late or
// duplicate notification cannot undo a decided payment.
func (s *PaymentService) recordOutcome(ctx context.Context, checkoutRequestID, status string, resultCode *int, resultDesc, receiptNumber, transactionDate string) {
	payment, err := s.store.GetByCheckoutRequestID(checkoutRequestID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// initiated elsewhere or a lost row; nothing to update
		s.logger.Warnw("outcome for unknown payment", "checkout_request_id", checkoutRequestID, "status", status)
	case err != nil:
		s.logger.Errorw("payment lookup failed", "checkout_request_id", checkoutRequestID, "error", err)
	case domain.TerminalStatuses[payment.Status]:
		// already decided
	case status != domain.PaymentStatusPending:
		payment.Status = status
		payment.ResultCode = resultCode
		payment.ResultDesc = resultDesc
		if receiptNumber != "" {
			payment.ReceiptNumber = receiptNumber
		}
		if transactionDate != "" {
			payment.TransactionDate = transactionDate
		}
		if status == domain.PaymentStatusCompleted {
			now := time.Now()
			payment.CompletedAt = &now
		}
		if err := s.store.Update(payment); err != nil {
			s.logger.Errorw("payment update failed", "checkout_request_id", checkoutRequestID, "error", err)
		}
	default:
		// still pending; keep the row as-is
	}

	if s.statuses != nil && domain.TerminalStatuses[status] {
		if err := s.statuses.SetTerminal(ctx, checkoutRequestID, status); err != nil {
			s.logger.Warnw("status cache write failed", "checkout_request_id", checkoutRequestID, "error", err)
		}
	}
}

func statusToDomain(s daraja.Status) string {
	switch s {
	case daraja.StatusCompleted:
		return domain.PaymentStatusCompleted
	case daraja.StatusCancelled:
		return domain.PaymentStatusCancelled
	case daraja.StatusTimeout:
		return domain.PaymentStatusTimeout
	case daraja.StatusFailed:
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusPending
	}
}

func domainToStatus(s string) daraja.Status {
	switch s {
	case domain.PaymentStatusCompleted:
		return daraja.StatusCompleted
	case domain.PaymentStatusCancelled:
		return daraja.StatusCancelled
	case domain.PaymentStatusTimeout:
		return daraja.StatusTimeout
	case domain.PaymentStatusFailed:
		return daraja.StatusFailed
	default:
		return daraja.StatusPending
	}
}
