package orders

import (
	"errors"
	"fmt"
	"strings"
)

// Kind groups error codes by how a caller should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindBusinessRule
	KindConcurrency
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule"
	case KindConcurrency:
		return "concurrency"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

const (
	CodeValidation                = "VALIDATION_ERROR"
	CodeNotFound                  = "NOT_FOUND"
	CodeInsufficientStock         = "INSUFFICIENT_STOCK"
	CodeConcurrentModification    = "CONCURRENT_MODIFICATION"
	CodeUpstreamUnavailable       = "UPSTREAM_UNAVAILABLE"
	CodeInvalidKeyReuse           = "INVALID_KEY_REUSE"
	CodeOperationInProgress       = "OPERATION_IN_PROGRESS"
	CodeInvalidTransition         = "INVALID_TRANSITION"
	CodeCancellationWindowExpired = "CANCELLATION_WINDOW_EXPIRED"
)

var codeKinds = map[string]Kind{
	CodeValidation:                KindValidation,
	CodeNotFound:                  KindNotFound,
	CodeInsufficientStock:         KindBusinessRule,
	CodeConcurrentModification:    KindConcurrency,
	CodeUpstreamUnavailable:       KindUpstream,
	CodeInvalidKeyReuse:           KindBusinessRule,
	CodeOperationInProgress:       KindBusinessRule,
	CodeInvalidTransition:         KindBusinessRule,
	CodeCancellationWindowExpired: KindBusinessRule,
}

// Error is the caller-facing failure of an engine operation.
// Two Errors match under errors.Is when their codes are equal.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details any
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Retryable reports whether resubmitting the same request may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindConcurrency || e.Kind == KindUpstream || e.Code == CodeOperationInProgress
}

var (
	ErrValidation                = newError(CodeValidation, "validation failed", nil)
	ErrNotFound                  = newError(CodeNotFound, "not found", nil)
	ErrInsufficientStock         = newError(CodeInsufficientStock, "insufficient stock", nil)
	ErrConcurrentModification    = newError(CodeConcurrentModification, "concurrent modification", nil)
	ErrUpstreamUnavailable       = newError(CodeUpstreamUnavailable, "upstream unavailable", nil)
	ErrInvalidKeyReuse           = newError(CodeInvalidKeyReuse, "idempotency key reused", nil)
	ErrOperationInProgress       = newError(CodeOperationInProgress, "operation in progress", nil)
	ErrInvalidTransition         = newError(CodeInvalidTransition, "invalid status transition", nil)
	ErrCancellationWindowExpired = newError(CodeCancellationWindowExpired, "cancellation window expired", nil)
)

func newError(code, msg string, details any) *Error {
	return &Error{Kind: codeKinds[code], Code: code, Message: msg, Details: details}
}

// StockShortfall describes one product that cannot cover the requested quantity.
type StockShortfall struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

// MissingProducts lists requested product ids with no row in the catalog.
type MissingProducts struct {
	ProductIDs []int64 `json:"product_ids"`
}

// CurrentStatus is attached to transition errors.
type CurrentStatus struct {
	OrderID int64  `json:"order_id"`
	Status  Status `json:"status"`
}

func validationError(format string, args ...any) *Error {
	return newError(CodeValidation, fmt.Sprintf(format, args...), nil)
}

func orderNotFound(id int64) *Error {
	return newError(CodeNotFound, fmt.Sprintf("order %d not found", id), nil)
}

func productsNotFound(ids []int64) *Error {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprint(id))
	}
	return newError(CodeNotFound,
		"products not found: "+strings.Join(parts, ", "),
		MissingProducts{ProductIDs: ids})
}

func insufficientStock(s StockShortfall) *Error {
	return newError(CodeInsufficientStock,
		fmt.Sprintf("insufficient stock for product %s. available: %d, requested: %d", s.Name, s.Available, s.Requested),
		s)
}

func concurrentStockUpdate(productID int64) *Error {
	return newError(CodeConcurrentModification,
		fmt.Sprintf("concurrent stock update detected for product %d", productID), nil)
}

func invalidTransition(orderID int64, from Status, action string) *Error {
	return newError(CodeInvalidTransition,
		fmt.Sprintf("order cannot be %s. current status: %s", action, from),
		CurrentStatus{OrderID: orderID, Status: from})
}
