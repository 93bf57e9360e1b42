package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-b2b-orders/internal/orders"
	"github.com/ariefcatur/go-b2b-orders/internal/pagination"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type pageInfo struct {
	Cursor  *int64 `json:"cursor,omitempty"`
	Limit   int    `json:"limit"`
	HasMore bool   `json:"hasMore"`
}

type envelope struct {
	Success    bool      `json:"success"`
	Data       any       `json:"data,omitempty"`
	Error      *apiError `json:"error,omitempty"`
	Pagination *pageInfo `json:"pagination,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Success: true, Data: data})
}

func writePage[T any](w http.ResponseWriter, p pagination.Page[T], limit int) {
	info := &pageInfo{Limit: pagination.NormalizeLimit(limit), HasMore: p.HasMore}
	if len(p.Items) > 0 {
		c := p.NextCursor
		info.Cursor = &c
	}
	items := p.Items
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: items, Pagination: info})
}

func writeFail(w http.ResponseWriter, code int, errCode, msg string, details any) {
	writeJSON(w, code, envelope{Error: &apiError{Code: errCode, Message: msg, Details: details}})
}

// statusFor maps engine error kinds onto HTTP status codes.
func statusFor(e *orders.Error) int {
	switch e.Kind {
	case orders.KindValidation:
		return http.StatusBadRequest
	case orders.KindNotFound:
		return http.StatusNotFound
	case orders.KindBusinessRule:
		if e.Code == orders.CodeInsufficientStock {
			return http.StatusUnprocessableEntity
		}
		return http.StatusConflict
	case orders.KindConcurrency:
		return http.StatusConflict
	case orders.KindUpstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeErr never leaks infrastructure error text.
func writeErr(w http.ResponseWriter, err error) {
	var oe *orders.Error
	if errors.As(err, &oe) {
		if oe.Retryable() {
			w.Header().Set("Retry-After", "1")
		}
		writeFail(w, statusFor(oe), oe.Code, oe.Message, oe.Details)
		return
	}
	writeFail(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil)
}
