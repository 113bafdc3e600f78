package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ridepool/backend/internal/domain"
	"github.com/ridepool/backend/internal/payments"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code and a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorMapping struct {
	sentinel error
	status   int
	code     string
}

// errorMappings is checked in order; the first sentinel found in the chain wins.
var errorMappings = []errorMapping{
	{domain.ErrValidation, http.StatusUnprocessableEntity, "validation_error"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrInsufficientSeats, http.StatusConflict, "insufficient_seats"},
	{domain.ErrSelfBooking, http.StatusUnprocessableEntity, "self_booking"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrSettlement, http.StatusInternalServerError, "settlement_failed"},
	{payments.ErrNotConfigured, http.StatusServiceUnavailable, "payments_unavailable"},
}

// classify maps a service error onto a status and response body.
func classify(err error) (int, ErrorResponse) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.sentinel) {
			continue
		}
		msg := m.sentinel.Error()
		if m.status < http.StatusInternalServerError {
			msg = unwrapMessage(err, m.sentinel)
		}
		return m.status, ErrorResponse{Error: ErrorDetail{Code: m.code, Message: msg}}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: ErrorDetail{Code: "internal_error", Message: "internal server error"}}
}

// requestBody returns an ErrorResponse for a bad request rejected before
// reaching the service layer (e.g. missing or malformed body).
func requestBody(message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: "validation_error", Message: message}}
}

// unwrapMessage extracts the human-readable part that follows the sentinel.
// e.g. "service.RideService.Submit: validation error: pickup address is required"
// → "pickup address is required"
func unwrapMessage(err, sentinel error) string {
	msg := err.Error()
	marker := sentinel.Error() + ": "
	if i := strings.LastIndex(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return sentinel.Error()
}
