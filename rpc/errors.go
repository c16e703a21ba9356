package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"invoicechain/core/state"
	nativecommon "invoicechain/native/common"
	"invoicechain/native/invoice"
	"invoicechain/native/registry"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps engine sentinels to HTTP status codes. Unknown errors are
// internal; malformed requests are handled before the engines are reached.
func statusFor(err error) int {
	switch {
	case errors.Is(err, invoice.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrImplementationNotFound):
		return http.StatusNotFound
	case errors.Is(err, invoice.ErrUnauthorized),
		errors.Is(err, registry.ErrUnauthorized),
		errors.Is(err, invoice.ErrDepositNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, invoice.ErrLocked),
		errors.Is(err, invoice.ErrNotLocked),
		errors.Is(err, invoice.ErrAlreadyInitialized),
		errors.Is(err, invoice.ErrMilestonesExhausted),
		errors.Is(err, invoice.ErrNothingToDispute),
		errors.Is(err, invoice.ErrTerminationNotReached),
		errors.Is(err, registry.ErrInstanceExists):
		return http.StatusConflict
	case errors.Is(err, invoice.ErrInsufficientBalance),
		errors.Is(err, state.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, invoice.ErrAwardMismatch),
		errors.Is(err, invoice.ErrDisputeMismatch),
		errors.Is(err, invoice.ErrInvalidRuling),
		errors.Is(err, invoice.ErrInvalidResolverType),
		errors.Is(err, invoice.ErrInvalidDAO),
		errors.Is(err, invoice.ErrTokenMismatch),
		errors.Is(err, invoice.ErrRedirectUnsupported),
		errors.Is(err, registry.ErrInvalidRate):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
