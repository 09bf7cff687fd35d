package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain"
)

type errorBody struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Name    string   `json:"name,omitempty"`
	Message string   `json:"message,omitempty"`
	DebugID string   `json:"debug_id,omitempty"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels onto HTTP statuses. Unknown errors become
// an opaque 500 so internals never leak to clients. Provider diagnostics on a
// GatewayError (name, message, debug_id, details) ride along so callers can
// cross-reference PayPal's own logs.
func writeError(w http.ResponseWriter, err error) {
	write := func(status int, b errorBody) {
		var gerr *domain.GatewayError
		if errors.As(err, &gerr) {
			b.Name = gerr.Name
			b.Message = gerr.Message
			b.DebugID = gerr.DebugID
			b.Details = gerr.Details
		}
		writeJSON(w, status, b)
	}
	switch {
	case errors.Is(err, domain.ErrConfirmationRequired):
		write(http.StatusBadRequest, errorBody{Error: "cancellation must be explicitly confirmed", Code: "confirmation_required"})
	case errors.Is(err, domain.ErrInvalidAmount):
		write(http.StatusBadRequest, errorBody{Error: "payment amount does not match the plan price", Code: "invalid_amount"})
	case errors.Is(err, domain.ErrMissingSubscriptionID):
		write(http.StatusBadRequest, errorBody{Error: "subscription id is required", Code: "missing_subscription_id"})
	case errors.Is(err, domain.ErrInvalidArgument):
		write(http.StatusBadRequest, errorBody{Error: "invalid request", Code: "invalid_argument"})
	case errors.Is(err, domain.ErrMissingVerificationHeaders), errors.Is(err, domain.ErrInvalidSignature):
		write(http.StatusBadRequest, errorBody{Error: "webhook verification failed", Code: "verification_failed"})
	case errors.Is(err, domain.ErrUnauthorized):
		write(http.StatusUnauthorized, errorBody{Error: "unauthorized", Code: "unauthorized"})
	case errors.Is(err, domain.ErrPermissionDenied):
		write(http.StatusForbidden, errorBody{Error: "forbidden", Code: "forbidden"})
	case errors.Is(err, domain.ErrNotFound):
		write(http.StatusNotFound, errorBody{Error: "not found", Code: "not_found"})
	case errors.Is(err, domain.ErrIndeterminate):
		write(http.StatusBadGateway, errorBody{Error: "payment outcome is indeterminate, do not retry", Code: "indeterminate"})
	case errors.Is(err, domain.ErrCaptureIncomplete):
		write(http.StatusBadGateway, errorBody{Error: "payment capture did not complete", Code: "capture_incomplete"})
	case errors.Is(err, domain.ErrGatewayAuthFailed), errors.Is(err, domain.ErrCredentialsMissing):
		write(http.StatusBadGateway, errorBody{Error: "payment provider unavailable", Code: "gateway_unavailable"})
	default:
		write(http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
