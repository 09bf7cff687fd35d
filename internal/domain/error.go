package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrOperationFailed = errors.New("operation failed")

	// Storage-layer errors
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Validation errors (no network call is made when these are returned)
	ErrMissingSubscriptionID = errors.New("subscription id is required")
	ErrConfirmationRequired  = errors.New("cancellation must be explicitly confirmed")
	ErrInvalidAmount         = errors.New("invalid payment amount")

	// Authorization errors
	ErrUnauthorized     = errors.New("missing or invalid identity")
	ErrPermissionDenied = errors.New("not allowed to act on this record")

	// Gateway configuration / call errors
	ErrCredentialsMissing = errors.New("payment credentials missing for resolved mode")
	ErrGatewayAuthFailed  = errors.New("payment provider rejected credential exchange")
	ErrCaptureIncomplete  = errors.New("capture did not complete")
	ErrIndeterminate      = errors.New("gateway call outcome is indeterminate")

	// Webhook verification errors
	ErrMissingVerificationHeaders = errors.New("missing webhook verification headers")
	ErrInvalidSignature           = errors.New("webhook signature verification failed")
	ErrDuplicateEvent             = errors.New("webhook event already recorded")
)

// GatewayError carries provider-supplied diagnostics across the service
// boundary so operators can cross-reference provider-side logs. It wraps one
// of the sentinel gateway errors above.
type GatewayError struct {
	Op      string // gateway operation, e.g. "capture_order"
	Name    string // provider error name, e.g. "UNPROCESSABLE_ENTITY"
	Message string
	DebugID string
	Details []string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.DebugID != "" {
		return fmt.Sprintf("%s: %s (debug_id=%s)", e.Op, e.Message, e.DebugID)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }
