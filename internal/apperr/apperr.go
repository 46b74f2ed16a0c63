// Package apperr defines the error taxonomy shared by the payment core.
// Every error carries a stable machine-readable kind plus a human message;
// handlers map the kind to an HTTP status without string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	KindUnauthorized      = "unauthorized"
	KindValidation        = "validation_error"
	KindInvalidPayment    = "invalid_payment"
	KindPaymentOverdue    = "payment_overdue"
	KindIPGNotAllowed     = "ipg_not_allowed"
	KindPaymentNotFound   = "payment_not_found"
	KindBusinessNotFound  = "business_not_found"
	KindWalletNotFound    = "wallet_not_found"
	KindInsufficientFunds = "insufficient_funds"
	KindGatewayError      = "gateway_error"
	KindSettlementFailed  = "settlement_failed"
)

type Error struct {
	Status  int    `json:"-"`
	Kind    string `json:"error"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func New(status int, kind, format string, args ...any) *Error {
	return &Error{Status: status, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap keeps the underlying error reachable through errors.Unwrap while the
// caller-facing kind and message stay stable.
func Wrap(cause error, status int, kind, format string, args ...any) *Error {
	return &Error{Status: status, Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// From extracts the *Error from err, or maps unknown errors to a 500.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Status: http.StatusInternalServerError, Kind: "internal_error", Message: err.Error()}
}

// IsKind reports whether err carries the given stable kind.
func IsKind(err error, kind string) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}
