// Package apperr defines the error taxonomy shared by the cart, checkout,
// fulfillment and payment services and its mapping onto HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindForbidden
	KindPayment
	KindInvalidTransition
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindForbidden:
		return "FORBIDDEN"
	case KindPayment:
		return "PAYMENT"
	case KindInvalidTransition:
		return "INVALID_TRANSITION"
	default:
		return "INTERNAL"
	}
}

// Error is a domain failure safe to show to the caller. Details carries
// structured context such as stock shortfalls.
type Error struct {
	Kind    Kind
	Message string
	Details any
	// Declined marks payment errors caused by the card rather than the processor.
	Declined bool
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Payment(cause error, declined bool, format string, args ...any) *Error {
	return &Error{Kind: KindPayment, Message: fmt.Sprintf(format, args...), Declined: declined, cause: cause}
}

func InvalidTransition(from, to string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("cannot change status from %s to %s", from, to),
		Details: map[string]string{"current": from, "attempted": to},
	}
}

// StockShortfall describes one product that cannot cover the requested quantity.
type StockShortfall struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

func InsufficientStock(shortfalls []StockShortfall) *Error {
	msg := "insufficient stock"
	if len(shortfalls) == 1 {
		s := shortfalls[0]
		msg = fmt.Sprintf("insufficient stock for product %s: %d available, %d requested", s.Name, s.Available, s.Requested)
	} else if len(shortfalls) > 1 {
		msg = fmt.Sprintf("insufficient stock for %d products", len(shortfalls))
	}
	return &Error{Kind: KindConflict, Message: msg, Details: shortfalls}
}

func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func HTTPStatus(err error) int {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}

	switch appErr.Kind {
	case KindValidation, KindInvalidTransition:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindPayment:
		if appErr.Declined {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
