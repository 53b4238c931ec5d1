package model

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures surfaced to Lifecycle Manager callers.
type ErrorCode string

const (
	// ErrCodeValidation indicates malformed input (bad quantity, empty split).
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeNotFound indicates the referenced order or entity is missing.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeTerminal indicates a mutation of a Completed or Cancelled order.
	ErrCodeTerminal ErrorCode = "TERMINAL_ORDER"

	// ErrCodeTableOccupied indicates the target table already holds an active order.
	ErrCodeTableOccupied ErrorCode = "TABLE_OCCUPIED"

	// ErrCodeInvalidTransition indicates a status move the state machine forbids.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// ErrCodeLocalStorage indicates the local store could not be used.
	ErrCodeLocalStorage ErrorCode = "LOCAL_STORAGE"
)

// Error is a structured failure returned by offpos operations.
type Error struct {
	Code    ErrorCode
	Message string
	OrderID string
	TableID string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.OrderID != "":
		return fmt.Sprintf("%s: %s (order=%s)", e.Code, e.Message, e.OrderID)
	case e.TableID != "":
		return fmt.Sprintf("%s: %s (table=%s)", e.Code, e.Message, e.TableID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HasCode reports whether err wraps an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return HasCode(err, ErrCodeNotFound) }

// IsValidation reports whether err is a VALIDATION error.
func IsValidation(err error) bool { return HasCode(err, ErrCodeValidation) }

// IsTerminal reports whether err is a TERMINAL_ORDER error.
func IsTerminal(err error) bool { return HasCode(err, ErrCodeTerminal) }

// IsTableOccupied reports whether err is a TABLE_OCCUPIED error.
func IsTableOccupied(err error) bool { return HasCode(err, ErrCodeTableOccupied) }

// IsInvalidTransition reports whether err is an INVALID_TRANSITION error.
func IsInvalidTransition(err error) bool { return HasCode(err, ErrCodeInvalidTransition) }

// NotFound creates a NOT_FOUND error for an order id.
func NotFound(orderID string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: "order not found", OrderID: orderID}
}

// NoActiveOrder creates a NOT_FOUND error for a table without an active order.
func NoActiveOrder(tableID string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: "no active order for table", TableID: tableID}
}

// Terminal creates a TERMINAL_ORDER error.
func Terminal(o Order) *Error {
	return &Error{
		Code:    ErrCodeTerminal,
		Message: fmt.Sprintf("order is %s", o.Status),
		OrderID: o.ID,
	}
}

// Occupied creates a TABLE_OCCUPIED error.
func Occupied(tableID, orderID string) *Error {
	return &Error{
		Code:    ErrCodeTableOccupied,
		Message: fmt.Sprintf("table already has active order %s", orderID),
		TableID: tableID,
	}
}

// Invalid creates a VALIDATION error.
func Invalid(format string, args ...any) *Error {
	return &Error{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition creates an INVALID_TRANSITION error.
func InvalidTransition(o Order, to Status) *Error {
	return &Error{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot move from %s to %s", o.Status, to),
		OrderID: o.ID,
	}
}
