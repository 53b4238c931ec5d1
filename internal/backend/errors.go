package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// TransientError is a retryable failure: network down, timeout, server busy.
// The queue entry stays queued for the next drain.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError means the backend rejected the payload or the referenced
// entity no longer exists. Retrying the same payload will not help.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent %s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// ErrNotFound is returned when a referenced remote entity is gone.
var ErrNotFound = errors.New("backend: entity not found")

// ErrUnavailable is returned by backends that are offline.
var ErrUnavailable = errors.New("backend: unavailable")

// Class is the outcome class of a remote call.
type Class int

const (
	ClassOK Class = iota
	ClassTransient
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassTransient:
		return "transient"
	default:
		return "permanent"
	}
}

// Classify maps err into the retry taxonomy. Only connection, timeout and
// server-side retryable failures are transient; anything else, client-side
// encode errors included, is permanent so the retry ceiling applies.
func Classify(err error) Class {
	if err == nil {
		return ClassOK
	}

	var te *TransientError
	if errors.As(err, &te) {
		return ClassTransient
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return ClassPermanent
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrUnavailable):
		return ClassTransient
	case errors.Is(err, context.Canceled):
		return ClassTransient
	case errors.Is(err, ErrNotFound):
		return ClassPermanent
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassTransient
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return ClassTransient
	}

	return ClassPermanent
}

// classifySQLState sorts PostgreSQL error classes. Class 08 (connection),
// 40 (transaction rollback), 53 (insufficient resources), 57 (operator
// intervention) and 58 (system error) are worth retrying; the rest are not.
func classifySQLState(code string) Class {
	if len(code) < 2 {
		return ClassPermanent
	}
	switch code[:2] {
	case "08", "40", "53", "57", "58":
		return ClassTransient
	}
	return ClassPermanent
}
