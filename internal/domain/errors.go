package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")

	ErrAlreadyExists      = errors.New("pool already exists for tournament")
	ErrAlreadyClosed      = errors.New("pool already closed")
	ErrAlreadyDistributed = errors.New("pool already distributed")
	ErrPoolClosed         = errors.New("pool is not accepting contributions")
	ErrPoolOpen           = errors.New("pool is still collecting")
	ErrLedgerConflict     = errors.New("ledger state changed concurrently")

	ErrGatewayUnavailable = errors.New("payment gateway temporarily unavailable")
	ErrGatewayTimeout     = fmt.Errorf("%w: timeout", ErrGatewayUnavailable)
	ErrGatewayRejected    = errors.New("payment declined")

	ErrInvalidNotification = errors.New("invalid gateway notification")
)

type Kind string

const (
	KindValidation         Kind = "VALIDATION_ERROR"
	KindNotFound           Kind = "NOT_FOUND"
	KindConflict           Kind = "CONFLICT"
	KindGatewayUnavailable Kind = "GATEWAY_UNAVAILABLE"
	KindGatewayRejected    Kind = "GATEWAY_REJECTED"
	KindInternal           Kind = "INTERNAL"
)

// ErrorKind classifies err into the settlement error taxonomy.
func ErrorKind(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidNotification):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrAlreadyClosed),
		errors.Is(err, ErrAlreadyDistributed),
		errors.Is(err, ErrPoolClosed),
		errors.Is(err, ErrPoolOpen),
		errors.Is(err, ErrLedgerConflict):
		return KindConflict
	case errors.Is(err, ErrGatewayRejected):
		return KindGatewayRejected
	case errors.Is(err, ErrGatewayUnavailable):
		return KindGatewayUnavailable
	}
	return KindInternal
}
