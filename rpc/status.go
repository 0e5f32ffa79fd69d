package rpc

import (
	"github.com/NebulousLabs/errors"
	"github.com/lighttransport/francine/modules"
)

// status is the one-byte code written immediately before every response,
// carrying the error vocabulary of the modules package over the wire.
type status byte

const (
	statusOK status = iota
	statusInvalidArgument
	statusNotFound
	statusResourceExhausted
	statusUnimplemented
	statusInternal
	statusDataLoss
	statusCancelled
)

// statusFromError maps an error to its wire status code. A nil error maps to
// statusOK. An error not extending one of the modules sentinel errors maps to
// statusInternal, since an unclassified failure is treated as the server's
// fault rather than the caller's.
func statusFromError(err error) status {
	switch {
	case err == nil:
		return statusOK
	case errors.Contains(err, modules.ErrInvalidArgument):
		return statusInvalidArgument
	case errors.Contains(err, modules.ErrNotFound):
		return statusNotFound
	case errors.Contains(err, modules.ErrResourceExhausted):
		return statusResourceExhausted
	case errors.Contains(err, modules.ErrUnimplemented):
		return statusUnimplemented
	case errors.Contains(err, modules.ErrDataLoss):
		return statusDataLoss
	case errors.Contains(err, modules.ErrCancelled):
		return statusCancelled
	default:
		return statusInternal
	}
}

// errorFromStatus maps a wire status code back to a sentinel error; a
// non-empty message sent with the status is attached as extended context.
func errorFromStatus(s status, message string) error {
	var sentinel error
	switch s {
	case statusOK:
		return nil
	case statusInvalidArgument:
		sentinel = modules.ErrInvalidArgument
	case statusNotFound:
		sentinel = modules.ErrNotFound
	case statusResourceExhausted:
		sentinel = modules.ErrResourceExhausted
	case statusUnimplemented:
		sentinel = modules.ErrUnimplemented
	case statusDataLoss:
		sentinel = modules.ErrDataLoss
	case statusCancelled:
		sentinel = modules.ErrCancelled
	default:
		sentinel = modules.ErrInternal
	}
	if message == "" {
		return sentinel
	}
	return errors.Extend(sentinel, errors.New(message))
}
