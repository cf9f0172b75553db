package session

import (
	"errors"

	"rallyup/backend/internal/domain"
)

var (
	ErrBadRequest = domain.ErrBadRequest
	ErrNotFound   = domain.ErrNotFound

	ErrAlreadyFull = domain.NewKind(domain.ErrCapacityExceeded,
		"session is full",
		"This session is already full.")
	ErrHostCannotLeave = domain.NewKind(domain.ErrPermissionDenied,
		"host cannot leave own session",
		"Hosts can't leave their own session. Cancel it instead.")
	ErrNotHost = domain.NewKind(domain.ErrPermissionDenied,
		"only the host can change this session",
		"Only the host can change this session.")
	ErrCannotRemoveHost = domain.NewKind(domain.ErrPermissionDenied,
		"host cannot be removed",
		"The host can't be removed from their own session.")
	ErrMalformedSession = domain.NewKind(domain.ErrMalformedData,
		"malformed session",
		"This session's details are incomplete and can't be shown.")
)

func IsErrBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

func IsErrNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsErrAlreadyFull(err error) bool {
	return errors.Is(err, ErrAlreadyFull)
}

func IsErrHostCannotLeave(err error) bool {
	return errors.Is(err, ErrHostCannotLeave)
}

func IsErrNotHost(err error) bool {
	return errors.Is(err, ErrNotHost)
}

func IsErrCannotRemoveHost(err error) bool {
	return errors.Is(err, ErrCannotRemoveHost)
}
