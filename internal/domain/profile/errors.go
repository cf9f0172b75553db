package profile

import (
	"errors"

	"rallyup/backend/internal/domain"
)

var (
	ErrNotFound   = domain.ErrNotFound
	ErrBadRequest = domain.ErrBadRequest

	// ErrMalformedProfile is a stored profile missing a required field. It is
	// distinct from an incomplete profile, which is valid but lacks bio/sports.
	ErrMalformedProfile = domain.NewKind(domain.ErrMalformedData,
		"malformed profile",
		"This profile is missing required information and can't be shown.")
)

func IsErrNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsErrBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

func IsErrMalformedProfile(err error) bool {
	return errors.Is(err, ErrMalformedProfile)
}
