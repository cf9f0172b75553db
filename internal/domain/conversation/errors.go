package conversation

import (
	"errors"

	"rallyup/backend/internal/domain"
)

var (
	ErrBadRequest = domain.ErrBadRequest
	ErrNotFound   = domain.ErrNotFound

	ErrCannotMessageSelf = domain.NewKind(domain.ErrPermissionDenied,
		"cannot message yourself",
		"You can't start a conversation with yourself.")
	ErrNotParticipant = domain.NewKind(domain.ErrPermissionDenied,
		"not a participant of this conversation",
		"You're not part of this conversation.")
	ErrPairConflict = domain.NewKind(domain.ErrWriteFailure,
		"conversation id is held by another pair",
		"We couldn't start this conversation. Please try again.")
	ErrMalformedConversation = domain.NewKind(domain.ErrMalformedData,
		"malformed conversation",
		"This conversation is damaged and can't be shown.")
)

func IsErrCannotMessageSelf(err error) bool {
	return errors.Is(err, ErrCannotMessageSelf)
}

func IsErrNotParticipant(err error) bool {
	return errors.Is(err, ErrNotParticipant)
}

func IsErrNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsErrPairConflict(err error) bool {
	return errors.Is(err, ErrPairConflict)
}
