package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"rallyup/backend/internal/store"
)

func TestWriteErr(t *testing.T) {
	assert.NoError(t, WriteErr(nil, "x"))

	err := WriteErr(fmt.Errorf("%w: users/u1", store.ErrNotFound), "update %s", "u1")
	assert.True(t, IsErrNotFound(err))
	assert.False(t, IsErrWriteFailure(err))

	cause := errors.New("deadline exceeded")
	err = WriteErr(cause, "update %s", "u1")
	assert.True(t, IsErrWriteFailure(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "update u1")
}

func TestReadErr(t *testing.T) {
	assert.NoError(t, ReadErr(nil, "x"))
	assert.True(t, IsErrNotFound(ReadErr(store.ErrNotFound, "get")))

	cause := errors.New("unavailable")
	err := ReadErr(cause, "get %s", "s1")
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsKnown(err))
}

func TestKindAndMessage(t *testing.T) {
	hostLeave := NewKind(ErrPermissionDenied, "host cannot leave", "Hosts can't leave their own session.")
	wrapped := fmt.Errorf("leave s1: %w", hostLeave)

	assert.True(t, IsErrPermissionDenied(wrapped))
	assert.True(t, IsKnown(wrapped))
	assert.Equal(t, "Hosts can't leave their own session.", Message(wrapped))

	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "This session is already full.", Message(ErrCapacityExceeded))
	assert.Equal(t, "Something went wrong. Please try again.", Message(errors.New("x")))

	pf := &PartialFailure{Op: "op", Completed: []string{"a"}, Failed: "b", Err: hostLeave}
	assert.Contains(t, Message(pf), "Some changes were saved")
}

func TestParseEnums(t *testing.T) {
	sp, err := ParseSport(" Tennis ")
	assert.NoError(t, err)
	assert.Equal(t, SportTennis, sp)

	_, err = ParseSport("curling")
	assert.True(t, IsErrBadRequest(err))

	lvl, err := ParseSkillLevel("ADVANCED")
	assert.NoError(t, err)
	assert.Equal(t, SkillAdvanced, lvl)
	_, err = ParseSkillLevel("guru")
	assert.True(t, IsErrBadRequest(err))
}

func TestValidate(t *testing.T) {
	type in struct {
		Sport string   `validate:"sport"`
		Skill string   `validate:"omitempty,skill"`
		Loc   GeoPoint
	}
	assert.NoError(t, Validate(in{Sport: "tennis", Loc: GeoPoint{Lat: 1, Lng: 1}}))

	err := Validate(in{Sport: "curling", Skill: "guru", Loc: GeoPoint{Lat: 100, Lng: 1}})
	assert.True(t, IsErrBadRequest(err))
	assert.Contains(t, err.Error(), "Sport")
	assert.Contains(t, err.Error(), "Lat")
}
