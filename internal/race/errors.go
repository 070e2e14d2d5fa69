package race

import "errors"

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrRaceAlreadyStarted   = errors.New("race already started")
	ErrInvalidRoomState     = errors.New("invalid room state")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrDuplicateParticipant = errors.New("already in room")
	ErrNotInRoom            = errors.New("not in room")
)
