package attendance

import "errors"

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrMemberNotFound   = errors.New("member not found")
	ErrInvalidEventType = errors.New("invalid event type")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrInvalidInput     = errors.New("invalid input")
)
