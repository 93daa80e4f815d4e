package domain

import "errors"

// Errors shared across the call core and the tutor API. Callers match them
// with errors.Is; producers wrap them with fmt.Errorf("%w: ...").
var (
	ErrCredential         = errors.New("credential acquisition failed")
	ErrMediaAccess        = errors.New("media access failed")
	ErrSignaling          = errors.New("signaling failed")
	ErrCallCancelled      = errors.New("call start cancelled")
	ErrCallInProgress     = errors.New("call already in progress")
	ErrPersistence        = errors.New("persistence failed")
	ErrChannelUnavailable = errors.New("data channel not open")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrForbidden          = errors.New("forbidden")
)
