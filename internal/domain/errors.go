package domain

import "errors"

// Domain errors
var (
	ErrUnauthenticated = errors.New("user session is required")
	ErrInvalidPayload  = errors.New("invalid JSON payload")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAuthRejected    = errors.New("authentication rejected by platform")
	ErrRecordNotFound  = errors.New("leaderboard record not found")
	ErrInvalidCursor   = errors.New("invalid pagination cursor")
	ErrInternalError   = errors.New("internal server error")
)

// IsCallerError reports whether an error is the caller's fault rather than
// a failure of the service or one of its backing stores.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInvalidCursor)
}
