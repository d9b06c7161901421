package auth

import "errors"

// ErrInvalidToken is the umbrella for every reason a bearer token or the
// identity it asserts is rejected. Callers expose it as a single generic
// authentication failure.
var ErrInvalidToken = errors.New("invalid token")

var (
	ErrTokenMalformed = wrapInvalid("token malformed")
	ErrTokenSignature = wrapInvalid("token signature invalid")
	ErrTokenExpired   = wrapInvalid("token expired")
	ErrTokenClaims    = wrapInvalid("token missing required claims")
	ErrUnknownSubject = wrapInvalid("token subject does not resolve to a user")
)

// ErrInactiveUser is returned for a valid identity whose account is disabled.
var ErrInactiveUser = errors.New("inactive user")

// ErrPasswordTooLong is returned when a password exceeds the bcrypt input limit.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

type tokenError struct {
	msg string
}

func (e *tokenError) Error() string { return e.msg }

func (e *tokenError) Unwrap() error { return ErrInvalidToken }

func wrapInvalid(msg string) error {
	return &tokenError{msg: msg}
}
