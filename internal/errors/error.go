package errors

import (
	"errors"
)

var (
	ErrEmptyAuth        = errors.New("missing authorization")
	ErrEmptySubject     = errors.New("missing subject")
	ErrTokenInvalid     = errors.New("invalid token")
	ErrMissingJwtToken  = errors.New("missing jwt token in context")
	ErrMissingSessionID = errors.New("missing session token")
)
