package core

import (
	"errors"

	"github.com/healthbot/healthbot/internal/store"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrDuplicateUsername     = store.ErrDuplicateUsername
	ErrAuthenticationFailure = errors.New("invalid username or password")
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrUserNotFound          = errors.New("user not found")
	ErrNotFound              = errors.New("not found")
	ErrInferenceUnavailable  = errors.New("inference unavailable")
)
