package domain

import "errors"

var (
	ErrValidation   = errors.New("invalid request")
	ErrUnauthorized = errors.New("not a participant")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflicting write")
)
