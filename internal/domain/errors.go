package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrNotReady      = errors.New("not ready")
	ErrConfiguration = errors.New("configuration error")
	ErrInvalidInput  = errors.New("invalid input")
)
