package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrEmptyInput    = errors.New("empty input")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrNotHydrated   = errors.New("criterion not hydrated")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrRunFailed     = errors.New("run failed")
)
