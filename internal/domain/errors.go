package domain

import "errors"

// Sentinel error kinds. Repositories and services wrap these with
// context via fmt.Errorf + %w; the HTTP layer maps them to status codes
// with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)
