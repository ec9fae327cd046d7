package shared

import "errors"

// Sentinels shared across module boundaries. Module-specific failures
// live with their module; only errors the middleware and more than one
// handler need belong here.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCSRFTokenMissing   = errors.New("csrf token missing")
	ErrCSRFTokenMismatch  = errors.New("csrf token mismatch")
)
