package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// Common backend errors.
var (
	ErrUnexpectedResponse = errors.New("unexpected backend response")
	ErrUnauthorized       = errors.New("backend rejected credentials")
)

// Error is a non-2xx answer from the backend.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Unwrap lets callers match 401/403 with errors.Is(err, ErrUnauthorized).
func (e *Error) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}
