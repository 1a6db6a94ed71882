package externalApi

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("error not found")

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}
