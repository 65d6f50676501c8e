package models

import "fmt"

// APIError is an upstream failure that is kept as data next to the value it
// failed to produce.
type APIError struct {
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	return e.Message
}

// NewAPIError builds an APIError from any error. It returns nil for a nil error.
func NewAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}
	return &APIError{Message: err.Error()}
}
