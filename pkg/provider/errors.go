package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidResponse is returned when an upstream payload decodes but fails
// its sanity bounds. It counts as a provider failure.
var ErrInvalidResponse = errors.New("invalid provider response")

// ErrorClass represents a classification of provider errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassValidation represents payloads that decoded but failed
	// sanity bounds.
	ErrorClassValidation ErrorClass = "validation"
)

// Error represents a provider-specific error with additional context.
type Error struct {
	Provider   string
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s error (status %d): %s: %v",
			e.Provider, e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s error (status %d): %s",
		e.Provider, e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Classify categorizes a response/error pair.
func Classify(resp *http.Response, err error) ErrorClass {
	if err != nil || resp == nil {
		return ErrorClassNetwork
	}
	return classifyStatus(resp.StatusCode)
}

// classifyStatus categorizes a non-200 HTTP status.
func classifyStatus(status int) ErrorClass {
	if status >= 400 && status < 500 {
		return ErrorClassClient
	}
	return ErrorClassServer
}
