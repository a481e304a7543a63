package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses and sender faults.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassRateLimit represents 429 and 408 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassFault represents SOAP faults raised by the service.
	ErrorClassFault ErrorClass = "fault"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents responses that could not be parsed.
	ErrorClassDecode ErrorClass = "decode"
)

// ErrInvalidConfig is returned by New for unusable configuration.
var ErrInvalidConfig = errors.New("invalid client config")

// SherpaError represents a failed Sherpa service call.
type SherpaError struct {
	Service    string
	StatusCode int
	ErrorClass ErrorClass
	FaultCode  string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *SherpaError) Error() string {
	msg := fmt.Sprintf("Sherpa %s %s error", e.Service, e.ErrorClass)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.FaultCode != "" {
		msg += " [" + e.FaultCode + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SherpaError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the call may succeed.
func (e *SherpaError) Retryable() bool {
	return shouldRetry(e.ErrorClass)
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// a rejected request fails the same way every time
		return false
	case ErrorClassRateLimit, ErrorClassServer, ErrorClassFault, ErrorClassNetwork, ErrorClassDecode:
		return true
	default:
		return false
	}
}

// classifyStatus maps an HTTP status to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
