package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies an external-service failure for the retry policy.
type ErrorKind int

const (
	// KindTransient covers network errors, timeouts, and rate limits. Retryable.
	KindTransient ErrorKind = iota
	// KindPermanent covers validation failures, refusals, and malformed output.
	KindPermanent
)

// ServiceError wraps a failure from an external collaborator with its kind.
type ServiceError struct {
	Kind    ErrorKind
	Service string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Transient marks err as a retryable service failure.
func Transient(service string, err error) error {
	return &ServiceError{Kind: KindTransient, Service: service, Err: err}
}

// Permanent marks err as a non-retryable service failure.
func Permanent(service string, err error) error {
	return &ServiceError{Kind: KindPermanent, Service: service, Err: err}
}

// IsTransient reports whether err should be retried. Unclassified errors are
// treated as transient: a bare network failure deep in an SDK carries no kind,
// and retrying it is the safer default.
func IsTransient(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind == KindTransient
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// IsPermanent reports whether err is classified as non-retryable.
func IsPermanent(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Kind == KindPermanent
}

// classifyStatus turns an HTTP response status into a kind: 408, 429 and 5xx
// are transient, every other non-2xx is permanent.
func classifyStatus(service string, status int, body []byte) error {
	err := fmt.Errorf("API error (status %d): %s", status, string(body))
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500 {
		return Transient(service, err)
	}
	return Permanent(service, err)
}
