package model

import (
	"errors"
	"fmt"
)

// TransportError represents network, timeout or body read failures
type TransportError struct {
	Op    string
	URL   string
	Cause error
}

func (e *TransportError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("transport error [%s] %s: %v", e.Op, e.URL, e.Cause)
	}
	return fmt.Sprintf("transport error [%s]: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError creates a new transport error
func NewTransportError(op, url string, cause error) *TransportError {
	return &TransportError{
		Op:    op,
		URL:   url,
		Cause: cause,
	}
}

// RemoteFault is a rejection reported by the authority, verbatim
type RemoteFault struct {
	Code    string
	Message string
}

func (e *RemoteFault) Error() string {
	return fmt.Sprintf("remote fault [%s]: %s", e.Code, e.Message)
}

// NewRemoteFault creates a new remote fault
func NewRemoteFault(code, message string) *RemoteFault {
	return &RemoteFault{
		Code:    code,
		Message: message,
	}
}

// TooSoonError is returned when a ticket is requested while the previous one
// is still valid on the authority side
type TooSoonError struct {
	Fault RemoteFault
	Hint  string
}

func (e *TooSoonError) Error() string {
	return fmt.Sprintf("ticket requested too soon [%s]: %s", e.Fault.Code, e.Hint)
}

// Unwrap exposes the underlying fault so errors.As(*RemoteFault) also matches
func (e *TooSoonError) Unwrap() error {
	return &e.Fault
}

// NewTooSoonError creates a new too-soon error
func NewTooSoonError(code, message string) *TooSoonError {
	return &TooSoonError{
		Fault: RemoteFault{Code: code, Message: message},
		Hint:  "a ticket for this service was issued recently, retry in a few minutes",
	}
}

// MalformedResponse represents a required field that is absent or unparseable
type MalformedResponse struct {
	Field string
	Cause error
}

func (e *MalformedResponse) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed response: field %s (%v)", e.Field, e.Cause)
	}
	return fmt.Sprintf("malformed response: missing field %s", e.Field)
}

func (e *MalformedResponse) Unwrap() error {
	return e.Cause
}

// NewMalformedResponse creates a new malformed response error
func NewMalformedResponse(field string, cause error) *MalformedResponse {
	return &MalformedResponse{
		Field: field,
		Cause: cause,
	}
}

// CredentialsUnavailable means the credential source yielded nothing
type CredentialsUnavailable struct {
	Identity ServiceIdentity
	Cause    error
}

func (e *CredentialsUnavailable) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("credentials unavailable for %s (%v)", e.Identity, e.Cause)
	}
	return fmt.Sprintf("credentials unavailable for %s", e.Identity)
}

func (e *CredentialsUnavailable) Unwrap() error {
	return e.Cause
}

// NewCredentialsUnavailable creates a new credentials error
func NewCredentialsUnavailable(id ServiceIdentity, cause error) *CredentialsUnavailable {
	return &CredentialsUnavailable{
		Identity: id,
		Cause:    cause,
	}
}

// SigningError represents a certificate or key that cannot be used for signing
type SigningError struct {
	Field   string
	Message string
	Cause   error
}

func (e *SigningError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("signing failed [%s]: %s (%v)", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("signing failed [%s]: %s", e.Field, e.Message)
}

func (e *SigningError) Unwrap() error {
	return e.Cause
}

// NewSigningError creates a new signing error
func NewSigningError(field, message string, cause error) *SigningError {
	return &SigningError{
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// IsRetryable reports whether the caller may retry the failed call as is
func IsRetryable(err error) bool {
	var transport *TransportError
	var tooSoon *TooSoonError
	return errors.As(err, &transport) || errors.As(err, &tooSoon)
}

// IsFatal reports configuration-level failures that retrying will not fix
func IsFatal(err error) bool {
	var signing *SigningError
	var creds *CredentialsUnavailable
	return errors.As(err, &signing) || errors.As(err, &creds)
}
