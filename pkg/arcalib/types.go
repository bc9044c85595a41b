// Package arcalib provides a public API for authenticating against the ARCA
// (formerly AFIP) fiscal web services.
//
// It obtains WSAA tickets with a tenant certificate, caches them per tenant
// and service, and uses them for authenticated WSFEv1 calls.
//
// Example usage:
//
//	client := arcalib.NewClient(arcalib.DefaultOptions())
//	source := arcalib.NewFileSource(20123456789, "cert.pem", "key.pem")
//	result, err := client.CallWSFE(ctx, 20123456789, payload, source)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.AuthorizationCode)
package arcalib

import (
	"github.com/rezonia/arca-auth/internal/credentials"
	"github.com/rezonia/arca-auth/internal/health"
	"github.com/rezonia/arca-auth/internal/model"
	"github.com/rezonia/arca-auth/internal/wsaa"
)

// Re-export core types for public API
type (
	Service          = model.Service
	Environment      = model.Environment
	ServiceIdentity  = model.ServiceIdentity
	AuthTicket       = model.AuthTicket
	CredentialBundle = model.CredentialBundle
	DomainResult     = model.DomainResult
	Observation      = model.Observation
	HealthStatus     = health.Status
)

// Re-export services
const (
	ServiceWSFE    = model.ServiceWSFE
	ServiceWSFEX   = model.ServiceWSFEX
	ServiceWSMTXCA = model.ServiceWSMTXCA
)

// Re-export environments
const (
	EnvTesting    = model.EnvTesting
	EnvProduction = model.EnvProduction
)

// Re-export error types
type (
	TransportError         = model.TransportError
	RemoteFault            = model.RemoteFault
	TooSoonError           = model.TooSoonError
	MalformedResponse      = model.MalformedResponse
	CredentialsUnavailable = model.CredentialsUnavailable
	SigningError           = model.SigningError
)

// Re-export credential sources
type (
	CredentialSource     = wsaa.CredentialSource
	CredentialSourceFunc = wsaa.CredentialSourceFunc
	FileSource           = credentials.FileSource
	VaultSource          = credentials.VaultSource
)

// NewFileSource reads certificate and key PEM files on every renewal
func NewFileSource(tenantID int64, certFile, keyFile string) *FileSource {
	return credentials.NewFileSource(tenantID, certFile, keyFile)
}

// IsRetryable reports whether a failed call may be retried as is
func IsRetryable(err error) bool {
	return model.IsRetryable(err)
}

// IsFatal reports failures caused by configuration, not by the remote side
func IsFatal(err error) bool {
	return model.IsFatal(err)
}
