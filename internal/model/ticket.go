package model

import (
	"fmt"
	"strings"
	"time"
)

// Service identifies a fiscal web service by the name WSAA expects
type Service string

// Known services
const (
	ServiceWSAA    Service = "wsaa"
	ServiceWSFE    Service = "wsfe"
	ServiceWSFEX   Service = "wsfex"
	ServiceWSMTXCA Service = "wsmtxca"
)

// ParseService converts a user supplied name to a Service
func ParseService(s string) (Service, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wsaa":
		return ServiceWSAA, nil
	case "wsfe", "wsfev1":
		return ServiceWSFE, nil
	case "wsfex", "wsfexv1":
		return ServiceWSFEX, nil
	case "wsmtxca":
		return ServiceWSMTXCA, nil
	default:
		return "", fmt.Errorf("unknown service %q", s)
	}
}

func (s Service) String() string {
	return string(s)
}

// Environment selects homologation or production endpoints
type Environment string

const (
	EnvTesting    Environment = "testing"
	EnvProduction Environment = "production"
)

// IsProduction reports whether production endpoints should be used
func (e Environment) IsProduction() bool {
	return e == EnvProduction
}

// ServiceIdentity is the cache key for a ticket: one tenant, one service
type ServiceIdentity struct {
	TenantID int64
	Service  Service
}

// Key returns the string form used by the ticket store
func (id ServiceIdentity) Key() string {
	return fmt.Sprintf("%d/%s", id.TenantID, id.Service)
}

func (id ServiceIdentity) String() string {
	return id.Key()
}

// AuthTicket is a token+sign pair issued by WSAA
type AuthTicket struct {
	TenantID   int64
	Token      string
	Sign       string
	Expiration time.Time
}

// ExpiresWithin reports whether the ticket expires before now+margin
func (t AuthTicket) ExpiresWithin(now time.Time, margin time.Duration) bool {
	return !t.Expiration.After(now.Add(margin))
}

// CredentialBundle holds PEM encoded certificate and private key for a tenant
type CredentialBundle struct {
	TenantID    int64
	Certificate []byte
	PrivateKey  []byte
}
