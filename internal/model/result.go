package model

import "time"

// Observation is a code+message pair returned by a fiscal service
type Observation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DomainResult is the outcome of an accepted authenticated call
type DomainResult struct {
	// AuthorizationCode (CAE for WSFEv1)
	AuthorizationCode string `json:"authorization_code"`

	// Expiration of the authorization code, UTC
	Expiration time.Time `json:"expiration"`

	// Observations in the order the service returned them
	Observations []Observation `json:"observations,omitempty"`

	// ExpirationAssumed is set when the expiration date could not be parsed
	// and a fallback was used instead
	ExpirationAssumed bool `json:"expiration_assumed,omitempty"`
}
