package server

import "time"

// TicketSummary describes a cached ticket without its token and sign
type TicketSummary struct {
	TenantID   int64     `json:"tenant_id"`
	Service    string    `json:"service"`
	Expiration time.Time `json:"expiration"`
	ExpiresIn  string    `json:"expires_in"`
	Stale      bool      `json:"stale"`
}

// TicketListResponse is the response for the ticket list endpoint
type TicketListResponse struct {
	Tickets []TicketSummary `json:"tickets"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
