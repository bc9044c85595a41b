package arcalib

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rezonia/arca-auth/internal/health"
	"github.com/rezonia/arca-auth/internal/model"
	"github.com/rezonia/arca-auth/internal/wsaa"
	"github.com/rezonia/arca-auth/internal/wsfe"
)

// Options configures a Client
type Options struct {
	// Environment selects homologation or production endpoints
	Environment Environment

	// RenewalMargin is how long before expiration a ticket is renewed
	RenewalMargin time.Duration

	// CoalesceRenewals makes concurrent renewals of one identity share a single exchange
	CoalesceRenewals bool

	// Timeouts per round trip
	WSAATimeout   time.Duration
	WSFETimeout   time.Duration
	HealthTimeout time.Duration

	// Endpoint overrides, empty means the environment default
	WSAAEndpoint string
	WSFEEndpoint string

	// Logger defaults to a no-op logger
	Logger *zap.Logger
}

// DefaultOptions returns options for the homologation environment
func DefaultOptions() Options {
	return Options{
		Environment:   EnvTesting,
		RenewalMargin: wsaa.DefaultRenewalMargin,
		WSAATimeout:   wsaa.DefaultTimeout,
		WSFETimeout:   wsfe.DefaultTimeout,
		HealthTimeout: health.DefaultTimeout,
	}
}

// Client holds a ticket cache shared by every tenant it serves
type Client struct {
	options Options
	tickets *wsaa.TicketCache
	wsfe    *wsfe.Client
	prober  *health.Prober
}

// NewClient creates a client with the given options
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	wsaaOpts := []wsaa.ClientOption{wsaa.WithLogger(logger)}
	if opts.WSAATimeout > 0 {
		wsaaOpts = append(wsaaOpts, wsaa.WithTimeout(opts.WSAATimeout))
	}
	if opts.WSAAEndpoint != "" {
		wsaaOpts = append(wsaaOpts, wsaa.WithEndpoint(opts.WSAAEndpoint))
	}

	cacheOpts := []wsaa.CacheOption{wsaa.WithCacheLogger(logger)}
	if opts.RenewalMargin > 0 {
		cacheOpts = append(cacheOpts, wsaa.WithRenewalMargin(opts.RenewalMargin))
	}
	if opts.CoalesceRenewals {
		cacheOpts = append(cacheOpts, wsaa.WithRenewalCoalescing())
		if opts.WSAATimeout > 0 {
			cacheOpts = append(cacheOpts, wsaa.WithRenewalTimeout(2*opts.WSAATimeout))
		}
	}
	tickets := wsaa.NewTicketCache(wsaa.NewClient(opts.Environment, wsaaOpts...), cacheOpts...)

	wsfeOpts := []wsfe.ClientOption{wsfe.WithLogger(logger)}
	if opts.WSFETimeout > 0 {
		wsfeOpts = append(wsfeOpts, wsfe.WithTimeout(opts.WSFETimeout))
	}
	if opts.WSFEEndpoint != "" {
		wsfeOpts = append(wsfeOpts, wsfe.WithEndpoint(opts.WSFEEndpoint))
	}

	return &Client{
		options: opts,
		tickets: tickets,
		wsfe:    wsfe.NewClient(opts.Environment, tickets, wsfeOpts...),
		prober:  health.NewProber(health.WithLogger(logger)),
	}
}

// Ticket returns a valid ticket for tenantID and service, renewing it with
// credentials from source when needed
func (c *Client) Ticket(ctx context.Context, tenantID int64, service Service, source CredentialSource) (*AuthTicket, error) {
	id := model.ServiceIdentity{TenantID: tenantID, Service: service}
	if _, err := c.tickets.GetOrRenew(ctx, id, source, func(int64, string, string) string { return "" }); err != nil {
		return nil, err
	}
	ticket, _ := c.tickets.Peek(id)
	return &ticket, nil
}

// AuthBlock returns the WSFEv1 <ar:Auth> element for tenantID
func (c *Client) AuthBlock(ctx context.Context, tenantID int64, source CredentialSource) (string, error) {
	id := model.ServiceIdentity{TenantID: tenantID, Service: model.ServiceWSFE}
	return c.tickets.GetOrRenew(ctx, id, source, wsfe.AuthBlock)
}

// CallWSFE sends payload as a FECAESolicitar request for tenantID
func (c *Client) CallWSFE(ctx context.Context, tenantID int64, payload string, source CredentialSource) (*DomainResult, error) {
	id := model.ServiceIdentity{TenantID: tenantID, Service: model.ServiceWSFE}
	return c.wsfe.CallAuthenticated(ctx, id, payload, source)
}

// Status probes the dummy operation of service
func (c *Client) Status(ctx context.Context, service Service) (HealthStatus, error) {
	probe, err := health.ForService(service, c.options.Environment)
	if err != nil {
		return HealthStatus{}, err
	}
	probe.Timeout = c.options.HealthTimeout
	return c.prober.Check(ctx, probe), nil
}
