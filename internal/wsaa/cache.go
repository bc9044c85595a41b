package wsaa

import (
	"context"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rezonia/arca-auth/internal/metrics"
	"github.com/rezonia/arca-auth/internal/model"
)

// DefaultRenewalMargin is how long before expiration a ticket is treated as stale
const DefaultRenewalMargin = 15 * time.Minute

// Cache lookup outcomes
const (
	outcomeHit   = "hit"
	outcomeRenew = "renew"
)

// AuthFormatter renders a ticket into the auth block of a downstream protocol
type AuthFormatter func(tenantID int64, token, sign string) string

// CredentialSource supplies the certificate and key used to renew a ticket.
// A nil bundle with a nil error means no credentials exist for the tenant.
type CredentialSource interface {
	Credentials(ctx context.Context) (*model.CredentialBundle, error)
}

// CredentialSourceFunc adapts a function to CredentialSource
type CredentialSourceFunc func(ctx context.Context) (*model.CredentialBundle, error)

// Credentials implements CredentialSource
func (f CredentialSourceFunc) Credentials(ctx context.Context) (*model.CredentialBundle, error) {
	return f(ctx)
}

// CachedTicket is a read-only view of a cache entry
type CachedTicket struct {
	Identity model.ServiceIdentity
	Ticket   model.AuthTicket
}

type entry struct {
	identity model.ServiceIdentity
	ticket   model.AuthTicket
}

// TicketCache keeps the current ticket per tenant and service, renewing it
// lazily when it gets within the renewal margin of its expiration.
//
// It is safe for concurrent use. No lock is held while the credential source
// or WSAA is called, so concurrent callers that find the same stale entry
// each renew on their own and the last one stored wins, unless renewal
// coalescing is enabled.
type TicketCache struct {
	requester TicketRequester
	store     *cache.Cache
	margin    time.Duration
	clock     clockwork.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics
	coalesce  bool
	timeout   time.Duration
	renewals  singleflight.Group
}

// CacheOption configures a TicketCache
type CacheOption func(*TicketCache)

// WithRenewalMargin sets how long before expiration a ticket is renewed
func WithRenewalMargin(d time.Duration) CacheOption {
	return func(c *TicketCache) {
		c.margin = d
	}
}

// WithCacheClock sets the clock used for expiration checks
func WithCacheClock(clock clockwork.Clock) CacheOption {
	return func(c *TicketCache) {
		c.clock = clock
	}
}

// WithCacheLogger sets the logger
func WithCacheLogger(l *zap.Logger) CacheOption {
	return func(c *TicketCache) {
		c.logger = l
	}
}

// WithCacheMetrics sets the metrics sink
func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *TicketCache) {
		c.metrics = m
	}
}

// WithRenewalCoalescing makes concurrent renewals of the same identity share
// one exchange. The shared exchange is detached from the cancellation of the
// caller that started it and bounded by the renewal timeout instead; each
// caller stops waiting when its own context is done.
func WithRenewalCoalescing() CacheOption {
	return func(c *TicketCache) {
		c.coalesce = true
	}
}

// WithRenewalTimeout bounds a shared renewal when coalescing is enabled
func WithRenewalTimeout(d time.Duration) CacheOption {
	return func(c *TicketCache) {
		c.timeout = d
	}
}

// NewTicketCache creates an empty cache renewing through requester
func NewTicketCache(requester TicketRequester, opts ...CacheOption) *TicketCache {
	c := &TicketCache{
		requester: requester,
		// entries live as long as the cache; staleness is judged by margin
		store:   cache.New(cache.NoExpiration, 0),
		margin:  DefaultRenewalMargin,
		timeout: 2 * DefaultTimeout,
		clock:   clockwork.NewRealClock(),
		logger:  zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RenewalMargin returns the configured margin
func (c *TicketCache) RenewalMargin() time.Duration {
	return c.margin
}

// GetOrRenew returns format applied to a valid ticket for id, renewing it
// with credentials from source when missing or within the renewal margin.
func (c *TicketCache) GetOrRenew(ctx context.Context, id model.ServiceIdentity, source CredentialSource, format AuthFormatter) (string, error) {
	if ticket, ok := c.Peek(id); ok && !ticket.ExpiresWithin(c.clock.Now(), c.margin) {
		c.metrics.RecordCacheLookup(id.Service.String(), outcomeHit)
		return format(ticket.TenantID, ticket.Token, ticket.Sign), nil
	}

	c.metrics.RecordCacheLookup(id.Service.String(), outcomeRenew)

	ticket, err := c.renew(ctx, id, source)
	if err != nil {
		return "", err
	}
	return format(ticket.TenantID, ticket.Token, ticket.Sign), nil
}

// Peek returns the cached ticket for id regardless of its expiration
func (c *TicketCache) Peek(id model.ServiceIdentity) (model.AuthTicket, bool) {
	v, ok := c.store.Get(id.Key())
	if !ok {
		return model.AuthTicket{}, false
	}
	return v.(entry).ticket, true
}

// Snapshot lists the cached tickets ordered by identity
func (c *TicketCache) Snapshot() []CachedTicket {
	items := c.store.Items()

	out := make([]CachedTicket, 0, len(items))
	for _, item := range items {
		e := item.Object.(entry)
		out = append(out, CachedTicket{Identity: e.identity, Ticket: e.ticket})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity.Key() < out[j].Identity.Key()
	})
	return out
}

// Len returns the number of cached tickets
func (c *TicketCache) Len() int {
	return c.store.ItemCount()
}

func (c *TicketCache) renew(ctx context.Context, id model.ServiceIdentity, source CredentialSource) (model.AuthTicket, error) {
	if !c.coalesce {
		return c.doRenew(ctx, id, source)
	}

	ch := c.renewals.DoChan(id.Key(), func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.doRenew(shared, id, source)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("joined in-flight ticket renewal", zap.Stringer("identity", id))
		}
		if res.Err != nil {
			return model.AuthTicket{}, res.Err
		}
		return res.Val.(model.AuthTicket), nil
	case <-ctx.Done():
		c.logger.Debug("stopped waiting for ticket renewal", zap.Stringer("identity", id), zap.Error(ctx.Err()))
		return model.AuthTicket{}, model.NewTransportError("renew", "", ctx.Err())
	}
}

func (c *TicketCache) doRenew(ctx context.Context, id model.ServiceIdentity, source CredentialSource) (model.AuthTicket, error) {
	c.logger.Debug("renewing ticket", zap.Stringer("identity", id))

	creds, err := source.Credentials(ctx)
	if err != nil {
		return model.AuthTicket{}, model.NewCredentialsUnavailable(id, err)
	}
	if creds == nil {
		return model.AuthTicket{}, model.NewCredentialsUnavailable(id, nil)
	}

	ticket, err := c.requester.RequestTicket(ctx, id.Service, *creds)
	if err != nil {
		return model.AuthTicket{}, err
	}

	c.store.Set(id.Key(), entry{identity: id, ticket: *ticket}, cache.NoExpiration)
	return *ticket, nil
}
