package wsfe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/rezonia/arca-auth/internal/endpoint"
	"github.com/rezonia/arca-auth/internal/metrics"
	"github.com/rezonia/arca-auth/internal/model"
	"github.com/rezonia/arca-auth/internal/wsaa"
)

// DefaultTimeout bounds a single WSFEv1 round trip
const DefaultTimeout = 60 * time.Second

// ContentType of WSFEv1 requests
const ContentType = "application/soap+xml"

// Request is a fully built call, ready to be logged or submitted
type Request struct {
	Identity  model.ServiceIdentity
	Operation string
	URL       string
	Envelope  string
}

// Client performs authenticated WSFEv1 calls
type Client struct {
	endpoint   string
	httpClient *http.Client
	tickets    *wsaa.TicketCache
	operation  string
	tags       ResponseTags
	timeout    time.Duration
	clock      clockwork.Clock
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithEndpoint overrides the WSFEv1 URL
func WithEndpoint(url string) ClientOption {
	return func(c *Client) {
		c.endpoint = url
	}
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithOperation sets the SOAP operation wrapped around payloads
func WithOperation(op string) ClientOption {
	return func(c *Client) {
		c.operation = op
	}
}

// WithResponseTags overrides the elements read from responses
func WithResponseTags(tags ResponseTags) ClientOption {
	return func(c *Client) {
		c.tags = tags
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithClock sets the clock used for the expiration fallback
func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a WSFEv1 client for env that takes tickets from tickets
func NewClient(env model.Environment, tickets *wsaa.TicketCache, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint.MustURL(model.ServiceWSFE, env),
		httpClient: &http.Client{},
		tickets:    tickets,
		operation:  DefaultOperation,
		tags:       DefaultTags,
		timeout:    DefaultTimeout,
		clock:      clockwork.NewRealClock(),
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// PrepareRequest obtains a ticket for id, renewing it through source when
// needed, and builds the envelope for payload without sending it.
func (c *Client) PrepareRequest(ctx context.Context, id model.ServiceIdentity, payload string, source wsaa.CredentialSource) (*Request, error) {
	auth, err := c.tickets.GetOrRenew(ctx, id, source, AuthBlock)
	if err != nil {
		return nil, err
	}

	return &Request{
		Identity:  id,
		Operation: c.operation,
		URL:       c.endpoint,
		Envelope:  BuildEnvelope(c.operation, auth, payload),
	}, nil
}

// Submit sends a prepared request and returns the raw response body with
// its HTTP status.
func (c *Client) Submit(ctx context.Context, req *Request) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader([]byte(req.Envelope)))
	if err != nil {
		return "", 0, model.NewTransportError(req.Operation, req.URL, err)
	}
	httpReq.Header.Set("Content-Type", ContentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, model.NewTransportError(req.Operation, req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, model.NewTransportError(req.Operation, req.URL, fmt.Errorf("failed to read response: %w", err))
	}

	return string(data), resp.StatusCode, nil
}

// CallAuthenticated prepares, submits and parses one call. It never retries.
func (c *Client) CallAuthenticated(ctx context.Context, id model.ServiceIdentity, payload string, source wsaa.CredentialSource) (*model.DomainResult, error) {
	result, err := c.callAuthenticated(ctx, id, payload, source)

	status := metrics.ResultOK
	if err != nil {
		status = metrics.ResultError
		var fault *model.RemoteFault
		if errors.As(err, &fault) {
			c.metrics.RecordRemoteFault(id.Service.String(), fault.Code)
		}
	}
	c.metrics.RecordServiceCall(id.Service.String(), c.operation, status)

	return result, err
}

func (c *Client) callAuthenticated(ctx context.Context, id model.ServiceIdentity, payload string, source wsaa.CredentialSource) (*model.DomainResult, error) {
	req, err := c.PrepareRequest(ctx, id, payload, source)
	if err != nil {
		return nil, err
	}

	body, status, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := c.tags.Parse(body, c.clock.Now())
	if err != nil {
		var malformed *model.MalformedResponse
		if errors.As(err, &malformed) && status >= http.StatusBadRequest {
			return nil, model.NewTransportError(req.Operation, req.URL, fmt.Errorf("unexpected HTTP status %d", status))
		}
		var fault *model.RemoteFault
		if errors.As(err, &fault) {
			c.logger.Warn("service rejected call",
				zap.Stringer("identity", id),
				zap.String("operation", req.Operation),
				zap.String("code", fault.Code),
				zap.String("message", fault.Message),
			)
		}
		return nil, err
	}

	if result.ExpirationAssumed {
		c.metrics.RecordExpiryFallback()
		c.logger.Warn("authorization expiration unparseable, assuming fallback",
			zap.Stringer("identity", id),
			zap.String("authorization_code", result.AuthorizationCode),
			zap.Time("assumed_expiration", result.Expiration),
		)
	}

	c.logger.Debug("service call accepted",
		zap.Stringer("identity", id),
		zap.String("operation", req.Operation),
		zap.Int("observations", len(result.Observations)),
	)
	return result, nil
}
