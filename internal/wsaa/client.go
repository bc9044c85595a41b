package wsaa

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/rezonia/arca-auth/internal/endpoint"
	"github.com/rezonia/arca-auth/internal/metrics"
	"github.com/rezonia/arca-auth/internal/model"
	"github.com/rezonia/arca-auth/internal/signature"
	"github.com/rezonia/arca-auth/internal/xmltag"
)

// DefaultTimeout bounds a single loginCms round trip
const DefaultTimeout = 60 * time.Second

// FaultAlreadyAuthenticated is the fault code WSAA returns when a valid
// ticket for the same service was issued moments ago
const FaultAlreadyAuthenticated = "coe.alreadyAuthenticated"

// TicketRequester obtains a fresh ticket for a service
type TicketRequester interface {
	RequestTicket(ctx context.Context, service model.Service, creds model.CredentialBundle) (*model.AuthTicket, error)
}

// Client performs the loginCms exchange against WSAA
type Client struct {
	endpoint   string
	httpClient *http.Client
	signer     signature.Signer
	timeout    time.Duration
	clock      clockwork.Clock
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithEndpoint overrides the WSAA URL
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

// WithSigner replaces the CMS signer
func WithSigner(s signature.Signer) ClientOption {
	return func(c *Client) {
		c.signer = s
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithClock sets the clock used to build ticket requests
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

// NewClient creates a WSAA client for env
func NewClient(env model.Environment, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint.MustURL(model.ServiceWSAA, env),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		clock:      clockwork.NewRealClock(),
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.signer == nil {
		c.signer = signature.NewCMSSigner(
			signature.WithSignerClock(c.clock),
			signature.WithSignerLogger(c.logger),
		)
	}

	return c
}

// Endpoint returns the WSAA URL in use
func (c *Client) Endpoint() string {
	return c.endpoint
}

// RequestTicket signs a ticket request for service with creds and exchanges
// it for a ticket. It performs exactly one round trip and never retries.
func (c *Client) RequestTicket(ctx context.Context, service model.Service, creds model.CredentialBundle) (*model.AuthTicket, error) {
	start := c.clock.Now()

	ticket, err := c.requestTicket(ctx, service, creds)

	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
		var fault *model.RemoteFault
		if errors.As(err, &fault) {
			c.metrics.RecordRemoteFault(service.String(), fault.Code)
		}
	}
	c.metrics.RecordTicketRequest(service.String(), result, c.clock.Since(start))

	return ticket, err
}

func (c *Client) requestTicket(ctx context.Context, service model.Service, creds model.CredentialBundle) (*model.AuthTicket, error) {
	req, err := BuildTicketRequest(service, c.clock.Now())
	if err != nil {
		return nil, err
	}

	signed, err := c.signer.Sign(creds.Certificate, creds.PrivateKey, req.XML)
	if err != nil {
		return nil, err
	}

	body, status, err := c.post(ctx, WrapSigned(signed))
	if err != nil {
		return nil, err
	}

	ticket, err := ParseTicketResponse(body, creds.TenantID)
	if err != nil {
		var malformed *model.MalformedResponse
		if errors.As(err, &malformed) && status >= http.StatusBadRequest {
			return nil, model.NewTransportError("loginCms", c.endpoint, fmt.Errorf("unexpected HTTP status %d", status))
		}
		c.logger.Warn("ticket request failed",
			zap.Int64("tenant_id", creds.TenantID),
			zap.String("service", service.String()),
			zap.Error(err),
		)
		return nil, err
	}

	c.logger.Info("ticket issued",
		zap.Int64("tenant_id", creds.TenantID),
		zap.String("service", service.String()),
		zap.Int64("unique_id", req.UniqueID),
		zap.Time("expiration", ticket.Expiration),
	)
	return ticket, nil
}

func (c *Client) post(ctx context.Context, envelope string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader([]byte(envelope)))
	if err != nil {
		return "", 0, model.NewTransportError("loginCms", c.endpoint, err)
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("SOAPAction", "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, model.NewTransportError("loginCms", c.endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, model.NewTransportError("loginCms", c.endpoint, fmt.Errorf("failed to read response: %w", err))
	}

	return string(data), resp.StatusCode, nil
}

// ParseTicketResponse turns a loginCms response body into a ticket for tenantID
func ParseTicketResponse(body string, tenantID int64) (*model.AuthTicket, error) {
	if xmltag.Contains(body, "faultcode") {
		return nil, parseFault(body)
	}

	token, ok := xmltag.FindFirst(body, "token")
	if !ok {
		return nil, model.NewMalformedResponse("token", nil)
	}
	sign, ok := xmltag.FindFirst(body, "sign")
	if !ok {
		return nil, model.NewMalformedResponse("sign", nil)
	}
	expRaw, ok := xmltag.FindFirst(body, "expirationTime")
	if !ok {
		return nil, model.NewMalformedResponse("expirationTime", nil)
	}

	exp, err := ParseExpiration(expRaw)
	if err != nil {
		return nil, model.NewMalformedResponse("expirationTime", err)
	}

	return &model.AuthTicket{
		TenantID:   tenantID,
		Token:      token,
		Sign:       sign,
		Expiration: exp,
	}, nil
}

func parseFault(body string) error {
	code := strings.TrimSpace(xmltag.FindFirstOr(body, "faultcode", ""))
	message := strings.TrimSpace(xmltag.FindFirstOr(body, "faultstring", ""))

	// WSAA declares a namespace on faultcode, which hides it from the
	// extractor, so the code is also looked for in the raw body
	if strings.Contains(code, FaultAlreadyAuthenticated) {
		return model.NewTooSoonError(code, message)
	}
	if code == "" && strings.Contains(body, FaultAlreadyAuthenticated) {
		return model.NewTooSoonError(FaultAlreadyAuthenticated, message)
	}
	return model.NewRemoteFault(code, message)
}

// ParseExpiration parses a WSAA timestamp and normalizes it to UTC. An
// explicit offset is honoured; without one the authority zone is assumed.
func ParseExpiration(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t.UTC(), nil
	}

	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, model.AuthorityZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
