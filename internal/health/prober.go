package health

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/rezonia/arca-auth/internal/metrics"
	"github.com/rezonia/arca-auth/internal/xmltag"
)

// Bucket classifies how a probe ended
type Bucket string

const (
	BucketResponded Bucket = "responded"
	BucketConnect   Bucket = "connect"
	BucketRequest   Bucket = "request"
	BucketTimeout   Bucket = "timeout"
	BucketOther     Bucket = "other"
)

// Status is the outcome of one probe. HTTPStatus is the status returned by
// the service, or the synthetic status of the bucket when none was received.
type Status struct {
	Probe        string        `json:"probe"`
	HTTPStatus   int           `json:"http_status"`
	AppServerOK  bool          `json:"app_server_ok"`
	DBServerOK   bool          `json:"db_server_ok"`
	AuthServerOK bool          `json:"auth_server_ok"`
	Elapsed      time.Duration `json:"elapsed"`
	Bucket       Bucket        `json:"bucket"`
	Error        string        `json:"error,omitempty"`
}

// Healthy reports whether the service answered and all components are OK
func (s Status) Healthy() bool {
	return s.Bucket == BucketResponded && s.AppServerOK && s.DBServerOK && s.AuthServerOK
}

// Prober runs probes
type Prober struct {
	httpClient *http.Client
	clock      clockwork.Clock
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// ProberOption configures a Prober
type ProberOption func(*Prober)

// WithHTTPClient sets the HTTP client
func WithHTTPClient(hc *http.Client) ProberOption {
	return func(p *Prober) {
		p.httpClient = hc
	}
}

// WithClock sets the clock used to measure latency
func WithClock(clock clockwork.Clock) ProberOption {
	return func(p *Prober) {
		p.clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) ProberOption {
	return func(p *Prober) {
		p.logger = l
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) ProberOption {
	return func(p *Prober) {
		p.metrics = m
	}
}

// NewProber creates a prober
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		httpClient: &http.Client{},
		clock:      clockwork.NewRealClock(),
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Check runs probe once. Failures are reported in the Status, never as errors.
func (p *Prober) Check(ctx context.Context, probe Probe) Status {
	timeout := probe.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status := Status{Probe: probe.Name}
	start := p.clock.Now()
	defer func() {
		p.metrics.RecordProbe(probe.Name, status.HTTPStatus, status.Elapsed)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, probe.URL, strings.NewReader(probe.Envelope))
	if err != nil {
		status.Elapsed = p.clock.Since(start)
		p.fail(&status, BucketRequest, err)
		return status
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		status.Elapsed = p.clock.Since(start)
		p.fail(&status, classify(err), err)
		return status
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	status.Elapsed = p.clock.Since(start)
	status.HTTPStatus = resp.StatusCode
	status.Bucket = BucketResponded
	if err != nil {
		status.Error = err.Error()
		return status
	}

	doc := string(body)
	status.AppServerOK = componentOK(doc, probe.AppTag)
	status.DBServerOK = componentOK(doc, probe.DBTag)
	status.AuthServerOK = componentOK(doc, probe.AuthTag)

	p.logger.Debug("probe finished",
		zap.String("probe", probe.Name),
		zap.Int("status", status.HTTPStatus),
		zap.Bool("healthy", status.Healthy()),
		zap.Duration("elapsed", status.Elapsed),
	)
	return status
}

func (p *Prober) fail(status *Status, bucket Bucket, err error) {
	status.Bucket = bucket
	status.HTTPStatus = bucketStatus(bucket)
	status.Error = err.Error()
	p.logger.Warn("probe failed",
		zap.String("probe", status.Probe),
		zap.String("bucket", string(bucket)),
		zap.Error(err),
	)
}

func componentOK(doc, tag string) bool {
	v, ok := xmltag.FindFirst(doc, tag)
	return ok && strings.ToUpper(strings.TrimSpace(v)) == "OK"
}

func classify(err error) Bucket {
	if errors.Is(err, context.DeadlineExceeded) {
		return BucketTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return BucketTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return BucketConnect
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return BucketConnect
	}
	return BucketOther
}

func bucketStatus(b Bucket) int {
	switch b {
	case BucketConnect:
		return http.StatusServiceUnavailable
	case BucketRequest:
		return http.StatusBadRequest
	case BucketTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
