package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rezonia/arca-auth/internal/health"
	"github.com/rezonia/arca-auth/internal/model"
	"github.com/rezonia/arca-auth/internal/wsaa"
)

// Config holds server configuration
type Config struct {
	Address      string
	Environment  model.Environment
	TenantID     int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RenewTimeout time.Duration
	Debug        bool
}

// ProbeResolver returns the health probe for a service
type ProbeResolver func(service model.Service) (health.Probe, error)

// Server represents the HTTP API server
type Server struct {
	config   *Config
	router   *gin.Engine
	tickets  *wsaa.TicketCache
	source   wsaa.CredentialSource
	prober   *health.Prober
	probeFor ProbeResolver
	gatherer prometheus.Gatherer
	clock    clockwork.Clock
	logger   *zap.Logger
}

// Option configures the server
type Option func(*Server)

// WithTicketCache sets the cache served by the ticket endpoints
func WithTicketCache(c *wsaa.TicketCache) Option {
	return func(s *Server) {
		s.tickets = c
	}
}

// WithCredentialSource sets the source used when a renewal is requested
func WithCredentialSource(src wsaa.CredentialSource) Option {
	return func(s *Server) {
		s.source = src
	}
}

// WithProber sets the prober used by the status endpoint
func WithProber(p *health.Prober) Option {
	return func(s *Server) {
		s.prober = p
	}
}

// WithProbeResolver overrides how probes are looked up
func WithProbeResolver(r ProbeResolver) Option {
	return func(s *Server) {
		s.probeFor = r
	}
}

// WithGatherer sets the registry exposed on /metrics
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithClock sets the clock used to report remaining ticket lifetime
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a new API server
func NewServer(config *Config, opts ...Option) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if config.Debug {
		router.Use(gin.Logger())
	}

	if config.RenewTimeout <= 0 {
		config.RenewTimeout = 2 * wsaa.DefaultTimeout
	}

	s := &Server{
		config:   config,
		router:   router,
		prober:   health.NewProber(),
		gatherer: prometheus.DefaultGatherer,
		clock:    clockwork.NewRealClock(),
		logger:   zap.NewNop(),
	}
	s.probeFor = func(service model.Service) (health.Probe, error) {
		return health.ForService(service, config.Environment)
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// Remote service status
		v1.GET("/status/:service", s.handleStatus)

		// Ticket cache
		v1.GET("/tickets", s.handleListTickets)
		v1.POST("/tickets/:service", s.handleRenewTicket)
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return srv.ListenAndServe()
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	tickets := 0
	if s.tickets != nil {
		tickets = s.tickets.Len()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"time":        s.clock.Now().UTC().Format(time.RFC3339),
		"environment": s.config.Environment,
		"tickets":     tickets,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	service, err := model.ParseService(c.Param("service"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	probe, err := s.probeFor(service)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	status := s.prober.Check(c.Request.Context(), probe)
	if status.Healthy() {
		c.JSON(http.StatusOK, status)
	} else {
		c.JSON(http.StatusServiceUnavailable, status)
	}
}

func (s *Server) handleListTickets(c *gin.Context) {
	if s.tickets == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "ticket cache not configured"})
		return
	}

	now := s.clock.Now()
	cached := s.tickets.Snapshot()

	resp := TicketListResponse{Tickets: make([]TicketSummary, 0, len(cached))}
	for _, ct := range cached {
		resp.Tickets = append(resp.Tickets, s.summarize(ct.Identity, ct.Ticket, now))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRenewTicket(c *gin.Context) {
	if s.tickets == nil || s.source == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "ticket cache not configured"})
		return
	}

	service, err := model.ParseService(c.Param("service"))
	if err != nil || service == model.ServiceWSAA {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown service", Details: c.Param("service")})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RenewTimeout)
	defer cancel()

	id := model.ServiceIdentity{TenantID: s.config.TenantID, Service: service}
	if _, err := s.tickets.GetOrRenew(ctx, id, s.source, discardAuth); err != nil {
		s.logger.Warn("ticket renewal failed", zap.Stringer("identity", id), zap.Error(err))
		c.JSON(statusFor(err), ErrorResponse{Error: "ticket renewal failed", Details: err.Error()})
		return
	}

	ticket, _ := s.tickets.Peek(id)
	c.JSON(http.StatusOK, s.summarize(id, ticket, s.clock.Now()))
}

func (s *Server) summarize(id model.ServiceIdentity, t model.AuthTicket, now time.Time) TicketSummary {
	return TicketSummary{
		TenantID:   id.TenantID,
		Service:    id.Service.String(),
		Expiration: t.Expiration,
		ExpiresIn:  t.Expiration.Sub(now).Round(time.Second).String(),
		Stale:      t.ExpiresWithin(now, s.tickets.RenewalMargin()),
	}
}

func discardAuth(int64, string, string) string {
	return ""
}

// statusFor maps the error taxonomy onto HTTP statuses
func statusFor(err error) int {
	var (
		tooSoon     *model.TooSoonError
		fault       *model.RemoteFault
		transport   *model.TransportError
		malformed   *model.MalformedResponse
		credentials *model.CredentialsUnavailable
	)

	switch {
	case errors.As(err, &tooSoon):
		return http.StatusTooManyRequests
	case errors.As(err, &fault), errors.As(err, &malformed):
		return http.StatusBadGateway
	case errors.As(err, &transport):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.As(err, &credentials):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
