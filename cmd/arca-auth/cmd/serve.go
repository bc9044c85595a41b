package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rezonia/arca-auth/internal/health"
	"github.com/rezonia/arca-auth/internal/model"
	"github.com/rezonia/arca-auth/internal/server"
)

var (
	serverAddr   string
	serverDebug  bool
	readTimeout  time.Duration
	writeTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server holding the ticket cache of one tenant.

The API provides endpoints for:
  - GET  /health                   - Health check
  - GET  /metrics                  - Prometheus metrics
  - GET  /api/v1/status/:service   - Probe a remote service
  - GET  /api/v1/tickets           - List cached tickets
  - POST /api/v1/tickets/:service  - Get or renew a ticket

Examples:
  # Start server on the configured port
  arca-auth serve --config arca-auth.yaml

  # Start on a custom address in debug mode
  arca-auth serve --address :9090 --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", "", "Server listen address (default :<server.port>)")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 30*time.Second, "HTTP read timeout")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 3*time.Minute, "HTTP write timeout")
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.TenantID > 0 {
		if err := cfg.ValidateCredentials(); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	comps, err := buildComponents(cfg, registry)
	if err != nil {
		return err
	}

	addr := serverAddr
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Server.Port)
	}

	config := &server.Config{
		Address:      addr,
		Environment:  cfg.Env(),
		TenantID:     cfg.TenantID,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		RenewTimeout: 2 * cfg.WSAA.Timeout,
		Debug:        serverDebug || cfg.Server.Debug,
	}

	healthTimeout := cfg.Health.Timeout
	opts := []server.Option{
		server.WithTicketCache(comps.tickets),
		server.WithProber(health.NewProber(health.WithLogger(logger), health.WithMetrics(comps.metrics))),
		server.WithProbeResolver(func(service model.Service) (health.Probe, error) {
			probe, err := health.ForService(service, cfg.Env())
			probe.Timeout = healthTimeout
			return probe, err
		}),
		server.WithGatherer(registry),
		server.WithLogger(logger),
	}
	if cfg.TenantID > 0 {
		opts = append(opts, server.WithCredentialSource(comps.source))
	}
	srv := server.NewServer(config, opts...)

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down server...")
		_ = logger.Sync()
		os.Exit(0)
	}()

	fmt.Printf("Starting server on %s (%s)\n", addr, cfg.Environment)
	if cfg.TenantID <= 0 {
		fmt.Println("No tenant configured, ticket renewal disabled")
	}

	return srv.Run()
}
