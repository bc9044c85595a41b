package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rezonia/arca-auth/internal/config"
	"github.com/rezonia/arca-auth/internal/credentials"
	"github.com/rezonia/arca-auth/internal/metrics"
	"github.com/rezonia/arca-auth/internal/wsaa"
	"github.com/rezonia/arca-auth/internal/wsfe"
)

// components is everything a command needs to talk to ARCA
type components struct {
	metrics *metrics.Metrics
	wsaa    *wsaa.Client
	tickets *wsaa.TicketCache
	source  wsaa.CredentialSource
}

func buildComponents(c *config.Config, reg prometheus.Registerer) (*components, error) {
	m := metrics.New(reg)

	source, err := buildSource(c)
	if err != nil {
		return nil, err
	}

	clientOpts := []wsaa.ClientOption{
		wsaa.WithTimeout(c.WSAA.Timeout),
		wsaa.WithLogger(logger),
		wsaa.WithMetrics(m),
	}
	if c.WSAA.Endpoint != "" {
		clientOpts = append(clientOpts, wsaa.WithEndpoint(c.WSAA.Endpoint))
	}
	client := wsaa.NewClient(c.Env(), clientOpts...)

	cacheOpts := []wsaa.CacheOption{
		wsaa.WithRenewalMargin(c.WSAA.RenewalMargin),
		wsaa.WithCacheLogger(logger),
		wsaa.WithCacheMetrics(m),
	}
	if c.WSAA.Coalesce {
		cacheOpts = append(cacheOpts, wsaa.WithRenewalCoalescing(), wsaa.WithRenewalTimeout(2*c.WSAA.Timeout))
	}

	return &components{
		metrics: m,
		wsaa:    client,
		tickets: wsaa.NewTicketCache(client, cacheOpts...),
		source:  source,
	}, nil
}

func buildSource(c *config.Config) (wsaa.CredentialSource, error) {
	switch c.Credentials.Source {
	case config.SourceVault:
		client, err := credentials.NewVaultClient(c.Credentials.Vault.Address, c.Credentials.Vault.Token)
		if err != nil {
			return nil, err
		}
		return credentials.NewVaultSource(client, c.Credentials.Vault.Path, credentials.WithVaultLogger(logger)), nil
	case config.SourceFile:
		return credentials.NewFileSource(c.TenantID, c.Credentials.CertFile, c.Credentials.KeyFile), nil
	default:
		return nil, fmt.Errorf("unknown credential source %q", c.Credentials.Source)
	}
}

func (c *components) wsfeClient(conf *config.Config) *wsfe.Client {
	opts := []wsfe.ClientOption{
		wsfe.WithOperation(conf.WSFE.Operation),
		wsfe.WithTimeout(conf.WSFE.Timeout),
		wsfe.WithLogger(logger),
		wsfe.WithMetrics(c.metrics),
	}
	if conf.WSFE.Endpoint != "" {
		opts = append(opts, wsfe.WithEndpoint(conf.WSFE.Endpoint))
	}
	return wsfe.NewClient(conf.Env(), c.tickets, opts...)
}
