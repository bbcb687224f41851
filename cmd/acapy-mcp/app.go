package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/praxis/acapy-mcp-gateway/internal/acapy"
	"github.com/praxis/acapy-mcp-gateway/internal/auth"
	"github.com/praxis/acapy-mcp-gateway/internal/config"
	"github.com/praxis/acapy-mcp-gateway/internal/gateway"
	"github.com/praxis/acapy-mcp-gateway/internal/logger"
	"github.com/praxis/acapy-mcp-gateway/internal/metrics"
	"github.com/praxis/acapy-mcp-gateway/internal/tools"
)

// app holds the wired gateway and everything that must be released on exit.
type app struct {
	config    *config.AppConfig
	logger    *logrus.Logger
	gateway   *gateway.Gateway
	collector *metrics.Collector
	closers   []func()
}

func newApp(ctx context.Context, cfg *config.AppConfig, log *logrus.Logger) (*app, error) {
	a := &app{config: cfg, logger: log}

	redact := logger.NewRedactionHook(
		cfg.Tenant.APIKey.Value(),
		cfg.Metrics.RemoteWrite.Password.Value(),
	)
	log.AddHook(redact)

	execOpts := []acapy.Option{
		acapy.WithTimeout(cfg.Agent.Timeout),
		acapy.WithRateLimit(cfg.Agent.RateLimit),
	}
	if cfg.Metrics.Enabled {
		a.collector = metrics.NewCollector(log, cfg.Server.Name, cfg.Server.Version, cfg.Server.Transport)
		execOpts = append(execOpts, acapy.WithObserver(a.collector.ObserveAgentCall))
	}
	exec := acapy.NewHTTPExecutor(cfg.Agent.BaseURL, log, execOpts...)

	store, err := a.tokenStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	tokens := auth.NewManager(exec, store, cfg.Auth.Cache.TTL, log)
	tokens.OnToken = redact.Add

	deps := tools.Deps{
		Executor:          exec,
		Tokens:            tokens,
		Tenant:            cfg.Tenant,
		InvitationBaseURL: cfg.Invitation.BaseURL,
		Logger:            log,
	}
	if cfg.Ledger.BrowserURL != "" {
		deps.LedgerBrowser = acapy.NewHTTPExecutor(cfg.Ledger.BrowserURL, log, acapy.WithTimeout(cfg.Agent.Timeout))
	}

	a.gateway = gateway.New(tools.NewCatalog(deps), a.collector, log)

	if cfg.Tenant.MultiTenant() {
		log.WithField("tenant", cfg.Tenant.ID).Info("Multi-tenant mode")
	} else {
		log.Info("Single-tenant mode, no bearer token will be sent")
	}
	return a, nil
}

// tokenStore picks the token cache: redis when configured, memory when
// caching is enabled, none otherwise.
func (a *app) tokenStore(ctx context.Context) (auth.TokenStore, error) {
	cache := a.config.Auth.Cache
	switch {
	case !cache.Enabled:
		return auth.NopStore{}, nil
	case cache.RedisURL != "":
		store, err := auth.NewRedisStore(ctx, cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect token cache: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				a.logger.Warnf("Failed to close token cache: %v", err)
			}
		})
		a.logger.Info("Using redis token cache")
		return store, nil
	default:
		return auth.NewMemoryStore(), nil
	}
}

// startRemoteWrite begins pushing metrics when a remote write URL is set.
func (a *app) startRemoteWrite() error {
	rw := a.config.Metrics.RemoteWrite
	if a.collector == nil || rw.URL == "" {
		return nil
	}
	err := a.collector.StartRemoteWriter(metrics.RemoteWriteConfig{
		URL:      rw.URL,
		Interval: rw.Interval,
		Username: rw.Username,
		Password: rw.Password.Value(),
	})
	if err != nil {
		return fmt.Errorf("failed to start metrics remote write: %w", err)
	}
	a.closers = append(a.closers, a.collector.StopRemoteWriter)
	return nil
}

func (a *app) server() *gateway.Server {
	var registry *prometheus.Registry
	if a.collector != nil {
		registry = a.collector.Registry()
	}
	return gateway.NewServer(a.gateway, a.config.Server, registry)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
