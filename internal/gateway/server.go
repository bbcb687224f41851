package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/praxis/acapy-mcp-gateway/internal/config"
)

const shutdownTimeout = 5 * time.Second

// Server exposes a gateway over an MCP transport.
type Server struct {
	gateway  *Gateway
	mcp      *server.MCPServer
	config   config.ServerConfig
	registry *prometheus.Registry
	logger   *logrus.Logger
}

// NewServer builds the MCP server for g. registry may be nil, in which case
// /metrics is not served.
func NewServer(g *Gateway, cfg config.ServerConfig, registry *prometheus.Registry) *Server {
	return &Server{
		gateway:  g,
		mcp:      g.NewMCPServer(cfg.Name, cfg.Version),
		config:   cfg,
		registry: registry,
		logger:   g.logger,
	}
}

// Serve runs the configured transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	switch s.config.Transport {
	case "", "stdio":
		return s.ServeStdio(ctx, nil, nil)
	case "sse":
		return s.ServeSSE(ctx)
	default:
		return fmt.Errorf("unsupported transport: %s", s.config.Transport)
	}
}

// ServeStdio speaks MCP over in and out, defaulting to the process streams.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(s.logger.WriterLevel(logrus.ErrorLevel), "", 0))

	s.logger.Infof("MCP server %s serving on stdio", s.config.Name)
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return stdio.Listen(ctx, in, out)
}

// ServeSSE serves the SSE transport plus /healthz and /metrics on the
// configured address.
func (s *Server) ServeSSE(ctx context.Context) error {
	sse := server.NewSSEServer(s.mcp)
	httpServer := &http.Server{
		Addr:              s.config.Address,
		Handler:           s.Router(sse),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("MCP SSE server %s listening on %s", s.config.Name, s.config.Address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("SSE server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := sse.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnf("Failed to close SSE sessions: %v", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnf("Graceful shutdown timed out, closing listener: %v", err)
		return httpServer.Close()
	}
	s.logger.Info("MCP SSE server stopped")
	return nil
}

// Router mounts the SSE endpoints and the operational routes.
func (s *Server) Router(sse *server.SSEServer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealth)
	if s.registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}
	if sse != nil {
		router.GET("/sse", gin.WrapH(sse.SSEHandler()))
		router.POST("/message", gin.WrapH(sse.MessageHandler()))
	}
	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"server":  s.config.Name,
		"version": s.config.Version,
		"tools":   len(s.gateway.catalog.Entries()),
	})
}
