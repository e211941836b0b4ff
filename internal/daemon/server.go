package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/deskbase/chatd/internal/api"
)

// Server manages the HTTP API lifecycle for a profile daemon.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	addr       string
	logger     *zap.Logger
}

// NewServer creates an HTTP server bound to the configured loopback address.
func NewServer(p Params, cfg *runtimeConfig, logger *zap.Logger, h *api.Handler) (*Server, error) {
	addr := cfg.Listen
	if p.ListenAddr != "" {
		addr = p.ListenAddr
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	h.Register(router)

	return &Server{
		httpServer: &http.Server{Handler: router},
		listener:   listener,
		addr:       listener.Addr().String(),
		logger:     logger,
	}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start begins serving API requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("api server starting", zap.String("addr", s.addr))
	err := s.httpServer.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("api server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("api server shutdown", zap.Error(err))
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
