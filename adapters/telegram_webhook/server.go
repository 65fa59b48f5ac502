// Package telegram_webhook receives Bot API updates over HTTPS webhook
// deliveries and serves health and metrics endpoints next to them.
package telegram_webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jdelaire/turnbot/core/tg"
)

// SecretHeader carries the secret token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const (
	defaultPath       = "/telegram/webhook"
	readHeaderTimeout = 5 * time.Second
)

// Server accepts webhook deliveries and hands each update to a handler.
type Server struct {
	addr           string
	path           string
	secret         string
	handler        func(tg.Update)
	metricsHandler http.Handler
	logger         *slog.Logger

	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup
	errCh      chan error
}

// Option configures a Server.
type Option func(*Server)

// WithPath sets the URL path deliveries are posted to.
func WithPath(path string) Option {
	return func(s *Server) { s.path = path }
}

// WithSecret requires deliveries to carry the given secret token.
func WithSecret(secret string) Option {
	return func(s *Server) { s.secret = secret }
}

// WithMetricsHandler exposes h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// New creates a webhook server listening on addr. handler must not block.
func New(addr string, handler func(tg.Update), logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		path:    defaultPath,
		handler: handler,
		logger:  logger,
		errCh:   make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))
	engine.POST(s.path, s.handleUpdate)
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(s.metricsHandler))
	}
	s.engine = engine
	return s
}

// Handler returns the HTTP handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.engine }

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Start begins listening. It returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.logger.Info("webhook listening", "addr", ln.Addr().String(), "path", s.path)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("webhook server error", "error", err)
			s.errCh <- fmt.Errorf("webhook server: %w", err)
		}
	}()
	return nil
}

// Err delivers the error that stopped the server outside of Shutdown. Nothing
// is sent after a clean shutdown.
func (s *Server) Err() <-chan error { return s.errCh }

// Shutdown gracefully stops the server and waits for in-flight deliveries.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) handleUpdate(c *gin.Context) {
	if s.secret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(SecretHeader)), []byte(s.secret)) != 1 {
		s.logger.Warn("webhook delivery with bad secret", "remote", c.ClientIP())
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid secret token"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxPayloadBytes+1))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "error": "read error"})
		return
	}

	u, err := DecodeUpdate(data)
	switch {
	case errors.Is(err, ErrPayloadTooLarge):
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": err.Error()})
		return
	case err != nil:
		s.logger.Warn("invalid webhook delivery", "error", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	s.handler(u)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// requestLogger logs each request through slog instead of gin's stdout writer.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
