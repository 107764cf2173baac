// Package gateway is the facilitator's HTTP surface: the verify and
// settle endpoints with their rate-limit and idempotency pre-handlers,
// plus service metadata, capability discovery and health.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zerog-labs/x402-facilitator/internal/config"
	"github.com/zerog-labs/x402-facilitator/internal/fees"
	"github.com/zerog-labs/x402-facilitator/internal/protocol"
	"github.com/zerog-labs/x402-facilitator/internal/registry"
	"github.com/zerog-labs/x402-facilitator/internal/settle"
	"github.com/zerog-labs/x402-facilitator/internal/verify"
)

const (
	serviceName    = "x402-facilitator"
	serviceVersion = "1.0.0"
)

// Server wires the HTTP routes over the verifier, settler and registry.
type Server struct {
	cfg      *config.Config
	registry *registry.Registry
	verifier *verify.Verifier
	settler  *settle.Settler
	fees     *fees.Engine
	idem     *idempotencyCache
	limiter  *rateLimiter
	log      *slog.Logger

	engine *gin.Engine
	http   *http.Server

	now func() time.Time // test seam
}

// New builds the server and its router. Call Start to begin serving.
func New(cfg *config.Config, reg *registry.Registry, verifier *verify.Verifier, settler *settle.Settler, log *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		registry: reg,
		verifier: verifier,
		settler:  settler,
		fees:     fees.NewEngine(fees.DefaultFeeBps),
		idem:     newIdempotencyCache(cfg.IdempotencyTTL),
		limiter:  newRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		log:      log,
		now:      time.Now,
	}

	router := gin.New()
	router.Use(s.logRequests, gin.CustomRecovery(s.recovered))

	router.GET("/api/info", s.handleInfo)
	router.GET("/health", s.handleHealth)
	router.GET("/supported", s.handleSupported)
	router.POST("/verify", s.throttle, s.handleVerify)
	router.POST("/settle", s.throttle, s.handleSettle)

	s.engine = router
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves on the configured port and blocks until the listener
// closes. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// logRequests logs one line per request after it completes.
func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Info("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
		"client", clientID(c),
	)
}

// recovered maps handler panics to the internal error body.
func (s *Server) recovered(c *gin.Context, err any) {
	s.log.Error("handler panic", "path", c.Request.URL.Path, "panic", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": "Internal server error",
		"code":  protocol.ErrCodeInternal,
	})
}

// throttle rejects requests that exceed the client's fixed window. It
// guards the payment routes only; metadata routes stay unthrottled.
func (s *Server) throttle(c *gin.Context) {
	client := clientID(c)
	if s.limiter.Allow(client) {
		return
	}
	s.log.Warn("rate limit exceeded", "client", client)
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": "Too many requests",
		"code":  protocol.ErrCodeRateLimited,
	})
}

// clientID keys the rate limiter: a caller-provided token when present,
// the client IP otherwise.
func clientID(c *gin.Context) string {
	if token := c.GetHeader("X-Client-Token"); token != "" {
		return token
	}
	return c.ClientIP()
}
