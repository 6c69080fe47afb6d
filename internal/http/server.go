// Package http exposes the transaction store over a JSON API and a live
// websocket feed.
package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"tally/internal/cache"
	"tally/internal/feed"
	"tally/internal/gateway"
	"tally/internal/identity"
	"tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/security"
	"tally/internal/middleware/trace"
)

// Options configures the HTTP surface.
type Options struct {
	Addr              string
	CORSOrigins       []string
	CurrencySymbol    string
	CacheSize         int
	CacheTTL          time.Duration
	RequestsPerMinute int
	// SessionIdle closes per-owner sessions unused for this long (default: 15m)
	SessionIdle time.Duration
	// ViewWait bounds how long a view request waits for the first snapshot (default: 5s)
	ViewWait time.Duration
}

type Server struct {
	http.Server
	engine   *gin.Engine
	views    *Views
	live     *Live
	gateway  *gateway.Gateway
	verifier *identity.Verifier
	limiter  *ratelimit.Limiter
	caches   *cache.Manager
	tracer   *trace.Middleware
	logger   *log.Logger
	viewWait time.Duration

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(opts Options, sub feed.Subscriber, gw *gateway.Gateway, verifier *identity.Verifier, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	if opts.SessionIdle <= 0 {
		opts.SessionIdle = 15 * time.Minute
	}
	if opts.ViewWait <= 0 {
		opts.ViewWait = 5 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	viewCache := cache.NewLRUCache[View](opts.CacheSize, opts.CacheTTL)
	views := NewViews(sub, viewCache, opts.CurrencySymbol, opts.SessionIdle, logger)

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine:   engine,
		views:    views,
		live:     NewLive(sub, opts.CurrencySymbol, logger),
		gateway:  gw,
		verifier: verifier,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		caches:   cache.NewManager(logger.WithComponent(log.ComponentHTTP)),
		tracer:   trace.NewMiddleware(logger),
		logger:   logger.WithComponent(log.ComponentHTTP),
		viewWait: opts.ViewWait,
	}

	s.caches.Register(viewCache)
	s.caches.Register(views)
	s.caches.StartCleanup(time.Minute)

	engine.Use(s.tracer.Handler())
	engine.Use(security.Headers(security.DefaultHeadersConfig()))
	engine.Use(cors.New(corsConfig(opts.CORSOrigins)))

	engine.GET("/healthz", handleHealth)
	engine.GET("/readyz", s.handleReady)
	engine.GET("/ws", s.handleLive)

	api := engine.Group("/api")
	api.Use(s.authenticate())
	api.Use(s.limiter.Middleware(ownerKey))
	{
		api.GET("/view", s.handleView)
		api.POST("/session/retry", s.handleRetry)
		api.GET("/categories", handleCategories)
		api.POST("/transactions", s.handleCreate)
		api.PATCH("/transactions/:id", s.handleUpdate)
		api.DELETE("/transactions/:id", s.handleDelete)
		api.DELETE("/transactions", s.handleClearAll)
	}

	return s
}

// Handler returns the routed gin engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown. A closed server is not an error.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.Addr)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()

		// websocket connections are hijacked and not tracked by http.Server
		s.live.Close()

		shutdownErr = s.Server.Shutdown(ctx)
		s.views.Close()
	})

	return shutdownErr
}

// authenticate resolves the bearer token to the owner id and stores it
// under log.FieldOwner.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := s.verifier.Verify(c.GetHeader("Authorization"))
		if err != nil {
			log.FromContext(c.Request.Context()).WarnContext(c.Request.Context(), "Authentication failed",
				log.FieldErrorType, log.ErrorTypeAuth,
				log.FieldError, err.Error(),
				log.FieldClientIP, c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(log.FieldOwner, owner)
		c.Next()
	}
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", trace.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", trace.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowOrigins = nil
		config.AllowAllOrigins = true
		config.AllowCredentials = false
	}
	return config
}

func ownerKey(c *gin.Context) string {
	if owner := c.GetString(log.FieldOwner); owner != "" {
		return owner
	}
	return c.ClientIP()
}

func handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) handleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ready",
		"sessions":    s.views.Sessions(),
		"connections": s.live.Connections(),
	})
}
