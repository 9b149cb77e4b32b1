// Package api exposes the engine over HTTP: profile computation, strategy
// validation, the proposal lifecycle, position tracking, and a websocket
// event stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"ai-trader-engine/internal/auth"
	"ai-trader-engine/internal/cache"
	"ai-trader-engine/internal/database"
	"ai-trader-engine/internal/events"
	"ai-trader-engine/internal/marketdata"
	"ai-trader-engine/internal/payoff"
	"ai-trader-engine/internal/position"
	"ai-trader-engine/internal/proposal"
	"ai-trader-engine/internal/vault"
)

// RateLimiter provides simple in-memory rate limiting per client
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ProductionMode bool
	AllowedOrigins []string

	// Payoff curve defaults
	SampleRangePct float64
	SampleCount    int

	// Default approval window for new proposals without an explicit deadline
	ProposalDeadline time.Duration
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	logger     zerolog.Logger

	proposals *proposal.Store
	positions *position.Store
	repo      *database.Repository // nil when persistence is disabled
	provider  marketdata.QuoteProvider
	quotes    *cache.QuoteCache // nil when redis is disabled
	eventBus  *events.EventBus
	hub       *WSHub
	vault     *vault.Client // nil when the credential store is disabled

	authService *auth.Service // nil when auth is disabled
	rateLimiter *RateLimiter

	// Links opened positions to the proposal whose theoretical profile they
	// are measured against.
	linkMu       sync.RWMutex
	positionLink map[string]string
}

// NewServer creates a new API server. repo, quotes, authService, and
// vaultClient may be nil when the corresponding subsystem is disabled.
func NewServer(
	config ServerConfig,
	proposals *proposal.Store,
	positions *position.Store,
	repo *database.Repository,
	provider marketdata.QuoteProvider,
	quotes *cache.QuoteCache,
	eventBus *events.EventBus,
	authService *auth.Service,
	vaultClient *vault.Client,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:       router,
		config:       config,
		logger:       logger,
		proposals:    proposals,
		positions:    positions,
		repo:         repo,
		provider:     provider,
		quotes:       quotes,
		eventBus:     eventBus,
		hub:          NewWSHub(logger),
		vault:        vaultClient,
		authService:  authService,
		rateLimiter:  NewRateLimiter(120, time.Minute),
		positionLink: make(map[string]string),
	}

	server.setupRoutes()

	// Relay every bus event to connected websocket clients
	go server.hub.Run()
	eventBus.SubscribeAll(server.hub.BroadcastEvent)

	return server
}

// rateLimitMiddleware rate limits requests by client IP
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   true,
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	// Token issuance stays outside the JWT middleware
	if s.authService != nil {
		login := s.router.Group("/api/auth")
		login.Use(s.rateLimitMiddleware())
		login.POST("/login", s.handleLogin)
	}

	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())

	if s.authService != nil {
		api.Use(auth.Middleware(s.authService.JWT()))
	}

	{
		// Payoff profile
		api.POST("/profile/compute", s.handleComputeProfile)

		// Quotes
		api.GET("/quotes/:symbol", s.handleGetQuote)

		// Strategies
		api.POST("/strategies/validate", s.handleValidateStrategy)
		api.POST("/strategies", s.handleSaveStrategy)
		api.GET("/strategies", s.handleListStrategies)
		api.GET("/strategies/:id", s.handleGetStrategy)
		api.DELETE("/strategies/:id", s.handleDeleteStrategy)

		// Proposals
		api.POST("/proposals", s.handleCreateProposal)
		api.GET("/proposals", s.handleListProposals)
		api.GET("/proposals/:id", s.handleGetProposal)
		api.POST("/proposals/:id/approve", s.handleApproveProposal)
		api.POST("/proposals/:id/reject", s.handleRejectProposal)
		api.POST("/proposals/:id/reprice", s.handleRepriceProposal)
		api.PATCH("/proposals/:id", s.handleEditProposal)
		api.POST("/proposals/bulk-approve", s.handleBulkApprove)
		api.POST("/proposals/suggest", s.handleSuggestWithinBudget)

		// Broker credentials
		api.PUT("/credentials", s.handleStoreCredentials)
		api.GET("/credentials/:broker", s.handleGetCredentials)
		api.DELETE("/credentials/:broker", s.handleDeleteCredentials)

		// Positions and execution quality
		api.POST("/positions", s.handleOpenPosition)
		api.GET("/positions", s.handleListPositions)
		api.GET("/positions/:id", s.handleGetPosition)
		api.POST("/positions/:id/mark", s.handleUpdateMark)
		api.POST("/positions/:id/close", s.handleClosePosition)
		api.GET("/positions/:id/quality", s.handleGetQuality)
		api.GET("/positions/:id/quality/history", s.handleGetQualityHistory)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	health := gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	if s.repo != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.repo.HealthCheck(ctx); err != nil {
			health["status"] = "degraded"
			health["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, health)
			return
		}
		health["database"] = "healthy"
	}

	if s.quotes != nil {
		if s.quotes.IsHealthy() {
			health["cache"] = "healthy"
		} else {
			health["cache"] = "degraded"
		}
	}

	c.JSON(http.StatusOK, health)
}

// sampleRange returns the configured payoff grid around a spot price
func (s *Server) sampleRange(spot float64) payoff.SampleRange {
	pct := s.config.SampleRangePct
	if pct <= 0 || pct >= 1 {
		return payoff.DefaultSampleRange(spot)
	}
	samples := s.config.SampleCount
	if samples < 2 {
		samples = payoff.DefaultSamples
	}
	return payoff.SampleRange{
		Min:     spot * (1 - pct),
		Max:     spot * (1 + pct),
		Samples: samples,
	}
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
