package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rule-core/internal/backend"
	"rule-core/internal/engine"
	"rule-core/internal/events"
	"rule-core/internal/history"
	"rule-core/internal/rules"
	"rule-core/pkg/cache"
	"rule-core/pkg/db"
)

// Server wires HTTP endpoints around the rule engine.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Store     *db.Queries
	Engine    *engine.Service
	Registry  *rules.Registry
	Accounts  rules.AccountProvider
	Tracker   *history.Tracker
	Quotes    *cache.ShardedQuoteCache
	Backend   *backend.Client
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to clients.
type SystemMeta struct {
	Symbols     []string
	UseMockFeed bool
	Version     string
}

// Options bundles the server dependencies.
type Options struct {
	Bus       *events.Bus
	Store     *db.Queries
	Engine    *engine.Service
	Registry  *rules.Registry
	Accounts  rules.AccountProvider
	Tracker   *history.Tracker
	Quotes    *cache.ShardedQuoteCache
	Backend   *backend.Client
	JWTSecret string
	Meta      SystemMeta
}

func NewServer(opts Options) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())        // Panic recovery (first)
	r.Use(RequestIDMiddleware()) // Request ID tracking
	r.Use(RequestLogger())       // Request logging (after ID is set)
	r.Use(RateLimitMiddleware()) // Rate limiting
	r.Use(TimeoutMiddleware(30 * time.Second)) // Request timeout (30s)
	r.Use(CORSMiddleware())                    // CORS (last before routes)

	s := &Server{
		Router:    r,
		Bus:       opts.Bus,
		Store:     opts.Store,
		Engine:    opts.Engine,
		Registry:  opts.Registry,
		Accounts:  opts.Accounts,
		Tracker:   opts.Tracker,
		Quotes:    opts.Quotes,
		Backend:   opts.Backend,
		JWTSecret: opts.JWTSecret,
		Meta:      opts.Meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)

		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/playbooks", s.listPlaybooks)
			protected.GET("/playbooks/:name", s.getPlaybook)
			protected.POST("/playbooks", s.savePlaybook)
			protected.DELETE("/playbooks/:name", s.deletePlaybook)
			protected.POST("/playbooks/:name/deploy", s.deployPlaybook)
			protected.POST("/playbooks/:name/import", s.importPlaybook)
			protected.POST("/playbooks/undeploy", s.undeployPlaybook)

			protected.GET("/rules/context", s.getRuleContext)
			protected.POST("/rules/context", s.relayRuleContext)
			protected.GET("/rules/conflicts", s.getRuleConflicts)
			protected.GET("/rules/primitives", s.listPrimitives)

			protected.GET("/results", s.getResults)
			protected.GET("/market/quotes", s.getQuotes)
			protected.GET("/history/events", s.getHistoryEvents)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	status := gin.H{
		"symbols":       s.Meta.Symbols,
		"use_mock_feed": s.Meta.UseMockFeed,
		"version":       s.Meta.Version,
		"server_time":   time.Now().UTC(),
		"deployed":      nil,
	}
	if dep := s.Engine.Current(); dep != nil {
		status["deployed"] = gin.H{
			"playbook":   dep.Playbook.Name,
			"generation": dep.Generation,
			"rules":      len(dep.Playbook.Rules),
		}
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
