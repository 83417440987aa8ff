// Package api provides the HTTP server for streambridge.
// It includes the main server struct, routing setup, CORS and metrics middleware,
// and the translation route that turns Data Stream Protocol responses into UI Message Streams.
// The server supports hot-reloading of its configuration.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/finesssee/streambridge/internal/api/handlers/chat"
	"github.com/finesssee/streambridge/internal/api/middleware"
	"github.com/finesssee/streambridge/internal/config"
	"github.com/finesssee/streambridge/internal/logging"
	"github.com/finesssee/streambridge/internal/uistream"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type serverOptionConfig struct {
	extraMiddleware    []gin.HandlerFunc
	engineConfigurator func(*gin.Engine)
	routerConfigurator func(*gin.Engine, *chat.Handler, *config.Config)
	ids                uistream.IDGenerator
}

// ServerOption customises HTTP server construction.
type ServerOption func(*serverOptionConfig)

// WithMiddleware appends additional Gin middleware during server construction.
func WithMiddleware(mw ...gin.HandlerFunc) ServerOption {
	return func(cfg *serverOptionConfig) {
		cfg.extraMiddleware = append(cfg.extraMiddleware, mw...)
	}
}

// WithEngineConfigurator allows callers to mutate the Gin engine prior to middleware setup.
func WithEngineConfigurator(fn func(*gin.Engine)) ServerOption {
	return func(cfg *serverOptionConfig) {
		cfg.engineConfigurator = fn
	}
}

// WithRouterConfigurator appends a callback after default routes are registered.
func WithRouterConfigurator(fn func(*gin.Engine, *chat.Handler, *config.Config)) ServerOption {
	return func(cfg *serverOptionConfig) {
		cfg.routerConfigurator = fn
	}
}

// WithIDGenerator overrides the generator for message, text and artifact ids.
func WithIDGenerator(ids uistream.IDGenerator) ServerOption {
	return func(cfg *serverOptionConfig) {
		cfg.ids = ids
	}
}

// Server represents the main API server.
// It encapsulates the Gin engine, HTTP server, the chat handler, and configuration.
type Server struct {
	// engine is the Gin web framework engine instance.
	engine *gin.Engine

	// server is the underlying HTTP server.
	server *http.Server

	// chat serves the translation route.
	chat *chat.Handler

	// cfg provides race-safe config snapshots for middleware reads.
	cfg atomic.Pointer[config.Config]

	// updateMu serialises config reloads.
	updateMu sync.Mutex
	// oldConfigYaml stores a YAML snapshot of the previous configuration for change detection.
	oldConfigYaml []byte

	// configFilePath is the path of the YAML config file, empty when running on defaults.
	configFilePath string
}

// NewServer creates and initializes a new API server instance.
// It sets up the Gin engine, middleware, routes, and handlers.
func NewServer(cfg *config.Config, configFilePath string, opts ...ServerOption) *Server {
	optionState := &serverOptionConfig{}
	for i := range opts {
		opts[i](optionState)
	}
	// Set gin mode
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create gin engine
	engine := gin.New()
	if optionState.engineConfigurator != nil {
		optionState.engineConfigurator(engine)
	}

	middleware.SetMetricsEnabled(cfg.IsMetricsEnabled())

	s := &Server{
		engine:         engine,
		configFilePath: configFilePath,
	}
	s.cfg.Store(cfg)
	s.oldConfigYaml, _ = yaml.Marshal(cfg)

	var chatOpts []chat.Option
	if optionState.ids != nil {
		chatOpts = append(chatOpts, chat.WithIDGenerator(optionState.ids))
	}
	s.chat = chat.NewHandler(cfg, chatOpts...)

	// Add middleware
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(middleware.ConnectionTrackerMiddleware())
	engine.Use(middleware.PrometheusMiddleware())
	engine.Use(corsMiddleware(s.getConfig))
	engine.Use(middleware.RequestDecompressionMiddleware())
	for _, mw := range optionState.extraMiddleware {
		engine.Use(mw)
	}

	s.setupRoutes()

	// Apply additional router configurators from options
	if optionState.routerConfigurator != nil {
		optionState.routerConfigurator(engine, s.chat, cfg)
	}

	// Create HTTP server
	s.server = &http.Server{
		Addr:    cfg.Addr(),
		Handler: engine,
	}

	return s
}

// setupRoutes configures the API routes for the server.
func (s *Server) setupRoutes() {
	s.engine.POST("/api/chat", s.chat.Chat)
	s.engine.POST("/v1/chat/stream", s.chat.Chat)

	s.engine.GET("/healthz", func(c *gin.Context) {
		logging.SkipGinRequestLogging(c)
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"active_streams": middleware.ActiveStreams.Count(),
		})
	})

	// Prometheus metrics endpoint for observability
	s.engine.GET("/metrics", logging.SkipGinRequestLogging, middleware.MetricsHandler())

	debug := s.engine.Group("/debug", s.requireDebug)
	{
		debug.GET("/logs", s.debugLogs)
		debug.GET("/streams", s.debugStreams)
		debug.DELETE("/streams", func(c *gin.Context) {
			middleware.GetStreamHistory().Clear()
			c.Status(http.StatusNoContent)
		})
	}

	// Root endpoint
	s.engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "streambridge",
			"endpoints": []string{
				"POST /api/chat",
				"POST /v1/chat/stream",
				"GET /healthz",
				"GET /metrics",
			},
		})
	})
}

// requireDebug hides the /debug routes unless debug is enabled.
func (s *Server) requireDebug(c *gin.Context) {
	cfg := s.getConfig()
	if cfg == nil || !cfg.Debug {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	logging.SkipGinRequestLogging(c)
	c.Next()
}

// debugLogs returns the most recent log entries.
func (s *Server) debugLogs(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 100)
	if !ok {
		return
	}
	entries := logging.Recent.Entries(limit)
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// debugStreams returns recently finished streams, newest first, with aggregate stats.
func (s *Server) debugStreams(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	history := middleware.GetStreamHistory()
	entries := history.GetEntries(&middleware.StreamHistoryFilter{
		Outcome:    c.Query("outcome"),
		ErrorsOnly: c.Query("errors_only") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	c.JSON(http.StatusOK, gin.H{"entries": entries, "stats": history.GetStats()})
}

// queryInt parses a non-negative integer query parameter, answering 400 when it is malformed.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

// Engine returns the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start begins listening for and serving HTTP requests.
// It blocks until the server is stopped.
func (s *Server) Start() error {
	if s == nil || s.server == nil {
		return fmt.Errorf("failed to start HTTP server: server not initialized")
	}

	log.Infof("Starting API server on %s, upstream %s", s.server.Addr, s.getConfig().Upstream.ChatURL())
	if errServe := s.server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", errServe)
	}

	return nil
}

// Stop gracefully shuts down the API server. Open streams are allowed to finish until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	log.Debugf("Stopping API server, %d stream(s) open...", middleware.ActiveStreams.Count())

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	log.Debug("API server stopped")
	return nil
}

// corsMiddleware returns a Gin middleware handler that adds CORS headers
// to every response, allowing cross-origin requests from the configured origins.
func corsMiddleware(getCfg func() *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var allowOrigins []string
		if getCfg != nil {
			if cfg := getCfg(); cfg != nil {
				allowOrigins = cfg.CORS.AllowOrigins
			}
		}

		origin := strings.TrimSpace(c.GetHeader("Origin"))
		allowedOrigin := ""
		if origin != "" {
			switch {
			case len(allowOrigins) == 0:
				allowedOrigin = "*"
			case originAllowed(allowOrigins, origin):
				allowedOrigin = origin
			}
		}

		if allowedOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowedOrigin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "*")
			c.Header("Access-Control-Expose-Headers", "X-Conversation-Id, X-Request-Id, "+chat.UIMessageStreamHeader)
			if allowedOrigin != "*" {
				c.Header("Vary", "Origin")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func originAllowed(allowOrigins []string, origin string) bool {
	if origin == "" || len(allowOrigins) == 0 {
		return false
	}
	for _, allowed := range allowOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) getConfig() *config.Config {
	return s.cfg.Load()
}

// UpdateClients applies a reloaded configuration. Streams already in flight keep the settings
// they started with. Host and port changes need a restart.
func (s *Server) UpdateClients(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	newYaml, _ := yaml.Marshal(cfg)
	if bytes.Equal(newYaml, s.oldConfigYaml) {
		log.Debug("config unchanged, skipping reload")
		return
	}

	// Reconstruct old config from YAML snapshot to avoid reference sharing issues
	var oldCfg *config.Config
	if len(s.oldConfigYaml) > 0 {
		_ = yaml.Unmarshal(s.oldConfigYaml, &oldCfg)
	}

	if oldCfg == nil || oldCfg.LoggingToFile != cfg.LoggingToFile || oldCfg.LogDir != cfg.LogDir ||
		oldCfg.LogsMaxSizeMB != cfg.LogsMaxSizeMB || oldCfg.LogsMaxBackups != cfg.LogsMaxBackups || oldCfg.Debug != cfg.Debug {
		if err := logging.ConfigureLogOutput(cfg); err != nil {
			log.Errorf("failed to reconfigure log output: %v", err)
		} else if oldCfg != nil && oldCfg.LoggingToFile != cfg.LoggingToFile {
			log.Debugf("logging-to-file updated from %t to %t", oldCfg.LoggingToFile, cfg.LoggingToFile)
		}
	}

	if oldCfg != nil && (oldCfg.Host != cfg.Host || oldCfg.Port != cfg.Port) {
		log.Warnf("listen address changed to %s; restart to apply", cfg.Addr())
	}
	if oldCfg != nil && oldCfg.Upstream.ChatURL() != cfg.Upstream.ChatURL() {
		log.Infof("upstream updated from %s to %s", oldCfg.Upstream.ChatURL(), cfg.Upstream.ChatURL())
	}

	middleware.SetMetricsEnabled(cfg.IsMetricsEnabled())
	s.chat.UpdateConfig(cfg)
	s.cfg.Store(cfg)
	s.oldConfigYaml = newYaml

	log.Infof("configuration reloaded from %s", s.configFilePath)
}
