// Package server exposes the engine over HTTP: a websocket endpoint for
// sessions plus a few JSON endpoints for operators.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cryptopulse/config"
	"cryptopulse/internal/alert"
	"cryptopulse/internal/engine"
	"cryptopulse/internal/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Engine is the part of *engine.Engine the server drives.
type Engine interface {
	State() engine.State
	Connect(ctx context.Context, conn session.Conn) (*session.Session, error)
	Disconnect(ctx context.Context, id string) error
	HandleMessage(ctx context.Context, id string, raw []byte) error
	Stats(ctx context.Context) (engine.Stats, error)
	CheckAlerts(ctx context.Context) ([]alert.TriggerEvent, error)
}

type Server struct {
	cfg      config.ServerConfig
	engine   Engine
	logger   *zap.Logger
	router   *gin.Engine
	upgrader websocket.Upgrader
	ctx      context.Context
	checks   map[string]func(context.Context) bool
	history  TriggerHistory
}

func New(cfg config.ServerConfig, eng Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if logger.Core().Enabled(zap.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		engine: eng,
		logger: logger,
		router: gin.New(),
		ctx:    context.Background(),
		checks: make(map[string]func(context.Context) bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}

	s.router.Use(gin.Recovery(), requestLogger(logger))
	s.router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.getHealth)
	s.router.GET("/stats", s.getStats)
	s.router.GET("/check-alerts", s.checkAlerts)
	s.router.POST("/check-alerts", s.checkAlerts)
	s.router.GET("/alerts/history", s.getAlertHistory)

	s.router.GET("/ws", s.handleWebSocket)
}

// AddHealthCheck reports a dependency on /health. Call it before serving.
func (s *Server) AddHealthCheck(name string, check func(context.Context) bool) {
	s.checks[name] = check
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is done, then shuts down gracefully.
// Websocket sessions are closed by the engine when it stops.
func (s *Server) Run(ctx context.Context) error {
	s.ctx = ctx
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	s.logger.Info("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) getHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]bool, len(s.checks))
	for name, check := range s.checks {
		deps[name] = check(ctx)
		if !deps[name] {
			status = "degraded"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"state":        s.engine.State(),
		"dependencies": deps,
		"time":         time.Now().UTC(),
	})
}

func (s *Server) getStats(c *gin.Context) {
	st, err := s.engine.Stats(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) checkAlerts(c *gin.Context) {
	events, err := s.engine.CheckAlerts(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}
	if events == nil {
		events = []alert.TriggerEvent{}
	}
	c.JSON(http.StatusOK, gin.H{
		"triggered": len(events),
		"events":    events,
	})
}

func (s *Server) abort(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, engine.ErrStopped) {
		status = http.StatusServiceUnavailable
	}
	s.logger.Warn("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Upgrade", "Connection"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
