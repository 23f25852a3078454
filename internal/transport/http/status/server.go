// Package status exposes the read-only operator HTTP surface: system
// status, tracked positions, breaker states and liveness.
package status

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bastion/internal/logger"
	"bastion/internal/monitor"
	"bastion/internal/store"
	"bastion/internal/symbols"
)

// StatusSource is implemented by the symbols manager.
type StatusSource interface {
	Status() symbols.Status
	Positions() []monitor.PositionView
	StrategyStats(ctx context.Context, name string, windowDays int) (store.StrategyStats, bool, error)
}

// Server serves the operator endpoints on one address.
type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(addr string, src StatusSource) *Server {
	if addr == "" {
		addr = ":9985"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Status())
	})
	api.GET("/positions", func(c *gin.Context) {
		views := src.Positions()
		if views == nil {
			views = []monitor.PositionView{}
		}
		c.JSON(http.StatusOK, gin.H{"positions": views})
	})
	api.GET("/breakers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"breakers": src.Status().Breakers})
	})
	api.GET("/liveness", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"liveness": src.Status().Liveness})
	})
	api.GET("/strategies/:name/stats", func(c *gin.Context) {
		windowDays, _ := strconv.Atoi(c.Query("window_days"))
		stats, known, err := src.StrategyStats(c.Request.Context(), c.Param("name"), windowDays)
		if !known {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown strategy"})
			return
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	return &Server{addr: addr, router: router}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.addr }

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Infof("status http: listening on %s", s.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}
