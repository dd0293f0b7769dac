package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tickboard/config"
	"tickboard/internal/feed/connmgr"
	"tickboard/internal/feed/memorystore"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Board is the read side of the feed plus the manual reconnect.
type Board interface {
	Status() connmgr.Status
	Rows() []memorystore.Row
	Row(symbol string) (memorystore.Row, bool)
	Reconnect()
}

// Server is the dashboard API.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	board           Board
	log             *zap.Logger
}

func New(cfg config.HTTPConfig, board Board, logger *zap.Logger) *Server {
	s := &Server{
		board:           board,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger.Named("http-server"),
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 5 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/readyz", s.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/status", s.status)
	api.GET("/tickers", s.tickers)
	api.GET("/tickers/:symbol", s.ticker)
	api.POST("/reconnect", s.reconnect)

	return r
}

func (s *Server) ready(c *gin.Context) {
	st := s.board.Status()
	if st.State != connmgr.Open {
		c.String(http.StatusServiceUnavailable, "NOT READY: state=%s", st.State)
		return
	}
	c.String(http.StatusOK, "READY")
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.board.Status())
}

func (s *Server) tickers(c *gin.Context) {
	rows := s.board.Rows()
	c.JSON(http.StatusOK, gin.H{
		"count":   len(rows),
		"tickers": rows,
	})
}

func (s *Server) ticker(c *gin.Context) {
	symbol := c.Param("symbol")
	row, ok := s.board.Row(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown symbol %q", symbol)})
		return
	}
	c.JSON(http.StatusOK, row)
}

func (s *Server) reconnect(c *gin.Context) {
	s.board.Reconnect()
	c.JSON(http.StatusAccepted, gin.H{"status": "reconnecting"})
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("starting server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("httpserver: listen: %w", err)
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
	case err := <-errCh:
		serveErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	s.log.Info("server stopped gracefully")

	return serveErr
}
