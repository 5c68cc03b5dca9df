// Package httpapi exposes the client-facing upload API over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/ingestkeeper/internal/logging"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	addr   string
	logger logging.Logger
	engine *gin.Engine
}

func NewRouter(logger logging.Logger, h *UploadHandler, secretKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1/uploads")
	api.Use(JWTAuth(secretKey))

	api.POST("", h.Init)
	api.GET("", h.List)
	api.POST("/:externalId/finalize", h.Finalize)
	api.POST("/:externalId/fail", h.Fail)
	api.DELETE("/:externalId", h.Delete)
	api.GET("/:externalId/status", h.Status)
	api.PUT("/:externalId/select", h.Select)

	return r
}

func NewHTTPServer(addr string, logger logging.Logger, h *UploadHandler, secretKey []byte) *Server {
	l := logger.With("module", "http")
	return &Server{addr: addr, logger: l, engine: NewRouter(l, h, secretKey)}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "addr", s.addr)
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

	s.logger.Info(ctx, "Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
