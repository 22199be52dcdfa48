// Package server exposes blending, data extraction and overlay rendering
// over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"impose/internal/config"
	"impose/internal/logging"
	"impose/internal/version"
)

// Server is the HTTP service. Each request works on its own data source
// and composite.
type Server struct {
	cfg    *config.Config
	cache  Cache
	engine *gin.Engine
}

// New builds the router. A nil cache disables snapshot caching.
func New(cfg *config.Config, cache Cache) *Server {
	gin.SetMode(cfg.Server.Mode)

	s := &Server{cfg: cfg, cache: cache}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": version.Version,
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    version.Version,
			"build_time": version.BuildTime,
			"git_commit": version.GitCommit,
		})
	})

	api := r.Group("/api/v1", limitBody(cfg.Server.MaxUpload))
	{
		api.POST("/blend", s.blend)
		api.POST("/extract", s.extract)
		api.POST("/overlay", s.overlay)
	}

	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is canceled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Port,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.L().Info("server starting", zap.String("port", s.cfg.Server.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logging.L().Info("server stopped")
	return nil
}
