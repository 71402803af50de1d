package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/bulkflow/internal/platform/logger"
)

type ServerConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

type Server struct {
	Engine *gin.Engine
	log    *logger.Logger
	cfg    ServerConfig
}

func NewServer(log *logger.Logger, cfg ServerConfig, router RouterConfig) *Server {
	return &Server{Engine: NewRouter(router), log: log.With("service", "HTTPServer"), cfg: cfg}
}

// Run serves until ctx is done, then drains in-flight requests for at most
// ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &nethttp.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("http server stopped")
	return nil
}
