package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JGeek00/crowdsec-monitor-api/internal/api/routes"
	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Server owns the gin engine; tests drive Engine directly.
type Server struct {
	Engine *gin.Engine
	port   string
}

// New picks the gin mode from the environment and registers the routes.
func New(deps routes.Deps) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	if deps.Config.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	if err := routes.Register(router, deps); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	return &Server{Engine: router, port: deps.Config.HTTPPort}, nil
}

// Run binds the port, serves until ctx is cancelled and then drains
// in-flight requests for up to shutdownTimeout. A bind failure is returned
// immediately.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", s.port, err)
	}

	srv := &http.Server{
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	logger.Log().WithField("addr", ln.Addr().String()).Info("HTTP server listening")

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
