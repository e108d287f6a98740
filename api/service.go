package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/deadloked8999/exeltest/internal/logger"
	"github.com/deadloked8999/exeltest/internal/serviceiface"
)

type GatewayService struct {
	config map[string]interface{}
	deps   *Deps
	srv    *http.Server
}

func NewGatewayService(cfg map[string]interface{}, deps *Deps) serviceiface.Service {
	return &GatewayService{config: cfg, deps: deps}
}

func (s *GatewayService) Name() string {
	return "gateway"
}

func (s *GatewayService) addr() string {
	if a, ok := s.config["addr"].(string); ok && a != "" {
		return a
	}
	return ":8080"
}

// Handler is the router the server runs.
func (s *GatewayService) Handler() http.Handler {
	return NewRouter(s.deps)
}

func (s *GatewayService) Start() error {
	s.srv = &http.Server{
		Addr:              s.addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Audit("API Gateway started on " + s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError("api", "Start", "gateway server failed", s.srv.Addr, err)
		}
	}()
	return nil
}

func (s *GatewayService) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
