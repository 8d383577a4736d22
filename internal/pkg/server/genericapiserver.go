// Package server hosts the generic HTTP serving machinery shared by the
// binaries: a gin engine behind an http.Server with graceful shutdown plus
// the healthz and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prompthub/prompthub/pkg/logger"
)

// Config configures a GenericAPIServer.
type Config struct {
	Mode        string
	BindAddress string
	BindPort    int
	Healthz     bool
	Metrics     bool
}

// NewConfig returns a Config with sane defaults.
func NewConfig() *Config {
	return &Config{
		Mode:        gin.ReleaseMode,
		BindAddress: "0.0.0.0",
		BindPort:    8080,
		Healthz:     true,
		Metrics:     true,
	}
}

// CompletedConfig is a Config with defaults filled in.
type CompletedConfig struct {
	*Config
}

// Complete fills in any fields that can be derived.
func (c *Config) Complete() CompletedConfig {
	if c.Mode == "" {
		c.Mode = gin.ReleaseMode
	}
	return CompletedConfig{c}
}

// New builds the server from the completed config.
func (c CompletedConfig) New() (*GenericAPIServer, error) {
	gin.SetMode(c.Mode)

	s := &GenericAPIServer{
		Engine:  gin.New(),
		healthz: c.Healthz,
		metrics: c.Metrics,
		addr:    fmt.Sprintf("%s:%d", c.BindAddress, c.BindPort),
	}
	s.installGenericAPIs()
	return s, nil
}

// GenericAPIServer is the HTTP host for the API routes.
type GenericAPIServer struct {
	*gin.Engine

	healthz bool
	metrics bool
	addr    string
	srv     *http.Server
}

func (s *GenericAPIServer) installGenericAPIs() {
	s.Use(gin.Recovery())
	if s.healthz {
		s.GET("/healthz", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
	if s.metrics {
		s.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// Run serves until Close is called or the listener fails.
func (s *GenericAPIServer) Run() error {
	s.srv = &http.Server{
		Addr:    s.addr,
		Handler: s.Engine,
	}
	logger.Infof("serving on %s", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close drains in-flight requests and stops the listener.
func (s *GenericAPIServer) Close() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		logger.Warnf("graceful shutdown failed: %v", err)
	}
}
