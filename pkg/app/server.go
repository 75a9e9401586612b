/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/estatehub/portal-sync/pkg/api"
	"github.com/estatehub/portal-sync/pkg/config"
	"github.com/estatehub/portal-sync/pkg/logging"
	"github.com/estatehub/portal-sync/pkg/portalclient"
	"github.com/estatehub/portal-sync/pkg/snapshot"
	"github.com/estatehub/portal-sync/pkg/workerpool"
)

var logger = logging.New("app")

// Server manages the portal-sync application components.
type Server struct {
	config     *config.Config
	apiServer  *api.API
	httpServer *http.Server
	workerPool *workerpool.Pool
}

// New creates a new Server instance.
func New(cfg *config.Config) (*Server, error) {
	logging.SetupWithConfig(&cfg.Logging)

	policy, err := cfg.Polling.Policy()
	if err != nil {
		return nil, err
	}

	// Create backend client
	client, err := portalclient.New(cfg.Backend)
	if err != nil {
		return nil, err
	}

	// Create snapshot cache
	cache, err := snapshot.New(cfg.Sessions.MaxSnapshots)
	if err != nil {
		return nil, err
	}

	// Create worker pool
	wpCfg := workerpool.Config{
		Policy:        policy,
		MaxRetries:    cfg.Backend.MaxRetries,
		IdleTimeout:   cfg.Sessions.IdleTimeout,
		SessionTTL:    cfg.Sessions.TTL,
		SweepInterval: cfg.Sessions.SweepInterval,
		MaxViews:      cfg.Sessions.MaxViews,
	}
	wp := workerpool.New(wpCfg, client, cache)

	// Create API server
	apiServer := api.NewAPI(wp)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		config:     cfg,
		apiServer:  apiServer,
		httpServer: httpServer,
		workerPool: wp,
	}, nil
}

// Run starts all server components and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	// HTTP server errors
	httpErrCh := make(chan error, 1)
	// worker panics, logged but not fatal
	poolErrCh := make(chan error, 16)

	// Start HTTP server
	go func() {
		logger.Infof("REST API running on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case httpErrCh <- err:
			default:
			}
		}
	}()

	// Start worker pool
	poolCtx, stopPool := context.WithCancel(ctx)
	defer stopPool()
	g := s.workerPool.Start(poolCtx, poolErrCh)

	// Wait for shutdown signal or fatal error
	var runErr error
wait:
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown requested")
			break wait
		case err := <-httpErrCh:
			logger.Errorf("fatal HTTP error: %v", err)
			runErr = err
			break wait
		case err := <-poolErrCh:
			logger.Errorf("worker error: %v", err)
		}
	}

	// Graceful shutdown
	if err := s.Shutdown(); err != nil {
		return err
	}
	stopPool()

	// Wait for worker pool to finish
	if err := g.Wait(); err != nil {
		logger.Errorf("workerpool exited with error: %v", err)
	} else {
		logger.Info("workerpool exited cleanly")
	}

	return runErr
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown() error {
	shutdownTimeout := time.Duration(s.config.Server.ShutdownTimeoutSec) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown error: %v", err)
	} else {
		logger.Info("http server shutdown complete")
	}

	return nil
}

// Handler returns the HTTP handler served by Run.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
