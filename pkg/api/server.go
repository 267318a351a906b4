// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package api contains the REST and WebSocket surface of the dispatch
// server.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/fwdslsh/dispatch-sub012/pkg/api/v1"
	"github.com/fwdslsh/dispatch-sub012/pkg/logger"
	"github.com/fwdslsh/dispatch-sub012/pkg/runs"
	"github.com/fwdslsh/dispatch-sub012/pkg/store/sqlite"
	"github.com/fwdslsh/dispatch-sub012/pkg/telemetry"
)

// Not sure if these values need to be configurable.
const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Deps carries the collaborators the HTTP surface exposes.
type Deps struct {
	Orchestrator *runs.Orchestrator
	DB           *sqlite.DB

	// Metrics is optional; nil disables the /metrics endpoint.
	Metrics *telemetry.Metrics

	// AuthMiddleware establishes the request identity. Required; every
	// session and WebSocket route sits behind it.
	AuthMiddleware func(http.Handler) http.Handler

	// WS handles upgraded connections at /ws.
	WS http.Handler
}

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// Router assembles the full route tree. Split out from Serve so tests
// can drive it with httptest.
func Router(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Timeout(middlewareTimeout),
		headersMiddleware,
	)

	// Liveness and metrics stay outside authentication so probes and
	// scrapers need no credentials.
	r.Mount("/health", v1.HealthcheckRouter(deps.DB))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.AuthMiddleware)
		r.Mount("/api/v1/sessions", v1.SessionsRouter(deps.Orchestrator))
		if deps.WS != nil {
			r.Handle("/ws", deps.WS)
		}
	})

	return r
}

// Serve starts the server on the given address and serves the API
// until ctx is cancelled. It is assumed that the caller sets up
// appropriate signal handling.
func Serve(ctx context.Context, address string, deps Deps) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           Router(deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	logger.Infof("starting HTTP server on %s", address)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Infof("HTTP server stopped")
	return nil
}
