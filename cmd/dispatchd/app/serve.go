// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fwdslsh/dispatch-sub012/pkg/adapters"
	"github.com/fwdslsh/dispatch-sub012/pkg/adapters/ai"
	"github.com/fwdslsh/dispatch-sub012/pkg/adapters/pty"
	"github.com/fwdslsh/dispatch-sub012/pkg/adapters/webview"
	"github.com/fwdslsh/dispatch-sub012/pkg/api"
	"github.com/fwdslsh/dispatch-sub012/pkg/auth"
	"github.com/fwdslsh/dispatch-sub012/pkg/config"
	"github.com/fwdslsh/dispatch-sub012/pkg/logger"
	"github.com/fwdslsh/dispatch-sub012/pkg/runs"
	"github.com/fwdslsh/dispatch-sub012/pkg/session"
	"github.com/fwdslsh/dispatch-sub012/pkg/store/sqlite"
	"github.com/fwdslsh/dispatch-sub012/pkg/telemetry"
	"github.com/fwdslsh/dispatch-sub012/pkg/transport/ws"
	"github.com/fwdslsh/dispatch-sub012/pkg/workspaces"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dispatch server",
	Long: `Start the dispatch server: open the event store, recover sessions that
were live before the last shutdown, and serve the REST and WebSocket API.`,
	RunE: runServe,
}

const orchestratorShutdownTimeout = 30 * time.Second

func init() {
	serveCmd.Flags().String("listen-address", config.DefaultListenAddress, "Address to listen on")
	serveCmd.Flags().String("data-dir", "", "Directory for durable state (default ~/.dispatch)")
	serveCmd.Flags().String("workspace-root", "", "Root for resolving relative workspace paths (default cwd)")
	serveCmd.Flags().String("auth-secret", "", "HMAC secret for bearer tokens; empty runs single-user local mode")
	serveCmd.Flags().Duration("idle-threshold", config.DefaultIdleThreshold, "Inactivity before a session is marked idle")
	serveCmd.Flags().Duration("close-grace", config.DefaultCloseGrace, "Adapter shutdown grace period")
	serveCmd.Flags().Int("client-queue-cap", config.DefaultClientQueueCap, "Per-connection outbound queue bound")
	serveCmd.Flags().Int("emit-queue-cap", config.DefaultEmitQueueCap, "Per-session emit queue bound")

	for _, name := range []string{
		"listen-address", "data-dir", "workspace-root", "auth-secret",
		"idle-threshold", "close-grace", "client-queue-cap", "emit-queue-cap",
	} {
		if err := viper.BindPFlag(name, serveCmd.Flags().Lookup(name)); err != nil {
			logger.Fatalf("Failed to bind %s flag: %v", name, err)
		}
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	db, err := sqlite.Open(ctx, cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("opening event store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Errorf("Failed to close event store: %v", err)
		}
	}()

	registry := adapters.NewRegistry()
	for kind, factory := range map[string]func() adapters.Adapter{
		session.KindPTY:     pty.New,
		session.KindAI:      ai.New,
		session.KindWebView: webview.New,
	} {
		if err := registry.Register(kind, factory); err != nil {
			return fmt.Errorf("registering %s adapter: %w", kind, err)
		}
	}

	resolver, err := workspaces.NewResolver(cfg.WorkspaceRoot)
	if err != nil {
		return fmt.Errorf("creating workspace resolver: %w", err)
	}

	metrics := telemetry.NewMetrics()

	orch, err := runs.New(runs.Options{
		Sessions:      sqlite.NewSessionStore(db),
		Events:        sqlite.NewEventStore(db),
		Registry:      registry,
		Workspaces:    resolver,
		Metrics:       metrics,
		CloseGrace:    cfg.CloseGrace,
		IdleThreshold: cfg.IdleThreshold,
		EmitQueueCap:  cfg.EmitQueueCap,
	})
	if err != nil {
		return err
	}

	// Sessions that were live before the last shutdown cannot be
	// reattached to their processes; mark them before serving traffic.
	if err := orch.Recover(ctx); err != nil {
		return fmt.Errorf("recovering sessions: %w", err)
	}
	go orch.Run(ctx)

	authMiddleware, err := authenticationMiddleware(cfg)
	if err != nil {
		return err
	}

	serveErr := api.Serve(ctx, cfg.ListenAddress, api.Deps{
		Orchestrator:   orch,
		DB:             db,
		Metrics:        metrics,
		AuthMiddleware: authMiddleware,
		WS:             ws.NewHandler(orch, metrics, cfg.ClientQueueCap),
	})

	// Give live adapters a chance to hand back resume state.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), orchestratorShutdownTimeout)
	defer cancel()
	orch.Shutdown(shutdownCtx)

	return serveErr
}

func authenticationMiddleware(cfg *config.Config) (func(http.Handler) http.Handler, error) {
	if cfg.AuthSecret == "" {
		username := os.Getenv("USER")
		if username == "" {
			username = "local"
		}
		logger.Warnf("No auth secret configured; running in single-user local mode as %q", username)
		return auth.LocalUserMiddleware(username), nil
	}

	verifier, err := auth.NewHMACVerifier(cfg.AuthSecret)
	if err != nil {
		return nil, fmt.Errorf("configuring token verifier: %w", err)
	}
	return auth.Middleware(verifier), nil
}
