// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package ws

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/fwdslsh/dispatch-sub012/pkg/auth"
	"github.com/fwdslsh/dispatch-sub012/pkg/config"
	"github.com/fwdslsh/dispatch-sub012/pkg/logger"
	"github.com/fwdslsh/dispatch-sub012/pkg/runs"
	"github.com/fwdslsh/dispatch-sub012/pkg/telemetry"
)

// Handler upgrades authenticated requests to WebSocket connections.
// Authentication happens before the upgrade, in the surrounding
// middleware; the handler only reads the established identity.
type Handler struct {
	orch     *runs.Orchestrator
	metrics  *telemetry.Metrics
	queueCap int
	upgrader websocket.Upgrader
}

// NewHandler creates the /ws endpoint handler. queueCap bounds each
// connection's outbound queue; zero means the default.
func NewHandler(orch *runs.Orchestrator, metrics *telemetry.Metrics, queueCap int) *Handler {
	if queueCap <= 0 {
		queueCap = config.DefaultClientQueueCap
	}
	return &Handler{
		orch:     orch,
		metrics:  metrics,
		queueCap: queueCap,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debugw("websocket upgrade failed", "error", err)
		return
	}

	logger.Debugw("websocket connected", "user_id", identity.UserID)
	c := newClient(conn, h.orch, identity, h.metrics, h.queueCap)
	c.run()
	logger.Debugw("websocket disconnected", "user_id", identity.UserID)
}
