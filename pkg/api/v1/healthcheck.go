// SPDX-FileCopyrightText: Copyright 2026 Dispatch Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fwdslsh/dispatch-sub012/pkg/store/sqlite"
)

// HealthcheckRouter sets up the healthcheck route.
func HealthcheckRouter(db *sqlite.DB) http.Handler {
	routes := &healthcheckRoutes{db: db}
	r := chi.NewRouter()
	r.Get("/", routes.getHealthcheck)
	return r
}

type healthcheckRoutes struct {
	db *sqlite.DB
}

func (h *healthcheckRoutes) getHealthcheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.DB().PingContext(r.Context()); err != nil {
			http.Error(w, "event store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
