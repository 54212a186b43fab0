package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

type HealthResponse struct {
	Status string `json:"status"`
}
type ReadyResponse struct {
	Ready   bool   `json:"ready"`
	Backend string `json:"backend"`
	Store   string `json:"store"`
}

// Health reports process liveness only.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{Status: "ok"})
}
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	resp := ReadyResponse{
		Ready:   true,
		Backend: s.ledger.Backend(),
		Store:   "up",
	}
	if !s.ledger.Ping(ctx) {
		resp.Ready = false
		resp.Store = "down"
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}
