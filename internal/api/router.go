// Package api exposes two HTTP surfaces: the plain-text callback
// endpoints the get5 plugin posts to, and the JSON panel API.
package api

import (
	"net/http"

	"get5panel/internal/assets"
	"get5panel/internal/auth"
	"get5panel/internal/config"
	"get5panel/internal/match"
	"get5panel/internal/storage"
)

// Router holds the HTTP routes and dependencies
type Router struct {
	mux     *http.ServeMux
	store   *storage.Store
	matches *match.Service
	wsHub   *WebSocketHub
	auth    *auth.Service
	cfg     *config.Config
	logos   *assets.LogoRegistry
}

// NewRouter creates a new HTTP router
func NewRouter(store *storage.Store, matches *match.Service, authService *auth.Service, cfg *config.Config, logos *assets.LogoRegistry) *Router {
	r := &Router{
		mux:     http.NewServeMux(),
		store:   store,
		matches: matches,
		wsHub:   NewWebSocketHub(),
		auth:    authService,
		cfg:     cfg,
		logos:   logos,
	}

	// Plugin callback routes. Plain-text responses, form-encoded
	// bodies, authenticated per-match by API key.
	r.mux.HandleFunc("POST /match/{matchid}/map/{mapnumber}/start", r.handleMapStart)
	r.mux.HandleFunc("POST /match/{matchid}/map/{mapnumber}/update", r.handleMapUpdate)
	r.mux.HandleFunc("POST /match/{matchid}/map/{mapnumber}/finish", r.handleMapFinish)
	r.mux.HandleFunc("POST /match/{matchid}/map/{mapnumber}/player/{steamid64}/update", r.handlePlayerUpdate)
	r.mux.HandleFunc("POST /match/{matchid}/finish", r.handleSeriesFinish)
	r.mux.HandleFunc("GET /match/{matchid}/config", r.handleMatchConfig)

	// Auth routes
	r.mux.HandleFunc("POST /api/auth/login", r.handleLogin)
	r.mux.HandleFunc("GET /api/auth/check", r.handleAuthCheck)

	// Server routes
	r.mux.HandleFunc("GET /api/servers", r.requireAuth(r.handleListServers))
	r.mux.HandleFunc("POST /api/servers", r.requireAuth(r.handleCreateServer))
	r.mux.HandleFunc("GET /api/servers/{id}", r.requireAuth(r.handleGetServer))
	r.mux.HandleFunc("PUT /api/servers/{id}", r.requireAuth(r.handleUpdateServer))
	r.mux.HandleFunc("DELETE /api/servers/{id}", r.requireAuth(r.handleDeleteServer))

	// Team routes
	r.mux.HandleFunc("GET /api/teams", r.requireAuth(r.handleListTeams))
	r.mux.HandleFunc("POST /api/teams", r.requireAuth(r.handleCreateTeam))
	r.mux.HandleFunc("GET /api/teams/{id}", r.requireAuth(r.handleGetTeam))
	r.mux.HandleFunc("PUT /api/teams/{id}", r.requireAuth(r.handleUpdateTeam))
	r.mux.HandleFunc("DELETE /api/teams/{id}", r.requireAuth(r.handleDeleteTeam))

	// Match routes
	r.mux.HandleFunc("GET /api/matches", r.requireAuth(r.handleListMatches))
	r.mux.HandleFunc("POST /api/matches", r.requireAuth(r.handleCreateMatch))
	r.mux.HandleFunc("GET /api/matches/{id}", r.requireAuth(r.handleGetMatch))
	r.mux.HandleFunc("POST /api/matches/{id}/cancel", r.requireAuth(r.handleCancelMatch))
	r.mux.HandleFunc("POST /api/matches/{id}/pause", r.requireAuth(r.handlePauseMatch))
	r.mux.HandleFunc("POST /api/matches/{id}/unpause", r.requireAuth(r.handleUnpauseMatch))
	r.mux.HandleFunc("POST /api/matches/{id}/addplayer", r.requireAuth(r.handleAddPlayer))
	r.mux.HandleFunc("POST /api/matches/{id}/rcon", r.requireAdmin(r.handleMatchRcon))
	r.mux.HandleFunc("GET /api/matches/{id}/backups", r.requireAuth(r.handleListBackups))
	r.mux.HandleFunc("POST /api/matches/{id}/restore", r.requireAuth(r.handleRestoreBackup))

	r.mux.HandleFunc("GET /api/logos", r.requireAuth(r.handleListLogos))

	r.mux.HandleFunc("GET /api/metrics", r.handleMetrics)

	// WebSocket event stream
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	r.mux.HandleFunc("GET /health", r.handleHealth)

	return r
}

// Handler returns the root http.Handler.
func (r *Router) Handler() http.Handler {
	return r.mux
}

// Run starts the event pump feeding match events into the websocket
// hub. Call once before serving.
func (r *Router) Run() {
	go r.wsHub.Run()
	go func() {
		for ev := range r.matches.Events() {
			r.wsHub.Broadcast(ev)
		}
	}()
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type metricsResponse struct {
	*storage.Metrics
	WebSocketClients int `json:"websocket_clients"`
}

func (r *Router) handleMetrics(w http.ResponseWriter, req *http.Request) {
	metrics, err := r.store.GetMetrics()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, metricsResponse{
		Metrics:          metrics,
		WebSocketClients: r.wsHub.ClientCount(),
	})
}

func (r *Router) handleListLogos(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"logos": r.logos.Tags()})
}
