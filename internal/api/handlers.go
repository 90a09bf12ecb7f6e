package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"get5panel/internal/domain"
	"get5panel/internal/match"
	"get5panel/internal/steamid"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseID parses an ID from the URL path
func parseID(req *http.Request, param string) (int64, error) {
	idStr := req.PathValue(param)
	return strconv.ParseInt(idStr, 10, 64)
}

// writeServiceError translates match service errors for panel clients.
func writeServiceError(w http.ResponseWriter, err error) {
	var userErr *match.UserError
	switch {
	case errors.Is(err, match.ErrMatchNotFound),
		errors.Is(err, match.ErrServerNotFound),
		errors.Is(err, match.ErrTeamNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, match.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, match.ErrFinalized):
		writeError(w, http.StatusBadRequest, "match already finalized")
	case errors.Is(err, match.ErrLimitReached):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &userErr):
		writeError(w, http.StatusBadRequest, userErr.Message)
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// --- servers ---

type serverRequest struct {
	DisplayName  string `json:"display_name"`
	IPString     string `json:"ip_string"`
	Port         int    `json:"port"`
	RconPassword string `json:"rcon_password"`
	PublicServer bool   `json:"public_server"`
}

func (r *Router) handleListServers(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	servers, err := r.store.ListServersForUser(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

func (r *Router) handleCreateServer(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)

	var body serverRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.IPString == "" || body.Port <= 0 || body.Port > 65535 {
		writeError(w, http.StatusBadRequest, "ip and port are required")
		return
	}
	if body.PublicServer && !user.Admin {
		writeError(w, http.StatusForbidden, "only admins may create public servers")
		return
	}

	if limit := r.cfg.Panel.UserMaxServers; limit >= 0 && !user.Admin {
		n, err := r.store.CountUserServers(user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if n >= limit {
			writeError(w, http.StatusBadRequest, "server limit reached")
			return
		}
	}

	server := &domain.GameServer{
		UserID:       user.ID,
		DisplayName:  body.DisplayName,
		IPString:     body.IPString,
		Port:         body.Port,
		RconPassword: body.RconPassword,
		PublicServer: body.PublicServer,
	}
	if !r.matches.CheckConnection(server) {
		writeError(w, http.StatusBadRequest, "Failed to connect to server")
		return
	}

	id, err := r.store.CreateServer(server)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	server.ID = id
	writeJSON(w, http.StatusCreated, server)
}

func (r *Router) handleGetServer(w http.ResponseWriter, req *http.Request) {
	server, ok := r.ownedServer(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (r *Router) handleUpdateServer(w http.ResponseWriter, req *http.Request) {
	server, ok := r.ownedServer(w, req)
	if !ok {
		return
	}

	var body serverRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	server.DisplayName = body.DisplayName
	server.IPString = body.IPString
	server.Port = body.Port
	if body.RconPassword != "" {
		server.RconPassword = body.RconPassword
	}
	if userFrom(req).Admin {
		server.PublicServer = body.PublicServer
	}

	if !r.matches.CheckConnection(server) {
		writeError(w, http.StatusBadRequest, "Failed to connect to server")
		return
	}
	if err := r.store.UpdateServer(server); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (r *Router) handleDeleteServer(w http.ResponseWriter, req *http.Request) {
	server, ok := r.ownedServer(w, req)
	if !ok {
		return
	}
	if server.InUse {
		writeError(w, http.StatusBadRequest, "server has an active match")
		return
	}
	if err := r.store.DeleteServer(server.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (r *Router) ownedServer(w http.ResponseWriter, req *http.Request) (*domain.GameServer, bool) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid server id")
		return nil, false
	}
	server, err := r.store.GetServerByID(id)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "server not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	user := userFrom(req)
	if server.UserID != user.ID && !user.Admin {
		writeError(w, http.StatusForbidden, "not your server")
		return nil, false
	}
	return server, true
}

// --- teams ---

type teamRequest struct {
	Name   string   `json:"name"`
	Flag   string   `json:"flag"`
	Logo   string   `json:"logo"`
	Auths  []string `json:"auths"`
	Public bool     `json:"public_team"`
}

// coerceAuths converts each roster entry to steam64, rejecting forms
// that would need a network lookup.
func coerceAuths(auths []string) ([]string, string) {
	out := make([]string, 0, len(auths))
	for _, a := range auths {
		if a == "" {
			continue
		}
		steam64, ok := steamid.To64(a)
		if !ok {
			return nil, a
		}
		out = append(out, steam64)
	}
	return out, ""
}

func (r *Router) handleListTeams(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)
	teams, err := r.store.ListTeamsForUser(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (r *Router) handleCreateTeam(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)

	var body teamRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "team name is required")
		return
	}
	if len(body.Auths) > domain.MaxTeamPlayers {
		writeError(w, http.StatusBadRequest, "too many players")
		return
	}
	auths, bad := coerceAuths(body.Auths)
	if bad != "" {
		writeError(w, http.StatusBadRequest, "invalid steam id: "+bad)
		return
	}
	if !r.logos.Has(body.Logo) {
		writeError(w, http.StatusBadRequest, "unknown logo: "+body.Logo)
		return
	}
	if body.Public && !user.Admin {
		writeError(w, http.StatusForbidden, "only admins may create public teams")
		return
	}

	if limit := r.cfg.Panel.UserMaxTeams; limit >= 0 && !user.Admin {
		n, err := r.store.CountUserTeams(user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if n >= limit {
			writeError(w, http.StatusBadRequest, "team limit reached")
			return
		}
	}

	team := &domain.Team{UserID: user.ID, Public: body.Public}
	team.SetData(body.Name, body.Flag, body.Logo, auths)

	id, err := r.store.CreateTeam(team)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	team.ID = id
	writeJSON(w, http.StatusCreated, team)
}

func (r *Router) handleGetTeam(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid team id")
		return
	}
	team, err := r.store.GetTeamByID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "team not found")
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (r *Router) handleUpdateTeam(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid team id")
		return
	}
	team, err := r.store.GetTeamByID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "team not found")
		return
	}
	if !team.CanEdit(userFrom(req)) {
		writeError(w, http.StatusForbidden, "not your team")
		return
	}

	var body teamRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Auths) > domain.MaxTeamPlayers {
		writeError(w, http.StatusBadRequest, "too many players")
		return
	}
	auths, bad := coerceAuths(body.Auths)
	if bad != "" {
		writeError(w, http.StatusBadRequest, "invalid steam id: "+bad)
		return
	}
	if !r.logos.Has(body.Logo) {
		writeError(w, http.StatusBadRequest, "unknown logo: "+body.Logo)
		return
	}

	team.SetData(body.Name, body.Flag, body.Logo, auths)
	if err := r.store.UpdateTeam(team); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (r *Router) handleDeleteTeam(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid team id")
		return
	}
	team, err := r.store.GetTeamByID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "team not found")
		return
	}
	if !team.CanEdit(userFrom(req)) {
		writeError(w, http.StatusForbidden, "not your team")
		return
	}
	if active, err := r.store.TeamInActiveMatch(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else if active {
		writeError(w, http.StatusBadRequest, "team is in an active match")
		return
	}
	if err := r.store.DeleteTeam(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- matches ---

type createMatchRequest struct {
	ServerID        int64    `json:"server_id"`
	Team1ID         int64    `json:"team1_id"`
	Team2ID         int64    `json:"team2_id"`
	MaxMaps         int      `json:"max_maps"`
	Title           string   `json:"title"`
	SkipVeto        bool     `json:"skip_veto"`
	VetoMapPool     []string `json:"veto_mappool"`
	OvertimeEnabled *bool    `json:"overtime_enabled"`
	PlayoutEnabled  bool     `json:"playout_enabled"`
}

func (r *Router) handleListMatches(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)

	ownerID := user.ID
	if user.Admin && req.URL.Query().Get("all") == "1" {
		ownerID = 0
	}
	matches, err := r.store.ListMatches(ownerID, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	teamNames := make(map[int64]string)
	teamName := func(id int64) string {
		if name, ok := teamNames[id]; ok {
			return name
		}
		name := ""
		if team, err := r.store.GetTeamByID(id); err == nil {
			name = team.Name
		}
		teamNames[id] = name
		return name
	}

	summaries := make([]domain.MatchSummary, 0, len(matches))
	for _, m := range matches {
		summaries = append(summaries, domain.MatchSummary{
			Match:     *m,
			Team1Name: teamName(m.Team1ID),
			Team2Name: teamName(m.Team2ID),
			Status:    m.Status(),
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (r *Router) handleCreateMatch(w http.ResponseWriter, req *http.Request) {
	user := userFrom(req)

	var body createMatchRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.MaxMaps < 1 || body.MaxMaps > 7 || (body.MaxMaps%2 == 0 && body.MaxMaps != 2) {
		writeError(w, http.StatusBadRequest, "max_maps must be 1, 2, 3, 5, or 7")
		return
	}
	if body.Team1ID == body.Team2ID {
		writeError(w, http.StatusBadRequest, "a team cannot play itself")
		return
	}

	pool := body.VetoMapPool
	if len(pool) == 0 {
		pool = r.cfg.Panel.DefaultMapList
	}
	for _, mapName := range pool {
		if !slices.Contains(r.cfg.Panel.MapList, mapName) {
			writeError(w, http.StatusBadRequest, "map not in map pool: "+mapName)
			return
		}
	}

	title := body.Title
	if title == "" {
		title = r.cfg.Panel.MatchTitleText
	}
	overtime := true
	if body.OvertimeEnabled != nil {
		overtime = *body.OvertimeEnabled
	}

	m, err := r.matches.CreateMatch(user, &match.CreateMatchRequest{
		ServerID:        body.ServerID,
		Team1ID:         body.Team1ID,
		Team2ID:         body.Team2ID,
		MaxMaps:         body.MaxMaps,
		Title:           title,
		SkipVeto:        body.SkipVeto,
		VetoMapPool:     pool,
		OvertimeEnabled: overtime,
		PlayoutEnabled:  body.PlayoutEnabled,
	})
	if err != nil {
		// A dispatch failure still created the match; report both.
		if m != nil {
			writeJSON(w, http.StatusAccepted, map[string]interface{}{
				"match":   m,
				"warning": err.Error(),
			})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (r *Router) handleGetMatch(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	detail, err := r.matches.GetMatchDetail(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (r *Router) handleCancelMatch(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	notice, err := r.matches.CancelMatch(userFrom(req), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := map[string]string{"status": "cancelled"}
	if notice != "" {
		resp["warning"] = notice
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r *Router) handlePauseMatch(w http.ResponseWriter, req *http.Request) {
	r.matchAction(w, req, func(id int64) error {
		return r.matches.Pause(userFrom(req), id)
	})
}

func (r *Router) handleUnpauseMatch(w http.ResponseWriter, req *http.Request) {
	r.matchAction(w, req, func(id int64) error {
		return r.matches.Unpause(userFrom(req), id)
	})
}

func (r *Router) matchAction(w http.ResponseWriter, req *http.Request, action func(int64) error) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	if err := action(id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) handleAddPlayer(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	var body struct {
		Team string `json:"team"`
		Auth string `json:"auth"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := r.matches.AddPlayer(userFrom(req), id, body.Team, body.Auth)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": resp})
}

func (r *Router) handleMatchRcon(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	var body struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}
	resp, err := r.matches.ExecRcon(userFrom(req), id, body.Command)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": resp})
}

func (r *Router) handleListBackups(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	resp, err := r.matches.ListBackups(userFrom(req), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"backups": resp})
}

func (r *Router) handleRestoreBackup(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	var body struct {
		File string `json:"file"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.File == "" {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	resp, err := r.matches.RestoreBackup(userFrom(req), id, body.File)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": resp})
}
