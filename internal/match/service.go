// Package match implements the match lifecycle: creation and dispatch
// to a game server, the admission check, plugin stat callbacks, and the
// RCON-backed admin actions. All state transitions go through here so
// the storage invariants (one active match per server, finalization is
// terminal) hold no matter which surface triggers them.
package match

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"get5panel/internal/config"
	"get5panel/internal/domain"
	"get5panel/internal/steamid"
	"get5panel/internal/storage"
)

// Commander sends one RCON command and returns the server's reply.
// Satisfied by *rcon.Client; tests substitute a stub.
type Commander interface {
	Send(host string, port int, password, command string) (string, error)
}

// Typed errors the API layer maps to HTTP statuses and wire bodies.
var (
	ErrMatchNotFound       = errors.New("match not found")
	ErrServerNotFound      = errors.New("server not found")
	ErrTeamNotFound        = errors.New("team not found")
	ErrWrongAPIKey         = errors.New("wrong api key")
	ErrFinalized           = errors.New("match already finalized")
	ErrMapStatsNotFound    = errors.New("map stats not found")
	ErrMapNumberOutOfRange = errors.New("map number out of range")
	ErrNotOwner            = errors.New("not the owner")
	ErrLimitReached        = errors.New("creation limit reached")
)

// UserError is a service failure whose message is meant for the panel
// user verbatim.
type UserError struct {
	Message string
}

func (e *UserError) Error() string { return e.Message }

func userErrorf(format string, args ...any) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// Service coordinates matches between the store and the game servers.
type Service struct {
	store  *storage.Store
	rcon   Commander
	cfg    *config.Config
	events chan domain.Event
}

// NewService creates a match service.
func NewService(store *storage.Store, rcon Commander, cfg *config.Config) *Service {
	return &Service{
		store:  store,
		rcon:   rcon,
		cfg:    cfg,
		events: make(chan domain.Event, 64),
	}
}

// Events returns the channel lifecycle events are published on. A hub
// drains it; when nothing does, publishing drops rather than blocks.
func (s *Service) Events() <-chan domain.Event {
	return s.events
}

func (s *Service) publish(eventType string, matchID int64, data interface{}) {
	ev := domain.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		MatchID:   matchID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	select {
	case s.events <- ev:
	default:
		log.Printf("event channel full, dropping %s for match %d", eventType, matchID)
	}
}

// CreateMatchRequest carries the panel form for a new match.
type CreateMatchRequest struct {
	ServerID        int64
	Team1ID         int64
	Team2ID         int64
	MaxMaps         int
	Title           string
	SkipVeto        bool
	VetoMapPool     []string
	OvertimeEnabled bool
	PlayoutEnabled  bool
}

// CreateMatch validates, admits the server, commits the match and
// pushes the config to the game server. A dispatch failure after commit
// leaves the match created; the returned error tells the user to retry
// from the match page.
func (s *Service) CreateMatch(user *domain.User, req *CreateMatchRequest) (*domain.Match, error) {
	// Series are bo1/bo3/bo5/bo7, plus bo2 as the one even format the
	// plugin supports (no clinch point).
	if req.MaxMaps < 1 || req.MaxMaps > 7 || (req.MaxMaps%2 == 0 && req.MaxMaps != 2) {
		return nil, userErrorf("Invalid number of maps: %d", req.MaxMaps)
	}

	if limit := s.cfg.Panel.UserMaxMatches; limit >= 0 && !user.Admin {
		n, err := s.store.CountUserMatches(user.ID)
		if err != nil {
			return nil, err
		}
		if n >= limit {
			return nil, fmt.Errorf("%w: %d matches", ErrLimitReached, limit)
		}
	}

	server, err := s.store.GetServerByID(req.ServerID)
	if err == sql.ErrNoRows {
		return nil, ErrServerNotFound
	}
	if err != nil {
		return nil, err
	}
	if server.UserID != user.ID && !server.PublicServer && !user.Admin {
		return nil, userErrorf("This is not your server")
	}

	if active, err := s.store.GetActiveMatchForServer(server.ID); err == nil {
		return nil, userErrorf("Match %d is already using this server", active.ID)
	} else if err != sql.ErrNoRows {
		return nil, err
	}

	if _, err := s.store.GetTeamByID(req.Team1ID); err != nil {
		return nil, ErrTeamNotFound
	}
	if _, err := s.store.GetTeamByID(req.Team2ID); err != nil {
		return nil, ErrTeamNotFound
	}

	status, reason := s.CheckAvailability(server)
	if status == nil {
		return nil, userErrorf("Error: %s", reason)
	}

	apiKey, err := storage.GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	m := &domain.Match{
		UserID:          user.ID,
		ServerID:        server.ID,
		Team1ID:         req.Team1ID,
		Team2ID:         req.Team2ID,
		MaxMaps:         req.MaxMaps,
		Title:           req.Title,
		SkipVeto:        req.SkipVeto,
		VetoMapPool:     req.VetoMapPool,
		APIKey:          apiKey,
		OvertimeEnabled: req.OvertimeEnabled,
		PlayoutEnabled:  req.PlayoutEnabled,
		PluginVersion:   "unknown",
	}
	if status.PluginVersion != "" {
		m.PluginVersion = status.PluginVersion
	}

	id, err := s.store.CreateMatch(m)
	if err == storage.ErrServerInUse {
		return nil, userErrorf("Match is already using this server")
	}
	if err != nil {
		return nil, err
	}
	m.ID = id

	s.publish(domain.EventMatchCreated, id, nil)

	if err := s.SendToServer(m, server); err != nil {
		log.Printf("match %d created but dispatch failed: %v", id, err)
		return m, userErrorf("Failed to load match configs on server")
	}
	return m, nil
}

// SendToServer pushes the match config URL and API key to the game
// server. Any non-empty reply to the loadmatch command means the plugin
// rejected it.
func (s *Service) SendToServer(m *domain.Match, server *domain.GameServer) error {
	configURL := fmt.Sprintf("%s/match/%d/config", s.cfg.Server.PublicURL, m.ID)

	resp, err := s.rcon.Send(server.IPString, server.Port, server.RconPassword,
		"get5_loadmatch_url "+quote(configURL))
	if err != nil {
		return fmt.Errorf("sending loadmatch: %w", err)
	}
	if strings.TrimSpace(resp) != "" {
		return fmt.Errorf("loadmatch rejected: %s", strings.TrimSpace(resp))
	}

	if _, err := s.rcon.Send(server.IPString, server.Port, server.RconPassword,
		"get5_web_api_key "+m.APIKey); err != nil {
		return fmt.Errorf("sending api key: %w", err)
	}
	return nil
}

func quote(s string) string {
	return `"` + s + `"`
}

// GetMatch fetches a match by id.
func (s *Service) GetMatch(id int64) (*domain.Match, error) {
	m, err := s.store.GetMatchByID(id)
	if err == sql.ErrNoRows {
		return nil, ErrMatchNotFound
	}
	return m, err
}

// GetMatchDetail assembles the full match view with maps and players.
func (s *Service) GetMatchDetail(id int64) (*domain.MatchDetail, error) {
	m, err := s.GetMatch(id)
	if err != nil {
		return nil, err
	}

	detail := &domain.MatchDetail{Match: *m, Status: m.Status()}
	if t, err := s.store.GetTeamByID(m.Team1ID); err == nil {
		detail.Team1 = t
	}
	if t, err := s.store.GetTeamByID(m.Team2ID); err == nil {
		detail.Team2 = t
	}

	maps, err := s.store.ListMapStats(id)
	if err != nil {
		return nil, err
	}
	for _, ms := range maps {
		players, err := s.store.ListPlayerStats(ms.ID)
		if err != nil {
			return nil, err
		}
		detail.Maps = append(detail.Maps, domain.MapDetail{MapStats: *ms, Players: players})
	}
	return detail, nil
}

// BuildConfig assembles the dispatch document served to the plugin.
func (s *Service) BuildConfig(m *domain.Match) (*domain.MatchConfig, error) {
	team1, err := s.store.GetTeamByID(m.Team1ID)
	if err != nil {
		return nil, ErrTeamNotFound
	}
	team2, err := s.store.GetTeamByID(m.Team2ID)
	if err != nil {
		return nil, ErrTeamNotFound
	}
	cfg := m.BuildConfig(team1, team2, s.cfg.Server.PublicURL)
	return &cfg, nil
}

// CanManage reports whether user may run admin actions on a match.
func (s *Service) CanManage(user *domain.User, m *domain.Match) bool {
	if user == nil {
		return false
	}
	if m.UserID == user.ID {
		return true
	}
	return user.Admin && s.cfg.Panel.AdminsAccessAllMatches
}

// CancelMatch cancels a match locally and makes a best-effort attempt
// to end it on the game server. The local cancel always wins; a failed
// RCON notify is reported in the returned string, not as an error.
func (s *Service) CancelMatch(user *domain.User, matchID int64) (string, error) {
	m, err := s.GetMatch(matchID)
	if err != nil {
		return "", err
	}
	if !s.CanManage(user, m) {
		return "", ErrNotOwner
	}
	if m.Finalized() {
		return "", ErrFinalized
	}

	if err := s.store.CancelMatch(matchID); err != nil {
		return "", err
	}
	s.publish(domain.EventMatchCancelled, matchID, nil)

	var notice string
	if server, err := s.store.GetServerByID(m.ServerID); err == nil {
		if _, err := s.rcon.Send(server.IPString, server.Port, server.RconPassword, "get5_endmatch"); err != nil {
			notice = "Failed to notify server of cancellation"
			log.Printf("match %d cancelled locally, get5_endmatch failed: %v", matchID, err)
		}
	}
	return notice, nil
}

// Pause pauses the match on the game server.
func (s *Service) Pause(user *domain.User, matchID int64) error {
	return s.adminCommand(user, matchID, "sm_pause")
}

// Unpause resumes the match on the game server.
func (s *Service) Unpause(user *domain.User, matchID int64) error {
	return s.adminCommand(user, matchID, "sm_unpause")
}

// AddPlayer whitelists a player on one side of a live match. team is
// "team1" or "team2"; auth may be any supported steam id form.
func (s *Service) AddPlayer(user *domain.User, matchID int64, team, auth string) (string, error) {
	steam64, ok := steamid.To64(auth)
	if !ok {
		return "", userErrorf("Invalid steam id: %s", auth)
	}
	if team != "team1" && team != "team2" {
		return "", userErrorf("Invalid team: %s", team)
	}
	return s.execOnMatch(user, matchID, fmt.Sprintf("get5_addplayer %s %s", steam64, team))
}

// ExecRcon runs an arbitrary command on a match's server. Admin only,
// checked by the caller.
func (s *Service) ExecRcon(user *domain.User, matchID int64, command string) (string, error) {
	return s.execOnMatch(user, matchID, command)
}

// ListBackups returns the plugin's round backup listing.
func (s *Service) ListBackups(user *domain.User, matchID int64) (string, error) {
	return s.execOnMatch(user, matchID, fmt.Sprintf("get5_listbackups %d", matchID))
}

// RestoreBackup rolls the match back to a round backup file.
func (s *Service) RestoreBackup(user *domain.User, matchID int64, file string) (string, error) {
	if strings.ContainsAny(file, " ;\"") {
		return "", userErrorf("Invalid backup file name")
	}
	return s.execOnMatch(user, matchID, "get5_loadbackup "+file)
}

func (s *Service) adminCommand(user *domain.User, matchID int64, command string) error {
	_, err := s.execOnMatch(user, matchID, command)
	return err
}

func (s *Service) execOnMatch(user *domain.User, matchID int64, command string) (string, error) {
	m, err := s.GetMatch(matchID)
	if err != nil {
		return "", err
	}
	if !s.CanManage(user, m) {
		return "", ErrNotOwner
	}

	server, err := s.store.GetServerByID(m.ServerID)
	if err != nil {
		return "", ErrServerNotFound
	}
	resp, err := s.rcon.Send(server.IPString, server.Port, server.RconPassword, command)
	if err != nil {
		return "", fmt.Errorf("rcon: %w", err)
	}
	return resp, nil
}
