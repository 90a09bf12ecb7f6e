package domain

import (
	"strconv"
	"strings"
)

// MatchConfig is the document the get5 plugin fetches from
// GET /match/{id}/config after a get5_loadmatch_url push.
type MatchConfig struct {
	MatchID    string `json:"matchid"`
	MatchTitle string `json:"match_title"`
	SkipVeto   bool   `json:"skip_veto"`

	// Exactly one of these is set: bo2 series have no clinch point.
	Bo2Series bool `json:"bo2_series,omitempty"`
	MapsToWin int  `json:"maps_to_win,omitempty"`

	Team1 *ConfigTeam `json:"team1,omitempty"`
	Team2 *ConfigTeam `json:"team2,omitempty"`

	Cvars   map[string]string `json:"cvars"`
	MapList []string          `json:"maplist,omitempty"`
}

// ConfigTeam is the roster block inside a MatchConfig.
type ConfigTeam struct {
	Name    string   `json:"name"`
	Flag    string   `json:"flag"`
	Logo    string   `json:"logo"`
	Players []string `json:"players"`
}

// BuildConfig assembles the dispatch payload for this match. apiURL is
// the public base URL the game server will report callbacks to.
func (m *Match) BuildConfig(team1, team2 *Team, apiURL string) MatchConfig {
	cfg := MatchConfig{
		MatchID:    strconv.FormatInt(m.ID, 10),
		MatchTitle: m.Title,
		SkipVeto:   m.SkipVeto,
	}

	if m.MaxMaps == 2 {
		cfg.Bo2Series = true
	} else {
		cfg.MapsToWin = m.MaxMaps/2 + 1
	}

	cfg.Team1 = configTeam(team1)
	cfg.Team2 = configTeam(team2)

	overtime := "0"
	if m.OvertimeEnabled && !m.PlayoutEnabled {
		overtime = "1"
	}
	clinch := "1"
	if m.PlayoutEnabled {
		clinch = "0"
	}
	cfg.Cvars = map[string]string{
		"get5_web_api_url":    apiURL,
		"mp_overtime_enable":  overtime,
		"mp_match_can_clinch": clinch,
	}

	if len(m.VetoMapPool) > 0 {
		cfg.MapList = append([]string(nil), m.VetoMapPool...)
	}

	return cfg
}

func configTeam(t *Team) *ConfigTeam {
	if t == nil {
		return nil
	}
	return &ConfigTeam{
		Name:    t.Name,
		Flag:    strings.ToUpper(t.Flag),
		Logo:    t.Logo,
		Players: t.Players(),
	}
}
