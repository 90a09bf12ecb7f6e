package domain

import "time"

// Match represents a best-of-N series between two teams on one server.
// Its status is never stored; it is derived from the timestamp and
// cancelled fields so the view can't go stale relative to them.
type Match struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"`
	ServerID int64  `json:"server_id"`
	Team1ID  int64  `json:"team1_id"`
	Team2ID  int64  `json:"team2_id"`
	Winner   *int64 `json:"winner,omitempty"`

	Cancelled bool       `json:"cancelled"`
	Forfeit   bool       `json:"forfeit"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	MaxMaps     int      `json:"max_maps"`
	Title       string   `json:"title"`
	SkipVeto    bool     `json:"skip_veto"`
	VetoMapPool []string `json:"veto_mappool"`

	// APIKey authenticates every callback the game server makes for this
	// match. Never serialized to panel clients.
	APIKey string `json:"-"`

	// Series-level map-win counters, meaningful when MaxMaps != 1.
	Team1Score int `json:"team1_score"`
	Team2Score int `json:"team2_score"`

	OvertimeEnabled bool   `json:"overtime_enabled"`
	PlayoutEnabled  bool   `json:"playout_enabled"`
	PluginVersion   string `json:"plugin_version,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Pending reports whether the match has been created but not started.
func (m *Match) Pending() bool {
	return m.StartTime == nil && !m.Cancelled
}

// Live reports whether the match is in progress.
func (m *Match) Live() bool {
	return m.StartTime != nil && m.EndTime == nil && !m.Cancelled
}

// Finished reports whether the match ran to completion.
func (m *Match) Finished() bool {
	return m.EndTime != nil && !m.Cancelled
}

// Finalized reports whether the match accepts no further mutation.
func (m *Match) Finalized() bool {
	return m.Cancelled || m.Finished()
}

// Status returns the derived state as a string for API responses.
func (m *Match) Status() string {
	switch {
	case m.Cancelled:
		return "cancelled"
	case m.Finished():
		return "finished"
	case m.Live():
		return "live"
	default:
		return "pending"
	}
}

// CurrentScore returns the series score to display. For a bo1 the single
// map's round score stands in for the series counters.
func (m *Match) CurrentScore(firstMap *MapStats) (int, int) {
	if m.MaxMaps == 1 {
		if firstMap == nil {
			return 0, 0
		}
		return firstMap.Team1Score, firstMap.Team2Score
	}
	return m.Team1Score, m.Team2Score
}

// MapStats holds the per-map sub-state of a match. Rows are created
// lazily on the first map-start callback, one per (match, map_number).
type MapStats struct {
	ID        int64      `json:"id"`
	MatchID   int64      `json:"match_id"`
	MapNumber int        `json:"map_number"`
	MapName   string     `json:"map_name"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Winner    *int64     `json:"winner,omitempty"`

	Team1Score int `json:"team1_score"`
	Team2Score int `json:"team2_score"`
}

// Live reports whether the map is still being played.
func (ms *MapStats) Live() bool {
	return ms.EndTime == nil
}

// MatchSummary is a match with team names resolved, for list views.
type MatchSummary struct {
	Match
	Team1Name string `json:"team1_name"`
	Team2Name string `json:"team2_name"`
	Status    string `json:"status"`
}

// MapDetail is a map with its player stat rows.
type MapDetail struct {
	MapStats
	Players []PlayerStats `json:"players"`
}

// MatchDetail is the full match view: teams plus maps with player stats.
type MatchDetail struct {
	Match  Match       `json:"match"`
	Team1  *Team       `json:"team1,omitempty"`
	Team2  *Team       `json:"team2,omitempty"`
	Maps   []MapDetail `json:"maps"`
	Status string      `json:"status"`
}
