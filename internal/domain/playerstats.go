package domain

// PlayerStats holds one player's cumulative stats on one map. Every
// counter is overwritten, never incremented, by each update callback:
// the game server reports cumulative values and is the source of truth.
type PlayerStats struct {
	ID      int64  `json:"id"`
	MatchID int64  `json:"match_id"`
	MapID   int64  `json:"map_id"`
	TeamID  *int64 `json:"team_id,omitempty"`

	SteamID string `json:"steam_id"`
	Name    string `json:"name"`

	Kills            int `json:"kills"`
	Deaths           int `json:"deaths"`
	RoundsPlayed     int `json:"roundsplayed"`
	Assists          int `json:"assists"`
	FlashbangAssists int `json:"flashbang_assists"`
	TeamKills        int `json:"teamkills"`
	Suicides         int `json:"suicides"`
	HeadshotKills    int `json:"headshot_kills"`
	Damage           int `json:"damage"`
	BombPlants       int `json:"bomb_plants"`
	BombDefuses      int `json:"bomb_defuses"`

	// Clutch rounds won: 1vN situations converted.
	V1 int `json:"v1"`
	V2 int `json:"v2"`
	V3 int `json:"v3"`
	V4 int `json:"v4"`
	V5 int `json:"v5"`

	// Multi-kill rounds: rounds with exactly N kills.
	K1 int `json:"k1"`
	K2 int `json:"k2"`
	K3 int `json:"k3"`
	K4 int `json:"k4"`
	K5 int `json:"k5"`
}

// Rating computes an HLTV-style performance rating. Zero rounds played
// yields zero rather than dividing by it.
func (ps *PlayerStats) Rating() float64 {
	const (
		averageKPR = 0.679 // kills per round
		averageSPR = 0.317 // survived rounds per round
		averageRMK = 1.277 // multi-kill round value
	)

	if ps.RoundsPlayed == 0 {
		return 0
	}

	rounds := float64(ps.RoundsPlayed)
	killRating := float64(ps.Kills) / rounds / averageKPR
	survivalRating := float64(ps.RoundsPlayed-ps.Deaths) / rounds / averageSPR
	killCount := float64(ps.K1 + 4*ps.K2 + 9*ps.K3 + 16*ps.K4 + 25*ps.K5)
	multiKillRating := killCount / rounds / averageRMK

	return (killRating + 0.7*survivalRating + multiKillRating) / 2.7
}

// KDRatio returns kills per death, with deaths floored at 1.
func (ps *PlayerStats) KDRatio() float64 {
	deaths := ps.Deaths
	if deaths == 0 {
		deaths = 1
	}
	return float64(ps.Kills) / float64(deaths)
}
