package domain

import (
	"testing"
	"time"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestMatchDerivedStatus(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		match Match
		want  string
	}{
		{"fresh", Match{}, "pending"},
		{"started", Match{StartTime: timePtr(now)}, "live"},
		{"ended", Match{StartTime: timePtr(now), EndTime: timePtr(now)}, "finished"},
		{"cancelled wins over ended", Match{StartTime: timePtr(now), EndTime: timePtr(now), Cancelled: true}, "cancelled"},
		{"cancelled before start", Match{Cancelled: true}, "cancelled"},
	}
	for _, tt := range tests {
		if got := tt.match.Status(); got != tt.want {
			t.Errorf("%s: Status() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestMatchFinalized(t *testing.T) {
	now := time.Now()

	if (&Match{}).Finalized() {
		t.Error("pending match reported finalized")
	}
	if (&Match{StartTime: timePtr(now)}).Finalized() {
		t.Error("live match reported finalized")
	}
	if !(&Match{Cancelled: true}).Finalized() {
		t.Error("cancelled match not finalized")
	}
	if !(&Match{StartTime: timePtr(now), EndTime: timePtr(now)}).Finalized() {
		t.Error("finished match not finalized")
	}
}

func TestCurrentScoreBo1(t *testing.T) {
	m := &Match{MaxMaps: 1, Team1Score: 0, Team2Score: 0}

	t1, t2 := m.CurrentScore(nil)
	if t1 != 0 || t2 != 0 {
		t.Errorf("bo1 with no map: %d-%d", t1, t2)
	}

	t1, t2 = m.CurrentScore(&MapStats{Team1Score: 14, Team2Score: 16})
	if t1 != 14 || t2 != 16 {
		t.Errorf("bo1 score = %d-%d, want map rounds 14-16", t1, t2)
	}

	bo3 := &Match{MaxMaps: 3, Team1Score: 2, Team2Score: 1}
	t1, t2 = bo3.CurrentScore(&MapStats{Team1Score: 9, Team2Score: 9})
	if t1 != 2 || t2 != 1 {
		t.Errorf("bo3 score = %d-%d, want series 2-1", t1, t2)
	}
}

func TestBuildConfig(t *testing.T) {
	team1 := &Team{Name: "Alpha", Flag: "se", Auths: []string{"76561198000000001", "", "76561198000000002"}}
	team2 := &Team{Name: "Bravo", Flag: "dk", Auths: []string{"76561198000000003"}}

	m := &Match{
		ID:              42,
		Title:           "Map {MAPNUMBER} of {MAXMAPS}",
		MaxMaps:         3,
		SkipVeto:        true,
		VetoMapPool:     []string{"de_dust2", "de_mirage", "de_inferno"},
		OvertimeEnabled: true,
	}
	cfg := m.BuildConfig(team1, team2, "https://panel.example.com")

	if cfg.MatchID != "42" {
		t.Errorf("matchid = %q", cfg.MatchID)
	}
	if cfg.Bo2Series || cfg.MapsToWin != 2 {
		t.Errorf("bo3: bo2_series=%v maps_to_win=%d, want maps_to_win 2", cfg.Bo2Series, cfg.MapsToWin)
	}
	if cfg.Team1.Flag != "SE" {
		t.Errorf("flag = %q, want uppercased SE", cfg.Team1.Flag)
	}
	if len(cfg.Team1.Players) != 2 {
		t.Errorf("players = %v, want empty slots dropped", cfg.Team1.Players)
	}
	if cfg.Cvars["get5_web_api_url"] != "https://panel.example.com" {
		t.Errorf("api url cvar = %q", cfg.Cvars["get5_web_api_url"])
	}
	if cfg.Cvars["mp_overtime_enable"] != "1" || cfg.Cvars["mp_match_can_clinch"] != "1" {
		t.Errorf("cvars = %v", cfg.Cvars)
	}
	if len(cfg.MapList) != 3 {
		t.Errorf("maplist = %v", cfg.MapList)
	}
}

func TestBuildConfigBo2(t *testing.T) {
	m := &Match{ID: 1, MaxMaps: 2}
	cfg := m.BuildConfig(nil, nil, "http://x")
	if !cfg.Bo2Series || cfg.MapsToWin != 0 {
		t.Errorf("bo2: bo2_series=%v maps_to_win=%d", cfg.Bo2Series, cfg.MapsToWin)
	}
}

func TestBuildConfigPlayout(t *testing.T) {
	m := &Match{ID: 1, MaxMaps: 3, OvertimeEnabled: true, PlayoutEnabled: true}
	cfg := m.BuildConfig(nil, nil, "http://x")
	if cfg.Cvars["mp_overtime_enable"] != "0" {
		t.Error("playout should disable overtime")
	}
	if cfg.Cvars["mp_match_can_clinch"] != "0" {
		t.Error("playout should disable clinching")
	}
}

func TestPlayerRating(t *testing.T) {
	ps := &PlayerStats{
		Kills: 20, Deaths: 15, RoundsPlayed: 26,
		K1: 8, K2: 3, K3: 2,
	}
	rating := ps.Rating()
	if rating <= 0.5 || rating >= 2.0 {
		t.Errorf("rating = %f, outside plausible range", rating)
	}

	if (&PlayerStats{Kills: 10}).Rating() != 0 {
		t.Error("zero rounds should yield zero rating, not a division by zero")
	}
}

func TestKDRatio(t *testing.T) {
	if got := (&PlayerStats{Kills: 10, Deaths: 5}).KDRatio(); got != 2.0 {
		t.Errorf("KD = %f, want 2.0", got)
	}
	if got := (&PlayerStats{Kills: 7, Deaths: 0}).KDRatio(); got != 7.0 {
		t.Errorf("zero deaths: KD = %f, want 7.0 with floor", got)
	}
}

func TestTeamPlayers(t *testing.T) {
	team := &Team{Auths: []string{"a", "", "b", ""}}
	if got := team.Players(); len(got) != 2 {
		t.Errorf("Players() = %v", got)
	}
}

func TestTeamCanEdit(t *testing.T) {
	owner := &User{ID: 1}
	admin := &User{ID: 2, Admin: true}
	stranger := &User{ID: 3}

	private := &Team{UserID: 1}
	public := &Team{UserID: 1, Public: true}

	if !private.CanEdit(owner) {
		t.Error("owner denied")
	}
	if private.CanEdit(stranger) || private.CanEdit(admin) {
		t.Error("non-owner allowed on private team")
	}
	if !public.CanEdit(admin) {
		t.Error("admin denied on public team")
	}
	if public.CanEdit(nil) {
		t.Error("nil user allowed")
	}
}
