package storage

import (
	"testing"
	"time"

	"get5panel/internal/domain"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parsing %q: %v", s, err)
	}
	return ts
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedMatch(t *testing.T, s *Store) *domain.Match {
	t.Helper()
	userID, err := s.CreateUser(&domain.User{Username: "u", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}
	serverID, err := s.CreateServer(&domain.GameServer{
		UserID: userID, IPString: "192.0.2.1", Port: 27015, RconPassword: "pw",
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}
	team1, _ := s.CreateTeam(&domain.Team{UserID: userID, Name: "A", Auths: []string{}})
	team2, _ := s.CreateTeam(&domain.Team{UserID: userID, Name: "B", Auths: []string{}})

	m := &domain.Match{
		UserID: userID, ServerID: serverID, Team1ID: team1, Team2ID: team2,
		MaxMaps: 3, APIKey: "KEY123", VetoMapPool: []string{"de_dust2", "de_mirage"},
	}
	id, err := s.CreateMatch(m)
	if err != nil {
		t.Fatalf("creating match: %v", err)
	}
	m.ID = id
	return m
}

func TestGenerateAPIKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		key, err := GenerateAPIKey()
		if err != nil {
			t.Fatalf("GenerateAPIKey: %v", err)
		}
		if len(key) != 24 {
			t.Fatalf("key length = %d, want 24", len(key))
		}
		for _, c := range key {
			if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
				t.Fatalf("key %q contains %q outside [A-Z0-9]", key, c)
			}
		}
		if seen[key] {
			t.Fatalf("duplicate key %q", key)
		}
		seen[key] = true
	}
}

func TestActiveServerIndex(t *testing.T) {
	s := newTestStore(t)
	m := seedMatch(t, s)

	dup := &domain.Match{
		UserID: m.UserID, ServerID: m.ServerID, Team1ID: m.Team1ID, Team2ID: m.Team2ID,
		MaxMaps: 1, APIKey: "OTHER",
	}
	if _, err := s.CreateMatch(dup); err != ErrServerInUse {
		t.Fatalf("duplicate active match: got %v, want ErrServerInUse", err)
	}

	// After finalization the server accepts a new match.
	if err := s.FinishMatch(m.ID, nil, 0, 0, false); err != nil {
		t.Fatalf("finishing match: %v", err)
	}
	if _, err := s.CreateMatch(dup); err != nil {
		t.Fatalf("match after finalization: %v", err)
	}
}

func TestMatchRoundTrip(t *testing.T) {
	s := newTestStore(t)
	m := seedMatch(t, s)

	got, err := s.GetMatchByID(m.ID)
	if err != nil {
		t.Fatalf("fetching match: %v", err)
	}
	if got.APIKey != "KEY123" {
		t.Errorf("api key = %q", got.APIKey)
	}
	if len(got.VetoMapPool) != 2 || got.VetoMapPool[0] != "de_dust2" {
		t.Errorf("veto pool = %v", got.VetoMapPool)
	}
	if got.PluginVersion != "unknown" {
		t.Errorf("plugin version = %q, want unknown default", got.PluginVersion)
	}
	if !got.Pending() {
		t.Errorf("fresh match status = %q", got.Status())
	}

	active, err := s.GetActiveMatchForServer(m.ServerID)
	if err != nil {
		t.Fatalf("active match lookup: %v", err)
	}
	if active.ID != m.ID {
		t.Errorf("active match = %d, want %d", active.ID, m.ID)
	}
}

func TestStartTimeSetOnce(t *testing.T) {
	s := newTestStore(t)
	m := seedMatch(t, s)

	if err := s.SetMatchStartTime(m.ID, mustParse(t, "2026-01-02T10:00:00Z")); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := s.SetMatchStartTime(m.ID, mustParse(t, "2026-01-02T11:00:00Z")); err != nil {
		t.Fatalf("replayed start: %v", err)
	}

	got, _ := s.GetMatchByID(m.ID)
	if got.StartTime == nil || got.StartTime.Hour() != 10 {
		t.Errorf("start time = %v, want the first write kept", got.StartTime)
	}
}

func TestTimestampFormat(t *testing.T) {
	ts := mustParse(t, "2026-03-04T05:06:07Z")
	if got := formatTimestamp(ts); got != "2026-03-04T05:06:07Z" {
		t.Errorf("formatTimestamp = %q", got)
	}
	if back := parseTimestamp("2026-03-04T05:06:07Z"); !back.Equal(ts) {
		t.Errorf("parseTimestamp = %v", back)
	}
}

func TestTeamAuthsJSON(t *testing.T) {
	s := newTestStore(t)
	userID, _ := s.CreateUser(&domain.User{Username: "u2", PasswordHash: "x"})

	id, err := s.CreateTeam(&domain.Team{
		UserID: userID, Name: "Roster",
		Auths: []string{"76561198000000001", "76561198000000002"},
	})
	if err != nil {
		t.Fatalf("creating team: %v", err)
	}
	team, err := s.GetTeamByID(id)
	if err != nil {
		t.Fatalf("fetching team: %v", err)
	}
	if len(team.Auths) != 2 || team.Auths[1] != "76561198000000002" {
		t.Errorf("auths = %v", team.Auths)
	}
}
