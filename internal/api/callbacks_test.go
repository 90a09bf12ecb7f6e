package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"get5panel/internal/assets"
	"get5panel/internal/auth"
	"get5panel/internal/config"
	"get5panel/internal/domain"
	"get5panel/internal/match"
	"get5panel/internal/storage"
)

type fakeRcon struct{}

func (fakeRcon) Send(host string, port int, password, command string) (string, error) {
	if strings.HasPrefix(command, "get5_web_avaliable") {
		return `{"gamestate": 0, "plugin_version": "0.7.2"}`, nil
	}
	return "", nil
}

type testEnv struct {
	srv   *httptest.Server
	store *storage.Store
	match *domain.Match
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	svc := match.NewService(store, fakeRcon{}, cfg)
	authSvc := auth.NewService("test-secret", 0)
	logos, err := assets.LoadLogos("")
	if err != nil {
		t.Fatalf("loading logos: %v", err)
	}
	router := NewRouter(store, svc, authSvc, cfg, logos)

	srv := httptest.NewServer(router.Handler())
	t.Cleanup(srv.Close)

	userID, _ := store.CreateUser(&domain.User{Username: "tester", PasswordHash: "x"})
	user, _ := store.GetUserByID(userID)
	serverID, _ := store.CreateServer(&domain.GameServer{
		UserID: userID, IPString: "192.0.2.10", Port: 27015, RconPassword: "pw",
	})
	team1, _ := store.CreateTeam(&domain.Team{UserID: userID, Name: "Alpha", Auths: []string{}})
	team2, _ := store.CreateTeam(&domain.Team{UserID: userID, Name: "Bravo", Auths: []string{}})

	m, err := svc.CreateMatch(user, &match.CreateMatchRequest{
		ServerID: serverID, Team1ID: team1, Team2ID: team2, MaxMaps: 3,
	})
	if err != nil {
		t.Fatalf("creating match: %v", err)
	}
	return &testEnv{srv: srv, store: store, match: m}
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) (int, string) {
	t.Helper()
	resp, err := http.PostForm(e.srv.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(body))
}

func TestMapStartEndpoint(t *testing.T) {
	e := newTestEnv(t)
	path := fmt.Sprintf("/match/%d/map/0/start", e.match.ID)

	status, body := e.post(t, path, url.Values{
		"key": {e.match.APIKey}, "mapname": {"de_dust2"},
	})
	if status != http.StatusOK || body != "Success" {
		t.Errorf("got %d %q, want 200 Success", status, body)
	}

	status, body = e.post(t, path, url.Values{
		"key": {"WRONG"}, "mapname": {"de_dust2"},
	})
	if status != http.StatusBadRequest || body != "Wrong API key" {
		t.Errorf("wrong key: got %d %q, want 400 Wrong API key", status, body)
	}

	// Map number past max_maps.
	badPath := fmt.Sprintf("/match/%d/map/3/start", e.match.ID)
	status, _ = e.post(t, badPath, url.Values{
		"key": {e.match.APIKey}, "mapname": {"de_nuke"},
	})
	if status != http.StatusNotFound {
		t.Errorf("out of range: got %d, want 404", status)
	}
}

func TestMapUpdateEndpoint(t *testing.T) {
	e := newTestEnv(t)

	// Update before the map exists.
	path := fmt.Sprintf("/match/%d/map/0/update", e.match.ID)
	status, body := e.post(t, path, url.Values{
		"key": {e.match.APIKey}, "team1score": {"1"}, "team2score": {"0"},
	})
	if status != http.StatusBadRequest || body != "Failed to find map stats object" {
		t.Errorf("missing map: got %d %q", status, body)
	}

	e.post(t, fmt.Sprintf("/match/%d/map/0/start", e.match.ID), url.Values{
		"key": {e.match.APIKey}, "mapname": {"de_dust2"},
	})
	status, body = e.post(t, path, url.Values{
		"key": {e.match.APIKey}, "team1score": {"13"}, "team2score": {"7"},
	})
	if status != http.StatusOK || body != "Success" {
		t.Errorf("valid update: got %d %q", status, body)
	}

	ms, _ := e.store.GetMapStats(e.match.ID, 0)
	if ms.Team1Score != 13 || ms.Team2Score != 7 {
		t.Errorf("scores = %d-%d, want 13-7", ms.Team1Score, ms.Team2Score)
	}
}

func TestPlayerUpdateEndpoint(t *testing.T) {
	e := newTestEnv(t)

	e.post(t, fmt.Sprintf("/match/%d/map/0/start", e.match.ID), url.Values{
		"key": {e.match.APIKey}, "mapname": {"de_dust2"},
	})

	path := fmt.Sprintf("/match/%d/map/0/player/76561198064755913/update", e.match.ID)
	status, body := e.post(t, path, url.Values{
		"key":          {e.match.APIKey},
		"name":         {"player one"},
		"team":         {"team1"},
		"kills":        {"21"},
		"deaths":       {"14"},
		"roundsplayed": {"26"},
		"3kill_rounds": {"2"},
	})
	if status != http.StatusOK || body != "Success" {
		t.Fatalf("player update: got %d %q", status, body)
	}

	ms, _ := e.store.GetMapStats(e.match.ID, 0)
	players, _ := e.store.ListPlayerStats(ms.ID)
	if len(players) != 1 || players[0].Kills != 21 || players[0].K3 != 2 {
		t.Errorf("stored stats wrong: %+v", players)
	}

	// Missing map is a 404 on this endpoint.
	badPath := fmt.Sprintf("/match/%d/map/1/player/76561198064755913/update", e.match.ID)
	status, _ = e.post(t, badPath, url.Values{"key": {e.match.APIKey}})
	if status != http.StatusNotFound {
		t.Errorf("missing map: got %d, want 404", status)
	}
}

func TestSeriesFinishEndpoint(t *testing.T) {
	e := newTestEnv(t)
	path := fmt.Sprintf("/match/%d/finish", e.match.ID)

	status, body := e.post(t, path, url.Values{
		"key": {e.match.APIKey}, "winner": {"team1"},
	})
	if status != http.StatusOK || body != "Success" {
		t.Fatalf("finish: got %d %q", status, body)
	}

	status, body = e.post(t, path, url.Values{
		"key": {e.match.APIKey}, "winner": {"team2"},
	})
	if status != http.StatusBadRequest || body != "Match already finalized" {
		t.Errorf("double finish: got %d %q", status, body)
	}

	m, _ := e.store.GetMatchByID(e.match.ID)
	if m.Winner == nil || *m.Winner != m.Team1ID {
		t.Errorf("winner = %v, want team1", m.Winner)
	}
}

func TestMatchNotFound(t *testing.T) {
	e := newTestEnv(t)
	status, body := e.post(t, "/match/99999/finish", url.Values{"key": {"x"}})
	if status != http.StatusNotFound || body != "Match not found" {
		t.Errorf("got %d %q", status, body)
	}
}

func TestMatchConfigEndpoint(t *testing.T) {
	e := newTestEnv(t)

	resp, err := http.Get(fmt.Sprintf("%s/match/%d/config", e.srv.URL, e.match.ID))
	if err != nil {
		t.Fatalf("GET config: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var cfg domain.MatchConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatalf("decoding config: %v", err)
	}
	if cfg.MatchID != fmt.Sprint(e.match.ID) {
		t.Errorf("matchid = %q", cfg.MatchID)
	}
	if cfg.MapsToWin != 2 {
		t.Errorf("maps_to_win = %d, want 2 for bo3", cfg.MapsToWin)
	}
	if cfg.Cvars["get5_web_api_url"] == "" {
		t.Error("missing get5_web_api_url cvar")
	}
	if cfg.Team1 == nil || cfg.Team1.Name != "Alpha" {
		t.Errorf("team1 = %+v", cfg.Team1)
	}
}
