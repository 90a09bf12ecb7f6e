package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"get5panel/internal/match"
	"get5panel/internal/storage"
)

// The plugin expects plain-text bodies with these exact strings; it
// string-matches some of them.
const (
	respSuccess       = "Success"
	respWrongKey      = "Wrong API key"
	respFinalized     = "Match already finalized"
	respNoMapStats    = "Failed to find map stats object"
	respMatchNotFound = "Match not found"
)

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintln(w, body)
}

// callbackParams pulls the path values shared by the map endpoints.
func callbackParams(req *http.Request) (matchID int64, mapNumber int, key string, err error) {
	matchID, err = strconv.ParseInt(req.PathValue("matchid"), 10, 64)
	if err != nil {
		return 0, 0, "", fmt.Errorf("bad match id")
	}
	mapNumber, err = strconv.Atoi(req.PathValue("mapnumber"))
	if err != nil {
		return 0, 0, "", fmt.Errorf("bad map number")
	}
	return matchID, mapNumber, req.FormValue("key"), nil
}

// writeCallbackError maps service errors to the statuses and bodies the
// plugin expects. mapMissing404 selects between the two historical
// treatments of a missing map stats row.
func writeCallbackError(w http.ResponseWriter, err error, mapMissing404 bool) {
	switch {
	case errors.Is(err, match.ErrMatchNotFound):
		writeText(w, http.StatusNotFound, respMatchNotFound)
	case errors.Is(err, match.ErrWrongAPIKey):
		writeText(w, http.StatusBadRequest, respWrongKey)
	case errors.Is(err, match.ErrFinalized):
		writeText(w, http.StatusBadRequest, respFinalized)
	case errors.Is(err, match.ErrMapNumberOutOfRange):
		writeText(w, http.StatusNotFound, respNoMapStats)
	case errors.Is(err, match.ErrMapStatsNotFound):
		if mapMissing404 {
			writeText(w, http.StatusNotFound, respNoMapStats)
		} else {
			writeText(w, http.StatusBadRequest, respNoMapStats)
		}
	default:
		log.Printf("callback error: %v", err)
		writeText(w, http.StatusInternalServerError, "Internal error")
	}
}

func (r *Router) handleMapStart(w http.ResponseWriter, req *http.Request) {
	matchID, mapNumber, key, err := callbackParams(req)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	err = r.matches.MapStart(matchID, mapNumber, key, req.FormValue("mapname"))
	if err != nil {
		writeCallbackError(w, err, true)
		return
	}
	writeText(w, http.StatusOK, respSuccess)
}

func (r *Router) handleMapUpdate(w http.ResponseWriter, req *http.Request) {
	matchID, mapNumber, key, err := callbackParams(req)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	err = r.matches.MapUpdate(matchID, mapNumber, key,
		req.FormValue("team1score"), req.FormValue("team2score"))
	if err != nil {
		writeCallbackError(w, err, false)
		return
	}
	writeText(w, http.StatusOK, respSuccess)
}

func (r *Router) handleMapFinish(w http.ResponseWriter, req *http.Request) {
	matchID, mapNumber, key, err := callbackParams(req)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	err = r.matches.MapFinish(matchID, mapNumber, key, req.FormValue("winner"))
	if err != nil {
		writeCallbackError(w, err, true)
		return
	}
	writeText(w, http.StatusOK, respSuccess)
}

func (r *Router) handlePlayerUpdate(w http.ResponseWriter, req *http.Request) {
	matchID, mapNumber, key, err := callbackParams(req)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	steamID := req.PathValue("steamid64")

	if err := req.ParseForm(); err != nil {
		writeText(w, http.StatusBadRequest, "bad form body")
		return
	}
	fields := make(match.PlayerStatsFields, len(req.PostForm))
	for k := range req.PostForm {
		fields[k] = req.PostForm.Get(k)
	}

	err = r.matches.PlayerUpdate(matchID, mapNumber, key, steamID, fields)
	switch {
	case errors.Is(err, storage.ErrPlayerCap):
		// The plugin can't act on a cap rejection; the row is simply
		// not recorded.
		log.Printf("match %d map %d: player cap hit for %s", matchID, mapNumber, steamID)
	case err != nil:
		writeCallbackError(w, err, true)
		return
	}
	writeText(w, http.StatusOK, respSuccess)
}

func (r *Router) handleSeriesFinish(w http.ResponseWriter, req *http.Request) {
	matchID, err := strconv.ParseInt(req.PathValue("matchid"), 10, 64)
	if err != nil {
		writeText(w, http.StatusBadRequest, "bad match id")
		return
	}

	forfeit := req.FormValue("forfeit") == "1"
	err = r.matches.SeriesFinish(matchID, req.FormValue("key"), req.FormValue("winner"), forfeit)
	if err != nil {
		writeCallbackError(w, err, true)
		return
	}
	writeText(w, http.StatusOK, respSuccess)
}

// handleMatchConfig serves the dispatch document the plugin fetches
// after a get5_loadmatch_url push. Public by design: the URL is only
// ever handed to the game server over RCON.
func (r *Router) handleMatchConfig(w http.ResponseWriter, req *http.Request) {
	matchID, err := strconv.ParseInt(req.PathValue("matchid"), 10, 64)
	if err != nil {
		writeText(w, http.StatusBadRequest, "bad match id")
		return
	}

	m, err := r.matches.GetMatch(matchID)
	if err != nil {
		writeText(w, http.StatusNotFound, respMatchNotFound)
		return
	}
	cfg, err := r.matches.BuildConfig(m)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
