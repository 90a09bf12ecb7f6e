package match

import (
	"database/sql"
	"strconv"
	"time"

	"get5panel/internal/domain"
)

// apiCheck is the gate every plugin callback passes first: the key must
// match and, unless checkFinalized is off, the match must still be
// mutable. Key comparison comes before the finalized check so a bad key
// is always reported as a bad key.
func (s *Service) apiCheck(matchID int64, key string, checkFinalized bool) (*domain.Match, error) {
	m, err := s.GetMatch(matchID)
	if err != nil {
		return nil, err
	}
	if m.APIKey != key {
		return nil, ErrWrongAPIKey
	}
	if checkFinalized && m.Finalized() {
		return nil, ErrFinalized
	}
	return m, nil
}

// MapStart handles the map-going-live callback. The first call starts
// the series clock; replays are harmless because both the match start
// time and the map row creation are idempotent.
func (s *Service) MapStart(matchID int64, mapNumber int, key, mapName string) error {
	m, err := s.apiCheck(matchID, key, true)
	if err != nil {
		return err
	}
	if mapNumber < 0 || mapNumber >= m.MaxMaps {
		return ErrMapNumberOutOfRange
	}

	if err := s.store.SetMatchStartTime(matchID, time.Now()); err != nil {
		return err
	}
	if _, err := s.store.GetOrCreateMapStats(matchID, mapNumber, mapName); err != nil {
		return err
	}

	s.publish(domain.EventMapStart, matchID, domain.MapStartEvent{
		MapNumber: mapNumber,
		MapName:   mapName,
	})
	return nil
}

// MapUpdate handles a live score report. Both scores must parse or the
// update is dropped whole; a half-applied score would misorder the two
// sides.
func (s *Service) MapUpdate(matchID int64, mapNumber int, key, team1Score, team2Score string) error {
	if _, err := s.apiCheck(matchID, key, true); err != nil {
		return err
	}

	ms, err := s.store.GetMapStats(matchID, mapNumber)
	if err == sql.ErrNoRows {
		return ErrMapStatsNotFound
	}
	if err != nil {
		return err
	}

	t1, err1 := strconv.Atoi(team1Score)
	t2, err2 := strconv.Atoi(team2Score)
	if err1 != nil || err2 != nil || t1 < 0 || t2 < 0 {
		return nil
	}

	if err := s.store.UpdateMapScore(ms.ID, t1, t2); err != nil {
		return err
	}

	s.publish(domain.EventMapScoreUpdate, matchID, domain.MapScoreEvent{
		MapNumber:  mapNumber,
		Team1Score: t1,
		Team2Score: t2,
	})
	return nil
}

// MapFinish closes a map and credits the series counter of the winning
// side. winner is "team1", "team2", or anything else for a draw.
func (s *Service) MapFinish(matchID int64, mapNumber int, key, winner string) error {
	m, err := s.apiCheck(matchID, key, true)
	if err != nil {
		return err
	}

	ms, err := s.store.GetMapStats(matchID, mapNumber)
	if err == sql.ErrNoRows {
		return ErrMapStatsNotFound
	}
	if err != nil {
		return err
	}

	var winnerID *int64
	team1Won := winner == "team1"
	team2Won := winner == "team2"
	switch {
	case team1Won:
		winnerID = &m.Team1ID
	case team2Won:
		winnerID = &m.Team2ID
	}

	if err := s.store.FinishMap(ms.ID, matchID, winnerID, team1Won, team2Won); err != nil {
		return err
	}

	s.publish(domain.EventMapFinish, matchID, domain.MapFinishEvent{
		MapNumber: mapNumber,
		Winner:    winnerID,
	})
	return nil
}

// SeriesFinish finalizes the match. winner is "team1"/"team2" or empty
// for no winner; forfeit forces a 1-0 series score.
func (s *Service) SeriesFinish(matchID int64, key, winner string, forfeit bool) error {
	m, err := s.apiCheck(matchID, key, true)
	if err != nil {
		return err
	}

	var winnerID *int64
	switch winner {
	case "team1":
		winnerID = &m.Team1ID
	case "team2":
		winnerID = &m.Team2ID
	}

	// A forfeit rewrites the series score to 1-0 for the named winner;
	// with no recognized winner the counters stay as they were.
	team1Score, team2Score := m.Team1Score, m.Team2Score
	if forfeit && winnerID != nil {
		if *winnerID == m.Team1ID {
			team1Score, team2Score = 1, 0
		} else {
			team1Score, team2Score = 0, 1
		}
	}

	if err := s.store.FinishMatch(matchID, winnerID, team1Score, team2Score, forfeit); err != nil {
		return err
	}

	s.publish(domain.EventSeriesFinish, matchID, domain.SeriesFinishEvent{
		Winner:  winnerID,
		Forfeit: forfeit,
	})
	return nil
}

// PlayerStatsFields is the raw form body of a player update. Values
// arrive as strings; each parses independently with a 0 fallback so one
// garbled counter does not void the rest.
type PlayerStatsFields map[string]string

func (f PlayerStatsFields) asInt(key string) int {
	n, err := strconv.Atoi(f[key])
	if err != nil {
		return 0
	}
	return n
}

// PlayerUpdate overwrites one player's cumulative stats on a map. Only
// the key is checked, not finalization: the plugin flushes its last
// stats batch after reporting the series finish.
func (s *Service) PlayerUpdate(matchID int64, mapNumber int, key, steamID string, fields PlayerStatsFields) error {
	m, err := s.apiCheck(matchID, key, false)
	if err != nil {
		return err
	}

	ms, err := s.store.GetMapStats(matchID, mapNumber)
	if err == sql.ErrNoRows {
		return ErrMapStatsNotFound
	}
	if err != nil {
		return err
	}

	ps := &domain.PlayerStats{
		MatchID: matchID,
		MapID:   ms.ID,
		SteamID: steamID,
		Name:    fields["name"],

		Kills:            fields.asInt("kills"),
		Deaths:           fields.asInt("deaths"),
		RoundsPlayed:     fields.asInt("roundsplayed"),
		Assists:          fields.asInt("assists"),
		FlashbangAssists: fields.asInt("flashbang_assists"),
		TeamKills:        fields.asInt("teamkills"),
		Suicides:         fields.asInt("suicides"),
		HeadshotKills:    fields.asInt("headshot_kills"),
		Damage:           fields.asInt("damage"),
		BombPlants:       fields.asInt("bomb_plants"),
		BombDefuses:      fields.asInt("bomb_defuses"),

		V1: fields.asInt("v1"),
		V2: fields.asInt("v2"),
		V3: fields.asInt("v3"),
		V4: fields.asInt("v4"),
		V5: fields.asInt("v5"),
		K1: fields.asInt("1kill_rounds"),
		K2: fields.asInt("2kill_rounds"),
		K3: fields.asInt("3kill_rounds"),
		K4: fields.asInt("4kill_rounds"),
		K5: fields.asInt("5kill_rounds"),
	}

	switch fields["team"] {
	case "team1":
		ps.TeamID = &m.Team1ID
	case "team2":
		ps.TeamID = &m.Team2ID
	}

	return s.store.UpsertPlayerStats(ps)
}
