package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"get5panel/internal/domain"
)

// ErrServerInUse is returned when a match insert collides with another
// non-finalized match on the same server.
var ErrServerInUse = errors.New("server already has an active match")

const matchColumns = `id, user_id, server_id, team1_id, team2_id, winner, cancelled, forfeit,
	start_time, end_time, max_maps, title, skip_veto, api_key, veto_mappool,
	team1_score, team2_score, overtime_enabled, playout_enabled, plugin_version, created_at`

// CreateMatch inserts a match and flags its server in use, atomically.
// The partial unique index on active server ids turns a lost
// reservation race into ErrServerInUse instead of a double booking.
func (s *Store) CreateMatch(m *domain.Match) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO matches (user_id, server_id, team1_id, team2_id, max_maps, title,
			skip_veto, api_key, veto_mappool, overtime_enabled, playout_enabled,
			plugin_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UserID, m.ServerID, m.Team1ID, m.Team2ID, m.MaxMaps, m.Title,
		m.SkipVeto, m.APIKey, strings.Join(m.VetoMapPool, " "),
		m.OvertimeEnabled, m.PlayoutEnabled, m.PluginVersion,
		formatTimestamp(time.Now()),
	)
	if err != nil {
		if strings.Contains(err.Error(), "idx_matches_active_server") ||
			strings.Contains(err.Error(), "UNIQUE constraint") {
			return 0, ErrServerInUse
		}
		return 0, fmt.Errorf("creating match: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(`UPDATE servers SET in_use = 1 WHERE id = ?`, m.ServerID); err != nil {
		return 0, fmt.Errorf("reserving server: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetMatchByID fetches a match by id.
func (s *Store) GetMatchByID(id int64) (*domain.Match, error) {
	return scanMatch(s.db.QueryRow(
		`SELECT `+matchColumns+` FROM matches WHERE id = ?`, id))
}

// GetActiveMatchForServer returns the non-finalized match on a server,
// or ErrNotFound when the server is free.
func (s *Store) GetActiveMatchForServer(serverID int64) (*domain.Match, error) {
	return scanMatch(s.db.QueryRow(
		`SELECT `+matchColumns+` FROM matches
		 WHERE server_id = ? AND cancelled = 0 AND end_time IS NULL`, serverID))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*domain.Match, error) {
	var m domain.Match
	var winner sql.NullInt64
	var start, end sql.NullString
	var pool, created string
	err := row.Scan(&m.ID, &m.UserID, &m.ServerID, &m.Team1ID, &m.Team2ID, &winner,
		&m.Cancelled, &m.Forfeit, &start, &end, &m.MaxMaps, &m.Title, &m.SkipVeto,
		&m.APIKey, &pool, &m.Team1Score, &m.Team2Score, &m.OvertimeEnabled,
		&m.PlayoutEnabled, &m.PluginVersion, &created)
	if err != nil {
		return nil, err
	}
	if winner.Valid {
		m.Winner = &winner.Int64
	}
	m.StartTime = nullableTime(start)
	m.EndTime = nullableTime(end)
	if pool != "" {
		m.VetoMapPool = strings.Fields(pool)
	}
	m.CreatedAt = parseTimestamp(created)
	return &m, nil
}

// ListMatches returns matches newest first. When userID is non-zero
// only that user's matches are returned.
func (s *Store) ListMatches(userID int64, limit int) ([]*domain.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches`
	var args []any
	if userID != 0 {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var matches []*domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// CountUserMatches returns how many matches a user has created.
func (s *Store) CountUserMatches(userID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM matches WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// SetMatchStartTime records the series start. The guard keeps the first
// recorded start even when the server replays its callback.
func (s *Store) SetMatchStartTime(matchID int64, t time.Time) error {
	_, err := s.db.Exec(
		`UPDATE matches SET start_time = ? WHERE id = ? AND start_time IS NULL`,
		formatTimestamp(t), matchID)
	return err
}

// FinishMatch finalizes a match with a winner (or forfeit scores) and
// releases its server, atomically.
func (s *Store) FinishMatch(matchID int64, winner *int64, team1Score, team2Score int, forfeit bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `UPDATE matches SET end_time = ?, winner = ?, forfeit = ?`
	args := []any{formatTimestamp(time.Now()), winner, forfeit}
	if forfeit {
		query += `, team1_score = ?, team2_score = ?`
		args = append(args, team1Score, team2Score)
	}
	query += ` WHERE id = ?`
	args = append(args, matchID)

	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("finishing match: %w", err)
	}
	if err := releaseServer(tx, matchID); err != nil {
		return err
	}
	return tx.Commit()
}

// CancelMatch marks a match cancelled and releases its server.
func (s *Store) CancelMatch(matchID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE matches SET cancelled = 1 WHERE id = ?`, matchID); err != nil {
		return fmt.Errorf("cancelling match: %w", err)
	}
	if err := releaseServer(tx, matchID); err != nil {
		return err
	}
	return tx.Commit()
}

func releaseServer(tx *sql.Tx, matchID int64) error {
	_, err := tx.Exec(
		`UPDATE servers SET in_use = 0
		 WHERE id = (SELECT server_id FROM matches WHERE id = ?)`, matchID)
	if err != nil {
		return fmt.Errorf("releasing server: %w", err)
	}
	return nil
}

// --- map stats ---

const mapStatsColumns = `id, match_id, map_number, map_name, start_time, end_time, winner, team1_score, team2_score`

// GetOrCreateMapStats returns the map stats row for (match, mapNumber),
// creating it if absent. Replayed map-start callbacks land on the
// existing row because of the unique index.
func (s *Store) GetOrCreateMapStats(matchID int64, mapNumber int, mapName string) (*domain.MapStats, error) {
	_, err := s.db.Exec(
		`INSERT INTO map_stats (match_id, map_number, map_name, start_time)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(match_id, map_number) DO NOTHING`,
		matchID, mapNumber, mapName, formatTimestamp(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("creating map stats: %w", err)
	}
	return s.GetMapStats(matchID, mapNumber)
}

// GetMapStats fetches the map stats row for (match, mapNumber).
func (s *Store) GetMapStats(matchID int64, mapNumber int) (*domain.MapStats, error) {
	return scanMapStats(s.db.QueryRow(
		`SELECT `+mapStatsColumns+` FROM map_stats
		 WHERE match_id = ? AND map_number = ?`, matchID, mapNumber))
}

// ListMapStats returns a match's maps in map-number order.
func (s *Store) ListMapStats(matchID int64) ([]*domain.MapStats, error) {
	rows, err := s.db.Query(
		`SELECT `+mapStatsColumns+` FROM map_stats
		 WHERE match_id = ? ORDER BY map_number`, matchID)
	if err != nil {
		return nil, fmt.Errorf("listing map stats: %w", err)
	}
	defer rows.Close()

	var maps []*domain.MapStats
	for rows.Next() {
		ms, err := scanMapStats(rows)
		if err != nil {
			return nil, err
		}
		maps = append(maps, ms)
	}
	return maps, rows.Err()
}

func scanMapStats(row rowScanner) (*domain.MapStats, error) {
	var ms domain.MapStats
	var start string
	var end sql.NullString
	var winner sql.NullInt64
	err := row.Scan(&ms.ID, &ms.MatchID, &ms.MapNumber, &ms.MapName, &start, &end,
		&winner, &ms.Team1Score, &ms.Team2Score)
	if err != nil {
		return nil, err
	}
	ms.StartTime = parseTimestamp(start)
	ms.EndTime = nullableTime(end)
	if winner.Valid {
		ms.Winner = &winner.Int64
	}
	return &ms, nil
}

// UpdateMapScore overwrites both round counters of a live map.
func (s *Store) UpdateMapScore(mapID int64, team1Score, team2Score int) error {
	_, err := s.db.Exec(
		`UPDATE map_stats SET team1_score = ?, team2_score = ? WHERE id = ?`,
		team1Score, team2Score, mapID)
	return err
}

// FinishMap closes a map with its winner and bumps the series counter
// of the winning side, atomically.
func (s *Store) FinishMap(mapID, matchID int64, winner *int64, team1Won, team2Won bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE map_stats SET end_time = ?, winner = ? WHERE id = ?`,
		formatTimestamp(time.Now()), winner, mapID); err != nil {
		return fmt.Errorf("finishing map: %w", err)
	}

	switch {
	case team1Won:
		_, err = tx.Exec(`UPDATE matches SET team1_score = team1_score + 1 WHERE id = ?`, matchID)
	case team2Won:
		_, err = tx.Exec(`UPDATE matches SET team2_score = team2_score + 1 WHERE id = ?`, matchID)
	}
	if err != nil {
		return fmt.Errorf("bumping series score: %w", err)
	}
	return tx.Commit()
}

// --- player stats ---

// ErrPlayerCap is returned when a map already carries its maximum
// number of distinct player rows.
var ErrPlayerCap = errors.New("player limit reached for map")

// maxPlayersPerMap bounds rows per map against a misbehaving server
// inventing steam ids.
const maxPlayersPerMap = 40

// UpsertPlayerStats creates or overwrites one player's row on a map.
// The cap is enforced only on insert; known players always update.
func (s *Store) UpsertPlayerStats(ps *domain.PlayerStats) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRow(
		`SELECT id FROM player_stats WHERE map_id = ? AND steam_id = ?`,
		ps.MapID, ps.SteamID).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		var n int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM player_stats WHERE map_id = ?`, ps.MapID).Scan(&n); err != nil {
			return err
		}
		if n >= maxPlayersPerMap {
			return ErrPlayerCap
		}
		if _, err := tx.Exec(
			`INSERT INTO player_stats (match_id, map_id, team_id, steam_id, name,
				kills, deaths, roundsplayed, assists, flashbang_assists, teamkills,
				suicides, headshot_kills, damage, bomb_plants, bomb_defuses,
				v1, v2, v3, v4, v5, k1, k2, k3, k4, k5)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ps.MatchID, ps.MapID, ps.TeamID, ps.SteamID, ps.Name,
			ps.Kills, ps.Deaths, ps.RoundsPlayed, ps.Assists, ps.FlashbangAssists,
			ps.TeamKills, ps.Suicides, ps.HeadshotKills, ps.Damage, ps.BombPlants,
			ps.BombDefuses, ps.V1, ps.V2, ps.V3, ps.V4, ps.V5,
			ps.K1, ps.K2, ps.K3, ps.K4, ps.K5); err != nil {
			return fmt.Errorf("inserting player stats: %w", err)
		}
	case err != nil:
		return err
	default:
		if _, err := tx.Exec(
			`UPDATE player_stats SET team_id = ?, name = ?,
				kills = ?, deaths = ?, roundsplayed = ?, assists = ?,
				flashbang_assists = ?, teamkills = ?, suicides = ?, headshot_kills = ?,
				damage = ?, bomb_plants = ?, bomb_defuses = ?,
				v1 = ?, v2 = ?, v3 = ?, v4 = ?, v5 = ?,
				k1 = ?, k2 = ?, k3 = ?, k4 = ?, k5 = ?
			 WHERE id = ?`,
			ps.TeamID, ps.Name,
			ps.Kills, ps.Deaths, ps.RoundsPlayed, ps.Assists,
			ps.FlashbangAssists, ps.TeamKills, ps.Suicides, ps.HeadshotKills,
			ps.Damage, ps.BombPlants, ps.BombDefuses,
			ps.V1, ps.V2, ps.V3, ps.V4, ps.V5,
			ps.K1, ps.K2, ps.K3, ps.K4, ps.K5,
			existing); err != nil {
			return fmt.Errorf("updating player stats: %w", err)
		}
	}
	return tx.Commit()
}

// ListPlayerStats returns a map's player rows ordered by kills.
func (s *Store) ListPlayerStats(mapID int64) ([]domain.PlayerStats, error) {
	rows, err := s.db.Query(
		`SELECT id, match_id, map_id, team_id, steam_id, name,
			kills, deaths, roundsplayed, assists, flashbang_assists, teamkills,
			suicides, headshot_kills, damage, bomb_plants, bomb_defuses,
			v1, v2, v3, v4, v5, k1, k2, k3, k4, k5
		 FROM player_stats WHERE map_id = ? ORDER BY kills DESC, steam_id`, mapID)
	if err != nil {
		return nil, fmt.Errorf("listing player stats: %w", err)
	}
	defer rows.Close()

	var players []domain.PlayerStats
	for rows.Next() {
		var ps domain.PlayerStats
		var teamID sql.NullInt64
		if err := rows.Scan(&ps.ID, &ps.MatchID, &ps.MapID, &teamID, &ps.SteamID, &ps.Name,
			&ps.Kills, &ps.Deaths, &ps.RoundsPlayed, &ps.Assists, &ps.FlashbangAssists,
			&ps.TeamKills, &ps.Suicides, &ps.HeadshotKills, &ps.Damage, &ps.BombPlants,
			&ps.BombDefuses, &ps.V1, &ps.V2, &ps.V3, &ps.V4, &ps.V5,
			&ps.K1, &ps.K2, &ps.K3, &ps.K4, &ps.K5); err != nil {
			return nil, err
		}
		if teamID.Valid {
			ps.TeamID = &teamID.Int64
		}
		players = append(players, ps)
	}
	return players, rows.Err()
}

// Metrics summarizes panel-wide row counts for the metrics endpoint.
type Metrics struct {
	Users         int `json:"users"`
	Servers       int `json:"servers"`
	Teams         int `json:"teams"`
	Matches       int `json:"matches"`
	LiveMatches   int `json:"live_matches"`
	MapsPlayed    int `json:"maps_played"`
	PlayerEntries int `json:"player_entries"`
}

// GetMetrics counts rows across all tables.
func (s *Store) GetMetrics() (*Metrics, error) {
	var m Metrics
	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM users`, &m.Users},
		{`SELECT COUNT(*) FROM servers`, &m.Servers},
		{`SELECT COUNT(*) FROM teams`, &m.Teams},
		{`SELECT COUNT(*) FROM matches`, &m.Matches},
		{`SELECT COUNT(*) FROM matches WHERE start_time IS NOT NULL AND end_time IS NULL AND cancelled = 0`, &m.LiveMatches},
		{`SELECT COUNT(*) FROM map_stats WHERE end_time IS NOT NULL`, &m.MapsPlayed},
		{`SELECT COUNT(*) FROM player_stats`, &m.PlayerEntries},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("collecting metrics: %w", err)
		}
	}
	return &m, nil
}
