// Package storage persists panel state in SQLite. All timestamps are
// stored as UTC strings in RFC 3339 form without sub-second precision.
package storage

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	_ "embed"
	"fmt"
	"math/big"
	"time"

	_ "modernc.org/sqlite"

	"get5panel/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a row lookup matches nothing.
var ErrNotFound = sql.ErrNoRows

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and applies the
// schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent callbacks.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse("2006-01-02T15:04:05Z", s)
	return t
}

func nullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTimestamp(s.String)
	return &t
}

const apiKeyChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateAPIKey returns a 24-character random key from [A-Z0-9].
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 24)
	max := big.NewInt(int64(len(apiKeyChars)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating api key: %w", err)
		}
		buf[i] = apiKeyChars[n.Int64()]
	}
	return string(buf), nil
}

// --- users ---

// CreateUser inserts a user and returns its id.
func (s *Store) CreateUser(u *domain.User) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users (username, steam_id, password_hash, is_admin, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.Username, u.SteamID, u.PasswordHash, u.Admin, formatTimestamp(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("creating user: %w", err)
	}
	return res.LastInsertId()
}

// GetUserByID fetches a user by id.
func (s *Store) GetUserByID(id int64) (*domain.User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, username, steam_id, password_hash, is_admin, created_at, last_login
		 FROM users WHERE id = ?`, id))
}

// GetUserByUsername fetches a user by username.
func (s *Store) GetUserByUsername(username string) (*domain.User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, username, steam_id, password_hash, is_admin, created_at, last_login
		 FROM users WHERE username = ?`, username))
}

func (s *Store) scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var created string
	var lastLogin sql.NullString
	err := row.Scan(&u.ID, &u.Username, &u.SteamID, &u.PasswordHash, &u.Admin, &created, &lastLogin)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTimestamp(created)
	u.LastLogin = nullableTime(lastLogin)
	return &u, nil
}

// ListUsers returns all users ordered by id.
func (s *Store) ListUsers() ([]*domain.User, error) {
	rows, err := s.db.Query(
		`SELECT id, username, steam_id, password_hash, is_admin, created_at, last_login
		 FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		var u domain.User
		var created string
		var lastLogin sql.NullString
		if err := rows.Scan(&u.ID, &u.Username, &u.SteamID, &u.PasswordHash, &u.Admin, &created, &lastLogin); err != nil {
			return nil, err
		}
		u.CreatedAt = parseTimestamp(created)
		u.LastLogin = nullableTime(lastLogin)
		users = append(users, &u)
	}
	return users, rows.Err()
}

// UpdateUserPassword replaces a user's password hash.
func (s *Store) UpdateUserPassword(id int64, hash string) error {
	_, err := s.db.Exec(`UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	return err
}

// SetUserAdmin toggles a user's admin flag.
func (s *Store) SetUserAdmin(id int64, admin bool) error {
	_, err := s.db.Exec(`UPDATE users SET is_admin = ? WHERE id = ?`, admin, id)
	return err
}

// TouchUserLogin records a successful login.
func (s *Store) TouchUserLogin(id int64) error {
	_, err := s.db.Exec(`UPDATE users SET last_login = ? WHERE id = ?`, formatTimestamp(time.Now()), id)
	return err
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	return err
}

// --- servers ---

// CreateServer inserts a game server and returns its id.
func (s *Store) CreateServer(srv *domain.GameServer) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO servers (user_id, display_name, ip_string, port, rcon_password, public_server, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		srv.UserID, srv.DisplayName, srv.IPString, srv.Port, srv.RconPassword,
		srv.PublicServer, formatTimestamp(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("creating server: %w", err)
	}
	return res.LastInsertId()
}

// GetServerByID fetches a game server by id.
func (s *Store) GetServerByID(id int64) (*domain.GameServer, error) {
	var srv domain.GameServer
	var created string
	err := s.db.QueryRow(
		`SELECT id, user_id, display_name, ip_string, port, rcon_password, public_server, in_use, created_at
		 FROM servers WHERE id = ?`, id,
	).Scan(&srv.ID, &srv.UserID, &srv.DisplayName, &srv.IPString, &srv.Port,
		&srv.RconPassword, &srv.PublicServer, &srv.InUse, &created)
	if err != nil {
		return nil, err
	}
	srv.CreatedAt = parseTimestamp(created)
	return &srv, nil
}

// ListServersForUser returns the servers a user may start matches on:
// their own plus any marked public.
func (s *Store) ListServersForUser(userID int64) ([]*domain.GameServer, error) {
	return s.queryServers(
		`SELECT id, user_id, display_name, ip_string, port, rcon_password, public_server, in_use, created_at
		 FROM servers WHERE user_id = ? OR public_server = 1 ORDER BY id`, userID)
}

// ListServers returns every server.
func (s *Store) ListServers() ([]*domain.GameServer, error) {
	return s.queryServers(
		`SELECT id, user_id, display_name, ip_string, port, rcon_password, public_server, in_use, created_at
		 FROM servers ORDER BY id`)
}

func (s *Store) queryServers(query string, args ...any) ([]*domain.GameServer, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}
	defer rows.Close()

	var servers []*domain.GameServer
	for rows.Next() {
		var srv domain.GameServer
		var created string
		if err := rows.Scan(&srv.ID, &srv.UserID, &srv.DisplayName, &srv.IPString, &srv.Port,
			&srv.RconPassword, &srv.PublicServer, &srv.InUse, &created); err != nil {
			return nil, err
		}
		srv.CreatedAt = parseTimestamp(created)
		servers = append(servers, &srv)
	}
	return servers, rows.Err()
}

// UpdateServer rewrites a server's mutable fields.
func (s *Store) UpdateServer(srv *domain.GameServer) error {
	_, err := s.db.Exec(
		`UPDATE servers SET display_name = ?, ip_string = ?, port = ?, rcon_password = ?, public_server = ?
		 WHERE id = ?`,
		srv.DisplayName, srv.IPString, srv.Port, srv.RconPassword, srv.PublicServer, srv.ID)
	return err
}

// DeleteServer removes a server.
func (s *Store) DeleteServer(id int64) error {
	_, err := s.db.Exec(`DELETE FROM servers WHERE id = ?`, id)
	return err
}

// CountUserServers returns how many servers a user owns.
func (s *Store) CountUserServers(userID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM servers WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// --- teams ---

// CreateTeam inserts a team and returns its id.
func (s *Store) CreateTeam(t *domain.Team) (int64, error) {
	auths, err := json.Marshal(t.Auths)
	if err != nil {
		return 0, fmt.Errorf("encoding auths: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO teams (user_id, name, flag, logo, auths, public_team)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Name, t.Flag, t.Logo, string(auths), t.Public)
	if err != nil {
		return 0, fmt.Errorf("creating team: %w", err)
	}
	return res.LastInsertId()
}

// GetTeamByID fetches a team by id.
func (s *Store) GetTeamByID(id int64) (*domain.Team, error) {
	var t domain.Team
	var auths string
	err := s.db.QueryRow(
		`SELECT id, user_id, name, flag, logo, auths, public_team FROM teams WHERE id = ?`, id,
	).Scan(&t.ID, &t.UserID, &t.Name, &t.Flag, &t.Logo, &auths, &t.Public)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(auths), &t.Auths); err != nil {
		return nil, fmt.Errorf("decoding auths for team %d: %w", id, err)
	}
	return &t, nil
}

// ListTeamsForUser returns the teams a user may field: their own plus
// any marked public.
func (s *Store) ListTeamsForUser(userID int64) ([]*domain.Team, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, name, flag, logo, auths, public_team
		 FROM teams WHERE user_id = ? OR public_team = 1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	defer rows.Close()

	var teams []*domain.Team
	for rows.Next() {
		var t domain.Team
		var auths string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Flag, &t.Logo, &auths, &t.Public); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(auths), &t.Auths); err != nil {
			return nil, fmt.Errorf("decoding auths for team %d: %w", t.ID, err)
		}
		teams = append(teams, &t)
	}
	return teams, rows.Err()
}

// UpdateTeam rewrites a team's mutable fields.
func (s *Store) UpdateTeam(t *domain.Team) error {
	auths, err := json.Marshal(t.Auths)
	if err != nil {
		return fmt.Errorf("encoding auths: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE teams SET name = ?, flag = ?, logo = ?, auths = ?, public_team = ? WHERE id = ?`,
		t.Name, t.Flag, t.Logo, string(auths), t.Public, t.ID)
	return err
}

// DeleteTeam removes a team.
func (s *Store) DeleteTeam(id int64) error {
	_, err := s.db.Exec(`DELETE FROM teams WHERE id = ?`, id)
	return err
}

// CountUserTeams returns how many teams a user owns.
func (s *Store) CountUserTeams(userID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM teams WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// TeamInActiveMatch reports whether a team is part of a match that is
// not yet finalized.
func (s *Store) TeamInActiveMatch(teamID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM matches
		 WHERE (team1_id = ? OR team2_id = ?) AND cancelled = 0 AND end_time IS NULL`,
		teamID, teamID).Scan(&n)
	return n > 0, err
}
