package domain

import (
	"fmt"
	"time"
)

// GameServer is a CS:GO server registered by a panel user. At most one
// live, uncancelled match may hold InUse on a server at a time; the
// authoritative check is the active-match query, not this flag.
type GameServer struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	IPString     string    `json:"ip_string"`
	Port         int       `json:"port"`
	RconPassword string    `json:"-"`
	PublicServer bool      `json:"public_server"`
	InUse        bool      `json:"in_use"`
	CreatedAt    time.Time `json:"created_at"`
}

// HostPort returns the server address as "ip:port".
func (s *GameServer) HostPort() string {
	return fmt.Sprintf("%s:%d", s.IPString, s.Port)
}

// Display returns the name to show in server pickers.
func (s *GameServer) Display() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.HostPort()
}

// User is a panel account. Identity resolution happens outside the core;
// the core only consumes the admin flag and the ownership relations.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	SteamID      string     `json:"steam_id,omitempty"`
	PasswordHash string     `json:"-"`
	Admin        bool       `json:"admin"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}
