package domain

import "strings"

// MaxTeamPlayers is the roster size limit per team.
const MaxTeamPlayers = 7

// Team is a named roster of steam64 auths with display metadata.
type Team struct {
	ID     int64    `json:"id"`
	UserID int64    `json:"user_id"`
	Name   string   `json:"name"`
	Flag   string   `json:"flag"`
	Logo   string   `json:"logo"`
	Auths  []string `json:"auths"`
	Public bool     `json:"public_team"`
}

// SetData normalizes and assigns the mutable team fields.
func (t *Team) SetData(name, flag, logo string, auths []string) {
	t.Name = name
	t.Flag = strings.ToLower(flag)
	t.Logo = logo
	t.Auths = auths
}

// Players returns the roster with empty auth slots removed.
func (t *Team) Players() []string {
	players := make([]string, 0, len(t.Auths))
	for _, auth := range t.Auths {
		if auth != "" {
			players = append(players, auth)
		}
	}
	return players
}

// CanEdit reports whether user may modify this team. Admins may edit
// public teams; owners may edit their own.
func (t *Team) CanEdit(user *User) bool {
	if user == nil {
		return false
	}
	if t.UserID == user.ID {
		return true
	}
	return user.Admin && t.Public
}
