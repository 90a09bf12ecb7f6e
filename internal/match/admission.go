package match

import (
	"encoding/json"
	"strings"

	"get5panel/internal/domain"
)

// Get5Status is the structured reply to get5_web_avaliable. Gamestate 0
// means the plugin is idle and can accept a match.
type Get5Status struct {
	Gamestate     int    `json:"gamestate"`
	PluginVersion string `json:"plugin_version"`
}

// CheckAvailability asks a server whether it can host a match. It
// returns a nil status and a human-readable reason when it cannot; the
// reason strings are shown to panel users as-is.
func (s *Service) CheckAvailability(server *domain.GameServer) (*Get5Status, string) {
	if server == nil {
		return nil, "Server not found"
	}

	// The command name is misspelled in the plugin itself.
	resp, err := s.rcon.Send(server.IPString, server.Port, server.RconPassword, "get5_web_avaliable")
	if err != nil {
		return nil, "Failed to connect to server"
	}

	if strings.Contains(resp, "Unknown command") {
		return nil, "get5 server plugin not found on server"
	}

	var status Get5Status
	if err := json.Unmarshal([]byte(resp), &status); err != nil {
		return nil, "Error reading get5_web_avaliable response"
	}

	if status.Gamestate != 0 {
		return nil, "Server already has a get5 match setup"
	}

	return &status, ""
}

// CheckConnection verifies a server answers RCON at all. Used when a
// server is registered or edited, before any match is involved.
func (s *Service) CheckConnection(server *domain.GameServer) bool {
	_, err := s.rcon.Send(server.IPString, server.Port, server.RconPassword, "status")
	return err == nil
}
