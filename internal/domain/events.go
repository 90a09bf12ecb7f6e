package domain

import "time"

// Event types for WebSocket notifications
const (
	EventMatchCreated   = "match_created"
	EventMapStart       = "map_start"
	EventMapScoreUpdate = "map_score_update"
	EventMapFinish      = "map_finish"
	EventSeriesFinish   = "series_finish"
	EventMatchCancelled = "match_cancelled"
)

// Event represents a real-time match event for WebSocket broadcast
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"event"`
	MatchID   int64       `json:"match_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// MapStartEvent is sent when the plugin reports a map going live
type MapStartEvent struct {
	MapNumber int    `json:"map_number"`
	MapName   string `json:"map_name"`
}

// MapScoreEvent is sent on each accepted map score update
type MapScoreEvent struct {
	MapNumber  int `json:"map_number"`
	Team1Score int `json:"team1_score"`
	Team2Score int `json:"team2_score"`
}

// MapFinishEvent is sent when a map ends
type MapFinishEvent struct {
	MapNumber int    `json:"map_number"`
	Winner    *int64 `json:"winner,omitempty"`
}

// SeriesFinishEvent is sent when the whole series ends
type SeriesFinishEvent struct {
	Winner  *int64 `json:"winner,omitempty"`
	Forfeit bool   `json:"forfeit"`
}
