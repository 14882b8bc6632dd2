package arenadto

import "time"

type RatingChange struct {
	UserID string `json:"userId"`
	Before int    `json:"before"`
	After  int    `json:"after"`
	Delta  int    `json:"delta"`
}

type RatingUpdate struct {
	SessionID  string         `json:"sessionId"`
	GameID     string         `json:"gameId"`
	Category   string         `json:"category"`
	Players    []RatingChange `json:"players"`
	NewRatings map[string]int `json:"newRatings"`
}

// GameRecord is the persisted game returned by the admin API.
type GameRecord struct {
	ID                int64     `json:"id"`
	GameUUID          string    `json:"gameUuid"`
	SessionID         string    `json:"sessionId"`
	White             string    `json:"white"`
	WhiteID           string    `json:"whiteId"`
	Black             string    `json:"black"`
	BlackID           string    `json:"blackId"`
	Result            string    `json:"result"`
	Reason            string    `json:"reason"`
	TimeControl       string    `json:"timeControl"`
	Category          string    `json:"category"`
	Rated             bool      `json:"rated"`
	WhiteRatingBefore int       `json:"whiteRatingBefore"`
	BlackRatingBefore int       `json:"blackRatingBefore"`
	WhiteRatingAfter  int       `json:"whiteRatingAfter,omitempty"`
	BlackRatingAfter  int       `json:"blackRatingAfter,omitempty"`
	PGN               string    `json:"pgn"`
	StartedAt         time.Time `json:"startedAt"`
	EndedAt           time.Time `json:"endedAt"`
}
