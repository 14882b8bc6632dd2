package arenadto

import "time"

// SessionSummary is one live session as listed by the admin API.
type SessionSummary struct {
	SessionID   string    `json:"sessionId"`
	GameID      string    `json:"gameId"`
	Round       int       `json:"round"`
	Status      string    `json:"status"`
	TimeControl string    `json:"timeControl"`
	Rated       bool      `json:"rated"`
	White       string    `json:"white,omitempty"`
	Black       string    `json:"black,omitempty"`
	Ply         int       `json:"ply"`
	CreatedAt   time.Time `json:"createdAt"`
}

type SessionList struct {
	Count    int              `json:"count"`
	Sessions []SessionSummary `json:"sessions"`
}

type RatingProfile struct {
	UserID      string `json:"userId"`
	Category    string `json:"category"`
	Rating      int    `json:"rating"`
	GamesPlayed int    `json:"gamesPlayed"`
	Wins        int    `json:"wins"`
	Losses      int    `json:"losses"`
	Draws       int    `json:"draws"`
}
