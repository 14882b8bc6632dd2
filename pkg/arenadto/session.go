package arenadto

// Outbound event types.
const (
	EventRoomCreated          = "roomCreated"
	EventJoined               = "joined"
	EventQueued               = "queued"
	EventQueueCancelled       = "queueCancelled"
	EventMatchFound           = "matchFound"
	EventMatchAccepted        = "matchAccepted"
	EventMatchAborted         = "matchAborted"
	EventGameStart            = "gameStart"
	EventGameRestarted        = "gameRestarted"
	EventMovePlayed           = "movePlayed"
	EventClock                = "clock"
	EventGameOver             = "gameOver"
	EventRatingUpdate         = "ratingUpdate"
	EventDrawOffered          = "drawOffered"
	EventDrawDeclined         = "drawDeclined"
	EventRematchOffered       = "rematchOffered"
	EventRematchDeclined      = "rematchDeclined"
	EventOpponentDisconnected = "opponentDisconnected"
	EventOpponentReconnected  = "opponentReconnected"
	EventError                = "error"
)

// Message is the frame written to a client socket.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type Clocks struct {
	White float64 `json:"w"`
	Black float64 `json:"b"`
}

type PlayerInfo struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Color     string `json:"color"`
	Rating    int    `json:"rating"`
	Connected bool   `json:"connected"`
}

type GameConfig struct {
	TimeControl string  `json:"timeControl"`
	Base        float64 `json:"base"`
	Increment   float64 `json:"increment"`
	Rated       bool    `json:"rated"`
	Category    string  `json:"category"`
}

// GameState is the full resync snapshot. gameStart and gameRestarted carry
// the same shape.
type GameState struct {
	SessionID    string       `json:"sessionId"`
	GameID       string       `json:"gameId"`
	Round        int          `json:"round"`
	Status       string       `json:"status"`
	Position     string       `json:"position"`
	Turn         string       `json:"turn"`
	MovesSAN     []string     `json:"moves"`
	Clocks       Clocks       `json:"clocks"`
	Config       GameConfig   `json:"config"`
	Players      []PlayerInfo `json:"players"`
	DrawOffer    string       `json:"drawOffer,omitempty"`
	RematchOffer string       `json:"rematchOffer,omitempty"`
	Result       string       `json:"result,omitempty"`
	Reason       string       `json:"reason,omitempty"`
}

type RoomCreated struct {
	SessionID     string `json:"sessionId"`
	AssignedColor string `json:"assignedColor"`
}

type Joined struct {
	// Role is "player" or "spectator".
	Role string `json:"role"`
	GameState
}

type MovePlayed struct {
	SessionID         string `json:"sessionId"`
	Position          string `json:"position"`
	SAN               string `json:"san"`
	UCI               string `json:"uci"`
	Clocks            Clocks `json:"clocks"`
	Turn              string `json:"turn"`
	MoverConnectionID string `json:"moverConnectionId"`
	MoverUserID       string `json:"moverUserId"`
}

type ClockTick struct {
	SessionID string `json:"sessionId"`
	Clocks    Clocks `json:"clocks"`
	Turn      string `json:"turn"`
}

type GameOver struct {
	SessionID       string `json:"sessionId"`
	GameID          string `json:"gameId"`
	Result          string `json:"result"`
	Reason          string `json:"reason"`
	PersistedGameID *int64 `json:"persistedGameId,omitempty"`
	PGN             string `json:"pgn,omitempty"`
}

type Offer struct {
	SessionID string `json:"sessionId"`
	By        string `json:"by"`
}

type PresenceNotice struct {
	SessionID    string `json:"sessionId"`
	UserID       string `json:"userId"`
	GraceSeconds int    `json:"graceSeconds,omitempty"`
}

type Queued struct {
	TimeControl string `json:"timeControl"`
	Rated       bool   `json:"rated"`
}

type OpponentSummary struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

type MatchFound struct {
	MatchID        string          `json:"matchId"`
	Opponent       OpponentSummary `json:"opponent"`
	TimeControl    string          `json:"timeControl"`
	Rated          bool            `json:"rated"`
	AcceptDeadline int             `json:"acceptDeadline"`
}

type MatchAborted struct {
	MatchID string `json:"matchId"`
	// Reason is one of declined, disconnected, timeout, server_busy and
	// unavailable.
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}
