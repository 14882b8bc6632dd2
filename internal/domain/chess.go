package domain

import "time"

// Color is a side of the board: "w" or "b".
type Color string

const (
	White   Color = "w"
	Black   Color = "b"
	NoColor Color = ""
)

func (c Color) Opp() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return NoColor
	}
}

func (c Color) Valid() bool { return c == White || c == Black }

func (c Color) Name() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	default:
		return ""
	}
}

// Identity is what the transport knows about a connected user.
type Identity struct {
	UserID   string
	Username string
	Ratings  map[Category]int
}

// Actor is an identity acting through one connection.
type Actor struct {
	ConnID string
	Identity
}

// RatingFor returns the snapshot for a category, falling back to def.
func (id Identity) RatingFor(cat Category, def int) int {
	if id.Ratings != nil {
		if r, ok := id.Ratings[cat]; ok && r > 0 {
			return r
		}
	}
	return def
}

// Result is a PGN result token.
type Result string

const (
	ResultWhiteWins Result = "1-0"
	ResultBlackWins Result = "0-1"
	ResultDraw      Result = "1/2-1/2"
	ResultOngoing   Result = "*"
)

// WinFor returns the result in which c wins.
func WinFor(c Color) Result {
	if c == White {
		return ResultWhiteWins
	}
	return ResultBlackWins
}

// Score is white's score for the result: 1, 0.5 or 0.
func (r Result) Score() float64 {
	switch r {
	case ResultWhiteWins:
		return 1
	case ResultBlackWins:
		return 0
	default:
		return 0.5
	}
}

// Reason explains why a game ended.
type Reason string

const (
	ReasonCheckmate   Reason = "checkmate"
	ReasonStalemate   Reason = "stalemate"
	ReasonDraw        Reason = "draw"
	ReasonResignation Reason = "resignation"
	ReasonTimeout     Reason = "timeout"
	ReasonAgreement   Reason = "agreement"
	ReasonAbandoned   Reason = "abandoned"
)

// GameRecord is a persisted game, provisional (Result "*") or final.
type GameRecord struct {
	ID                int64
	GameUUID          string
	SessionID         string
	WhiteID           string
	WhiteName         string
	BlackID           string
	BlackName         string
	Result            Result
	Reason            Reason
	PGN               string
	TimeControl       string
	Category          Category
	Rated             bool
	WhiteRatingBefore int
	BlackRatingBefore int
	WhiteRatingAfter  int
	BlackRatingAfter  int
	MovesUCI          []string
	StartedAt         time.Time
	EndedAt           time.Time
}

// RatingProfile is a user's standing in one category.
type RatingProfile struct {
	UserID      string
	Category    Category
	Rating      int
	GamesPlayed int
	Wins        int
	Losses      int
	Draws       int
	UpdatedAt   time.Time
}

// RatingChange is one side of a settled rated game.
type RatingChange struct {
	UserID   string
	Category Category
	Before   int
	After    int
	Score    float64
}

func (c RatingChange) Delta() int { return c.After - c.Before }
