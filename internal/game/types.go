package game

import (
	"errors"
	"time"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/domain"
)

// Status represents a session lifecycle state.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

var (
	ErrNotAPlayer   = errors.New("not a player in this game")
	ErrOutOfTurn    = errors.New("not your turn")
	ErrIllegalMove  = errors.New("illegal move")
	ErrNotPlaying   = errors.New("game is not in progress")
	ErrNotFinished  = errors.New("game has not finished")
	ErrSessionFull  = errors.New("session already has two players")
	ErrSeatTaken    = errors.New("color already taken")
	ErrNoOffer      = errors.New("no outstanding offer")
	ErrOwnOffer     = errors.New("cannot answer your own offer")
	ErrOfferPending = errors.New("an offer is already outstanding")
	ErrBadState     = errors.New("invalid session state")
)

// Config is fixed for the life of a session.
type Config struct {
	TimeControl domain.TimeControl
	Rated       bool
}

func (c Config) Category() domain.Category { return c.TimeControl.Category() }

// Player binds a durable user to a color and a volatile connection.
type Player struct {
	UserID    string       `json:"user_id"`
	Username  string       `json:"username"`
	ConnID    string       `json:"conn_id,omitempty"`
	Color     domain.Color `json:"color"`
	Rating    int          `json:"rating"`
	Connected bool         `json:"connected"`
}

// Outcome is the terminal result of one round.
type Outcome struct {
	Result domain.Result `json:"result"`
	Reason domain.Reason `json:"reason"`
	Winner domain.Color  `json:"winner,omitempty"`
}

func winOutcome(winner domain.Color, reason domain.Reason) Outcome {
	return Outcome{Result: domain.WinFor(winner), Reason: reason, Winner: winner}
}

func drawOutcome(reason domain.Reason) Outcome {
	return Outcome{Result: domain.ResultDraw, Reason: reason}
}

// MoveResult describes an accepted move, or a move that lost on time.
type MoveResult struct {
	Applied bool
	UCI     string
	SAN     string
	FEN     string
	Mover   Player
	Clocks  clock.Clocks
	// Outcome is set when the move ended the game or the mover had flagged.
	Outcome *Outcome
}

// State is the serialisable form of a session used for crash recovery.
type State struct {
	ID           string       `json:"id"`
	GameID       string       `json:"game_id"`
	Round        int          `json:"round"`
	Version      uint64       `json:"version"`
	Status       Status       `json:"status"`
	TimeControl  string       `json:"time_control"`
	Rated        bool         `json:"rated"`
	Players      []Player     `json:"players"`
	Clocks       clock.Clocks `json:"clocks"`
	LastMove     time.Time    `json:"last_move,omitempty"`
	DrawOffer    domain.Color `json:"draw_offer,omitempty"`
	RematchOffer domain.Color `json:"rematch_offer,omitempty"`
	MovesUCI     []string     `json:"moves_uci"`
	Outcome      *Outcome     `json:"outcome,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	StartedAt    time.Time    `json:"started_at,omitempty"`
	EndedAt      time.Time    `json:"ended_at,omitempty"`
}
