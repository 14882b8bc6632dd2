// Package events fans game lifecycle notices out to downstream consumers.
package events

import (
	"sync"
	"time"
)

// Subjects, relative to the configured prefix.
const (
	SubjectGameStarted   = "game.started"
	SubjectGameFinished  = "game.finished"
	SubjectRatingUpdated = "rating.updated"
)

// Publisher delivers events without blocking the caller on the network.
type Publisher interface {
	Publish(subject string, payload any)
	Close() error
}

type GameStarted struct {
	SessionID   string    `json:"sessionId"`
	GameID      string    `json:"gameId"`
	Round       int       `json:"round"`
	WhiteID     string    `json:"whiteId"`
	BlackID     string    `json:"blackId"`
	TimeControl string    `json:"timeControl"`
	Rated       bool      `json:"rated"`
	StartedAt   time.Time `json:"startedAt"`
}

type GameFinished struct {
	SessionID   string    `json:"sessionId"`
	GameID      string    `json:"gameId"`
	Result      string    `json:"result"`
	Reason      string    `json:"reason"`
	Rated       bool      `json:"rated"`
	PersistedID int64     `json:"persistedId,omitempty"`
	EndedAt     time.Time `json:"endedAt"`
}

type RatingUpdated struct {
	SessionID string         `json:"sessionId"`
	GameID    string         `json:"gameId"`
	Category  string         `json:"category"`
	Ratings   map[string]int `json:"ratings"`
	Deltas    map[string]int `json:"deltas"`
}

type nop struct{}

func Nop() Publisher { return nop{} }

func (nop) Publish(string, any) {}
func (nop) Close() error        { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Recorded
}

type Recorded struct {
	Subject string
	Payload any
}

func (r *Recorder) Publish(subject string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Recorded{Subject: subject, Payload: payload})
}

func (r *Recorder) Close() error { return nil }

// Subjects lists recorded subjects in order.
func (r *Recorder) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Subject)
	}
	return out
}
