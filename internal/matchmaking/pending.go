package matchmaking

import (
	"time"

	"github.com/park285/cheese-arena/internal/clock"
)

// Abort reasons sent in matchAborted.
const (
	AbortDeclined     = "declined"
	AbortDisconnected = "disconnected"
	AbortTimeout      = "timeout"
	AbortServerBusy   = "server_busy"
	AbortUnavailable  = "unavailable"
)

// PendingMatch is a proposed pairing waiting for both acceptances. It is
// resolved exactly once; resolution always disarms the deadline.
type PendingMatch struct {
	ID        string
	Players   [2]*Entry
	CreatedAt time.Time
	Deadline  time.Time

	accepted [2]bool
	timer    clock.Timer
	resolved bool
}

func (m *PendingMatch) index(userID string) int {
	for i, e := range m.Players {
		if e.UserID() == userID {
			return i
		}
	}
	return -1
}

func (m *PendingMatch) indexByConn(connID string) int {
	for i, e := range m.Players {
		if e.Actor.ConnID == connID {
			return i
		}
	}
	return -1
}

func (m *PendingMatch) Accepted(i int) bool { return m.accepted[i] }

func (m *PendingMatch) bothAccepted() bool { return m.accepted[0] && m.accepted[1] }

// resolve marks the match done and stops its deadline. It reports false
// if the match was already resolved.
func (m *PendingMatch) resolve() bool {
	if m.resolved {
		return false
	}
	m.resolved = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	return true
}
