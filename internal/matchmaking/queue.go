package matchmaking

import (
	"sort"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

// Entry is one player waiting for an opponent.
type Entry struct {
	Actor       domain.Actor
	Rating      int
	TimeControl domain.TimeControl
	Rated       bool
	EnqueuedAt  time.Time
}

func (e *Entry) UserID() string { return e.Actor.UserID }

// compatible reports whether a and b may be paired under maxGap.
func compatible(a, b *Entry, maxGap int) bool {
	if a.TimeControl.String() != b.TimeControl.String() || a.Rated != b.Rated {
		return false
	}
	gap := a.Rating - b.Rating
	if gap < 0 {
		gap = -gap
	}
	return gap <= maxGap
}

// Queue keeps waiting players in arrival order, at most one entry per user.
type Queue struct {
	entries []*Entry
	byUser  map[string]*Entry
}

func NewQueue() *Queue {
	return &Queue{byUser: make(map[string]*Entry)}
}

func (q *Queue) Len() int { return len(q.entries) }

func (q *Queue) Has(userID string) bool {
	_, ok := q.byUser[userID]
	return ok
}

func (q *Queue) Add(e *Entry) error {
	if q.Has(e.UserID()) {
		return ErrAlreadyQueued
	}
	q.entries = append(q.entries, e)
	q.byUser[e.UserID()] = e
	return nil
}

// Remove drops the user's entry. Removing an absent user is a no-op.
func (q *Queue) Remove(userID string) (*Entry, bool) {
	e, ok := q.byUser[userID]
	if !ok {
		return nil, false
	}
	delete(q.byUser, userID)
	for i, cur := range q.entries {
		if cur == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	return e, true
}

// RemoveConn drops entries queued through connID.
func (q *Queue) RemoveConn(connID string) []*Entry {
	var out []*Entry
	for _, e := range q.Snapshot() {
		if e.Actor.ConnID == connID {
			q.Remove(e.UserID())
			out = append(out, e)
		}
	}
	return out
}

// Snapshot copies the current entries in arrival order.
func (q *Queue) Snapshot() []*Entry {
	return append([]*Entry(nil), q.entries...)
}

// Pair runs one greedy pass: sort by rating, then walk adjacent pairs. A
// compatible pair is taken and the scan skips past both; otherwise the
// scan moves one step so the lower entry can still meet the next one.
// entries is not modified.
func Pair(entries []*Entry, maxGap int) [][2]*Entry {
	sorted := append([]*Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Rating != sorted[j].Rating {
			return sorted[i].Rating < sorted[j].Rating
		}
		return sorted[i].EnqueuedAt.Before(sorted[j].EnqueuedAt)
	})

	var pairs [][2]*Entry
	for i := 0; i+1 < len(sorted); {
		a, b := sorted[i], sorted[i+1]
		if compatible(a, b, maxGap) {
			pairs = append(pairs, [2]*Entry{a, b})
			i += 2
			continue
		}
		i++
	}
	return pairs
}
