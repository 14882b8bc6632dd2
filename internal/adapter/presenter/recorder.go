package presenter

import (
	"sync"

	"github.com/park285/cheese-arena/pkg/arenadto"
)

// Recorder is an in-memory Outbound. Published messages are fanned out to
// current room members like the real hub, so tests read per-connection
// inboxes.
type Recorder struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
	inbox map[string][]arenadto.Message
}

func NewRecorder() *Recorder {
	return &Recorder{
		rooms: make(map[string]map[string]struct{}),
		inbox: make(map[string][]arenadto.Message),
	}
}

func (r *Recorder) Send(connID string, msg arenadto.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inbox[connID] = append(r.inbox[connID], msg)
}

func (r *Recorder) Publish(room string, msg arenadto.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conn := range r.rooms[room] {
		r.inbox[conn] = append(r.inbox[conn], msg)
	}
}

func (r *Recorder) Subscribe(room, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[connID] = struct{}{}
}

func (r *Recorder) Unsubscribe(room, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms[room], connID)
}

// Inbox returns every message delivered to connID so far.
func (r *Recorder) Inbox(connID string) []arenadto.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]arenadto.Message(nil), r.inbox[connID]...)
}

// Types lists the event types delivered to connID in order.
func (r *Recorder) Types(connID string) []string {
	msgs := r.Inbox(connID)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type)
	}
	return out
}

// Last returns the most recent message of type typ delivered to connID.
func (r *Recorder) Last(connID, typ string) (arenadto.Message, bool) {
	msgs := r.Inbox(connID)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == typ {
			return msgs[i], true
		}
	}
	return arenadto.Message{}, false
}

// Count reports how many messages of type typ connID received.
func (r *Recorder) Count(connID, typ string) int {
	n := 0
	for _, m := range r.Inbox(connID) {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func (r *Recorder) Members(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[room])
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inbox = make(map[string][]arenadto.Message)
}
