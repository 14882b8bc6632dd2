package arena

import (
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/adapter/presenter"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// roster mirrors room membership so the loop knows which sessions a
// closing connection was watching. Loop-only.
type roster struct {
	presenter.Outbound
	byConn map[string]map[string]struct{}
	byRoom map[string]map[string]struct{}
}

func newRoster(out presenter.Outbound) *roster {
	return &roster{
		Outbound: out,
		byConn:   make(map[string]map[string]struct{}),
		byRoom:   make(map[string]map[string]struct{}),
	}
}

func (r *roster) Send(connID string, msg arenadto.Message) {
	if r.Outbound != nil {
		r.Outbound.Send(connID, msg)
	}
}

func (r *roster) Publish(room string, msg arenadto.Message) {
	if r.Outbound != nil {
		r.Outbound.Publish(room, msg)
	}
}

func (r *roster) Subscribe(room, connID string) {
	add(r.byConn, connID, room)
	add(r.byRoom, room, connID)
	if r.Outbound != nil {
		r.Outbound.Subscribe(room, connID)
	}
}

func (r *roster) Unsubscribe(room, connID string) {
	drop(r.byConn, connID, room)
	drop(r.byRoom, room, connID)
	if r.Outbound != nil {
		r.Outbound.Unsubscribe(room, connID)
	}
}

func (r *roster) rooms(connID string) []string {
	out := make([]string, 0, len(r.byConn[connID]))
	for room := range r.byConn[connID] {
		out = append(out, room)
	}
	return out
}

// closeRoom unsubscribes every member of room.
func (r *roster) closeRoom(room string) {
	for connID := range r.byRoom[room] {
		r.Unsubscribe(room, connID)
	}
}

func add(m map[string]map[string]struct{}, k, v string) {
	set, ok := m[k]
	if !ok {
		set = make(map[string]struct{})
		m[k] = set
	}
	set[v] = struct{}{}
}

func drop(m map[string]map[string]struct{}, k, v string) {
	set, ok := m[k]
	if !ok {
		return
	}
	delete(set, v)
	if len(set) == 0 {
		delete(m, k)
	}
}

// Disconnect runs when a socket closes: queue entries and pending matches
// go, and a seated player in a live session gets a grace period.
func (c *Coordinator) Disconnect(a domain.Actor) {
	c.match.Disconnect(a.ConnID)
	for _, id := range c.roster.rooms(a.ConnID) {
		c.roster.Unsubscribe(id, a.ConnID)
		s, err := c.reg.Get(id)
		if err != nil {
			continue
		}
		p := s.Disconnect(a.ConnID)
		if p == nil {
			continue
		}
		switch s.Status() {
		case game.StatusPlaying:
			c.pres.Broadcast(s.ID, arenadto.EventOpponentDisconnected, arenadto.PresenceNotice{
				SessionID:    s.ID,
				UserID:       p.UserID,
				GraceSeconds: int(c.cfg.DisconnectGrace.Seconds()),
			})
			c.armGrace(s, p.Color)
		case game.StatusWaiting:
			c.armGrace(s, p.Color)
		}
		c.logger.Info("player_disconnect",
			zap.String("session_id", s.ID),
			zap.String("user_id", p.UserID),
			zap.String("status", string(s.Status())),
		)
	}
}

func (c *Coordinator) armGrace(s *game.Session, color domain.Color) {
	s.ArmGrace(color, c.sched.After(c.cfg.DisconnectGrace, func() {
		c.graceExpired(s, color)
	}))
}

// graceExpired ends a game whose player never came back, or drops a room
// whose host left before anyone joined.
func (c *Coordinator) graceExpired(s *game.Session, color domain.Color) {
	cur, err := c.reg.Get(s.ID)
	if err != nil || cur != s {
		return
	}
	s.DisarmGrace(color)
	p := s.PlayerByColor(color)
	if p == nil || p.Connected {
		return
	}
	switch s.Status() {
	case game.StatusPlaying:
		o, err := s.Abandon(color)
		if err != nil {
			return
		}
		c.logger.Info("player_abandoned", zap.String("session_id", s.ID), zap.String("user_id", p.UserID))
		c.settle.Finish(s, o, c.sched.Now())
	case game.StatusWaiting:
		c.logger.Info("room_abandoned", zap.String("session_id", s.ID), zap.String("host", p.UserID))
		c.reg.Remove(s.ID)
	}
}

// armTick schedules the clock broadcast. Each tick also ends games whose
// side to move has run out, so a silent player still loses on time.
func (c *Coordinator) armTick() {
	c.tick = c.sched.After(c.cfg.ClockBroadcast, func() {
		c.clockTick()
		c.armTick()
	})
}

func (c *Coordinator) clockTick() {
	now := c.sched.Now()
	var flagged []*game.Session
	var outcomes []game.Outcome
	c.reg.Each(func(s *game.Session) {
		if s.Status() != game.StatusPlaying {
			return
		}
		if o, out := s.CheckFlag(now); out {
			flagged = append(flagged, s)
			outcomes = append(outcomes, o)
			return
		}
		c.pres.Broadcast(s.ID, arenadto.EventClock, presenter.ToDTOClockTick(s, now))
	})
	for i, s := range flagged {
		c.settle.Finish(s, outcomes[i], now)
	}
}
