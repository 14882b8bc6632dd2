// Package matchmaking pairs queued players by rating in periodic batch
// passes and runs the accept handshake that turns a pairing into a game.
package matchmaking

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/adapter/presenter"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/metrics"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/settlement"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

var (
	ErrAlreadyQueued  = errors.New("already queued")
	ErrMatchNotFound  = errors.New("match not found")
	ErrInvalidRequest = errors.New("invalid match request")
)

const (
	DefaultMaxGap        = 100
	DefaultAcceptTimeout = 10 * time.Second
	DefaultInterval      = time.Second
)

type Config struct {
	MaxGap        int
	AcceptTimeout time.Duration
	Interval      time.Duration
	DefaultRating int
}

func (c Config) withDefaults() Config {
	if c.MaxGap <= 0 {
		c.MaxGap = DefaultMaxGap
	}
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = DefaultAcceptTimeout
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.DefaultRating <= 0 {
		c.DefaultRating = 1200
	}
	return c
}

// Engine owns the queue and the pending matches. Like the registry it is
// only touched from the event loop; timers post back onto it.
type Engine struct {
	cfg     Config
	queue   *Queue
	pending map[string]*PendingMatch
	byUser  map[string]*PendingMatch

	reg    *registry.Registry
	settle *settlement.Settler
	pres   *presenter.Presenter
	sched  clock.Scheduler

	coin   func() bool
	newID  func() string
	ticker clock.Timer
	logger *zap.Logger
}

func New(cfg Config, reg *registry.Registry, settle *settlement.Settler, pres *presenter.Presenter, sched clock.Scheduler) *Engine {
	return &Engine{
		cfg:     cfg.withDefaults(),
		queue:   NewQueue(),
		pending: make(map[string]*PendingMatch),
		byUser:  make(map[string]*PendingMatch),
		reg:     reg,
		settle:  settle,
		pres:    pres,
		sched:   sched,
		coin:    domain.CoinFlip,
		newID:   uuid.NewString,
		logger:  obslog.Named("matchmaking"),
	}
}

func (e *Engine) WithCoin(fn func() bool) *Engine {
	e.coin = fn
	return e
}

func (e *Engine) QueueLen() int   { return e.queue.Len() }
func (e *Engine) PendingLen() int { return len(e.pending) }

// Pending returns the open match for a user, if any.
func (e *Engine) Pending(userID string) (*PendingMatch, bool) {
	m, ok := e.byUser[userID]
	return m, ok
}

// Schedule arms the periodic pairing pass. Each pass re-arms the next one.
func (e *Engine) Schedule() {
	e.ticker = e.sched.After(e.cfg.Interval, func() {
		e.RunPass()
		e.Schedule()
	})
}

func (e *Engine) Stop() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

// FindMatch queues the actor. A user already queued or holding a pending
// match gets ErrAlreadyQueued, one seated in a game in progress gets
// registry.ErrAlreadyPlaying, and nothing changes.
func (e *Engine) FindMatch(a domain.Actor, req arenadto.FindMatchRequest) error {
	tc, err := domain.ParseTimeControl(req.TimeControl)
	if err != nil {
		return errors.Join(ErrInvalidRequest, err)
	}
	if _, busy := e.byUser[a.UserID]; busy {
		return ErrAlreadyQueued
	}
	if _, playing := e.reg.Playing(a.UserID); playing {
		return registry.ErrAlreadyPlaying
	}
	entry := &Entry{
		Actor:       a,
		Rating:      e.settle.Rating(a.Identity, tc.Category(), e.cfg.DefaultRating),
		TimeControl: tc,
		Rated:       req.Rated,
		EnqueuedAt:  e.sched.Now(),
	}
	if err := e.queue.Add(entry); err != nil {
		return err
	}
	e.gauge()
	e.pres.Send(a.ConnID, arenadto.EventQueued, arenadto.Queued{TimeControl: tc.String(), Rated: req.Rated})
	e.logger.Info("queue_join",
		zap.String("user_id", a.UserID),
		zap.String("time_control", tc.String()),
		zap.Int("rating", entry.Rating),
	)
	return nil
}

// Cancel removes the user from the queue. It is idempotent.
func (e *Engine) Cancel(a domain.Actor) bool {
	_, ok := e.queue.Remove(a.UserID)
	if ok {
		e.gauge()
		e.logger.Info("queue_leave", zap.String("user_id", a.UserID))
	}
	e.pres.Send(a.ConnID, arenadto.EventQueueCancelled, nil)
	return ok
}

// RunPass pairs what it can from the current queue and returns the number
// of matches proposed.
func (e *Engine) RunPass() int {
	now := e.sched.Now()
	pairs := Pair(e.queue.Snapshot(), e.cfg.MaxGap)
	for _, p := range pairs {
		e.queue.Remove(p[0].UserID())
		e.queue.Remove(p[1].UserID())
		metrics.MatchWait.Observe(now.Sub(p[0].EnqueuedAt).Seconds())
		metrics.MatchWait.Observe(now.Sub(p[1].EnqueuedAt).Seconds())
		e.propose(p, now)
	}
	e.gauge()
	return len(pairs)
}

func (e *Engine) propose(p [2]*Entry, now time.Time) {
	m := &PendingMatch{
		ID:        e.newID(),
		Players:   p,
		CreatedAt: now,
		Deadline:  now.Add(e.cfg.AcceptTimeout),
	}
	id := m.ID
	m.timer = e.sched.After(e.cfg.AcceptTimeout, func() {
		cur, ok := e.pending[id]
		if !ok || cur != m {
			return
		}
		e.abort(m, AbortTimeout, -1)
	})
	e.pending[id] = m
	e.byUser[p[0].UserID()] = m
	e.byUser[p[1].UserID()] = m

	seconds := int(math.Ceil(e.cfg.AcceptTimeout.Seconds()))
	for i, self := range p {
		opp := p[1-i]
		e.pres.Send(self.Actor.ConnID, arenadto.EventMatchFound, arenadto.MatchFound{
			MatchID: id,
			Opponent: arenadto.OpponentSummary{
				UserID:   opp.UserID(),
				Username: opp.Actor.Username,
				Rating:   opp.Rating,
			},
			TimeControl:    self.TimeControl.String(),
			Rated:          self.Rated,
			AcceptDeadline: seconds,
		})
	}
	e.logger.Info("match_proposed",
		zap.String("match_id", id),
		zap.String("a", p[0].UserID()),
		zap.String("b", p[1].UserID()),
		zap.Int("gap", p[0].Rating-p[1].Rating),
	)
}

// Accept records the actor's acceptance. The second acceptance promotes
// the match into a playing session, which is returned.
func (e *Engine) Accept(a domain.Actor, matchID string) (*game.Session, error) {
	m, i, err := e.lookup(a.UserID, matchID)
	if err != nil {
		return nil, err
	}
	m.accepted[i] = true
	if !m.bothAccepted() {
		e.pres.Send(a.ConnID, arenadto.EventMatchAccepted, arenadto.MatchRequest{MatchID: m.ID})
		return nil, nil
	}
	return e.promote(m)
}

func (e *Engine) Decline(a domain.Actor, matchID string) error {
	m, i, err := e.lookup(a.UserID, matchID)
	if err != nil {
		return err
	}
	e.abort(m, AbortDeclined, i)
	return nil
}

// Disconnect drops queue entries and pending matches held through connID.
func (e *Engine) Disconnect(connID string) {
	if removed := e.queue.RemoveConn(connID); len(removed) > 0 {
		e.gauge()
	}
	for _, m := range e.pending {
		if i := m.indexByConn(connID); i >= 0 {
			e.abort(m, AbortDisconnected, i)
		}
	}
}

func (e *Engine) lookup(userID, matchID string) (*PendingMatch, int, error) {
	m, ok := e.pending[matchID]
	if !ok {
		return nil, -1, ErrMatchNotFound
	}
	i := m.index(userID)
	if i < 0 {
		return nil, -1, ErrMatchNotFound
	}
	return m, i, nil
}

// abort discards m. by is the index of the side that caused it, or -1 when
// the deadline fired; everyone else is told. Neither side is re-queued.
func (e *Engine) abort(m *PendingMatch, reason string, by int) {
	if !m.resolve() {
		return
	}
	e.forget(m)
	for i, p := range m.Players {
		if i == by {
			continue
		}
		e.pres.Send(p.Actor.ConnID, arenadto.EventMatchAborted, e.aborted(m, reason))
	}
	e.logger.Info("match_aborted", zap.String("match_id", m.ID), zap.String("reason", reason))
}

func (e *Engine) aborted(m *PendingMatch, reason string) arenadto.MatchAborted {
	return arenadto.MatchAborted{
		MatchID: m.ID,
		Reason:  reason,
		Message: e.pres.Text("match.aborted."+reason, nil, ""),
	}
}

func (e *Engine) promote(m *PendingMatch) (*game.Session, error) {
	if !m.resolve() {
		return nil, ErrMatchNotFound
	}
	e.forget(m)

	// Either side may have sat down in a friend game while queued.
	for _, p := range m.Players {
		if _, playing := e.reg.Playing(p.UserID()); playing {
			for _, q := range m.Players {
				e.pres.Send(q.Actor.ConnID, arenadto.EventMatchAborted, e.aborted(m, AbortUnavailable))
			}
			e.logger.Info("match_aborted",
				zap.String("match_id", m.ID),
				zap.String("reason", AbortUnavailable),
				zap.String("busy", p.UserID()),
			)
			return nil, nil
		}
	}

	first := m.Players[0]
	s, err := e.reg.Create(game.Config{TimeControl: first.TimeControl, Rated: first.Rated})
	if err != nil {
		for _, p := range m.Players {
			e.pres.Send(p.Actor.ConnID, arenadto.EventMatchAborted, e.aborted(m, AbortServerBusy))
		}
		e.logger.Warn("match_promote_error", zap.String("match_id", m.ID), zap.Error(err))
		return nil, err
	}

	white, black := m.Players[0], m.Players[1]
	if !e.coin() {
		white, black = black, white
	}
	for _, seat := range []struct {
		entry *Entry
		color domain.Color
	}{{white, domain.White}, {black, domain.Black}} {
		if _, err := s.Seat(game.Player{
			UserID:    seat.entry.UserID(),
			Username:  seat.entry.Actor.Username,
			ConnID:    seat.entry.Actor.ConnID,
			Color:     seat.color,
			Rating:    e.settle.Rating(seat.entry.Actor.Identity, s.Category(), seat.entry.Rating),
			Connected: true,
		}); err != nil {
			e.reg.Remove(s.ID)
			return nil, err
		}
		e.pres.Join(s.ID, seat.entry.Actor.ConnID)
	}
	if err := e.settle.Begin(s, e.sched.Now()); err != nil {
		e.reg.Remove(s.ID)
		return nil, err
	}
	e.logger.Info("match_promoted",
		zap.String("match_id", m.ID),
		zap.String("session_id", s.ID),
		zap.String("white", white.UserID()),
		zap.String("black", black.UserID()),
	)
	return s, nil
}

func (e *Engine) forget(m *PendingMatch) {
	delete(e.pending, m.ID)
	for _, p := range m.Players {
		if cur, ok := e.byUser[p.UserID()]; ok && cur == m {
			delete(e.byUser, p.UserID())
		}
	}
	e.gauge()
}

func (e *Engine) gauge() {
	metrics.MatchQueueSize.Set(float64(e.queue.Len()))
	metrics.PendingMatches.Set(float64(len(e.pending)))
}
