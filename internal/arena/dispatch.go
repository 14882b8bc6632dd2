package arena

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/adapter/presenter"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/matchmaking"
	"github.com/park285/cheese-arena/internal/metrics"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/room"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

var (
	errBadRequest  = errors.New("bad request")
	errUnknownType = errors.New("unknown event type")
)

// Dispatch handles one inbound frame. It must run on the loop. A rejected
// request only produces an error event for the sender.
func (c *Coordinator) Dispatch(a domain.Actor, env arenadto.Envelope) {
	label := env.Type
	if !knownType(label) {
		label = "unknown"
	}
	start := time.Now()
	defer func() { metrics.EventHandle.WithLabelValues(label).Observe(time.Since(start).Seconds()) }()

	data := map[string]any{}
	if err := c.route(a, env, data); err != nil {
		code := codeFor(err)
		if code == arenadto.CodeInternal {
			c.logger.Error("event_error", zap.String("type", env.Type), zap.String("conn_id", a.ConnID), zap.Error(err))
		} else {
			c.logger.Debug("event_rejected", zap.String("type", env.Type), zap.String("code", code), zap.Error(err))
		}
		c.pres.Reject(a.ConnID, env.Type, code, data)
	}
}

func (c *Coordinator) route(a domain.Actor, env arenadto.Envelope, data map[string]any) error {
	switch env.Type {
	case arenadto.TypeCreateRoom:
		var req arenadto.CreateRoomRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		_, err := c.rooms.CreateRoom(a, req)
		return err

	case arenadto.TypeJoinRoom:
		var req arenadto.SessionRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		data["SessionID"] = req.SessionID
		_, _, err := c.rooms.JoinRoom(a, req.SessionID)
		return err

	case arenadto.TypeFindMatch:
		var req arenadto.FindMatchRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return c.match.FindMatch(a, req)

	case arenadto.TypeCancelFindMatch:
		c.match.Cancel(a)
		return nil

	case arenadto.TypeAcceptMatch, arenadto.TypeDeclineMatch:
		var req arenadto.MatchRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		if env.Type == arenadto.TypeDeclineMatch {
			return c.match.Decline(a, req.MatchID)
		}
		_, err := c.match.Accept(a, req.MatchID)
		return err

	case arenadto.TypeMakeMove:
		var req arenadto.MakeMoveRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		data["SessionID"] = req.SessionID
		data["Move"] = req.From + req.To + req.Promotion
		return c.makeMove(a, req)
	}

	var req arenadto.SessionRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	data["SessionID"] = req.SessionID
	switch env.Type {
	case arenadto.TypeResign:
		return c.nego.Resign(a, req.SessionID)
	case arenadto.TypeOfferDraw:
		return c.nego.OfferDraw(a, req.SessionID)
	case arenadto.TypeAcceptDraw:
		return c.nego.AcceptDraw(a, req.SessionID)
	case arenadto.TypeDeclineDraw:
		return c.nego.DeclineDraw(a, req.SessionID)
	case arenadto.TypeOfferRematch:
		return c.nego.OfferRematch(a, req.SessionID)
	case arenadto.TypeAcceptRematch:
		_, err := c.nego.AcceptRematch(a, req.SessionID)
		return err
	case arenadto.TypeDeclineRematch:
		return c.nego.DeclineRematch(a, req.SessionID)
	}
	return errUnknownType
}

// makeMove applies a move, or ends the game on time when the mover had
// already run out before it arrived.
func (c *Coordinator) makeMove(a domain.Actor, req arenadto.MakeMoveRequest) error {
	s, err := c.reg.Get(req.SessionID)
	if err != nil {
		return err
	}
	now := c.sched.Now()
	res, err := s.MakeMove(a.UserID, req.From, req.To, req.Promotion, now)
	if err != nil {
		return err
	}
	if !res.Applied {
		c.settle.Finish(s, *res.Outcome, now)
		return nil
	}
	metrics.MovesTotal.Inc()
	c.pres.Broadcast(s.ID, arenadto.EventMovePlayed, presenter.ToDTOMove(s, res))
	if res.Outcome != nil {
		c.settle.Finish(s, *res.Outcome, now)
	}
	return nil
}

func decode(env arenadto.Envelope, v any) error {
	if err := env.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

func knownType(t string) bool {
	switch t {
	case arenadto.TypeCreateRoom, arenadto.TypeJoinRoom, arenadto.TypeFindMatch,
		arenadto.TypeCancelFindMatch, arenadto.TypeAcceptMatch, arenadto.TypeDeclineMatch,
		arenadto.TypeMakeMove, arenadto.TypeResign, arenadto.TypeOfferDraw,
		arenadto.TypeAcceptDraw, arenadto.TypeDeclineDraw, arenadto.TypeOfferRematch,
		arenadto.TypeAcceptRematch, arenadto.TypeDeclineRematch:
		return true
	}
	return false
}

// codeFor maps a handler error to its wire code.
func codeFor(err error) string {
	switch {
	case errors.Is(err, game.ErrNotAPlayer):
		return arenadto.CodeNotAPlayer
	case errors.Is(err, game.ErrOutOfTurn):
		return arenadto.CodeOutOfTurn
	case errors.Is(err, game.ErrIllegalMove):
		return arenadto.CodeIllegalMove
	case errors.Is(err, registry.ErrSessionNotFound):
		return arenadto.CodeSessionNotFound
	case errors.Is(err, matchmaking.ErrAlreadyQueued):
		return arenadto.CodeAlreadyQueued
	case errors.Is(err, registry.ErrAlreadyPlaying):
		return arenadto.CodeAlreadyPlaying
	case errors.Is(err, game.ErrNotPlaying):
		return arenadto.CodeNotPlaying
	case errors.Is(err, game.ErrNotFinished):
		return arenadto.CodeNotFinished
	case errors.Is(err, game.ErrNoOffer):
		return arenadto.CodeNoOffer
	case errors.Is(err, game.ErrOwnOffer):
		return arenadto.CodeOwnOffer
	case errors.Is(err, game.ErrOfferPending):
		return arenadto.CodeOfferPending
	case errors.Is(err, matchmaking.ErrMatchNotFound):
		return arenadto.CodeMatchNotFound
	case errors.Is(err, registry.ErrCapacity):
		return arenadto.CodeServerBusy
	case errors.Is(err, errBadRequest),
		errors.Is(err, errUnknownType),
		errors.Is(err, room.ErrInvalidConfig),
		errors.Is(err, matchmaking.ErrInvalidRequest),
		errors.Is(err, game.ErrSessionFull),
		errors.Is(err, game.ErrSeatTaken):
		return arenadto.CodeBadRequest
	default:
		return arenadto.CodeInternal
	}
}
