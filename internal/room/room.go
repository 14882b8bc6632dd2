// Package room handles friend play: creating a session by link and joining
// it as host, opponent, returning player or spectator.
package room

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/adapter/presenter"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/settlement"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

var ErrInvalidConfig = errors.New("invalid room config")

// Role is how a connection entered a session.
type Role string

const (
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

type Handler struct {
	reg           *registry.Registry
	settle        *settlement.Settler
	pres          *presenter.Presenter
	sched         clock.Scheduler
	defaultRating int
	coin          func() bool
	logger        *zap.Logger
}

func New(reg *registry.Registry, settle *settlement.Settler, pres *presenter.Presenter, sched clock.Scheduler, defaultRating int) *Handler {
	return &Handler{
		reg:           reg,
		settle:        settle,
		pres:          pres,
		sched:         sched,
		defaultRating: defaultRating,
		coin:          domain.CoinFlip,
		logger:        obslog.Named("room"),
	}
}

// WithCoin replaces the random color source.
func (h *Handler) WithCoin(fn func() bool) *Handler {
	h.coin = fn
	return h
}

// CreateRoom allocates a waiting session and seats the host.
func (h *Handler) CreateRoom(a domain.Actor, req arenadto.CreateRoomRequest) (*game.Session, error) {
	tc, err := domain.ParseTimeControl(req.TimeControl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	color, err := h.pickColor(req.Color)
	if err != nil {
		return nil, err
	}
	if _, playing := h.reg.Playing(a.UserID); playing {
		return nil, registry.ErrAlreadyPlaying
	}

	s, err := h.reg.Create(game.Config{TimeControl: tc, Rated: req.Rated})
	if err != nil {
		return nil, err
	}
	if _, err := s.Seat(h.binding(a, color, s.Category())); err != nil {
		h.reg.Remove(s.ID)
		return nil, err
	}

	h.pres.Join(s.ID, a.ConnID)
	h.pres.Send(a.ConnID, arenadto.EventRoomCreated, arenadto.RoomCreated{
		SessionID:     s.ID,
		AssignedColor: string(color),
	})
	h.logger.Info("room_created",
		zap.String("session_id", s.ID),
		zap.String("host", a.UserID),
		zap.String("color", string(color)),
	)
	return s, nil
}

// JoinRoom admits a connection to an existing session and returns its role.
func (h *Handler) JoinRoom(a domain.Actor, sessionID string) (Role, *game.Session, error) {
	s, err := h.reg.Get(strings.TrimSpace(sessionID))
	if err != nil {
		return "", nil, err
	}
	now := h.sched.Now()

	switch {
	case s.PlayerByUser(a.UserID) != nil:
		h.rejoin(s, a)
		return RolePlayer, s, nil

	case len(s.Players()) >= 2:
		h.pres.Join(s.ID, a.ConnID)
		h.pres.Send(a.ConnID, arenadto.EventJoined, arenadto.Joined{
			Role:      string(RoleSpectator),
			GameState: presenter.ToDTOState(s, now),
		})
		return RoleSpectator, s, nil
	}

	if _, playing := h.reg.Playing(a.UserID); playing {
		return "", nil, registry.ErrAlreadyPlaying
	}
	color := s.FreeColor()
	if _, err := s.Seat(h.binding(a, color, s.Category())); err != nil {
		return "", nil, err
	}
	h.pres.Join(s.ID, a.ConnID)
	h.pres.Send(a.ConnID, arenadto.EventJoined, arenadto.Joined{
		Role:      string(RolePlayer),
		GameState: presenter.ToDTOState(s, now),
	})
	if err := h.settle.Begin(s, now); err != nil {
		return "", nil, err
	}
	return RolePlayer, s, nil
}

// rejoin rebinds a returning player's connection and resynchronises it.
func (h *Handler) rejoin(s *game.Session, a domain.Actor) {
	p, _ := s.Connect(a.UserID, a.ConnID)
	h.pres.Join(s.ID, a.ConnID)
	h.pres.Send(a.ConnID, arenadto.EventJoined, arenadto.Joined{
		Role:      string(RolePlayer),
		GameState: presenter.ToDTOState(s, h.sched.Now()),
	})
	if s.GracePending(p.Color) {
		s.DisarmGrace(p.Color)
		h.pres.Broadcast(s.ID, arenadto.EventOpponentReconnected, arenadto.PresenceNotice{
			SessionID: s.ID,
			UserID:    p.UserID,
		})
	}
	h.logger.Info("room_rejoin", zap.String("session_id", s.ID), zap.String("user_id", a.UserID))
}

func (h *Handler) binding(a domain.Actor, c domain.Color, cat domain.Category) game.Player {
	return game.Player{
		UserID:    a.UserID,
		Username:  a.Username,
		ConnID:    a.ConnID,
		Color:     c,
		Rating:    h.settle.Rating(a.Identity, cat, h.defaultRating),
		Connected: a.ConnID != "",
	}
}

func (h *Handler) pickColor(raw string) (domain.Color, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "random":
		if h.coin() {
			return domain.White, nil
		}
		return domain.Black, nil
	case "w", "white":
		return domain.White, nil
	case "b", "black":
		return domain.Black, nil
	default:
		return domain.NoColor, fmt.Errorf("%w: color %q", ErrInvalidConfig, raw)
	}
}
