// Package negotiation handles the in-game requests that need the other
// side's consent (draws, rematches) and resignation.
package negotiation

import (
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

type Handler struct {
	reg    *registry.Registry
	settle *settlement.Settler
	pres   *presenter.Presenter
	sched  clock.Scheduler
	logger *zap.Logger
}

func New(reg *registry.Registry, settle *settlement.Settler, pres *presenter.Presenter, sched clock.Scheduler) *Handler {
	return &Handler{
		reg:    reg,
		settle: settle,
		pres:   pres,
		sched:  sched,
		logger: obslog.Named("negotiation"),
	}
}

// Resign ends the game in the opponent's favour.
func (h *Handler) Resign(a domain.Actor, sessionID string) error {
	s, err := h.reg.Get(sessionID)
	if err != nil {
		return err
	}
	o, err := s.Resign(a.UserID)
	if err != nil {
		return err
	}
	h.settle.Finish(s, o, h.sched.Now())
	return nil
}

func (h *Handler) OfferDraw(a domain.Actor, sessionID string) error {
	s, err := h.reg.Get(sessionID)
	if err != nil {
		return err
	}
	p, err := s.OfferDraw(a.UserID)
	if err != nil {
		return err
	}
	h.pres.Broadcast(s.ID, arenadto.EventDrawOffered, arenadto.Offer{SessionID: s.ID, By: string(p.Color)})
	h.logger.Debug("draw_offered", zap.String("session_id", s.ID), zap.String("by", p.UserID))
	return nil
}

func (h *Handler) AcceptDraw(a domain.Actor, sessionID string) error {
	s, err := h.reg.Get(sessionID)
	if err != nil {
		return err
	}
	o, err := s.AcceptDraw(a.UserID)
	if err != nil {
		return err
	}
	h.settle.Finish(s, o, h.sched.Now())
	return nil
}

// DeclineDraw clears the offer and tells only the offerer.
func (h *Handler) DeclineDraw(a domain.Actor, sessionID string) error {
	s, err := h.reg.Get(sessionID)
	if err != nil {
		return err
	}
	offerer, err := s.DeclineDraw(a.UserID)
	if err != nil {
		return err
	}
	if offerer != nil {
		h.pres.Send(offerer.ConnID, arenadto.EventDrawDeclined, arenadto.Offer{SessionID: s.ID, By: string(offerer.Color.Opp())})
	}
	return nil
}

func (h *Handler) OfferRematch(a domain.Actor, sessionID string) error {
	s, err := h.reg.Get(sessionID)
	if err != nil {
		return err
	}
	p, err := s.OfferRematch(a.UserID)
	if err != nil {
		return err
	}
	h.pres.Broadcast(s.ID, arenadto.EventRematchOffered, arenadto.Offer{SessionID: s.ID, By: string(p.Color)})
	return nil
}

// AcceptRematch restarts the same session for another round. Validation
// happens before anything is touched, so a rejected accept leaves the
// cleanup timer armed.
func (h *Handler) AcceptRematch(a domain.Actor, sessionID string) (*game.Session, error) {
	s, err := h.reg.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.CheckRematchAccept(a.UserID); err != nil {
		return nil, err
	}
	previous := s.GameID
	h.reg.CancelCleanup(s)
	now := h.sched.Now()
	if err := s.Reset(now); err != nil {
		// Unreachable after CheckRematchAccept; restore the timer anyway.
		h.reg.ScheduleCleanup(s)
		return nil, err
	}

	h.pres.Broadcast(s.ID, arenadto.EventGameRestarted, presenter.ToDTOState(s, now))
	h.settle.Provision(s)
	h.logger.Info("rematch_started",
		zap.String("session_id", s.ID),
		zap.String("previous_game_id", previous),
		zap.String("game_id", s.GameID),
		zap.Int("round", s.Round),
	)
	return s, nil
}

func (h *Handler) DeclineRematch(a domain.Actor, sessionID string) error {
	s, err := h.reg.Get(sessionID)
	if err != nil {
		return err
	}
	offerer, err := s.DeclineRematch(a.UserID)
	if err != nil {
		return err
	}
	if offerer != nil {
		h.pres.Send(offerer.ConnID, arenadto.EventRematchDeclined, arenadto.Offer{SessionID: s.ID, By: string(offerer.Color.Opp())})
	}
	return nil
}
