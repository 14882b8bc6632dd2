package game

import (
	"fmt"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-arena/internal/domain"
)

// Export captures everything needed to rebuild the session elsewhere.
func (s *Session) Export() State {
	players := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, *p)
	}
	var outcome *Outcome
	if s.outcome != nil {
		o := *s.outcome
		outcome = &o
	}
	return State{
		ID:           s.ID,
		GameID:       s.GameID,
		Round:        s.Round,
		Version:      s.Version,
		Status:       s.status,
		TimeControl:  s.Config.TimeControl.String(),
		Rated:        s.Config.Rated,
		Players:      players,
		Clocks:       s.clocks,
		LastMove:     s.lastMove,
		DrawOffer:    s.drawOffer,
		RematchOffer: s.rematchOffer,
		MovesUCI:     s.MovesUCI(),
		Outcome:      outcome,
		CreatedAt:    s.CreatedAt,
		StartedAt:    s.StartedAt,
		EndedAt:      s.EndedAt,
	}
}

// Restore rebuilds a session by replaying the stored moves from the start
// position. Connections are not carried over; players come back through a
// rejoin.
func Restore(st State) (*Session, error) {
	tc, err := domain.ParseTimeControl(st.TimeControl)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", st.ID, err)
	}
	s := New(st.ID, Config{TimeControl: tc, Rated: st.Rated}, st.CreatedAt)
	s.GameID = st.GameID
	s.Round = st.Round
	s.Version = st.Version
	s.status = st.Status
	s.clocks = st.Clocks
	s.lastMove = st.LastMove
	s.drawOffer = st.DrawOffer
	s.rematchOffer = st.RematchOffer
	s.StartedAt = st.StartedAt
	s.EndedAt = st.EndedAt
	if st.Outcome != nil {
		o := *st.Outcome
		s.outcome = &o
	}
	for _, p := range st.Players {
		bound := p
		bound.ConnID = ""
		bound.Connected = false
		s.players = append(s.players, &bound)
	}
	for _, uci := range st.MovesUCI {
		pos := s.board.Position()
		if err := s.board.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("restore %s: replay %q: %w", st.ID, uci, err)
		}
		moves := s.board.Moves()
		s.movesUCI = append(s.movesUCI, uci)
		s.movesSAN = append(s.movesSAN, nchess.AlgebraicNotation{}.Encode(pos, moves[len(moves)-1]))
	}
	return s, nil
}
