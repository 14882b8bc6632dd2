package presenter

import (
	"time"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

func ToDTOClocks(c clock.Clocks) arenadto.Clocks {
	return arenadto.Clocks{White: c.White, Black: c.Black}
}

func ToDTOPlayer(p *game.Player) arenadto.PlayerInfo {
	if p == nil {
		return arenadto.PlayerInfo{}
	}
	return arenadto.PlayerInfo{
		UserID:    p.UserID,
		Username:  p.Username,
		Color:     string(p.Color),
		Rating:    p.Rating,
		Connected: p.Connected,
	}
}

func ToDTOConfig(cfg game.Config) arenadto.GameConfig {
	return arenadto.GameConfig{
		TimeControl: cfg.TimeControl.String(),
		Base:        cfg.TimeControl.BaseSeconds,
		Increment:   cfg.TimeControl.IncrementSeconds,
		Rated:       cfg.Rated,
		Category:    string(cfg.Category()),
	}
}

// ToDTOState renders a full resync snapshot. Clocks are the display values
// at now, so the side to move is shown with its elapsed time deducted.
func ToDTOState(s *game.Session, now time.Time) arenadto.GameState {
	st := arenadto.GameState{
		SessionID:    s.ID,
		GameID:       s.GameID,
		Round:        s.Round,
		Status:       string(s.Status()),
		Position:     s.FEN(),
		Turn:         string(s.Turn()),
		MovesSAN:     s.MovesSAN(),
		Clocks:       ToDTOClocks(s.DisplayClocks(now)),
		Config:       ToDTOConfig(s.Config),
		DrawOffer:    string(s.DrawOffer()),
		RematchOffer: string(s.RematchOffer()),
	}
	if st.MovesSAN == nil {
		st.MovesSAN = []string{}
	}
	for _, p := range s.Players() {
		st.Players = append(st.Players, ToDTOPlayer(p))
	}
	if o := s.Outcome(); o != nil {
		st.Result = string(o.Result)
		st.Reason = string(o.Reason)
	}
	return st
}

func ToDTOMove(s *game.Session, res game.MoveResult) arenadto.MovePlayed {
	return arenadto.MovePlayed{
		SessionID:         s.ID,
		Position:          res.FEN,
		SAN:               res.SAN,
		UCI:               res.UCI,
		Clocks:            ToDTOClocks(res.Clocks),
		Turn:              string(s.Turn()),
		MoverConnectionID: res.Mover.ConnID,
		MoverUserID:       res.Mover.UserID,
	}
}

func ToDTOClockTick(s *game.Session, now time.Time) arenadto.ClockTick {
	return arenadto.ClockTick{
		SessionID: s.ID,
		Clocks:    ToDTOClocks(s.DisplayClocks(now)),
		Turn:      string(s.Turn()),
	}
}

// ToDTOGameOver builds the immediate notice. The persisted variant adds the
// stored id and the PGN once settlement has written them.
func ToDTOGameOver(sessionID, gameID string, o game.Outcome) arenadto.GameOver {
	return arenadto.GameOver{
		SessionID: sessionID,
		GameID:    gameID,
		Result:    string(o.Result),
		Reason:    string(o.Reason),
	}
}

func ToDTORatingUpdate(sessionID, gameID string, cat domain.Category, changes []domain.RatingChange) arenadto.RatingUpdate {
	out := arenadto.RatingUpdate{
		SessionID:  sessionID,
		GameID:     gameID,
		Category:   string(cat),
		Players:    make([]arenadto.RatingChange, 0, len(changes)),
		NewRatings: make(map[string]int, len(changes)),
	}
	for _, c := range changes {
		out.Players = append(out.Players, arenadto.RatingChange{
			UserID: c.UserID,
			Before: c.Before,
			After:  c.After,
			Delta:  c.Delta(),
		})
		out.NewRatings[c.UserID] = c.After
	}
	return out
}

func ToDTOGameRecord(r *domain.GameRecord) *arenadto.GameRecord {
	if r == nil {
		return nil
	}
	return &arenadto.GameRecord{
		ID:                r.ID,
		GameUUID:          r.GameUUID,
		SessionID:         r.SessionID,
		White:             r.WhiteName,
		WhiteID:           r.WhiteID,
		Black:             r.BlackName,
		BlackID:           r.BlackID,
		Result:            string(r.Result),
		Reason:            string(r.Reason),
		TimeControl:       r.TimeControl,
		Category:          string(r.Category),
		Rated:             r.Rated,
		WhiteRatingBefore: r.WhiteRatingBefore,
		BlackRatingBefore: r.BlackRatingBefore,
		WhiteRatingAfter:  r.WhiteRatingAfter,
		BlackRatingAfter:  r.BlackRatingAfter,
		PGN:               r.PGN,
		StartedAt:         r.StartedAt,
		EndedAt:           r.EndedAt,
	}
}

func ToDTOSessionSummary(s *game.Session) arenadto.SessionSummary {
	out := arenadto.SessionSummary{
		SessionID:   s.ID,
		GameID:      s.GameID,
		Round:       s.Round,
		Status:      string(s.Status()),
		TimeControl: s.TimeControl(),
		Rated:       s.Config.Rated,
		Ply:         s.Ply(),
		CreatedAt:   s.CreatedAt,
	}
	if p := s.PlayerByColor(domain.White); p != nil {
		out.White = p.Username
	}
	if p := s.PlayerByColor(domain.Black); p != nil {
		out.Black = p.Username
	}
	return out
}

func ToDTORatingProfile(p *domain.RatingProfile) arenadto.RatingProfile {
	return arenadto.RatingProfile{
		UserID:      p.UserID,
		Category:    string(p.Category),
		Rating:      p.Rating,
		GamesPlayed: p.GamesPlayed,
		Wins:        p.Wins,
		Losses:      p.Losses,
		Draws:       p.Draws,
	}
}
