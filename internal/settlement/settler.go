// Package settlement runs the sequence that follows a terminal transition:
// the immediate notice, and for rated games the PGN, rating update,
// persistence and the richer follow-up events.
package settlement

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/adapter/presenter"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/events"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/metrics"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rating"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/internal/worker"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// Settler is used from the event loop only. Store calls go through the
// runner; their continuations come back to the loop.
type Settler struct {
	reg    *registry.Registry
	pres   *presenter.Presenter
	repo   store.Repository
	elo    rating.Elo
	book   *rating.Book
	pub    events.Publisher
	run    worker.Runner
	logger *zap.Logger
}

type Option func(*Settler)

func WithPublisher(p events.Publisher) Option {
	return func(s *Settler) {
		if p != nil {
			s.pub = p
		}
	}
}

func WithRunner(r worker.Runner) Option {
	return func(s *Settler) {
		if r != nil {
			s.run = r
		}
	}
}

func WithElo(e rating.Elo) Option {
	return func(s *Settler) { s.elo = e }
}

func New(reg *registry.Registry, pres *presenter.Presenter, repo store.Repository, opts ...Option) *Settler {
	st := &Settler{
		reg:    reg,
		pres:   pres,
		repo:   repo,
		elo:    rating.NewElo(rating.DefaultKFactor, rating.DefaultRating),
		book:   rating.NewBook(),
		pub:    events.Nop(),
		run:    worker.Inline{},
		logger: obslog.Named("settlement"),
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Rating is the rating id enters a new game with: the latest settled value,
// else the one read when the connection was opened, else def.
func (st *Settler) Rating(id domain.Identity, cat domain.Category, def int) int {
	return st.book.For(id, cat, def)
}

// Begin moves a two-player session to playing, broadcasts the start
// snapshot and records the game provisionally.
func (st *Settler) Begin(s *game.Session, now time.Time) error {
	if err := s.Start(now); err != nil {
		return err
	}
	st.pres.Broadcast(s.ID, arenadto.EventGameStart, presenter.ToDTOState(s, now))
	st.Provision(s)
	return nil
}

// Provision writes the "*" record for the current round and announces it.
// Rematches call it directly after Reset.
func (st *Settler) Provision(s *game.Session) {
	rec := recordFor(s)
	st.logger.Info("game_start",
		zap.String("session_id", s.ID),
		zap.String("game_id", s.GameID),
		zap.Int("round", s.Round),
		zap.String("white", rec.WhiteID),
		zap.String("black", rec.BlackID),
	)
	st.pub.Publish(events.SubjectGameStarted, events.GameStarted{
		SessionID:   s.ID,
		GameID:      s.GameID,
		Round:       s.Round,
		WhiteID:     rec.WhiteID,
		BlackID:     rec.BlackID,
		TimeControl: rec.TimeControl,
		Rated:       rec.Rated,
		StartedAt:   rec.StartedAt,
	})
	if st.repo == nil {
		return
	}
	st.run.Go(func(ctx context.Context) func() {
		if _, err := st.repo.InsertProvisional(ctx, rec); err != nil {
			metrics.SettlementFailures.WithLabelValues("provisional").Inc()
			st.logger.Warn("provisional_record_error",
				zap.String("session_id", rec.SessionID),
				zap.String("game_id", rec.GameUUID),
				zap.Error(err),
			)
		}
		return nil
	})
}

// Finish ends the round with o, or with a timeout that beat it. Only the
// first terminal transition wins; later calls report false and do nothing.
// The in-memory result and the gameOver notice never wait on storage.
func (st *Settler) Finish(s *game.Session, o game.Outcome, now time.Time) bool {
	if !s.Finish(o, now) {
		return false
	}
	o = *s.Outcome()
	s.DisarmAllGrace()
	metrics.GamesFinished.WithLabelValues(string(o.Reason)).Inc()
	st.logger.Info("game_over",
		zap.String("session_id", s.ID),
		zap.String("game_id", s.GameID),
		zap.String("result", string(o.Result)),
		zap.String("reason", string(o.Reason)),
		zap.Int("ply", s.Ply()),
	)

	st.pres.Broadcast(s.ID, arenadto.EventGameOver, presenter.ToDTOGameOver(s.ID, s.GameID, o))
	st.reg.ScheduleCleanup(s)

	rec := recordFor(s)
	rec.Result = o.Result
	rec.Reason = o.Reason
	rec.EndedAt = now
	rec.PGN = BuildPGN(PGNInput{
		Rated:       rec.Rated,
		Category:    rec.Category,
		Round:       s.Round,
		Date:        rec.StartedAt,
		White:       rec.WhiteName,
		Black:       rec.BlackName,
		WhiteElo:    rec.WhiteRatingBefore,
		BlackElo:    rec.BlackRatingBefore,
		TimeControl: s.Config.TimeControl,
		Result:      o.Result,
		Reason:      o.Reason,
		MovesSAN:    s.MovesSAN(),
	})

	if !s.Config.Rated {
		st.pub.Publish(events.SubjectGameFinished, finishedEvent(rec, 0))
		st.closeUnrated(rec)
		return true
	}
	st.settleRated(s, rec)
	return true
}

// closeUnrated replaces the provisional record with the final one. Nothing
// is broadcast for it.
func (st *Settler) closeUnrated(rec *domain.GameRecord) {
	if st.repo == nil {
		return
	}
	st.run.Go(func(ctx context.Context) func() {
		if _, err := st.repo.SaveResult(ctx, rec); err != nil {
			metrics.SettlementFailures.WithLabelValues("record").Inc()
			st.logger.Error("game_record_persist_error", zap.String("game_id", rec.GameUUID), zap.Error(err))
		}
		return nil
	})
}

func (st *Settler) settleRated(s *game.Session, rec *domain.GameRecord) {
	changes := st.elo.Changes(rec.Category,
		rec.WhiteID, rec.WhiteRatingBefore,
		rec.BlackID, rec.BlackRatingBefore,
		rec.Result,
	)
	sessionID, gameID, pgn := s.ID, s.GameID, rec.PGN

	if st.repo == nil {
		st.logger.Warn("settlement_without_store", zap.String("game_id", gameID))
		st.pub.Publish(events.SubjectGameFinished, finishedEvent(rec, 0))
		return
	}

	st.run.Go(func(ctx context.Context) func() {
		ratingsErr := st.repo.ApplyRatings(ctx, changes)
		if ratingsErr != nil {
			metrics.SettlementFailures.WithLabelValues("rating").Inc()
			st.logger.Error("rating_persist_error", zap.String("game_id", gameID), zap.Error(ratingsErr))
		} else {
			rec.WhiteRatingAfter = changes[0].After
			rec.BlackRatingAfter = changes[1].After
		}
		id, recordErr := st.repo.SaveResult(ctx, rec)
		if recordErr != nil {
			metrics.SettlementFailures.WithLabelValues("record").Inc()
			st.logger.Error("game_record_persist_error", zap.String("game_id", gameID), zap.Error(recordErr))
		}

		return func() {
			var persisted *int64
			if recordErr == nil {
				persisted = &id
			}
			st.pub.Publish(events.SubjectGameFinished, finishedEvent(rec, id))

			// After a rematch the room is already playing the next round;
			// the old round's follow-ups would arrive after gameRestarted.
			current := st.sameRound(sessionID, gameID)
			if current {
				over := presenter.ToDTOGameOver(sessionID, gameID, game.Outcome{Result: rec.Result, Reason: rec.Reason})
				over.PersistedGameID = persisted
				over.PGN = pgn
				st.pres.Broadcast(sessionID, arenadto.EventGameOver, over)
			}

			if ratingsErr != nil {
				return
			}
			update := presenter.ToDTORatingUpdate(sessionID, gameID, rec.Category, changes)
			if current {
				st.pres.Broadcast(sessionID, arenadto.EventRatingUpdate, update)
			}
			st.pub.Publish(events.SubjectRatingUpdated, events.RatingUpdated{
				SessionID: sessionID,
				GameID:    gameID,
				Category:  string(rec.Category),
				Ratings:   update.NewRatings,
				Deltas:    deltas(changes),
			})
			st.book.Record(changes)
			st.refreshBindings(sessionID, changes)
		}
	})
}

func (st *Settler) sameRound(sessionID, gameID string) bool {
	s, err := st.reg.Get(sessionID)
	return err == nil && s.GameID == gameID
}

// refreshBindings carries the new ratings into a session that is still
// live, so a rematch rates from them even if it started first.
func (st *Settler) refreshBindings(sessionID string, changes []domain.RatingChange) {
	s, err := st.reg.Get(sessionID)
	if err != nil {
		return
	}
	for _, c := range changes {
		if p := s.PlayerByUser(c.UserID); p != nil {
			p.Rating = c.After
		}
	}
}

func recordFor(s *game.Session) *domain.GameRecord {
	rec := &domain.GameRecord{
		GameUUID:    s.GameID,
		SessionID:   s.ID,
		Result:      domain.ResultOngoing,
		TimeControl: s.TimeControl(),
		Category:    s.Category(),
		Rated:       s.Config.Rated,
		MovesUCI:    s.MovesUCI(),
		StartedAt:   s.StartedAt,
	}
	if w := s.PlayerByColor(domain.White); w != nil {
		rec.WhiteID, rec.WhiteName, rec.WhiteRatingBefore = w.UserID, w.Username, w.Rating
	}
	if b := s.PlayerByColor(domain.Black); b != nil {
		rec.BlackID, rec.BlackName, rec.BlackRatingBefore = b.UserID, b.Username, b.Rating
	}
	return rec
}

func finishedEvent(rec *domain.GameRecord, id int64) events.GameFinished {
	return events.GameFinished{
		SessionID:   rec.SessionID,
		GameID:      rec.GameUUID,
		Result:      string(rec.Result),
		Reason:      string(rec.Reason),
		Rated:       rec.Rated,
		PersistedID: id,
		EndedAt:     rec.EndedAt,
	}
}

func deltas(changes []domain.RatingChange) map[string]int {
	out := make(map[string]int, len(changes))
	for _, c := range changes {
		out[c.UserID] = c.Delta()
	}
	return out
}
