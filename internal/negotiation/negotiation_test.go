package negotiation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-arena/internal/adapter/presenter"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/settlement"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/internal/worker"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

var (
	white = domain.Actor{ConnID: "cw", Identity: domain.Identity{UserID: "uw", Username: "alice"}}
	black = domain.Actor{ConnID: "cb", Identity: domain.Identity{UserID: "ub", Username: "bob"}}
	watch = domain.Actor{ConnID: "cs", Identity: domain.Identity{UserID: "us", Username: "eve"}}
)

type fixture struct {
	fake *clock.Fake
	reg  *registry.Registry
	rec  *presenter.Recorder
	repo *store.Memory
	h    *Handler
	s    *game.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := clock.NewFake(time.Unix(1_700_000_000, 0))
	reg := registry.New(f, registry.WithCleanupDelay(5*time.Minute))
	rec := presenter.NewRecorder()
	pres := presenter.New(rec, nil)
	repo := store.NewMemory()
	st := settlement.New(reg, pres, repo, settlement.WithRunner(worker.Inline{}))

	s, err := reg.Create(game.Config{TimeControl: domain.MustTimeControl("5+3"), Rated: true})
	require.NoError(t, err)
	for _, p := range []game.Player{
		{UserID: "uw", Username: "alice", ConnID: "cw", Color: domain.White, Rating: 1500, Connected: true},
		{UserID: "ub", Username: "bob", ConnID: "cb", Color: domain.Black, Rating: 1500, Connected: true},
	} {
		_, err := s.Seat(p)
		require.NoError(t, err)
		pres.Join(s.ID, p.ConnID)
	}
	pres.Join(s.ID, watch.ConnID)
	require.NoError(t, st.Begin(s, f.Now()))
	rec.Reset()
	return &fixture{fake: f, reg: reg, rec: rec, repo: repo, h: New(reg, st, pres, f), s: s}
}

// Scenario D.
func TestBlackResigns(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.h.Resign(black, fx.s.ID))

	require.True(t, fx.s.IsFinished())
	assert.Equal(t, domain.ResultWhiteWins, fx.s.Outcome().Result)
	assert.Equal(t, domain.ReasonResignation, fx.s.Outcome().Reason)
	assert.Equal(t, 2, fx.rec.Count("cs", arenadto.EventGameOver), "lightweight and rich gameOver")

	assert.ErrorIs(t, fx.h.Resign(white, fx.s.ID), game.ErrNotPlaying)
}

func TestResignRejectsSpectatorAndUnknownSession(t *testing.T) {
	fx := newFixture(t)
	assert.ErrorIs(t, fx.h.Resign(watch, fx.s.ID), game.ErrNotAPlayer)
	assert.ErrorIs(t, fx.h.Resign(white, "nope"), registry.ErrSessionNotFound)
	assert.False(t, fx.s.IsFinished())
}

// Scenario E.
func TestDrawAgreement(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.h.OfferDraw(white, fx.s.ID))
	assert.Equal(t, domain.White, fx.s.DrawOffer())
	msg, ok := fx.rec.Last("cb", arenadto.EventDrawOffered)
	require.True(t, ok)
	assert.Equal(t, arenadto.Offer{SessionID: fx.s.ID, By: "w"}, msg.Payload)

	assert.ErrorIs(t, fx.h.AcceptDraw(white, fx.s.ID), game.ErrOwnOffer, "offerer cannot accept")
	assert.ErrorIs(t, fx.h.OfferDraw(black, fx.s.ID), game.ErrOfferPending)

	require.NoError(t, fx.h.AcceptDraw(black, fx.s.ID))
	assert.Equal(t, domain.ResultDraw, fx.s.Outcome().Result)
	assert.Equal(t, domain.ReasonAgreement, fx.s.Outcome().Reason)
	assert.Equal(t, domain.NoColor, fx.s.DrawOffer())
}

func TestDeclineDrawNotifiesOffererOnly(t *testing.T) {
	fx := newFixture(t)
	assert.ErrorIs(t, fx.h.DeclineDraw(black, fx.s.ID), game.ErrNoOffer)

	require.NoError(t, fx.h.OfferDraw(black, fx.s.ID))
	require.NoError(t, fx.h.DeclineDraw(white, fx.s.ID))
	assert.Equal(t, domain.NoColor, fx.s.DrawOffer())
	assert.Equal(t, 1, fx.rec.Count("cb", arenadto.EventDrawDeclined))
	assert.Equal(t, 0, fx.rec.Count("cw", arenadto.EventDrawDeclined))
	assert.Equal(t, 0, fx.rec.Count("cs", arenadto.EventDrawDeclined))
	assert.False(t, fx.s.IsFinished())
}

// Scenario F.
func TestRematchSwapsColorsAndResetsClocks(t *testing.T) {
	fx := newFixture(t)
	fx.fake.Advance(30 * time.Second)
	_, err := fx.s.MakeMove("uw", "e2", "e4", "", fx.fake.Now())
	require.NoError(t, err)
	require.NoError(t, fx.h.Resign(white, fx.s.ID))
	firstGame := fx.s.GameID
	require.Equal(t, 1, fx.fake.Pending(), "cleanup armed")

	_, err = fx.h.AcceptRematch(black, fx.s.ID)
	assert.ErrorIs(t, err, game.ErrNoOffer)
	assert.Equal(t, 1, fx.fake.Pending(), "failed accept leaves cleanup armed")

	require.NoError(t, fx.h.OfferRematch(white, fx.s.ID))
	_, err = fx.h.AcceptRematch(white, fx.s.ID)
	assert.ErrorIs(t, err, game.ErrOwnOffer)

	id := fx.s.ID
	s, err := fx.h.AcceptRematch(black, id)
	require.NoError(t, err)
	assert.Equal(t, id, s.ID)
	assert.Equal(t, game.StatusPlaying, s.Status())
	assert.False(t, s.IsFinished())
	assert.Equal(t, domain.Black, s.PlayerByUser("uw").Color)
	assert.Equal(t, domain.White, s.PlayerByUser("ub").Color)
	assert.Equal(t, clock.Clocks{White: 300, Black: 300}, s.Clocks())
	assert.Empty(t, s.MovesSAN())
	assert.Equal(t, domain.NoColor, s.RematchOffer())
	assert.Equal(t, 2, s.Round)
	assert.NotEqual(t, firstGame, s.GameID)
	assert.Equal(t, 0, fx.fake.Pending(), "cleanup disarmed")

	msg, ok := fx.rec.Last("cs", arenadto.EventGameRestarted)
	require.True(t, ok)
	state := msg.Payload.(arenadto.GameState)
	assert.Equal(t, 2, state.Round)
	assert.Equal(t, "w", state.Turn)

	prov, ok := fx.repo.GameByUUID(s.GameID)
	require.True(t, ok)
	assert.Equal(t, domain.ResultOngoing, prov.Result)
	assert.Equal(t, "ub", prov.WhiteID)

	// Cleanup no longer removes the session.
	fx.fake.Advance(10 * time.Minute)
	_, err = fx.reg.Get(id)
	assert.NoError(t, err)
}

func TestRematchOnlyAfterFinish(t *testing.T) {
	fx := newFixture(t)
	assert.ErrorIs(t, fx.h.OfferRematch(white, fx.s.ID), game.ErrNotFinished)

	require.NoError(t, fx.h.Resign(white, fx.s.ID))
	require.NoError(t, fx.h.OfferRematch(white, fx.s.ID))
	assert.ErrorIs(t, fx.h.OfferRematch(black, fx.s.ID), game.ErrOfferPending)
	require.NoError(t, fx.h.DeclineRematch(black, fx.s.ID))
	assert.Equal(t, 1, fx.rec.Count("cw", arenadto.EventRematchDeclined))
	assert.Equal(t, domain.NoColor, fx.s.RematchOffer())
	assert.Equal(t, 1, fx.rec.Count("cb", arenadto.EventRematchOffered))
}
