package presenter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

func playing(t *testing.T, now time.Time) *game.Session {
	t.Helper()
	s := game.New("abcd2345", game.Config{TimeControl: domain.MustTimeControl("3+2"), Rated: true}, now)
	_, err := s.Seat(game.Player{UserID: "u1", Username: "alice", ConnID: "c1", Color: domain.White, Rating: 1500, Connected: true})
	require.NoError(t, err)
	_, err = s.Seat(game.Player{UserID: "u2", Username: "bob", ConnID: "c2", Color: domain.Black, Rating: 1480, Connected: true})
	require.NoError(t, err)
	require.NoError(t, s.Start(now))
	return s
}

func TestToDTOStateShowsDisplayClocks(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	s := playing(t, start)

	st := ToDTOState(s, start.Add(7*time.Second))
	assert.Equal(t, "playing", st.Status)
	assert.Equal(t, "w", st.Turn)
	assert.InDelta(t, 173.0, st.Clocks.White, 1e-9)
	assert.InDelta(t, 180.0, st.Clocks.Black, 1e-9)
	assert.Equal(t, "blitz", st.Config.Category)
	assert.Len(t, st.Players, 2)
	assert.Empty(t, st.MovesSAN)
	assert.NotNil(t, st.MovesSAN)
}

func TestToDTOMove(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	s := playing(t, start)
	res, err := s.MakeMove("u1", "e2", "e4", "", start.Add(time.Second))
	require.NoError(t, err)

	mv := ToDTOMove(s, res)
	assert.Equal(t, "e4", mv.SAN)
	assert.Equal(t, "e2e4", mv.UCI)
	assert.Equal(t, "b", mv.Turn)
	assert.Equal(t, "c1", mv.MoverConnectionID)
	assert.InDelta(t, 181.0, mv.Clocks.White, 1e-9)
}

func TestRatingUpdateCarriesNewRatings(t *testing.T) {
	up := ToDTORatingUpdate("s", "g", domain.Blitz, []domain.RatingChange{
		{UserID: "u1", Before: 1500, After: 1511},
		{UserID: "u2", Before: 1480, After: 1469},
	})
	assert.Equal(t, 11, up.Players[0].Delta)
	assert.Equal(t, map[string]int{"u1": 1511, "u2": 1469}, up.NewRatings)
}

func TestRejectGoesToRequesterOnly(t *testing.T) {
	rec := NewRecorder()
	rec.Subscribe("room", "c1")
	rec.Subscribe("room", "c2")
	p := New(rec, nil)

	p.Reject("c1", arenadto.TypeMakeMove, arenadto.CodeOutOfTurn, nil)
	p.Broadcast("room", arenadto.EventClock, nil)

	assert.Equal(t, []string{arenadto.EventError, arenadto.EventClock}, rec.Types("c1"))
	assert.Equal(t, []string{arenadto.EventClock}, rec.Types("c2"))
	msg, ok := rec.Last("c1", arenadto.EventError)
	require.True(t, ok)
	derr := msg.Payload.(arenadto.DomainError)
	assert.Equal(t, arenadto.CodeOutOfTurn, derr.Code)
	assert.Equal(t, arenadto.TypeMakeMove, derr.Op)
}
