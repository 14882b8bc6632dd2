package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-arena/internal/domain"
)

func record(uuid string) *domain.GameRecord {
	return &domain.GameRecord{
		GameUUID:    uuid,
		SessionID:   "abcd2345",
		WhiteID:     "u1",
		BlackID:     "u2",
		TimeControl: "5+3",
		Category:    domain.Blitz,
		Rated:       true,
		MovesUCI:    []string{"e2e4"},
		StartedAt:   time.Unix(1_700_000_000, 0),
	}
}

func TestProvisionalThenFinalKeepsID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.InsertProvisional(ctx, record("g1"))
	require.NoError(t, err)
	again, err := m.InsertProvisional(ctx, record("g1"))
	require.NoError(t, err)
	assert.Equal(t, id, again)

	prov, err := m.GetGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultOngoing, prov.Result)

	final := record("g1")
	final.Result = domain.ResultWhiteWins
	final.Reason = domain.ReasonResignation
	final.PGN = "1. e4 1-0"
	final.EndedAt = time.Unix(1_700_000_100, 0)
	saved, err := m.SaveResult(ctx, final)
	require.NoError(t, err)
	assert.Equal(t, id, saved)

	got, err := m.GetGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultWhiteWins, got.Result)
	assert.Equal(t, "1. e4 1-0", got.PGN)

	recent, err := m.RecentGames(ctx, "u2", 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestGetGameMissing(t *testing.T) {
	_, err := NewMemory().GetGame(context.Background(), 42)
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestInvalidRecordRejected(t *testing.T) {
	_, err := NewMemory().SaveResult(context.Background(), &domain.GameRecord{})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestApplyRatingsAccumulates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetRating("u1", domain.Blitz, 1500)

	require.NoError(t, m.ApplyRatings(ctx, []domain.RatingChange{
		{UserID: "u1", Category: domain.Blitz, Before: 1500, After: 1488, Score: 0},
		{UserID: "u2", Category: domain.Blitz, Before: 1200, After: 1212, Score: 1},
	}))

	r, err := m.GetRatings(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[domain.Category]int{domain.Blitz: 1488}, r)

	p, err := m.GetProfile(ctx, "u2", domain.Blitz)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1, p.Wins)
	assert.Equal(t, 1212, p.Rating)

	none, err := m.GetProfile(ctx, "u3", domain.Blitz)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestApplyRatingsMovesByDelta(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetRating("u1", domain.Blitz, 1260)

	// Computed from 1250, before the previous game's +10 was known.
	require.NoError(t, m.ApplyRatings(ctx, []domain.RatingChange{
		{UserID: "u1", Category: domain.Blitz, Before: 1250, After: 1236, Score: 0},
	}))
	r, err := m.GetRatings(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1246, r[domain.Blitz])
}

func TestFailWith(t *testing.T) {
	boom := errors.New("down")
	m := NewMemory()
	m.FailWith(boom, nil)
	_, err := m.SaveResult(context.Background(), record("g2"))
	assert.ErrorIs(t, err, boom)
}
