package admin

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

type lister struct {
	list []arenadto.SessionSummary
	err  error
}

func (l lister) Sessions(context.Context) ([]arenadto.SessionSummary, error) { return l.list, l.err }

func do(s *Server, method, uri string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	s.Handle(&ctx)
	return &ctx
}

func seeded(t *testing.T) (*store.Memory, int64) {
	t.Helper()
	repo := store.NewMemory()
	id, err := repo.SaveResult(context.Background(), &domain.GameRecord{
		GameUUID:    "g-1",
		SessionID:   "s1",
		WhiteID:     "u1",
		WhiteName:   "alice",
		BlackID:     "u2",
		BlackName:   "bob",
		Result:      domain.ResultWhiteWins,
		Reason:      domain.ReasonResignation,
		PGN:         "[Event \"Rated blitz game\"]\n\n1. e4 1-0",
		TimeControl: "5+3",
		Category:    domain.Blitz,
		Rated:       true,
		EndedAt:     time.Unix(1_700_000_000, 0),
	})
	require.NoError(t, err)
	repo.SetRating("u1", domain.Blitz, 1512)
	return repo, id
}

func TestHealthAndMetrics(t *testing.T) {
	s := New(store.NewMemory(), nil)
	ctx := do(s, "GET", "/healthz")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "ok", string(ctx.Response.Body()))

	ctx = do(s, "GET", "/metrics")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "arena_live_sessions")

	assert.Equal(t, fasthttp.StatusMethodNotAllowed, do(s, "POST", "/healthz").Response.StatusCode())
	assert.Equal(t, fasthttp.StatusNotFound, do(s, "GET", "/nope").Response.StatusCode())
}

func TestGameLookup(t *testing.T) {
	repo, id := seeded(t)
	s := New(repo, nil)

	ctx := do(s, "GET", "/api/games/"+strconv.FormatInt(id, 10))
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var rec arenadto.GameRecord
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &rec))
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "1-0", rec.Result)
	assert.True(t, strings.HasPrefix(rec.PGN, "[Event"))

	assert.Equal(t, fasthttp.StatusNotFound, do(s, "GET", "/api/games/999").Response.StatusCode())
	assert.Equal(t, fasthttp.StatusBadRequest, do(s, "GET", "/api/games/abc").Response.StatusCode())
}

func TestUserEndpoints(t *testing.T) {
	repo, _ := seeded(t)
	s := New(repo, nil)

	ctx := do(s, "GET", "/api/users/u2/games?limit=5")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var games []arenadto.GameRecord
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &games))
	require.Len(t, games, 1)
	assert.Equal(t, "g-1", games[0].GameUUID)

	ctx = do(s, "GET", "/api/users/u1/ratings")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var profiles []arenadto.RatingProfile
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &profiles))
	require.Len(t, profiles, 1)
	assert.Equal(t, 1512, profiles[0].Rating)
	assert.Equal(t, "blitz", profiles[0].Category)

	assert.Equal(t, fasthttp.StatusNotFound, do(s, "GET", "/api/users/u1/friends").Response.StatusCode())
}

func TestSessions(t *testing.T) {
	s := New(store.NewMemory(), lister{list: []arenadto.SessionSummary{{SessionID: "abc", Status: "playing"}}})
	ctx := do(s, "GET", "/api/sessions")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var out arenadto.SessionList
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out))
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, "abc", out.Sessions[0].SessionID)

	s = New(store.NewMemory(), lister{err: errors.New("loop stopped")})
	assert.Equal(t, fasthttp.StatusInternalServerError, do(s, "GET", "/api/sessions").Response.StatusCode())
}
