// Package admin is the operations HTTP server: health, Prometheus metrics
// and read-only lookups of persisted games, ratings and live sessions.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/adapter/presenter"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/metrics"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// SessionLister reads the live registry. The coordinator answers it from
// its own loop.
type SessionLister interface {
	Sessions(ctx context.Context) ([]arenadto.SessionSummary, error)
}

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
	requestTimeout     = 3 * time.Second
)

type Server struct {
	repo    store.Repository
	live    SessionLister
	metrics fasthttp.RequestHandler
	logger  *zap.Logger
}

func New(repo store.Repository, live SessionLister) *Server {
	return &Server{
		repo:    repo,
		live:    live,
		metrics: fasthttpadaptor.NewFastHTTPHandler(metrics.Handler()),
		logger:  obslog.Named("admin"),
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &fasthttp.Server{
		Handler:      s.Handle,
		Name:         "cheese-arena-admin",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(addr) }()
	s.logger.Info("admin_listen", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.ShutdownWithContext(shutdownCtx)
}

// Handle routes a request.
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() && !ctx.IsHead() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
		return
	}
	path := string(ctx.Path())
	switch {
	case path == "/healthz":
		ctx.SetContentType("text/plain; charset=utf-8")
		ctx.SetBodyString("ok")
	case path == "/metrics":
		s.metrics(ctx)
	case path == "/api/sessions":
		s.sessions(ctx)
	case strings.HasPrefix(path, "/api/games/"):
		s.game(ctx, strings.TrimPrefix(path, "/api/games/"))
	case strings.HasPrefix(path, "/api/users/"):
		s.user(ctx, strings.Split(strings.TrimPrefix(path, "/api/users/"), "/"))
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

func (s *Server) sessions(ctx *fasthttp.RequestCtx) {
	if s.live == nil {
		writeJSON(ctx, fasthttp.StatusOK, arenadto.SessionList{Sessions: []arenadto.SessionSummary{}})
		return
	}
	c, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	list, err := s.live.Sessions(c)
	if err != nil {
		s.fail(ctx, "sessions", err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, arenadto.SessionList{Count: len(list), Sessions: list})
}

func (s *Server) game(ctx *fasthttp.RequestCtx, raw string) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid game id")
		return
	}
	c, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	rec, err := s.repo.GetGame(c, id)
	if errors.Is(err, store.ErrGameNotFound) {
		writeError(ctx, fasthttp.StatusNotFound, "game not found")
		return
	}
	if err != nil {
		s.fail(ctx, "game", err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, presenter.ToDTOGameRecord(rec))
}

// user serves /api/users/{id}/games and /api/users/{id}/ratings.
func (s *Server) user(ctx *fasthttp.RequestCtx, parts []string) {
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
		writeError(ctx, fasthttp.StatusNotFound, "not found")
		return
	}
	userID := parts[0]
	c, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch parts[1] {
	case "games":
		limit := ctx.QueryArgs().GetUintOrZero("limit")
		if limit <= 0 {
			limit = defaultRecentLimit
		}
		if limit > maxRecentLimit {
			limit = maxRecentLimit
		}
		recs, err := s.repo.RecentGames(c, userID, limit)
		if err != nil {
			s.fail(ctx, "recent_games", err)
			return
		}
		out := make([]*arenadto.GameRecord, 0, len(recs))
		for _, r := range recs {
			out = append(out, presenter.ToDTOGameRecord(r))
		}
		writeJSON(ctx, fasthttp.StatusOK, out)

	case "ratings":
		out := make([]arenadto.RatingProfile, 0, len(domain.Categories))
		for _, cat := range domain.Categories {
			p, err := s.repo.GetProfile(c, userID, cat)
			if err != nil {
				s.fail(ctx, "ratings", err)
				return
			}
			if p != nil {
				out = append(out, presenter.ToDTORatingProfile(p))
			}
		}
		writeJSON(ctx, fasthttp.StatusOK, out)

	default:
		writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

func (s *Server) fail(ctx *fasthttp.RequestCtx, op string, err error) {
	s.logger.Error("admin_request_error", zap.String("op", op), zap.Error(err))
	writeError(ctx, fasthttp.StatusInternalServerError, "internal error")
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.Error("encode error", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}
