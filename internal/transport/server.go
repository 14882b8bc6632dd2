package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// Identity headers set by the fronting gateway. Browsers cannot set
// headers on a websocket handshake, so the query string is accepted too.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUsername = "X-Username"
)

var ErrNoIdentity = errors.New("missing user identity")

// Inbound receives connection lifecycle and frames. Calls come from the
// socket goroutines; implementations hand them to their own loop.
type Inbound interface {
	OnConnect(a domain.Actor)
	OnMessage(a domain.Actor, env arenadto.Envelope)
	OnDisconnect(a domain.Actor)
}

// RatingLookup resolves a user's ratings during the handshake.
type RatingLookup func(ctx context.Context, userID string) (map[domain.Category]int, error)

type Options struct {
	Path           string
	SendBuffer     int
	ReadLimit      int64
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	LookupTimeout  time.Duration
	OriginPatterns []string
	Lookup         RatingLookup
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = "/ws"
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 8 << 10
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = 2 * time.Second
	}
	return o
}

type Server struct {
	hub    *Hub
	in     Inbound
	opts   Options
	logger *zap.Logger
}

func NewServer(hub *Hub, in Inbound, opts Options) *Server {
	return &Server{hub: hub, in: in, opts: opts.withDefaults(), logger: obslog.Named("ws")}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.Path, s.serveWS)
	return mux
}

// Run serves until ctx is cancelled, then closes every socket and shuts
// the listener down.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("ws_listen", zap.String("addr", addr), zap.String("path", s.opts.Path))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	id, err := identify(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if s.opts.Lookup != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.LookupTimeout)
		ratings, lerr := s.opts.Lookup(ctx, id.UserID)
		cancel()
		if lerr != nil {
			s.logger.Warn("rating_lookup_error", zap.String("user_id", id.UserID), zap.Error(lerr))
		} else {
			id.Ratings = ratings
		}
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.opts.OriginPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Warn("ws_accept_error", zap.Error(err))
		return
	}
	ws.SetReadLimit(s.opts.ReadLimit)

	c := &conn{
		actor: domain.Actor{ConnID: uuid.NewString(), Identity: id},
		ws:    ws,
		send:  make(chan arenadto.Message, s.opts.SendBuffer),
		done:  make(chan struct{}),
	}
	s.hub.register(c)
	s.logger.Info("ws_connect", zap.String("conn_id", c.id()), zap.String("user_id", id.UserID))
	s.in.OnConnect(c.actor)

	ctx, cancel := context.WithCancel(r.Context())
	go s.writePump(ctx, c)
	s.readLoop(ctx, c)
	cancel()

	s.hub.unregister(c)
	c.close(websocket.StatusNormalClosure, "")
	s.in.OnDisconnect(c.actor)
	s.logger.Info("ws_disconnect", zap.String("conn_id", c.id()), zap.String("user_id", id.UserID))
}

func (s *Server) readLoop(ctx context.Context, c *conn) {
	for {
		var env arenadto.Envelope
		if err := wsjson.Read(ctx, c.ws, &env); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				s.logger.Debug("ws_read_error", zap.String("conn_id", c.id()), zap.Error(err))
			}
			return
		}
		s.in.OnMessage(c.actor, env)
	}
}

func (s *Server) writePump(ctx context.Context, c *conn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
			err := wsjson.Write(wctx, c.ws, msg)
			cancel()
			if err != nil {
				s.logger.Debug("ws_write_error", zap.String("conn_id", c.id()), zap.Error(err))
				c.close(websocket.StatusGoingAway, "write failed")
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.ws.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				c.close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func identify(r *http.Request) (domain.Identity, error) {
	q := r.URL.Query()
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		userID = strings.TrimSpace(q.Get("userId"))
	}
	if userID == "" {
		return domain.Identity{}, ErrNoIdentity
	}
	name := strings.TrimSpace(r.Header.Get(HeaderUsername))
	if name == "" {
		name = strings.TrimSpace(q.Get("username"))
	}
	if name == "" {
		name = userID
	}
	return domain.Identity{UserID: userID, Username: name}, nil
}
