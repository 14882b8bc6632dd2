// Package arena owns the process-wide game state. Every inbound frame,
// timer callback and I/O completion runs on one loop goroutine, so the
// registry, the queue and the sessions need no locks.
package arena

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/adapter/presenter"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/events"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/matchmaking"
	"github.com/park285/cheese-arena/internal/metrics"
	"github.com/park285/cheese-arena/internal/negotiation"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rating"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/room"
	"github.com/park285/cheese-arena/internal/settlement"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/internal/worker"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

var ErrStopped = errors.New("coordinator stopped")

// Snapshots is the crash-recovery store for live sessions.
type Snapshots interface {
	Save(ctx context.Context, st game.State) error
	Delete(ctx context.Context, id string, userIDs ...string) error
	List(ctx context.Context) ([]game.State, error)
}

type Config struct {
	DisconnectGrace time.Duration
	ClockBroadcast  time.Duration
	CleanupDelay    time.Duration
	MaxSessions     int
	DefaultRating   int
	InboxSize       int
	Match           matchmaking.Config
}

func (c Config) withDefaults() Config {
	if c.DisconnectGrace <= 0 {
		c.DisconnectGrace = 60 * time.Second
	}
	if c.ClockBroadcast <= 0 {
		c.ClockBroadcast = time.Second
	}
	if c.CleanupDelay <= 0 {
		c.CleanupDelay = 5 * time.Minute
	}
	if c.DefaultRating <= 0 {
		c.DefaultRating = rating.DefaultRating
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 1024
	}
	if c.Match.DefaultRating <= 0 {
		c.Match.DefaultRating = c.DefaultRating
	}
	return c
}

// Deps are the collaborators outside the loop. Only Outbound is required.
type Deps struct {
	Outbound  presenter.Outbound
	Catalog   presenter.Catalog
	Repo      store.Repository
	Snapshots Snapshots
	Publisher events.Publisher
	Elo       *rating.Elo
	// Scheduler defaults to the wall clock. Callbacks are always routed
	// through the loop.
	Scheduler clock.Scheduler
	// Runner defaults to a worker queue started by Run.
	Runner worker.Runner
}

type savedSnapshot struct {
	version uint64
	users   []string
}

type Coordinator struct {
	cfg    Config
	inbox  chan func()
	stop   chan struct{}
	sched  clock.Scheduler
	runner worker.Runner
	queue  *worker.Queue

	reg    *registry.Registry
	roster *roster
	pres   *presenter.Presenter
	settle *settlement.Settler
	rooms  *room.Handler
	match  *matchmaking.Engine
	nego   *negotiation.Handler

	snaps Snapshots
	saved map[string]savedSnapshot
	tick  clock.Timer

	logger *zap.Logger
}

func New(cfg Config, deps Deps) *Coordinator {
	cfg = cfg.withDefaults()
	c := &Coordinator{
		cfg:    cfg,
		inbox:  make(chan func(), cfg.InboxSize),
		stop:   make(chan struct{}),
		snaps:  deps.Snapshots,
		saved:  make(map[string]savedSnapshot),
		logger: obslog.Named("arena"),
	}
	base := deps.Scheduler
	if base == nil {
		base = clock.Real()
	}
	c.sched = clock.Serial(base, c.Post)

	c.runner = deps.Runner
	if c.runner == nil {
		c.queue = worker.NewQueue(1024, 4, 5*time.Second, c.Post)
		c.runner = c.queue
	}

	c.reg = registry.New(c.sched,
		registry.WithCapacity(cfg.MaxSessions),
		registry.WithCleanupDelay(cfg.CleanupDelay),
		registry.WithRemoveHook(c.sessionRemoved),
	)
	c.roster = newRoster(deps.Outbound)
	c.pres = presenter.New(c.roster, deps.Catalog)

	opts := []settlement.Option{settlement.WithRunner(c.runner)}
	if deps.Publisher != nil {
		opts = append(opts, settlement.WithPublisher(deps.Publisher))
	}
	if deps.Elo != nil {
		opts = append(opts, settlement.WithElo(*deps.Elo))
	}
	repo := deps.Repo
	if repo == nil {
		repo = store.NewMemory()
	}
	c.settle = settlement.New(c.reg, c.pres, repo, opts...)
	c.rooms = room.New(c.reg, c.settle, c.pres, c.sched, cfg.DefaultRating)
	c.match = matchmaking.New(cfg.Match, c.reg, c.settle, c.pres, c.sched)
	c.nego = negotiation.New(c.reg, c.settle, c.pres, c.sched)
	return c
}

// Registry exposes the session registry. Only touch it from the loop.
func (c *Coordinator) Registry() *registry.Registry { return c.reg }

// Post queues fn onto the loop. It blocks while the inbox is full and
// drops fn once the coordinator has stopped.
func (c *Coordinator) Post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.stop:
	}
}

// Run drives the loop until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	var workersDone chan struct{}
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if c.queue != nil {
		workersDone = make(chan struct{})
		go func() {
			c.queue.Run(workerCtx)
			close(workersDone)
		}()
	}

	c.exec(func() {
		c.match.Schedule()
		c.armTick()
	})
	c.logger.Info("arena_loop_start", zap.Int("sessions", c.reg.Len()))

	for {
		select {
		case fn := <-c.inbox:
			c.exec(fn)
		case <-ctx.Done():
			c.shutdown()
			close(c.stop)
			stopWorkers()
			if workersDone != nil {
				select {
				case <-workersDone:
				case <-time.After(10 * time.Second):
					c.logger.Warn("arena_worker_drain_timeout")
				}
			}
			c.logger.Info("arena_loop_stop")
			return nil
		}
	}
}

// Flush runs every queued callback on the caller's goroutine. It is for
// driving the coordinator without Run, as tests do.
func (c *Coordinator) Flush() int {
	n := 0
	for {
		select {
		case fn := <-c.inbox:
			c.exec(fn)
			n++
		default:
			return n
		}
	}
}

func (c *Coordinator) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("arena_loop_panic", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
	c.flushSnapshots()
	metrics.LiveSessions.Set(float64(c.reg.Len()))
}

// OnConnect, OnMessage and OnDisconnect are called from socket goroutines.

func (c *Coordinator) OnConnect(a domain.Actor) {
	c.Post(func() {
		c.logger.Debug("conn_open", zap.String("conn_id", a.ConnID), zap.String("user_id", a.UserID))
	})
}

func (c *Coordinator) OnMessage(a domain.Actor, env arenadto.Envelope) {
	c.Post(func() { c.Dispatch(a, env) })
}

func (c *Coordinator) OnDisconnect(a domain.Actor) {
	c.Post(func() { c.Disconnect(a) })
}

// Sessions lists live sessions for the admin API.
func (c *Coordinator) Sessions(ctx context.Context) ([]arenadto.SessionSummary, error) {
	out := make(chan []arenadto.SessionSummary, 1)
	fn := func() {
		list := make([]arenadto.SessionSummary, 0, c.reg.Len())
		c.reg.Each(func(s *game.Session) {
			list = append(list, presenter.ToDTOSessionSummary(s))
		})
		out <- list
	}
	select {
	case <-c.stop:
		return nil, ErrStopped
	default:
	}
	select {
	case c.inbox <- fn:
	case <-c.stop:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case list := <-out:
		return list, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// shutdown stops periodic work and writes a final snapshot of every live
// session so a restart can pick them up.
func (c *Coordinator) shutdown() {
	c.match.Stop()
	if c.tick != nil {
		c.tick.Stop()
		c.tick = nil
	}
	if c.snaps == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.reg.Each(func(s *game.Session) {
		if err := c.snaps.Save(ctx, s.Export()); err != nil && !errors.Is(err, store.ErrStaleSnapshot) {
			c.logger.Warn("snapshot_final_save_error", zap.String("session_id", s.ID), zap.Error(err))
		}
	})
}
