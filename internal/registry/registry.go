package registry

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/obslog"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrCapacity        = errors.New("too many live sessions")
	ErrAlreadyPlaying  = errors.New("already playing")
)

const defaultCleanupDelay = 5 * time.Minute

// Registry owns every live session by id. Like the sessions it holds, it
// is only touched from the event loop.
type Registry struct {
	sessions map[string]*game.Session
	dirty    map[string]struct{}
	sched    clock.Scheduler
	delay    time.Duration
	max      int
	newID    func() string
	onRemove []func(id string)
	logger   *zap.Logger
}

type Option func(*Registry)

func WithCleanupDelay(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.delay = d
		}
	}
}

func WithCapacity(n int) Option {
	return func(r *Registry) { r.max = n }
}

func WithIDFunc(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithRemoveHook runs fn after a session leaves the registry.
func WithRemoveHook(fn func(id string)) Option {
	return func(r *Registry) { r.onRemove = append(r.onRemove, fn) }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

func New(sched clock.Scheduler, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*game.Session),
		dirty:    make(map[string]struct{}),
		sched:    sched,
		delay:    defaultCleanupDelay,
		newID:    shortID,
		logger:   obslog.L(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a fresh id and registers a waiting session.
func (r *Registry) Create(cfg game.Config) (*game.Session, error) {
	if r.max > 0 && len(r.sessions) >= r.max {
		return nil, ErrCapacity
	}
	var id string
	for i := 0; i < 8; i++ {
		cand := r.newID()
		if _, taken := r.sessions[cand]; !taken {
			id = cand
			break
		}
	}
	if id == "" {
		return nil, fmt.Errorf("allocate session id: exhausted retries")
	}
	s := game.New(id, cfg, r.sched.Now())
	r.track(s)
	r.logger.Info("session_create",
		zap.String("session_id", id),
		zap.String("time_control", s.TimeControl()),
		zap.Bool("rated", cfg.Rated),
	)
	return s, nil
}

// Put registers an existing session, used when recovering from snapshots.
func (r *Registry) Put(s *game.Session) error {
	if _, exists := r.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already registered", s.ID)
	}
	r.track(s)
	return nil
}

func (r *Registry) track(s *game.Session) {
	r.sessions[s.ID] = s
	r.dirty[s.ID] = struct{}{}
	s.OnChange(r.markDirty)
}

func (r *Registry) markDirty(id string) { r.dirty[id] = struct{}{} }

func (r *Registry) Get(id string) (*game.Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove drops the session and disarms anything still scheduled for it.
func (r *Registry) Remove(id string) {
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	s.DisarmCleanup()
	s.DisarmAllGrace()
	delete(r.sessions, id)
	delete(r.dirty, id)
	s.OnChange(nil)
	r.logger.Info("session_remove", zap.String("session_id", id), zap.String("status", string(s.Status())))
	for _, fn := range r.onRemove {
		fn(id)
	}
}

// ScheduleCleanup arms the deferred deletion of a finished session.
func (r *Registry) ScheduleCleanup(s *game.Session) {
	id := s.ID
	s.ArmCleanup(r.sched.After(r.delay, func() {
		cur, ok := r.sessions[id]
		if !ok || cur != s {
			return
		}
		r.Remove(id)
	}))
}

// CancelCleanup disarms a pending cleanup, e.g. on an accepted rematch.
func (r *Registry) CancelCleanup(s *game.Session) bool {
	return s.DisarmCleanup()
}

func (r *Registry) Len() int { return len(r.sessions) }

// Each visits sessions in no particular order.
func (r *Registry) Each(fn func(*game.Session)) {
	for _, s := range r.sessions {
		fn(s)
	}
}

// TakeDirty visits the sessions registered or mutated since the previous
// call and clears the set.
func (r *Registry) TakeDirty(fn func(*game.Session)) {
	for id := range r.dirty {
		delete(r.dirty, id)
		if s, ok := r.sessions[id]; ok {
			fn(s)
		}
	}
}

// ByUser lists sessions where userID holds a seat.
func (r *Registry) ByUser(userID string) []*game.Session {
	var out []*game.Session
	for _, s := range r.sessions {
		if s.PlayerByUser(userID) != nil {
			out = append(out, s)
		}
	}
	return out
}

// Playing returns the game userID is seated in that is still in progress.
// A user holds at most one.
func (r *Registry) Playing(userID string) (*game.Session, bool) {
	for _, s := range r.ByUser(userID) {
		if s.Status() == game.StatusPlaying {
			return s, true
		}
	}
	return nil, false
}

// shortID returns 8 characters from an unambiguous alphabet.
func shortID() string {
	const letters = "abcdefghjkmnpqrstuvwxyz23456789"
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano()%0xffffffff)
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}
