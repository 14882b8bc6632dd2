package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a disarmable deferred callback.
type Timer interface {
	// Stop reports whether the call prevented the callback from running.
	Stop() bool
}

// Scheduler creates timers and supplies the current time.
type Scheduler interface {
	Now() time.Time
	After(d time.Duration, fn func()) Timer
}

type realScheduler struct{}

// Real schedules on the runtime timer wheel. Callbacks run on their own
// goroutine; wrap with Serial to bring them back onto an event loop.
func Real() Scheduler { return realScheduler{} }

func (realScheduler) Now() time.Time { return time.Now() }

func (realScheduler) After(d time.Duration, fn func()) Timer { return time.AfterFunc(d, fn) }

type serial struct {
	inner Scheduler
	post  func(func())
}

// Serial wraps s so every callback is handed to post instead of being run
// directly.
func Serial(s Scheduler, post func(func())) Scheduler {
	return &serial{inner: s, post: post}
}

func (s *serial) Now() time.Time { return s.inner.Now() }

func (s *serial) After(d time.Duration, fn func()) Timer {
	t := &serialTimer{}
	t.inner = s.inner.After(d, func() {
		s.post(func() {
			// Stop may have raced with the post; honour it on the loop.
			if t.stopped() {
				return
			}
			fn()
		})
	})
	return t
}

type serialTimer struct {
	mu    sync.Mutex
	inner Timer
	done  bool
}

func (t *serialTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.inner.Stop()
	return true
}

func (t *serialTimer) stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return true
	}
	t.done = true
	return false
}

// Fake is a manual scheduler for tests. Time only moves on Advance.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func NewFake(start time.Time) *Fake { return &Fake{now: start} }

type fakeTimer struct {
	at    time.Time
	fn    func()
	fired bool
	dead  bool
}

func (t *fakeTimer) Stop() bool {
	if t.fired || t.dead {
		return false
	}
	t.dead = true
	return true
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{at: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves time forward and fires due timers in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	var due []*fakeTimer
	var keep []*fakeTimer
	for _, t := range f.timers {
		switch {
		case t.dead || t.fired:
		case !t.at.After(now):
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	f.timers = keep
	f.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		if t.dead {
			continue
		}
		t.fired = true
		t.fn()
	}
}

// Pending counts armed timers that have neither fired nor been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.dead && !t.fired {
			n++
		}
	}
	return n
}
