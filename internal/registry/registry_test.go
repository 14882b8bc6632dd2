package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/game"
)

func cfg() game.Config {
	return game.Config{TimeControl: domain.MustTimeControl("5+3"), Rated: true}
}

func TestCreateGetRemove(t *testing.T) {
	var removed []string
	r := New(clock.NewFake(time.Unix(0, 0)), WithRemoveHook(func(id string) { removed = append(removed, id) }))
	s, err := r.Create(cfg())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(s.ID) != 8 {
		t.Fatalf("id %q", s.ID)
	}
	if got, err := r.Get(s.ID); err != nil || got != s {
		t.Fatalf("Get: %v %v", got, err)
	}
	r.Remove(s.ID)
	if _, err := r.Get(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if len(removed) != 1 || removed[0] != s.ID {
		t.Fatalf("remove hook: %v", removed)
	}
	r.Remove(s.ID)
	if len(removed) != 1 {
		t.Fatalf("second remove should be a no-op")
	}
}

func TestCreateRetriesOnCollision(t *testing.T) {
	ids := []string{"dup", "dup", "fresh"}
	r := New(clock.NewFake(time.Unix(0, 0)), WithIDFunc(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))
	a, _ := r.Create(cfg())
	b, err := r.Create(cfg())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID != "dup" || b.ID != "fresh" {
		t.Fatalf("ids %q %q", a.ID, b.ID)
	}
}

func TestCapacity(t *testing.T) {
	r := New(clock.NewFake(time.Unix(0, 0)), WithCapacity(1))
	if _, err := r.Create(cfg()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Create(cfg()); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
}

func TestCleanupFiresAndCanBeCancelled(t *testing.T) {
	f := clock.NewFake(time.Unix(0, 0))
	r := New(f, WithCleanupDelay(5*time.Minute))

	keep, _ := r.Create(cfg())
	drop, _ := r.Create(cfg())
	r.ScheduleCleanup(keep)
	r.ScheduleCleanup(drop)

	f.Advance(4 * time.Minute)
	if !r.CancelCleanup(keep) {
		t.Fatalf("cancel should disarm an armed timer")
	}
	f.Advance(2 * time.Minute)

	if _, err := r.Get(keep.ID); err != nil {
		t.Fatalf("cancelled session was removed")
	}
	if _, err := r.Get(drop.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("session not cleaned up")
	}
	if f.Pending() != 0 {
		t.Fatalf("dangling timers: %d", f.Pending())
	}
}

func TestByUser(t *testing.T) {
	r := New(clock.NewFake(time.Unix(0, 0)))
	s, _ := r.Create(cfg())
	if _, err := s.Seat(game.Player{UserID: "u1", Color: domain.White}); err != nil {
		t.Fatal(err)
	}
	_, _ = r.Create(cfg())
	if got := r.ByUser("u1"); len(got) != 1 || got[0] != s {
		t.Fatalf("ByUser = %v", got)
	}
	if r.Len() != 2 {
		t.Fatalf("Len = %d", r.Len())
	}
}

func TestTakeDirtyVisitsOnlyChangedSessions(t *testing.T) {
	f := clock.NewFake(time.Unix(0, 0))
	r := New(f)
	a, _ := r.Create(cfg())
	b, _ := r.Create(cfg())

	seen := drain(r)
	if len(seen) != 2 || !seen[a.ID] || !seen[b.ID] {
		t.Fatalf("new sessions: %v", seen)
	}
	if seen := drain(r); len(seen) != 0 {
		t.Fatalf("nothing changed, got %v", seen)
	}

	if _, err := b.Seat(game.Player{UserID: "u1", Color: domain.White}); err != nil {
		t.Fatalf("Seat: %v", err)
	}
	if seen := drain(r); len(seen) != 1 || !seen[b.ID] {
		t.Fatalf("after seat: %v", seen)
	}

	if _, err := a.Seat(game.Player{UserID: "u2", Color: domain.White}); err != nil {
		t.Fatalf("Seat: %v", err)
	}
	r.Remove(a.ID)
	if seen := drain(r); len(seen) != 0 {
		t.Fatalf("removed session still visited: %v", seen)
	}
	if _, err := a.Seat(game.Player{UserID: "u3", Color: domain.Black}); err != nil {
		t.Fatalf("Seat: %v", err)
	}
	if seen := drain(r); len(seen) != 0 {
		t.Fatalf("detached session marked: %v", seen)
	}
}

func drain(r *Registry) map[string]bool {
	seen := make(map[string]bool)
	r.TakeDirty(func(s *game.Session) { seen[s.ID] = true })
	return seen
}
