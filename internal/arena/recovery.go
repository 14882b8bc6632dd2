package arena

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/store"
)

// Recover rebuilds the registry from stored snapshots. Call it before Run.
// Restored players have no connection; they return through joinRoom and
// get the usual grace period to do so.
func (c *Coordinator) Recover(ctx context.Context) (int, error) {
	if c.snaps == nil {
		return 0, nil
	}
	states, err := c.snaps.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, st := range states {
		s, err := game.Restore(st)
		if err != nil {
			c.logger.Warn("snapshot_restore_error", zap.String("session_id", st.ID), zap.Error(err))
			continue
		}
		if err := c.reg.Put(s); err != nil {
			c.logger.Warn("snapshot_restore_error", zap.String("session_id", st.ID), zap.Error(err))
			continue
		}
		c.saved[s.ID] = savedSnapshot{version: s.Version, users: userIDs(s)}
		switch s.Status() {
		case game.StatusFinished:
			c.reg.ScheduleCleanup(s)
		default:
			for _, p := range s.Players() {
				c.armGrace(s, p.Color)
			}
		}
		n++
	}
	c.logger.Info("snapshot_recovered", zap.Int("sessions", n), zap.Int("stored", len(states)))
	return n, nil
}

// flushSnapshots writes the sessions the registry saw change since the
// previous flush.
// The store orders concurrent writes by version, so completion order does
// not matter.
func (c *Coordinator) flushSnapshots() {
	if c.snaps == nil {
		return
	}
	c.reg.TakeDirty(func(s *game.Session) {
		prev, ok := c.saved[s.ID]
		if ok && prev.version == s.Version {
			return
		}
		st := s.Export()
		c.saved[s.ID] = savedSnapshot{version: st.Version, users: userIDs(s)}
		snaps := c.snaps
		logger := c.logger
		c.runner.Go(func(ctx context.Context) func() {
			if err := snaps.Save(ctx, st); err != nil && !errors.Is(err, store.ErrStaleSnapshot) {
				logger.Warn("snapshot_save_error", zap.String("session_id", st.ID), zap.Error(err))
			}
			return nil
		})
	})
}

// sessionRemoved is the registry hook: the room closes and the snapshot
// goes with it.
func (c *Coordinator) sessionRemoved(id string) {
	c.roster.closeRoom(id)
	prev := c.saved[id]
	delete(c.saved, id)
	if c.snaps == nil {
		return
	}
	snaps := c.snaps
	logger := c.logger
	c.runner.Go(func(ctx context.Context) func() {
		if err := snaps.Delete(ctx, id, prev.users...); err != nil {
			logger.Warn("snapshot_delete_error", zap.String("session_id", id), zap.Error(err))
		}
		return nil
	})
}

func userIDs(s *game.Session) []string {
	out := make([]string, 0, 2)
	for _, p := range s.Players() {
		out = append(out, p.UserID)
	}
	return out
}
