package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-arena/internal/game"
)

// ErrStaleSnapshot means a newer version of the session is already stored.
var ErrStaleSnapshot = errors.New("stale snapshot")

const (
	snapshotTTL   = 24 * time.Hour
	maxTxAttempts = 5
)

// SnapshotStore keeps the last known state of every live session in Redis
// so a restarted process can rebuild its registry.
type SnapshotStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSnapshotStore(rdb *redis.Client) *SnapshotStore {
	return &SnapshotStore{rdb: rdb, ttl: snapshotTTL}
}

// OpenRedis parses REDIS_URL and pings the server.
func OpenRedis(ctx context.Context, raw string) (*redis.Client, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	opts, err := parseRedisURL(raw)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("redis db %q: %w", p, err)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}

func sessionKey(id string) string    { return "arena:session:" + strings.TrimSpace(id) }
func userIndexKey(uid string) string { return "arena:index:user:" + strings.TrimSpace(uid) }

const liveKey = "arena:live"

// Save writes st unless an equal or newer version is already stored, in
// which case it returns ErrStaleSnapshot. The check and the write are one
// WATCH transaction, so out-of-order writers cannot roll a session back.
func (s *SnapshotStore) Save(ctx context.Context, st game.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := sessionKey(st.ID)

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var prev struct {
				Version uint64 `json:"version"`
			}
			if jerr := json.Unmarshal(cur, &prev); jerr == nil && prev.Version >= st.Version {
				return ErrStaleSnapshot
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			pipe.SAdd(ctx, liveKey, st.ID)
			for _, p := range st.Players {
				if p.UserID == "" {
					continue
				}
				pipe.SAdd(ctx, userIndexKey(p.UserID), st.ID)
				pipe.Expire(ctx, userIndexKey(p.UserID), s.ttl)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxAttempts; i++ {
		err = s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("save snapshot %s: %w", st.ID, err)
}

func (s *SnapshotStore) Load(ctx context.Context, id string) (*game.State, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st game.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return &st, nil
}

// Delete drops the snapshot and its index entries.
func (s *SnapshotStore) Delete(ctx context.Context, id string, userIDs ...string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.SRem(ctx, liveKey, id)
	for _, uid := range userIDs {
		if uid != "" {
			pipe.SRem(ctx, userIndexKey(uid), id)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// List returns every stored live snapshot. Index entries whose snapshot
// expired are pruned.
func (s *SnapshotStore) List(ctx context.Context) ([]game.State, error) {
	ids, err := s.rdb.SMembers(ctx, liveKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]game.State, 0, len(ids))
	for _, id := range ids {
		st, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if st == nil {
			_ = s.rdb.SRem(ctx, liveKey, id).Err()
			continue
		}
		out = append(out, *st)
	}
	return out, nil
}

func (s *SnapshotStore) SessionsByUser(ctx context.Context, userID string) ([]string, error) {
	return s.rdb.SMembers(ctx, userIndexKey(userID)).Result()
}

func (s *SnapshotStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
