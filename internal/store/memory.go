package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/rating"
)

// Memory is the in-process Repository used when no database is configured
// and in tests.
type Memory struct {
	mu sync.RWMutex

	nextID int64
	byID   map[int64]*domain.GameRecord
	byUUID map[string]*domain.GameRecord

	profiles map[string]*domain.RatingProfile // userID|category

	now func() time.Time
	// failures lets tests make the next writes fail.
	failSave    error
	failRatings error
}

func NewMemory() *Memory {
	return &Memory{
		byID:     make(map[int64]*domain.GameRecord),
		byUUID:   make(map[string]*domain.GameRecord),
		profiles: make(map[string]*domain.RatingProfile),
		now:      time.Now,
	}
}

// FailWith makes SaveResult and ApplyRatings return the given errors.
func (m *Memory) FailWith(save, ratings error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSave = save
	m.failRatings = ratings
}

func (m *Memory) InsertProvisional(_ context.Context, rec *domain.GameRecord) (int64, error) {
	if err := validate(rec); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.byUUID[rec.GameUUID]; ok {
		return cur.ID, nil
	}
	cp := cloneRecord(rec)
	cp.Result = domain.ResultOngoing
	cp.Reason = ""
	cp.PGN = ""
	return m.insertLocked(cp), nil
}

func (m *Memory) SaveResult(_ context.Context, rec *domain.GameRecord) (int64, error) {
	if err := validate(rec); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return 0, m.failSave
	}
	cp := cloneRecord(rec)
	if cur, ok := m.byUUID[rec.GameUUID]; ok {
		cp.ID = cur.ID
		m.byID[cp.ID] = cp
		m.byUUID[cp.GameUUID] = cp
		return cp.ID, nil
	}
	return m.insertLocked(cp), nil
}

func (m *Memory) insertLocked(rec *domain.GameRecord) int64 {
	m.nextID++
	rec.ID = m.nextID
	m.byID[rec.ID] = rec
	m.byUUID[rec.GameUUID] = rec
	return rec.ID
}

func (m *Memory) GetGame(_ context.Context, id int64) (*domain.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return cloneRecord(rec), nil
}

// GameByUUID is a test helper for looking a record up by its round id.
func (m *Memory) GameByUUID(gameUUID string) (*domain.GameRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byUUID[gameUUID]
	if !ok {
		return nil, false
	}
	return cloneRecord(rec), true
}

func (m *Memory) RecentGames(_ context.Context, userID string, limit int) ([]*domain.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]*domain.GameRecord, 0)
	for _, rec := range m.byID {
		if rec.Result == domain.ResultOngoing {
			continue
		}
		if rec.WhiteID == userID || rec.BlackID == userID {
			items = append(items, cloneRecord(rec))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *Memory) GetRatings(_ context.Context, userID string) (map[domain.Category]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.Category]int)
	for _, cat := range domain.Categories {
		if p, ok := m.profiles[profileKey(userID, cat)]; ok {
			out[cat] = p.Rating
		}
	}
	return out, nil
}

func (m *Memory) GetProfile(_ context.Context, userID string, cat domain.Category) (*domain.RatingProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[profileKey(userID, cat)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// SetRating seeds a rating, mostly for tests and local development.
func (m *Memory) SetRating(userID string, cat domain.Category, r int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profileKey(userID, cat)] = &domain.RatingProfile{UserID: userID, Category: cat, Rating: r, UpdatedAt: m.now()}
}

func (m *Memory) ApplyRatings(_ context.Context, changes []domain.RatingChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRatings != nil {
		return m.failRatings
	}
	for _, c := range changes {
		key := profileKey(c.UserID, c.Category)
		p, ok := m.profiles[key]
		if !ok {
			p = &domain.RatingProfile{UserID: c.UserID, Category: c.Category}
			m.profiles[key] = p
		}
		rating.Apply(p, c)
		p.UpdatedAt = m.now()
	}
	return nil
}

func (m *Memory) Close() error { return nil }

func profileKey(userID string, cat domain.Category) string {
	return userID + "|" + string(cat)
}

func cloneRecord(rec *domain.GameRecord) *domain.GameRecord {
	cp := *rec
	cp.MovesUCI = append([]string(nil), rec.MovesUCI...)
	return &cp
}
