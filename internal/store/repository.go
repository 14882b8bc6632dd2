package store

import (
	"context"
	"errors"

	"github.com/park285/cheese-arena/internal/domain"
)

var (
	ErrGameNotFound  = errors.New("game record not found")
	ErrInvalidRecord = errors.New("invalid game record")
)

// Repository persists game records and per-category ratings.
type Repository interface {
	// InsertProvisional records a game at start with result "*". A record
	// that already exists is left alone and its id returned.
	InsertProvisional(ctx context.Context, rec *domain.GameRecord) (int64, error)
	// SaveResult upserts the final record keyed by GameUUID.
	SaveResult(ctx context.Context, rec *domain.GameRecord) (int64, error)
	GetGame(ctx context.Context, id int64) (*domain.GameRecord, error)
	RecentGames(ctx context.Context, userID string, limit int) ([]*domain.GameRecord, error)
	// GetRatings returns the stored rating per category; missing categories
	// are absent from the map.
	GetRatings(ctx context.Context, userID string) (map[domain.Category]int, error)
	GetProfile(ctx context.Context, userID string, cat domain.Category) (*domain.RatingProfile, error)
	// ApplyRatings writes all changes atomically. A stored rating moves by
	// the change's delta; After only seeds a missing row.
	ApplyRatings(ctx context.Context, changes []domain.RatingChange) error
	Close() error
}

func validate(rec *domain.GameRecord) error {
	if rec == nil || rec.GameUUID == "" || rec.SessionID == "" {
		return ErrInvalidRecord
	}
	return nil
}
