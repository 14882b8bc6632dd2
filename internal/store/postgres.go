package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/rating"
)

type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects with the pool settings used across our services and
// pings before returning.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Postgres{db: db}, nil
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) InsertProvisional(ctx context.Context, rec *domain.GameRecord) (int64, error) {
	if err := validate(rec); err != nil {
		return 0, err
	}
	movesUCI, err := json.Marshal(nonNil(rec.MovesUCI))
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}

	const query = `
		INSERT INTO arena_games (
			game_uuid, session_id,
			white_id, white_name, black_id, black_name,
			result, reason, time_control, category, rated,
			white_rating_before, black_rating_before,
			moves_uci, pgn, started_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, '*', '', $7, $8, $9, $10, $11, $12::jsonb, '', $13)
		ON CONFLICT (game_uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = p.db.QueryRowContext(ctx, query,
		rec.GameUUID, rec.SessionID,
		rec.WhiteID, rec.WhiteName, rec.BlackID, rec.BlackName,
		rec.TimeControl, string(rec.Category), rec.Rated,
		rec.WhiteRatingBefore, rec.BlackRatingBefore,
		string(movesUCI), rec.StartedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return p.idByUUID(ctx, rec.GameUUID)
	}
	if err != nil {
		return 0, fmt.Errorf("insert provisional game: %w", err)
	}
	return id.Int64, nil
}

func (p *Postgres) SaveResult(ctx context.Context, rec *domain.GameRecord) (int64, error) {
	if err := validate(rec); err != nil {
		return 0, err
	}
	movesUCI, err := json.Marshal(nonNil(rec.MovesUCI))
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}

	const query = `
		INSERT INTO arena_games (
			game_uuid, session_id,
			white_id, white_name, black_id, black_name,
			result, reason, time_control, category, rated,
			white_rating_before, black_rating_before,
			white_rating_after, black_rating_after,
			moves_uci, pgn, started_at, ended_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16::jsonb,$17,$18,$19)
		ON CONFLICT (game_uuid) DO UPDATE SET
			result=EXCLUDED.result,
			reason=EXCLUDED.reason,
			white_rating_after=EXCLUDED.white_rating_after,
			black_rating_after=EXCLUDED.black_rating_after,
			moves_uci=EXCLUDED.moves_uci,
			pgn=EXCLUDED.pgn,
			ended_at=EXCLUDED.ended_at
		RETURNING id`

	var id int64
	err = p.db.QueryRowContext(ctx, query,
		rec.GameUUID, rec.SessionID,
		rec.WhiteID, rec.WhiteName, rec.BlackID, rec.BlackName,
		string(rec.Result), string(rec.Reason), rec.TimeControl, string(rec.Category), rec.Rated,
		rec.WhiteRatingBefore, rec.BlackRatingBefore,
		nullInt(rec.WhiteRatingAfter), nullInt(rec.BlackRatingAfter),
		string(movesUCI), rec.PGN, rec.StartedAt, nullTime(rec.EndedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save game result: %w", err)
	}
	return id, nil
}

func (p *Postgres) idByUUID(ctx context.Context, gameUUID string) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx, `SELECT id FROM arena_games WHERE game_uuid = $1`, gameUUID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrGameNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("select game id: %w", err)
	}
	return id, nil
}

const gameColumns = `
	id, game_uuid, session_id,
	white_id, white_name, black_id, black_name,
	result, reason, time_control, category, rated,
	white_rating_before, black_rating_before,
	white_rating_after, black_rating_after,
	moves_uci, pgn, started_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.GameRecord, error) {
	var (
		rec        domain.GameRecord
		result     string
		reason     string
		category   string
		whiteAfter sql.NullInt64
		blackAfter sql.NullInt64
		movesJSON  []byte
		endedAt    sql.NullTime
	)
	if err := row.Scan(
		&rec.ID, &rec.GameUUID, &rec.SessionID,
		&rec.WhiteID, &rec.WhiteName, &rec.BlackID, &rec.BlackName,
		&result, &reason, &rec.TimeControl, &category, &rec.Rated,
		&rec.WhiteRatingBefore, &rec.BlackRatingBefore,
		&whiteAfter, &blackAfter,
		&movesJSON, &rec.PGN, &rec.StartedAt, &endedAt,
	); err != nil {
		return nil, err
	}
	rec.Result = domain.Result(result)
	rec.Reason = domain.Reason(reason)
	rec.Category = domain.Category(category)
	rec.WhiteRatingAfter = int(whiteAfter.Int64)
	rec.BlackRatingAfter = int(blackAfter.Int64)
	if endedAt.Valid {
		rec.EndedAt = endedAt.Time
	}
	if len(movesJSON) > 0 {
		if err := json.Unmarshal(movesJSON, &rec.MovesUCI); err != nil {
			return nil, fmt.Errorf("decode moves_uci: %w", err)
		}
	}
	return &rec, nil
}

func (p *Postgres) GetGame(ctx context.Context, id int64) (*domain.GameRecord, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM arena_games WHERE id = $1`, id)
	rec, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select game: %w", err)
	}
	return rec, nil
}

func (p *Postgres) RecentGames(ctx context.Context, userID string, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+gameColumns+` FROM arena_games
		 WHERE (white_id = $1 OR black_id = $1) AND result <> '*'
		 ORDER BY ended_at DESC NULLS LAST, id DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent games: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.GameRecord, 0, limit)
	for rows.Next() {
		rec, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) GetRatings(ctx context.Context, userID string) (map[domain.Category]int, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT category, rating FROM arena_ratings WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("select ratings: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Category]int)
	for rows.Next() {
		var (
			cat string
			r   int
		)
		if err := rows.Scan(&cat, &r); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		out[domain.Category(cat)] = r
	}
	return out, rows.Err()
}

func (p *Postgres) GetProfile(ctx context.Context, userID string, cat domain.Category) (*domain.RatingProfile, error) {
	const query = `
		SELECT rating, games_played, wins, losses, draws, updated_at
		FROM arena_ratings WHERE user_id = $1 AND category = $2`
	prof := domain.RatingProfile{UserID: userID, Category: cat}
	err := p.db.QueryRowContext(ctx, query, userID, string(cat)).Scan(
		&prof.Rating, &prof.GamesPlayed, &prof.Wins, &prof.Losses, &prof.Draws, &prof.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select rating profile: %w", err)
	}
	return &prof, nil
}

func (p *Postgres) ApplyRatings(ctx context.Context, changes []domain.RatingChange) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rating tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
		INSERT INTO arena_ratings (user_id, category, rating, games_played, wins, losses, draws, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5, $6, NOW())
		ON CONFLICT (user_id, category) DO UPDATE SET
			rating=arena_ratings.rating + $7,
			games_played=arena_ratings.games_played + 1,
			wins=arena_ratings.wins + EXCLUDED.wins,
			losses=arena_ratings.losses + EXCLUDED.losses,
			draws=arena_ratings.draws + EXCLUDED.draws,
			updated_at=EXCLUDED.updated_at`

	for _, c := range changes {
		var probe domain.RatingProfile
		rating.Apply(&probe, c)
		if _, err := tx.ExecContext(ctx, query,
			c.UserID, string(c.Category), c.After, probe.Wins, probe.Losses, probe.Draws, c.Delta(),
		); err != nil {
			return fmt.Errorf("upsert rating %s/%s: %w", c.UserID, c.Category, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ratings: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
