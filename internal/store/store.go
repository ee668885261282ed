package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stridehq/sportiva-adapter/pkg/model"
)

// Store defines the contract for caching and persisting attendance data.
type Store interface {
	RecordAttendanceEvent(ctx context.Context, ci model.CheckIn) error
	UpdateAttendanceSnapshot(ctx context.Context, ci model.CheckIn) error
	CacheSessionAttendance(ctx context.Context, sessionID string, checkins []model.CheckIn, ttl time.Duration) error
	GetSessionAttendance(ctx context.Context, sessionID string) ([]model.CheckIn, error)
	StoreClass(ctx context.Context, cl model.Class) error
	ListClasses(ctx context.Context, clubID string) ([]model.Class, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// HybridStore is a Redis-first cache with a Postgres ledger behind it.
type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates a Redis-first, Postgres-backed store.
func NewHybrid(redisAddr string, redisDB int, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

// RecordAttendanceEvent inserts an immutable event into ledger.attendance_event.
func (s *HybridStore) RecordAttendanceEvent(ctx context.Context, ci model.CheckIn) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO ledger.attendance_event (
			checkin_id, session_id, child_id, club_id,
			status, checked_by, checked_at, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, ci.ID, ci.SessionID, ci.ChildID, ci.ClubID,
		ci.Status, ci.CheckedBy, ci.CheckedAt)
	if err != nil {
		s.logger.Error("store.pg.insert_event_failed", zap.Error(err))
	}
	return err
}

// UpdateAttendanceSnapshot upserts the current status of a child in a session.
func (s *HybridStore) UpdateAttendanceSnapshot(ctx context.Context, ci model.CheckIn) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO ledger.attendance_snapshot (
			session_id, child_id, club_id,
			status, checked_by, checked_at, as_of
		)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (session_id, child_id)
		DO UPDATE SET
			status = EXCLUDED.status,
			checked_by = EXCLUDED.checked_by,
			checked_at = EXCLUDED.checked_at,
			as_of = EXCLUDED.as_of;
	`, ci.SessionID, ci.ChildID, ci.ClubID,
		ci.Status, ci.CheckedBy, ci.CheckedAt)
	if err != nil {
		s.logger.Error("store.pg.snapshot_update_failed", zap.Error(err))
	}
	return err
}

// CacheSessionAttendance caches the full check-in list of a session in Redis.
func (s *HybridStore) CacheSessionAttendance(ctx context.Context, sessionID string, checkins []model.CheckIn, ttl time.Duration) error {
	return s.SetJSON(ctx, attendanceKey(sessionID), checkins, ttl)
}

// GetSessionAttendance returns cached check-ins for a session, or the Postgres
// snapshot on a cache miss.
func (s *HybridStore) GetSessionAttendance(ctx context.Context, sessionID string) ([]model.CheckIn, error) {
	data, err := s.redis.Get(ctx, attendanceKey(sessionID)).Bytes()
	if err == nil {
		var checkins []model.CheckIn
		if jerr := json.Unmarshal(data, &checkins); jerr == nil {
			return checkins, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	if s.PG == nil {
		return nil, nil
	}
	rows, err := s.PG.Query(ctx, `
		SELECT session_id, child_id, club_id, status, checked_by, checked_at
		FROM ledger.attendance_snapshot
		WHERE session_id = $1
		ORDER BY checked_at;
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.CheckIn
	for rows.Next() {
		var ci model.CheckIn
		if err := rows.Scan(&ci.SessionID, &ci.ChildID, &ci.ClubID,
			&ci.Status, &ci.CheckedBy, &ci.CheckedAt); err != nil {
			return nil, err
		}
		results = append(results, ci)
	}
	return results, rows.Err()
}

// StoreClass upserts a class into the reference catalog.
func (s *HybridStore) StoreClass(ctx context.Context, cl model.Class) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO reference.club_classes
			(class_id, program_id, club_id, class_name, coach_id, weekday, start_time, capacity, as_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (class_id)
		DO UPDATE SET
			program_id = EXCLUDED.program_id,
			class_name = EXCLUDED.class_name,
			coach_id = EXCLUDED.coach_id,
			weekday = EXCLUDED.weekday,
			start_time = EXCLUDED.start_time,
			capacity = EXCLUDED.capacity,
			as_of = now();
	`, cl.ID, cl.ProgramID, cl.ClubID, cl.Name, cl.CoachID, cl.Weekday, cl.StartTime, cl.Capacity)
	if err != nil {
		s.logger.Error("store.pg.insert_class_failed", zap.Error(err))
		return err
	}
	return nil
}

// ListClasses returns the cataloged classes of a club.
func (s *HybridStore) ListClasses(ctx context.Context, clubID string) ([]model.Class, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	rows, err := s.PG.Query(ctx, `
		SELECT class_id, program_id, club_id, class_name, coach_id, weekday, start_time, capacity
		FROM reference.club_classes
		WHERE ($1 = '' OR club_id = $1)
		ORDER BY class_name;
	`, clubID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []model.Class
	for rows.Next() {
		var cl model.Class
		if err := rows.Scan(&cl.ID, &cl.ProgramID, &cl.ClubID, &cl.Name,
			&cl.CoachID, &cl.Weekday, &cl.StartTime, &cl.Capacity); err != nil {
			return nil, err
		}
		classes = append(classes, cl)
	}
	return classes, rows.Err()
}

func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

func attendanceKey(sessionID string) string {
	return "attendance:" + sessionID
}
